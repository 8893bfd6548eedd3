package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v5"

	"github.com/datallboy/gosplice/internal/app"
	"github.com/datallboy/gosplice/internal/domain"
	"github.com/datallboy/gosplice/internal/infra/logger"
	"github.com/datallboy/gosplice/internal/validation"
)

var formatContentTypes = map[string]string{
	"mp4":      "video/mp4",
	"matroska": "video/x-matroska",
	"mpegts":   "video/mp2t",
	"webm":     "video/webm",
	"mov":      "video/quicktime",
}

type StreamController struct {
	Downloader app.Downloader
	Logger     *logger.Logger
	// DefaultFormat applies when the query has no format.
	DefaultFormat string
}

// Handle serves GET /stream?url=&format=&start=&stop=&name=
//
// The job runs inside the request, so the response starts only once every
// segment is on disk and merged.
func (ctrl *StreamController) Handle(c *echo.Context) error {
	rawURL := c.QueryParam("url")
	if err := validation.MediaURL(rawURL); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	}

	start, err := intParam(c, "start")
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	}
	stop, err := intParam(c, "stop")
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	}

	format := c.QueryParam("format")
	if format == "" {
		format = ctrl.DefaultFormat
	}

	req := domain.Request{
		SourceURL: rawURL,
		Target:    domain.StreamTarget(format),
		Options:   domain.JobOptions{Name: c.QueryParam("name"), Start: start, Stop: stop},
	}

	out, err := ctrl.Downloader.Run(c.Request().Context(), req, nil)
	if err != nil {
		var (
			cfgErr *domain.ConfigurationError
			noSeg  *domain.NoSegmentsFoundError
		)
		switch {
		case errors.Is(err, domain.ErrWorkDirInUse):
			return c.JSON(http.StatusConflict, errorResponse(err.Error()))
		case errors.As(err, &cfgErr):
			return c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		case errors.As(err, &noSeg):
			return c.JSON(http.StatusNotFound, errorResponse(err.Error()))
		default:
			ctrl.Logger.Error("Stream for %s failed: %v", rawURL, err)
			return c.JSON(http.StatusBadGateway, errorResponse(err.Error()))
		}
	}
	defer out.Stream.Close()

	contentType, ok := formatContentTypes[format]
	if !ok {
		contentType = "application/octet-stream"
	}

	c.Response().Header().Set("X-Job-Id", out.JobID)
	return c.Stream(http.StatusOK, contentType, out.Stream)
}

func intParam(c *echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return n, nil
}
