package controllers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/datallboy/gosplice/internal/domain"
	"github.com/datallboy/gosplice/internal/infra/logger"
	"github.com/datallboy/gosplice/internal/validation"
)

// JobQueue is the part of the queue manager the API drives.
type JobQueue interface {
	Add(req domain.Request) (*domain.QueueItem, error)
	GetItem(id string) (domain.QueueItem, bool)
	GetAllItems() ([]domain.QueueItem, error)
}

type JobsController struct {
	Queue  JobQueue
	Logger *logger.Logger
}

// Create handles POST /jobs
func (ctrl *JobsController) Create(c *echo.Context) error {
	var body CreateJobRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse("invalid request body"))
	}

	if err := validation.Struct(body); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	}

	item, err := ctrl.Queue.Add(body.Request())
	if err != nil {
		var cfgErr *domain.ConfigurationError
		if errors.As(err, &cfgErr) {
			return c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		}
		ctrl.Logger.Error("Failed to queue job for %s: %v", body.URL, err)
		return c.JSON(http.StatusInternalServerError, errorResponse("failed to queue job"))
	}

	ctrl.Logger.Info("Queued job %s for %s", item.ID, item.SourceURL)
	return c.JSON(http.StatusAccepted, item)
}

// List handles GET /jobs
func (ctrl *JobsController) List(c *echo.Context) error {
	items, err := ctrl.Queue.GetAllItems()
	if err != nil {
		ctrl.Logger.Error("Failed to list jobs: %v", err)
		return c.JSON(http.StatusInternalServerError, errorResponse("failed to list jobs"))
	}
	if items == nil {
		items = []domain.QueueItem{}
	}
	return c.JSON(http.StatusOK, items)
}

// Get handles GET /jobs/:id
func (ctrl *JobsController) Get(c *echo.Context) error {
	item, ok := ctrl.Queue.GetItem(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusNotFound, errorResponse("job not found"))
	}
	return c.JSON(http.StatusOK, item)
}
