package api

import (
	"net/http"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/datallboy/gosplice/internal/api/controllers"
	"github.com/datallboy/gosplice/internal/app"
	"github.com/datallboy/gosplice/internal/events"
)

func RegisterRoutes(e *echo.Echo, app *app.Context, queue controllers.JobQueue) {

	// Middleware: Request Logger
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c *echo.Context, v middleware.RequestLoggerValues) error {
			app.Logger.Info("%s %s | %d | %s", v.Method, v.URI, v.Status, v.Latency)
			return nil
		},
	}))

	jobsCtrl := &controllers.JobsController{Queue: queue, Logger: app.Logger}
	streamCtrl := &controllers.StreamController{
		Downloader:    app.Downloader,
		Logger:        app.Logger,
		DefaultFormat: app.Config.FFmpeg.DefaultFormat,
	}

	e.POST("/jobs", jobsCtrl.Create)
	e.GET("/jobs", jobsCtrl.List)
	e.GET("/jobs/:id", jobsCtrl.Get)

	e.GET("/stream", streamCtrl.Handle)
}

// NewHandler mounts the echo API next to the websocket feed and the metrics
// endpoint, which are plain net/http handlers.
func NewHandler(app *app.Context, queue controllers.JobQueue, hub *events.Hub, gatherer prometheus.Gatherer) http.Handler {
	e := echo.New()
	RegisterRoutes(e, app, queue)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/events", &EventsHandler{Hub: hub, Logger: app.Logger})
	mux.Handle("/", e)
	return mux
}
