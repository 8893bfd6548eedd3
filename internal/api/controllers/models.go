package controllers

import "github.com/datallboy/gosplice/internal/domain"

// CreateJobRequest is the POST /jobs body.
type CreateJobRequest struct {
	URL     string                `json:"url" validate:"required,media_url"`
	Output  string                `json:"output" validate:"required"`
	Name    string                `json:"name"`
	Start   int                   `json:"start" validate:"gte=0"`
	Stop    int                   `json:"stop" validate:"gte=0"`
	Cleanup *domain.CleanupPolicy `json:"cleanup"`
}

func (r CreateJobRequest) Request() domain.Request {
	req := domain.Request{
		SourceURL: r.URL,
		Target:    domain.FileTarget(r.Output),
		Options:   domain.JobOptions{Name: r.Name, Start: r.Start, Stop: r.Stop},
	}
	if r.Cleanup != nil {
		req.Options.Cleanup = *r.Cleanup
	}
	return req
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func errorResponse(msg string) ErrorResponse {
	return ErrorResponse{Error: msg}
}
