package handlers

import (
	"context"

	"github.com/k-code-yt/go-storefront/internal/fulfillment/application"
	"github.com/k-code-yt/go-storefront/internal/jobs"
)

type JobHandler struct {
	svc *application.FulfillmentService
}

func NewJobHandler(svc *application.FulfillmentService) *JobHandler {
	return &JobHandler{svc: svc}
}

// Handle runs fulfillment for the event the job references. Every outcome
// the service returns without error is terminal.
func (h *JobHandler) Handle(ctx context.Context, job *jobs.Job) error {
	_, err := h.svc.Process(ctx, job.EventID)
	return err
}

var _ jobs.Handler = (&JobHandler{}).Handle
