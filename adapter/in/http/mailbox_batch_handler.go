package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"smart_mailbox/adapter/in/worker"
	"smart_mailbox/pkg/apperr"
)

// BatchRunner queues batches in the background.
type BatchRunner interface {
	SubmitFiles(paths []string) (*worker.JobView, error)
	SubmitSweep(limit int) (*worker.JobView, error)
	Get(id string) (*worker.JobView, error)
	Cancel(id string) (*worker.JobView, error)
	List() []*worker.JobView
}

type BatchHandler struct {
	runner BatchRunner
}

func NewBatchHandler(runner BatchRunner) *BatchHandler {
	return &BatchHandler{runner: runner}
}

func (h *BatchHandler) Register(r fiber.Router) {
	batches := r.Group("/batches")
	batches.Get("/", h.List)
	batches.Post("/", h.ProcessFiles)
	batches.Post("/sweep", h.Sweep)
	batches.Get("/:id", h.Get)
	batches.Delete("/:id", h.Cancel)
}

type processFilesRequest struct {
	Paths []string `json:"paths"`
}

type sweepRequest struct {
	Limit int `json:"limit"`
}

// ProcessFiles queues the given .eml paths and returns the job at once.
func (h *BatchHandler) ProcessFiles(c *fiber.Ctx) error {
	var req processFilesRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid request body")
	}
	if len(req.Paths) == 0 {
		return apperr.MissingField("paths")
	}
	job, err := h.runner.SubmitFiles(req.Paths)
	if err != nil {
		return submitError(err)
	}
	return AcceptedResponse(c, job)
}

// Sweep queues reanalysis of unprocessed emails.
func (h *BatchHandler) Sweep(c *fiber.Ctx) error {
	var req sweepRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperr.BadRequest("invalid request body")
		}
	}
	if req.Limit < 0 {
		return apperr.InvalidInput("limit", "must not be negative")
	}
	job, err := h.runner.SubmitSweep(req.Limit)
	if err != nil {
		return submitError(err)
	}
	return AcceptedResponse(c, job)
}

func (h *BatchHandler) Get(c *fiber.Ctx) error {
	job, err := h.runner.Get(c.Params("id"))
	if err != nil {
		return err
	}
	return SuccessResponse(c, job)
}

func (h *BatchHandler) List(c *fiber.Ctx) error {
	return SuccessResponse(c, h.runner.List())
}

// Cancel stops a queued or running job. A finished job is returned unchanged.
func (h *BatchHandler) Cancel(c *fiber.Ctx) error {
	job, err := h.runner.Cancel(c.Params("id"))
	if err != nil {
		return err
	}
	return SuccessResponse(c, job)
}

func submitError(err error) error {
	if errors.Is(err, worker.ErrQueueFull) {
		return apperr.New("QUEUE_FULL", err.Error(), fiber.StatusTooManyRequests)
	}
	return apperr.Wrap(err, apperr.CodeInternalError, "could not queue batch", fiber.StatusInternalServerError)
}
