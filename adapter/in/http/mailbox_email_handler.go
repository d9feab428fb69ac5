package http

import (
	"github.com/gofiber/fiber/v2"

	"smart_mailbox/core/domain"
	"smart_mailbox/core/port/in"
	"smart_mailbox/pkg/apperr"
)

const defaultPageSize = 50

type EmailHandler struct {
	svc in.PipelineService
}

func NewEmailHandler(svc in.PipelineService) *EmailHandler {
	return &EmailHandler{svc: svc}
}

func (h *EmailHandler) Register(r fiber.Router) {
	r.Get("/connection", h.Connection)
	r.Get("/stats", h.Stats)

	emails := r.Group("/emails")
	emails.Get("/", h.List)
	emails.Delete("/", h.Delete)
	emails.Post("/:id/reanalyze", h.Reanalyze)
	emails.Get("/:id/replies", h.Replies)
}

// Connection reports whether the model server answers and lists its models.
func (h *EmailHandler) Connection(c *fiber.Ctx) error {
	ok, models := h.svc.CheckConnection(c.UserContext())
	if models == nil {
		models = []string{}
	}
	return SuccessResponse(c, fiber.Map{
		"connected": ok,
		"models":    models,
	})
}

// List supports ?q=, ?tag=, ?processed=, ?include_generated=, ?limit=, ?offset=.
func (h *EmailHandler) List(c *fiber.Ctx) error {
	page := GetPaginationParams(c, defaultPageSize)
	filter := &domain.EmailFilter{
		Query:       c.Query("q"),
		Tag:         c.Query("tag"),
		AIProcessed: QueryBool(c, "processed"),
		Limit:       page.Limit + 1, // one extra row tells us whether there is more
		Offset:      page.Offset,
	}
	if b := QueryBool(c, "include_generated"); b != nil {
		filter.IncludeGenerated = *b
	}

	emails, err := h.svc.ListEmails(c.UserContext(), filter)
	if err != nil {
		return err
	}
	hasMore := len(emails) > page.Limit
	if hasMore {
		emails = emails[:page.Limit]
	}
	return SuccessResponse(c, ListResponse{
		Data:    emails,
		Count:   len(emails),
		Offset:  page.Offset,
		HasMore: hasMore,
	})
}

type deleteRequest struct {
	IDs []string `json:"ids"`
}

func (h *EmailHandler) Delete(c *fiber.Ctx) error {
	var req deleteRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid request body")
	}
	if len(req.IDs) == 0 {
		return apperr.MissingField("ids")
	}
	result, err := h.svc.DeleteEmails(c.UserContext(), req.IDs)
	if err != nil {
		return err
	}
	return SuccessResponse(c, result)
}

// Reanalyze classifies a stored email again. It answers 409 while a batch holds the model.
func (h *EmailHandler) Reanalyze(c *fiber.Ctx) error {
	result, err := h.svc.Reanalyze(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return SuccessResponse(c, result)
}

func (h *EmailHandler) Replies(c *fiber.Ctx) error {
	replies, err := h.svc.Replies(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	if replies == nil {
		replies = []*domain.EmailRecord{}
	}
	return SuccessResponse(c, replies)
}

func (h *EmailHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.svc.Stats(c.UserContext())
	if err != nil {
		return err
	}
	return SuccessResponse(c, stats)
}
