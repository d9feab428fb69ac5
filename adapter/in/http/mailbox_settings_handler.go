package http

import (
	"github.com/gofiber/fiber/v2"

	"smart_mailbox/config"
	"smart_mailbox/pkg/apperr"
)

// SettingsApplier rebuilds whatever depends on the AI settings.
type SettingsApplier func(settings config.AISettings) error

type SettingsHandler struct {
	store *config.AISettingsStore
	apply SettingsApplier
}

func NewSettingsHandler(store *config.AISettingsStore, apply SettingsApplier) *SettingsHandler {
	return &SettingsHandler{store: store, apply: apply}
}

func (h *SettingsHandler) Register(r fiber.Router) {
	r.Get("/settings/ai", h.Get)
	r.Put("/settings/ai", h.Update)
}

func (h *SettingsHandler) Get(c *fiber.Ctx) error {
	return SuccessResponse(c, h.store.Get())
}

// Update persists the patch, then swaps in a gateway built from it.
func (h *SettingsHandler) Update(c *fiber.Ctx) error {
	var patch config.AISettingsPatch
	if err := c.BodyParser(&patch); err != nil {
		return apperr.BadRequest("invalid request body")
	}
	settings, err := h.store.Update(patch)
	if err != nil {
		return apperr.BadRequest(err.Error())
	}
	if h.apply != nil {
		if err := h.apply(settings); err != nil {
			return apperr.ConfigError("settings saved but could not be applied").WithError(err)
		}
	}
	return SuccessResponse(c, settings)
}
