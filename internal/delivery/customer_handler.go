package delivery

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"livechat-console/internal/chat"
)

type CustomerHandler struct {
	widget CustomerService
}

func NewCustomerHandler(widget CustomerService) *CustomerHandler {
	return &CustomerHandler{widget: widget}
}

func (h *CustomerHandler) Register(api fiber.Router) {
	w := api.Group("/widget")
	w.Get("/", h.handleSnapshot)
	w.Put("/draft", h.handleSetDraft)
	w.Post("/send", h.handleSend)
	w.Post("/key", h.handleKey)
	w.Post("/rating", h.handleRating)
	w.Post("/feedback/dismiss", h.handleDismissFeedback)
}

func (h *CustomerHandler) handleSnapshot(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data":    h.widget.Snapshot(),
	})
}

func (h *CustomerHandler) handleSetDraft(c *fiber.Ctx) error {
	var req draftRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid draft",
		})
	}
	h.widget.SetDraft(req.Text)
	return c.JSON(fiber.Map{"success": true})
}

func (h *CustomerHandler) handleSend(c *fiber.Ctx) error {
	if !h.widget.Submit() {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"success": false,
			"message": "Nothing to send",
		})
	}
	return c.JSON(fiber.Map{"success": true, "message": "Message sent"})
}

func (h *CustomerHandler) handleKey(c *fiber.Ctx) error {
	var ev chat.KeyEvent
	if err := c.BodyParser(&ev); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid key event",
		})
	}
	return c.JSON(fiber.Map{
		"success":         true,
		"prevent_default": h.widget.HandleKey(ev),
	})
}

func (h *CustomerHandler) handleRating(c *fiber.Ctx) error {
	var req ratingRequest
	if err := c.BodyParser(&req); err != nil || req.Rate < 1 || req.Rate > 5 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Rate must be between 1 and 5",
		})
	}

	if err := h.widget.SubmitRating(c.UserContext(), req.Rate, req.Comment); err != nil {
		status := fiber.StatusBadGateway
		if errors.Is(err, chat.ErrNoSession) {
			status = fiber.StatusConflict
		}
		return c.Status(status).JSON(fiber.Map{
			"success": false,
			"message": "Failed to submit rating",
			"error":   err.Error(),
		})
	}
	return c.JSON(fiber.Map{"success": true, "message": "Thank you for your feedback"})
}

func (h *CustomerHandler) handleDismissFeedback(c *fiber.Ctx) error {
	h.widget.DismissFeedback()
	return c.JSON(fiber.Map{"success": true})
}
