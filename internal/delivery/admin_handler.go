package delivery

import (
	"github.com/gofiber/fiber/v2"

	"livechat-console/internal/chat"
)

type AdminHandler struct {
	console AdminService
}

func NewAdminHandler(console AdminService) *AdminHandler {
	return &AdminHandler{console: console}
}

func (h *AdminHandler) Register(api fiber.Router) {
	api.Get("/sessions", h.handleListSessions)
	api.Get("/sessions/:session_id", h.handleGetSession)
	api.Post("/sessions/:session_id/select", h.handleSelectSession)
	api.Patch("/sessions/:session_id/status", h.handleUpdateStatus)
	api.Put("/search", h.handleSetSearch)
	api.Get("/timeline", h.handleTimeline)
	api.Put("/draft", h.handleSetDraft)
	api.Post("/send", h.handleSend)
	api.Post("/key", h.handleKey)
}

func (h *AdminHandler) handleListSessions(c *fiber.Ctx) error {
	snap := h.console.Snapshot()
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Sessions retrieved successfully",
		"data": fiber.Map{
			"sessions": snap.Sessions,
			"search":   snap.Search,
			"loading":  snap.LoadingSessions,
		},
	})
}

func (h *AdminHandler) handleGetSession(c *fiber.Ctx) error {
	session, ok := h.console.Session(c.Params("session_id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Session not found",
		})
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Session retrieved successfully",
		"data":    session,
	})
}

func (h *AdminHandler) handleSelectSession(c *fiber.Ctx) error {
	changed := h.console.Select(c.Params("session_id"))
	return c.JSON(fiber.Map{
		"success": true,
		"changed": changed,
		"data":    h.console.Snapshot(),
	})
}

func (h *AdminHandler) handleUpdateStatus(c *fiber.Ctx) error {
	var req statusRequest
	if err := c.BodyParser(&req); err != nil || req.Status == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid status update",
		})
	}

	res, err := h.console.UpdateStatus(c.UserContext(), c.Params("session_id"), req.Status, req.Time)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"success": false,
			"message": "Failed to update session status",
			"error":   err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Session status updated",
		"data":    res,
	})
}

// handleSetSearch updates the shared session filter and returns the
// filtered list.
func (h *AdminHandler) handleSetSearch(c *fiber.Ctx) error {
	var req searchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid search",
		})
	}
	h.console.SetSearch(req.Term)
	return h.handleListSessions(c)
}

func (h *AdminHandler) handleTimeline(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data":    h.console.Snapshot(),
	})
}

func (h *AdminHandler) handleSetDraft(c *fiber.Ctx) error {
	var req draftRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid draft",
		})
	}
	h.console.SetDraft(req.Text)
	return c.JSON(fiber.Map{"success": true})
}

func (h *AdminHandler) handleSend(c *fiber.Ctx) error {
	msg, ok := h.console.Submit()
	if !ok {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"success": false,
			"message": "Nothing to send",
		})
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Message sent",
		"data":    msg,
	})
}

func (h *AdminHandler) handleKey(c *fiber.Ctx) error {
	var ev chat.KeyEvent
	if err := c.BodyParser(&ev); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid key event",
		})
	}
	return c.JSON(fiber.Map{
		"success":         true,
		"prevent_default": h.console.HandleKey(ev),
	})
}
