package handlers

import (
	"bufio"

	"github.com/gofiber/fiber/v2"

	"github.com/bz888/llamagate/internal/models"
)

// ListModels proxies the engine's installed-models listing.
func (h *Handler) ListModels(c *fiber.Ctx) error {
	body, err := h.engine.Tags(c.Context())
	if err != nil {
		return h.engineError(c, err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(body)
}

// ListRunningModels proxies the engine's loaded-models listing.
func (h *Handler) ListRunningModels(c *fiber.Ctx) error {
	body, err := h.engine.Ps(c.Context())
	if err != nil {
		return h.engineError(c, err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(body)
}

// PullModel starts a model download and relays the engine's NDJSON progress
// stream line by line.
func (h *Handler) PullModel(c *fiber.Ctx) error {
	name, err := modelName(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error:   "Invalid request",
			Message: err.Error(),
		})
	}

	progress, err := h.engine.Pull(c.Context(), name)
	if err != nil {
		return h.engineError(c, err)
	}

	c.Set(fiber.HeaderContentType, "application/x-ndjson")
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer progress.Close()

		scanner := bufio.NewScanner(progress)
		for scanner.Scan() {
			if _, err := w.Write(scanner.Bytes()); err != nil {
				return
			}
			if _, err := w.Write([]byte("\n")); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				return
			}
		}
	})
	return nil
}

// DeleteModel removes a model from the engine.
func (h *Handler) DeleteModel(c *fiber.Ctx) error {
	name, err := modelName(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error:   "Invalid request",
			Message: err.Error(),
		})
	}

	body, err := h.engine.Delete(c.Context(), name)
	if err != nil {
		return h.engineError(c, err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(body)
}

func modelName(c *fiber.Ctx) (string, error) {
	var req map[string]string
	if err := c.BodyParser(&req); err != nil {
		return "", err
	}
	name := req["name"]
	if name == "" {
		return "", &ValidationError{Field: "name"}
	}
	return name, nil
}
