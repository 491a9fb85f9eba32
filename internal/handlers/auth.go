package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/bz888/llamagate/internal/models"
)

// Login checks the admin credentials and issues a JWT.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req models.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error:   "Invalid request",
			Message: err.Error(),
		})
	}

	if h.cfg.AdminUser == "" || req.Username != h.cfg.AdminUser || req.Password != h.cfg.AdminPassword {
		return c.Status(fiber.StatusUnauthorized).JSON(models.ErrorResponse{
			Error:   "Invalid credentials",
			Message: "Username or password is incorrect",
		})
	}

	token, err := h.auth.GenerateToken(req.Username)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse{
			Error:   "Failed to generate token",
			Message: err.Error(),
		})
	}
	return c.JSON(models.LoginResponse{Token: token})
}

// ValidateKey checks whether the supplied X-API-Key belongs to an active
// project and lists the models assigned to it.
func (h *Handler) ValidateKey(c *fiber.Ctx) error {
	apiKey, _ := c.Locals("api_key").(string)
	if apiKey == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(models.ErrorResponse{
			Error:   "Invalid API key",
			Message: "API key not provided",
		})
	}

	project, err := h.store.ProjectByAPIKey(apiKey)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse{
			Error:   "Failed to look up API key",
			Message: err.Error(),
		})
	}
	if project == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(models.ErrorResponse{
			Error:   "Invalid API key",
			Message: "Project not found with the provided API key",
		})
	}
	if !project.IsActive {
		return c.Status(fiber.StatusForbidden).JSON(models.ErrorResponse{
			Error:   "Project inactive",
			Message: "This project is currently inactive",
		})
	}

	assigned := make([]string, 0, len(project.Models))
	for _, pm := range project.Models {
		assigned = append(assigned, pm.ModelName)
	}

	return c.JSON(fiber.Map{
		"valid":   true,
		"project": fiber.Map{"id": project.ID, "name": project.Name},
		"models":  assigned,
	})
}
