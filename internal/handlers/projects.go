package handlers

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/gofiber/fiber/v2"

	"github.com/bz888/llamagate/internal/models"
)

// generateAPIKey produces a random 64-character hex key.
func generateAPIKey() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// ListProjects returns all projects with their model assignments.
func (h *Handler) ListProjects(c *fiber.Ctx) error {
	projects, err := h.store.ListProjects()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse{
			Error:   "Failed to fetch projects",
			Message: err.Error(),
		})
	}
	return c.JSON(projects)
}

// GetProject returns one project by id.
func (h *Handler) GetProject(c *fiber.Ctx) error {
	project, err := h.store.GetProject(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse{
			Error:   "Failed to fetch project",
			Message: err.Error(),
		})
	}
	if project == nil {
		return c.Status(fiber.StatusNotFound).JSON(models.ErrorResponse{
			Error: "Project not found",
		})
	}
	return c.JSON(project)
}

// CreateProject creates a project with a freshly generated API key.
func (h *Handler) CreateProject(c *fiber.Ctx) error {
	var req models.CreateProjectRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error:   "Invalid request",
			Message: err.Error(),
		})
	}
	if req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error:   "Invalid request",
			Message: "Project name is required",
		})
	}

	apiKey, err := generateAPIKey()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse{
			Error:   "Failed to generate API key",
			Message: err.Error(),
		})
	}

	project := models.Project{
		Name:        req.Name,
		Description: req.Description,
		APIKey:      apiKey,
		IsActive:    true,
	}
	if err := h.store.CreateProject(&project); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error:   "Failed to create project",
			Message: err.Error(),
		})
	}
	return c.Status(fiber.StatusCreated).JSON(project)
}

// UpdateProject updates name and description.
func (h *Handler) UpdateProject(c *fiber.Ctx) error {
	project, err := h.store.GetProject(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse{
			Error:   "Failed to fetch project",
			Message: err.Error(),
		})
	}
	if project == nil {
		return c.Status(fiber.StatusNotFound).JSON(models.ErrorResponse{
			Error: "Project not found",
		})
	}

	var req models.CreateProjectRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error:   "Invalid request",
			Message: err.Error(),
		})
	}

	project.Name = req.Name
	project.Description = req.Description
	if err := h.store.SaveProject(project); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error:   "Failed to update project",
			Message: err.Error(),
		})
	}
	return c.JSON(project)
}

// ToggleProject flips the active flag.
func (h *Handler) ToggleProject(c *fiber.Ctx) error {
	project, err := h.store.GetProject(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse{
			Error:   "Failed to fetch project",
			Message: err.Error(),
		})
	}
	if project == nil {
		return c.Status(fiber.StatusNotFound).JSON(models.ErrorResponse{
			Error: "Project not found",
		})
	}

	project.IsActive = !project.IsActive
	if err := h.store.SaveProject(project); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse{
			Error:   "Failed to update project status",
			Message: err.Error(),
		})
	}
	return c.JSON(project)
}

// DeleteProject soft deletes a project.
func (h *Handler) DeleteProject(c *fiber.Ctx) error {
	project, err := h.store.GetProject(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse{
			Error:   "Failed to fetch project",
			Message: err.Error(),
		})
	}
	if project == nil {
		return c.Status(fiber.StatusNotFound).JSON(models.ErrorResponse{
			Error: "Project not found",
		})
	}

	if err := h.store.DeleteProject(project); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse{
			Error:   "Failed to delete project",
			Message: err.Error(),
		})
	}
	return c.JSON(models.SuccessResponse{Message: "Project deleted successfully"})
}
