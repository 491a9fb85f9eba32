package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/bz888/llamagate/internal/models"
)

// ListProjectModels returns the model assignments of one project.
func (h *Handler) ListProjectModels(c *fiber.Ctx) error {
	projectID := c.Params("id")

	project, err := h.store.GetProject(projectID)
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

	assignments, err := h.store.ProjectModels(projectID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse{
			Error:   "Failed to fetch models",
			Message: err.Error(),
		})
	}
	return c.JSON(assignments)
}

// AssignModel adds a model to a project.
func (h *Handler) AssignModel(c *fiber.Ctx) error {
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

	var req models.AssignModelRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error:   "Invalid request",
			Message: err.Error(),
		})
	}
	if req.ModelName == "" {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error:   "Invalid request",
			Message: "Model name is required",
		})
	}

	exists, err := h.store.AssignmentExists(project.ID, req.ModelName)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse{
			Error:   "Failed to check assignment",
			Message: err.Error(),
		})
	}
	if exists {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error:   "Model already assigned",
			Message: fmt.Sprintf("Model '%s' is already assigned to the project", req.ModelName),
		})
	}

	assignment := models.ProjectModel{
		ProjectID: project.ID,
		ModelName: req.ModelName,
	}
	if err := h.store.CreateAssignment(&assignment); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error:   "Failed to assign model",
			Message: err.Error(),
		})
	}
	return c.Status(fiber.StatusCreated).JSON(assignment)
}

// UnassignModel removes one model assignment.
func (h *Handler) UnassignModel(c *fiber.Ctx) error {
	assignment, err := h.store.ModelAssignment(c.Params("id"), c.Params("modelId"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse{
			Error:   "Failed to fetch assignment",
			Message: err.Error(),
		})
	}
	if assignment == nil {
		return c.Status(fiber.StatusNotFound).JSON(models.ErrorResponse{
			Error: "Model assignment not found",
		})
	}

	if err := h.store.DeleteAssignment(assignment); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse{
			Error:   "Failed to unassign model",
			Message: err.Error(),
		})
	}
	return c.JSON(models.SuccessResponse{Message: "Model unassigned successfully"})
}
