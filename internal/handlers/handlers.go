package handlers

import (
	"context"
	"errors"
	"io"

	"github.com/gofiber/fiber/v2"

	"github.com/bz888/llamagate/internal/engine"
	"github.com/bz888/llamagate/internal/middleware"
	"github.com/bz888/llamagate/internal/models"
)

// Store is the project registry the handlers run against. Implemented by
// database.ProjectStore; faked in tests.
type Store interface {
	ListProjects() ([]models.Project, error)
	GetProject(id string) (*models.Project, error)
	ProjectByAPIKey(key string) (*models.Project, error)
	CreateProject(project *models.Project) error
	SaveProject(project *models.Project) error
	DeleteProject(project *models.Project) error
	ProjectModels(projectID string) ([]models.ProjectModel, error)
	ModelAssignment(projectID, assignmentID string) (*models.ProjectModel, error)
	AssignmentExists(projectID uint, modelName string) (bool, error)
	CreateAssignment(assignment *models.ProjectModel) error
	DeleteAssignment(assignment *models.ProjectModel) error
}

// Engine is the upstream dispatcher surface the handlers use.
type Engine interface {
	Generate(ctx context.Context, req models.GenerateRequest) (models.GenerateRecord, error)
	GenerateStream(ctx context.Context, req models.GenerateRequest) (*engine.Stream, error)
	Tags(ctx context.Context) ([]byte, error)
	Ps(ctx context.Context) ([]byte, error)
	Pull(ctx context.Context, name string) (io.ReadCloser, error)
	Delete(ctx context.Context, name string) ([]byte, error)
}

// Config carries the admin credentials the login handler checks against.
type Config struct {
	AdminUser     string
	AdminPassword string
}

// Handler bundles the gateway's HTTP handlers with their collaborators.
type Handler struct {
	cfg    Config
	store  Store
	engine Engine
	auth   *middleware.Auth
}

func NewHandler(cfg Config, store Store, eng Engine, auth *middleware.Auth) *Handler {
	return &Handler{cfg: cfg, store: store, engine: eng, auth: auth}
}

// Health reports liveness.
func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "healthy"})
}

// engineError maps dispatcher failures onto the response contract: 502 when
// the engine cannot be reached, a mirrored status with the raw body when the
// engine answered non-2xx.
func (h *Handler) engineError(c *fiber.Ctx, err error) error {
	var statusErr *engine.StatusError
	if errors.As(err, &statusErr) {
		return c.Status(statusErr.Code).JSON(models.ErrorResponse{
			Error:   "Engine error",
			Message: string(statusErr.Body),
		})
	}
	if errors.Is(err, engine.ErrUnavailable) {
		return c.Status(fiber.StatusBadGateway).JSON(models.ErrorResponse{
			Error:   "Failed to connect to engine",
			Message: err.Error(),
		})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse{
		Error:   "Engine request failed",
		Message: err.Error(),
	})
}
