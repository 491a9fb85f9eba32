package server

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/bz888/llamagate/internal/handlers"
	"github.com/bz888/llamagate/internal/middleware"
	"github.com/bz888/llamagate/internal/models"
)

// Server is the gateway HTTP front. Route layout: admin routes behind JWT,
// the generation endpoint behind the caller's project API key.
type Server struct {
	app *fiber.App
}

func New(h *handlers.Handler, auth *middleware.Auth) *Server {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(models.ErrorResponse{
				Error:   "Internal Server Error",
				Message: err.Error(),
			})
		},
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-API-Key",
		AllowMethods: "GET, POST, PUT, PATCH, DELETE, OPTIONS",
	}))

	api := app.Group("/api")
	api.Get("/health", h.Health)

	api.Post("/auth/login", h.Login)

	api.Get("/validate_key", middleware.RequireAPIKey(), h.ValidateKey)

	projects := api.Group("/projects", auth.RequireAdmin())
	projects.Get("/", h.ListProjects)
	projects.Post("/", h.CreateProject)
	projects.Get("/:id", h.GetProject)
	projects.Put("/:id", h.UpdateProject)
	projects.Patch("/:id/toggle", h.ToggleProject)
	projects.Delete("/:id", h.DeleteProject)
	projects.Get("/:id/models", h.ListProjectModels)
	projects.Post("/:id/models", h.AssignModel)
	projects.Delete("/:id/models/:modelId", h.UnassignModel)

	ollama := api.Group("/ollama")
	ollama.Get("/models", auth.RequireAdmin(), h.ListModels)
	ollama.Get("/models/running", auth.RequireAdmin(), h.ListRunningModels)
	ollama.Post("/models/pull", auth.RequireAdmin(), h.PullModel)
	ollama.Delete("/models/delete", auth.RequireAdmin(), h.DeleteModel)
	ollama.Post("/generate", middleware.RequireAPIKey(), h.Generate)

	return &Server{app: app}
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen blocks serving on addr.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}
