package handler

import "github.com/gofiber/fiber/v2"

// RegisterRoutes mounts the project API on app
func RegisterRoutes(app fiber.Router, projects *ProjectHandler, health *HealthHandler) {
	app.Get("/health", health.Health)

	api := app.Group("/api")

	p := api.Group("/projects")
	p.Post("/", projects.Create)
	p.Get("/", projects.List)
	p.Get("/:id", projects.Get)
	p.Delete("/:id", projects.Delete)
	p.Post("/:id/generate", projects.Generate)
	p.Post("/:id/iterate", projects.Iterate)
	p.Get("/:id/progress", projects.Progress)
	p.Get("/:id/stages", projects.Stages)

	api.Get("/jobs/:jobId", projects.Job)
}
