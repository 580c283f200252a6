package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/makeasinger/musicforge/internal/agent"
	"github.com/makeasinger/musicforge/internal/model"
	"github.com/makeasinger/musicforge/internal/repository"
	"github.com/makeasinger/musicforge/internal/service"
	"github.com/makeasinger/musicforge/pkg/response"
)

// RunInspector exposes the in-process state of a project's runs
type RunInspector interface {
	Snapshot(runID string) (agent.Snapshot, bool)
	Stages(runID string) (agent.Stage, []agent.StageRecord, bool)
}

type ProjectHandler struct {
	service   *service.ProjectService
	runs      RunInspector
	validator *validator.Validate
}

func NewProjectHandler(svc *service.ProjectService, runs RunInspector, v *validator.Validate) *ProjectHandler {
	return &ProjectHandler{
		service:   svc,
		runs:      runs,
		validator: v,
	}
}

// Create handles POST /api/projects
// @Summary      Create project
// @Description  Create a draft project from a song specification
// @Tags         Projects
// @Accept       json
// @Produce      json
// @Param        request body model.CreateProjectRequest true "Project"
// @Success      201 {object} model.Project
// @Failure      400 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Router       /api/projects [post]
func (h *ProjectHandler) Create(c *fiber.Ctx) error {
	var req model.CreateProjectRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	project, err := h.service.CreateProject(c.UserContext(), &req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidSpecification) {
			return response.ValidationError(c, err.Error(), nil)
		}
		return response.ServiceError(c, err.Error())
	}

	return response.Created(c, project)
}

// List handles GET /api/projects
// @Summary      List projects
// @Tags         Projects
// @Produce      json
// @Success      200 {object} model.ProjectListResponse
// @Failure      500 {object} response.ErrorResponse
// @Router       /api/projects [get]
func (h *ProjectHandler) List(c *fiber.Ctx) error {
	result, err := h.service.ListProjects(c.UserContext())
	if err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, result)
}

// Get handles GET /api/projects/:id
// @Summary      Get project
// @Tags         Projects
// @Produce      json
// @Param        id path string true "Project ID"
// @Success      200 {object} model.Project
// @Failure      404 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Router       /api/projects/{id} [get]
func (h *ProjectHandler) Get(c *fiber.Ctx) error {
	project, err := h.service.GetProject(c.UserContext(), c.Params("id"))
	if err != nil {
		return projectError(c, err)
	}
	return response.OK(c, project)
}

// Delete handles DELETE /api/projects/:id
// @Summary      Delete project
// @Tags         Projects
// @Param        id path string true "Project ID"
// @Success      204
// @Failure      404 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Router       /api/projects/{id} [delete]
func (h *ProjectHandler) Delete(c *fiber.Ctx) error {
	id := c.Params("id")
	if h.active(id) {
		return response.Conflict(c, "A run is in progress for this project")
	}
	if err := h.service.DeleteProject(c.UserContext(), id); err != nil {
		return projectError(c, err)
	}
	return response.NoContent(c)
}

// Generate handles POST /api/projects/:id/generate
// @Summary      Start generation
// @Description  Queue a full generation run for the project
// @Tags         Projects
// @Accept       json
// @Produce      json
// @Param        id      path string               true  "Project ID"
// @Param        request body model.GenerateRequest false "Prompt"
// @Success      202 {object} model.JobAcceptedResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Router       /api/projects/{id}/generate [post]
func (h *ProjectHandler) Generate(c *fiber.Ctx) error {
	var req model.GenerateRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return response.ValidationError(c, "Invalid request body", nil)
		}
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	id := c.Params("id")
	if h.active(id) {
		return response.Conflict(c, "A run is already in progress for this project")
	}

	result, err := h.service.StartGenerate(c.UserContext(), id, req.Prompt)
	if err != nil {
		return projectError(c, err)
	}
	return response.Accepted(c, result)
}

// Iterate handles POST /api/projects/:id/iterate
// @Summary      Iterate on feedback
// @Description  Queue an iteration run that applies user feedback
// @Tags         Projects
// @Accept       json
// @Produce      json
// @Param        id      path string              true "Project ID"
// @Param        request body model.IterateRequest true "Feedback"
// @Success      202 {object} model.JobAcceptedResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Router       /api/projects/{id}/iterate [post]
func (h *ProjectHandler) Iterate(c *fiber.Ctx) error {
	var req model.IterateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	id := c.Params("id")
	if h.active(id) {
		return response.Conflict(c, "A run is already in progress for this project")
	}

	result, err := h.service.StartIterate(c.UserContext(), id, &req)
	if err != nil {
		return projectError(c, err)
	}
	return response.Accepted(c, result)
}

// Progress handles GET /api/projects/:id/progress
// @Summary      Latest progress
// @Description  Latest ledger snapshot of the project's current run
// @Tags         Projects
// @Produce      json
// @Param        id path string true "Project ID"
// @Success      200 {object} model.ProgressResponse
// @Failure      404 {object} response.ErrorResponse
// @Router       /api/projects/{id}/progress [get]
func (h *ProjectHandler) Progress(c *fiber.Ctx) error {
	id := c.Params("id")
	if snap, ok := h.runs.Snapshot(id); ok {
		return response.OK(c, model.ProgressResponse{
			ProjectID: id,
			Active:    !snap.Stage.Terminal(),
			Stage:     string(snap.Stage),
			Component: snap.Component,
			Progress:  snap.Progress,
			Message:   snap.Message,
			Version:   snap.Version,
			UpdatedAt: snap.UpdatedAt,
		})
	}

	// No live ledger, fall back to the stored project
	project, err := h.service.GetProject(c.UserContext(), id)
	if err != nil {
		return projectError(c, err)
	}
	resp := model.ProgressResponse{
		ProjectID: id,
		Stage:     string(project.Status),
		Message:   project.FailureReason,
		UpdatedAt: project.UpdatedAt,
	}
	if project.Context != nil {
		resp.Progress = project.Context.TaskProgress()
	}
	return response.OK(c, resp)
}

// Stages handles GET /api/projects/:id/stages
// @Summary      Stage history
// @Tags         Projects
// @Produce      json
// @Param        id path string true "Project ID"
// @Success      200 {object} model.StageHistoryResponse
// @Failure      404 {object} response.ErrorResponse
// @Router       /api/projects/{id}/stages [get]
func (h *ProjectHandler) Stages(c *fiber.Ctx) error {
	id := c.Params("id")
	current, history, ok := h.runs.Stages(id)
	if !ok {
		return response.NotFound(c, "No run recorded for this project")
	}

	entries := make([]model.StageEntry, 0, len(history))
	for _, r := range history {
		entries = append(entries, model.StageEntry{Stage: string(r.Stage), At: r.At})
	}
	return response.OK(c, model.StageHistoryResponse{
		ProjectID: id,
		Current:   string(current),
		History:   entries,
	})
}

// Job handles GET /api/jobs/:jobId
// @Summary      Job status
// @Tags         Jobs
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.JobStatusResponse
// @Failure      404 {object} response.ErrorResponse
// @Router       /api/jobs/{jobId} [get]
func (h *ProjectHandler) Job(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.GetJob(c.UserContext(), jobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, result)
}

func (h *ProjectHandler) active(projectID string) bool {
	snap, ok := h.runs.Snapshot(projectID)
	return ok && !snap.Stage.Terminal()
}

func projectError(c *fiber.Ctx, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return response.NotFound(c, "Project not found")
	}
	return response.ServiceError(c, err.Error())
}

func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
