package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/makeasinger/musicforge/internal/client"
	"github.com/makeasinger/musicforge/pkg/response"
)

type configured interface {
	IsConfigured() bool
}

type workerHealth interface {
	HealthCheck(ctx context.Context) (*client.HealthStatus, error)
}

type HealthHandler struct {
	provider string
	text     configured
	worker   workerHealth
	storage  configured
	redis    *redis.Client
}

// NewHealthHandler builds the health endpoint. worker, storage and redis may be nil.
func NewHealthHandler(provider string, text configured, worker workerHealth, storage configured, redisClient *redis.Client) *HealthHandler {
	return &HealthHandler{
		provider: provider,
		text:     text,
		worker:   worker,
		storage:  storage,
		redis:    redisClient,
	}
}

// Health handles GET /health
// @Summary      Health check
// @Tags         System
// @Produce      json
// @Success      200 {object} map[string]interface{}
// @Router       /health [get]
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	services := fiber.Map{
		"llm":      h.text != nil && h.text.IsConfigured(),
		"provider": h.provider,
		"storage":  h.storage != nil && h.storage.IsConfigured(),
	}

	if h.redis != nil {
		services["redis"] = h.redis.Ping(ctx).Err() == nil
	}

	if h.worker != nil {
		status, err := h.worker.HealthCheck(ctx)
		if err != nil {
			services["worker"] = fiber.Map{"status": "unavailable", "error": err.Error()}
		} else {
			services["worker"] = status
		}
	} else {
		services["worker"] = fiber.Map{"status": "disabled"}
	}

	return response.OK(c, fiber.Map{
		"status":   "ok",
		"services": services,
	})
}
