// Package repository persists project aggregates.
package repository

import (
	"context"
	"errors"

	"github.com/makeasinger/musicforge/internal/model"
)

var ErrNotFound = errors.New("project not found")

// ProjectRepository stores projects by id. GetByID returns ErrNotFound
// for unknown ids.
type ProjectRepository interface {
	GetByID(ctx context.Context, id string) (*model.Project, error)
	Save(ctx context.Context, project *model.Project) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*model.Project, error)
}
