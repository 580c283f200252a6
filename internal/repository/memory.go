package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/makeasinger/musicforge/internal/model"
)

// MemoryRepository keeps projects in process. Projects are stored as JSON so
// callers never share a pointer with the store.
type MemoryRepository struct {
	mu       sync.RWMutex
	projects map[string][]byte
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{projects: make(map[string][]byte)}
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*model.Project, error) {
	r.mu.RLock()
	data, ok := r.projects[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	var p model.Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal project: %w", err)
	}
	return &p, nil
}

func (r *MemoryRepository) Save(ctx context.Context, project *model.Project) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(project)
	if err != nil {
		return fmt.Errorf("failed to marshal project: %w", err)
	}

	r.mu.Lock()
	r.projects[project.ID] = data
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.projects[id]; !ok {
		return ErrNotFound
	}
	delete(r.projects, id)
	return nil
}

func (r *MemoryRepository) List(ctx context.Context) ([]*model.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	projects := make([]*model.Project, 0, len(r.projects))
	for id, data := range r.projects {
		var p model.Project
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to unmarshal project %s: %w", id, err)
		}
		projects = append(projects, &p)
	}
	sort.SliceStable(projects, func(i, j int) bool {
		return projects[i].UpdatedAt.After(projects[j].UpdatedAt)
	})
	return projects, nil
}
