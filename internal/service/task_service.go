package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"task-manager/internal/model"
	"task-manager/pkg/apierror"
)

const msgTaskNotFound = "Task not found"

type TaskStore interface {
	Create(ctx context.Context, t model.Task) error
	FindByID(ctx context.Context, id string) (model.Task, error)
	List(ctx context.Context, ownerID string) ([]model.Task, error)
	Update(ctx context.Context, t model.Task) error
	Delete(ctx context.Context, id string) error
}

// TaskService scopes every operation to the caller: admins see every task,
// everyone else only their own.
type TaskService struct {
	tasks TaskStore
	now   func() time.Time
}

func NewTaskService(tasks TaskStore) *TaskService {
	return &TaskService{tasks: tasks, now: time.Now}
}

func (s *TaskService) Create(ctx context.Context, caller model.Identity, req model.CreateTaskRequest) (model.Task, error) {
	status := model.TaskPending
	if req.Status != nil {
		status = *req.Status
	}

	now := s.now().UTC()
	task := model.Task{
		ID:          uuid.NewString(),
		Title:       req.Title,
		Description: req.Description,
		Status:      status,
		OwnerID:     caller.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.tasks.Create(ctx, task); err != nil {
		return model.Task{}, fmt.Errorf("create task: %w", err)
	}
	return task, nil
}

func (s *TaskService) List(ctx context.Context, caller model.Identity) ([]model.Task, error) {
	ownerID := caller.ID
	if caller.IsAdmin() {
		ownerID = ""
	}

	tasks, err := s.tasks.List(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

func (s *TaskService) Get(ctx context.Context, caller model.Identity, id string) (model.Task, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Task{}, apierror.NotFound(msgTaskNotFound, "")
	}

	task, err := s.tasks.FindByID(ctx, id)
	if errors.Is(err, model.ErrTaskNotFound) {
		return model.Task{}, apierror.NotFound(msgTaskNotFound, "")
	}
	if err != nil {
		return model.Task{}, fmt.Errorf("get task: %w", err)
	}

	if !caller.IsAdmin() && task.OwnerID != caller.ID {
		return model.Task{}, apierror.Forbidden("Forbidden")
	}
	return task, nil
}

func (s *TaskService) Update(ctx context.Context, caller model.Identity, id string, req model.UpdateTaskRequest) (model.Task, error) {
	task, err := s.Get(ctx, caller, id)
	if err != nil {
		return model.Task{}, err
	}

	if req.Title != nil {
		task.Title = *req.Title
	}
	if req.Description != nil {
		task.Description = *req.Description
	}
	if req.Status != nil {
		task.Status = *req.Status
	}
	task.UpdatedAt = s.now().UTC()

	if err := s.tasks.Update(ctx, task); err != nil {
		if errors.Is(err, model.ErrTaskNotFound) {
			return model.Task{}, apierror.NotFound(msgTaskNotFound, "")
		}
		return model.Task{}, fmt.Errorf("update task: %w", err)
	}
	return task, nil
}

func (s *TaskService) Delete(ctx context.Context, caller model.Identity, id string) error {
	if _, err := s.Get(ctx, caller, id); err != nil {
		return err
	}

	if err := s.tasks.Delete(ctx, id); err != nil {
		if errors.Is(err, model.ErrTaskNotFound) {
			return apierror.NotFound(msgTaskNotFound, "")
		}
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}
