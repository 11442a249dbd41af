// Package handlers holds HTTP handlers that wrap a single service.
package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mediathekdl/mediathekdl/internal/scheduler"
)

// SchedulerHandler exposes the periodic tasks (subscription run, temp
// cleanup, queue prune) and lets an operator trigger one out of schedule.
type SchedulerHandler struct {
	scheduler *scheduler.Scheduler
}

func NewSchedulerHandler(sched *scheduler.Scheduler) *SchedulerHandler {
	return &SchedulerHandler{scheduler: sched}
}

// RegisterRoutes registers scheduler routes on the given group.
func (h *SchedulerHandler) RegisterRoutes(g *echo.Group) {
	g.GET("", h.ListTasks)
	g.GET("/:id", h.GetTask)
	g.POST("/:id/run", h.RunTask)
}

// ListTasks returns all tasks sorted by id.
// GET /api/v1/scheduler/tasks
func (h *SchedulerHandler) ListTasks(c echo.Context) error {
	return c.JSON(http.StatusOK, h.scheduler.ListTasks())
}

// GET /api/v1/scheduler/tasks/:id
func (h *SchedulerHandler) GetTask(c echo.Context) error {
	task, err := h.scheduler.GetTask(c.Param("id"))
	if err != nil {
		return taskError(c, err)
	}
	return c.JSON(http.StatusOK, task)
}

// RunTask starts a task in the background and answers with its state.
// A subscription run that is already in progress yields 409.
// POST /api/v1/scheduler/tasks/:id/run
func (h *SchedulerHandler) RunTask(c echo.Context) error {
	id := c.Param("id")
	if err := h.scheduler.RunNow(id); err != nil {
		return taskError(c, err)
	}
	task, err := h.scheduler.GetTask(id)
	if err != nil {
		return taskError(c, err)
	}
	return c.JSON(http.StatusAccepted, task)
}

func taskError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, scheduler.ErrTaskNotFound):
		status = http.StatusNotFound
	case errors.Is(err, scheduler.ErrTaskRunning):
		status = http.StatusConflict
	}
	return c.JSON(status, map[string]string{"error": err.Error()})
}
