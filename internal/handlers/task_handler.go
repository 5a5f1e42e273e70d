package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"todo-api/internal/models"
	"todo-api/internal/repositories"
	"todo-api/internal/services"
)

const emptyUpdateDetail = "At least one of content or is_done must be provided."

// TaskHandler はタスク関連のハンドラーを管理します。
type TaskHandler struct {
	taskService *services.TaskService
}

// NewTaskHandler は新しいTaskHandlerを作成します。
func NewTaskHandler(taskService *services.TaskService) *TaskHandler {
	return &TaskHandler{taskService: taskService}
}

func notFoundDetail(taskID string) string {
	return fmt.Sprintf("Task %s not found.", taskID)
}

// handleTaskServiceError はサービスのエラーをHTTPステータスに変換します。
func handleTaskServiceError(c *gin.Context, taskID string, err error) {
	switch {
	case errors.Is(err, repositories.ErrTaskNotFound):
		c.JSON(http.StatusNotFound, gin.H{"detail": notFoundDetail(taskID)})
	case errors.Is(err, repositories.ErrEmptyUpdate):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": emptyUpdateDetail})
	default:
		log.Printf("Task request %s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal Server Error"})
	}
}

// CreateTaskHandler は新しいタスクを作成します。
func (h *TaskHandler) CreateTaskHandler(c *gin.Context) {
	var req models.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}

	task, err := h.taskService.CreateTask(c.Request.Context(), &req)
	if err != nil {
		handleTaskServiceError(c, "", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"task": task})
}

// GetTaskHandler は指定IDのタスクを取得します。
func (h *TaskHandler) GetTaskHandler(c *gin.Context) {
	taskID := c.Param("task_id")

	task, err := h.taskService.GetTask(c.Request.Context(), taskID)
	if err != nil {
		handleTaskServiceError(c, taskID, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// ListTasksHandler はユーザーのタスクを新しい順に返します。
func (h *TaskHandler) ListTasksHandler(c *gin.Context) {
	userID := c.Param("user_id")

	tasks, err := h.taskService.ListTasks(c.Request.Context(), userID)
	if err != nil {
		handleTaskServiceError(c, "", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

// UpdateTaskHandler は content と is_done の指定された方を更新します。
func (h *TaskHandler) UpdateTaskHandler(c *gin.Context) {
	var req models.UpdateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}

	if err := h.taskService.UpdateTask(c.Request.Context(), &req); err != nil {
		handleTaskServiceError(c, req.TaskID, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated_task_id": req.TaskID})
}

// DeleteTaskHandler はタスクを削除します。存在しないIDでも200を返します。
func (h *TaskHandler) DeleteTaskHandler(c *gin.Context) {
	taskID := c.Param("task_id")

	if err := h.taskService.DeleteTask(c.Request.Context(), taskID); err != nil {
		handleTaskServiceError(c, taskID, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted_task_id": taskID})
}

// HealthHandler は保存先への疎通を確認します。
func (h *TaskHandler) HealthHandler(c *gin.Context) {
	if err := h.taskService.Ping(c.Request.Context()); err != nil {
		log.Printf("Health check failed: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
