package services

import (
	"context"
	"encoding/hex"
	"log"
	"time"

	"github.com/google/uuid"

	"todo-api/internal/models"
	"todo-api/internal/repositories"
)

// TaskService はタスク関連のビジネスロジックを扱います。
type TaskService struct {
	taskRepo repositories.TaskRepository
	now      func() time.Time
}

// NewTaskService は新しいTaskServiceを作成します。
func NewTaskService(taskRepo repositories.TaskRepository) *TaskService {
	return &TaskService{taskRepo: taskRepo, now: time.Now}
}

// NewTaskID は "task_" に続けてUUIDの16進表記 (32文字) を付けたIDを返します。
func NewTaskID() string {
	id := uuid.New()
	return "task_" + hex.EncodeToString(id[:])
}

// CreateTask は新しいタスクを作成します。
// task_id と is_done はリクエストの値を使わず、サーバー側で決めます。
func (s *TaskService) CreateTask(ctx context.Context, req *models.CreateTaskRequest) (*models.Task, error) {
	now := s.now().Unix()
	task := &models.Task{
		TaskID:      NewTaskID(),
		Content:     *req.Content,
		IsDone:      false,
		CreatedTime: now,
		TTL:         now + int64(models.TaskLifetime/time.Second),
	}
	if req.UserID != nil {
		task.UserID = *req.UserID
	}

	if err := s.taskRepo.Create(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// GetTask は指定IDのタスクを取得します。失効済みのタスクは見つからない扱いです。
func (s *TaskService) GetTask(ctx context.Context, taskID string) (*models.Task, error) {
	task, err := s.taskRepo.FindByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	// DynamoDBのTTL削除は遅れることがある
	if task.Expired(s.now()) {
		return nil, repositories.ErrTaskNotFound
	}
	return task, nil
}

// ListTasks はユーザーのタスクを新しい順に最大 models.ListLimit 件返します。
func (s *TaskService) ListTasks(ctx context.Context, userID string) ([]*models.Task, error) {
	tasks, err := s.taskRepo.FindByUserID(ctx, userID, models.ListLimit)
	if err != nil {
		return nil, err
	}

	now := s.now()
	live := make([]*models.Task, 0, len(tasks))
	for _, t := range tasks {
		if !t.Expired(now) {
			live = append(live, t)
		}
	}
	return live, nil
}

// UpdateTask は content と is_done のうち指定されたものだけを更新します。
func (s *TaskService) UpdateTask(ctx context.Context, req *models.UpdateTaskRequest) error {
	update := models.TaskUpdate{Content: req.Content, IsDone: req.IsDone}
	if update.Empty() {
		return repositories.ErrEmptyUpdate
	}
	return s.taskRepo.Update(ctx, req.TaskID, update)
}

// DeleteTask はタスクを削除します。存在しないIDでもエラーにしません。
func (s *TaskService) DeleteTask(ctx context.Context, taskID string) error {
	return s.taskRepo.Delete(ctx, taskID)
}

// Ping は保存先の疎通を確認します。
func (s *TaskService) Ping(ctx context.Context) error {
	return s.taskRepo.Ping(ctx)
}

// ExpirySweeper はTTLを持たない保存先から失効したタスクを定期的に削除します。
type ExpirySweeper struct {
	deleter  repositories.ExpiredTaskDeleter
	interval time.Duration
	now      func() time.Time
}

// NewExpirySweeper は新しいExpirySweeperを作成します。
func NewExpirySweeper(deleter repositories.ExpiredTaskDeleter, interval time.Duration) *ExpirySweeper {
	return &ExpirySweeper{deleter: deleter, interval: interval, now: time.Now}
}

// SweepOnce は失効したタスクを1回削除し、削除件数を返します。
func (s *ExpirySweeper) SweepOnce(ctx context.Context) (int64, error) {
	n, err := s.deleter.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Printf("Deleted %d expired tasks", n)
	}
	return n, nil
}

// Run はctxがキャンセルされるまで interval ごとに SweepOnce を呼びます。
func (s *ExpirySweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.SweepOnce(ctx); err != nil {
			log.Printf("Failed to sweep expired tasks: %v", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
