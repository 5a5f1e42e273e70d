package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"todo-api/internal/models"
)

type memoryEntry struct {
	task models.Task
	seq  uint64
}

// MemoryTaskRepository はプロセス内のmapにタスクを保持します。
// ローカル開発とテスト用で、失効したタスクは読み取り時に見えなくなります。
type MemoryTaskRepository struct {
	mu    sync.RWMutex
	tasks map[string]memoryEntry
	seq   uint64
}

// NewMemoryTaskRepository は空のMemoryTaskRepositoryを作成します。
func NewMemoryTaskRepository() *MemoryTaskRepository {
	return &MemoryTaskRepository{tasks: make(map[string]memoryEntry)}
}

// Create はタスクを保存します。
func (r *MemoryTaskRepository) Create(_ context.Context, t *models.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	r.tasks[t.TaskID] = memoryEntry{task: *t, seq: r.seq}
	return nil
}

// FindByID はIDでタスクを取得します。
func (r *MemoryTaskRepository) FindByID(_ context.Context, taskID string) (*models.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.tasks[taskID]
	if !ok || e.task.Expired(time.Now()) {
		return nil, ErrTaskNotFound
	}
	t := e.task
	return &t, nil
}

// FindByUserID はユーザーのタスクを新しい順に取得します。
// created_time が同じ場合は後から保存したものを先にします。
func (r *MemoryTaskRepository) FindByUserID(_ context.Context, userID string, limit int) ([]*models.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now()
	var entries []memoryEntry
	for _, e := range r.tasks {
		if userID == "" || e.task.UserID != userID || e.task.Expired(now) {
			continue
		}
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].task.CreatedTime != entries[j].task.CreatedTime {
			return entries[i].task.CreatedTime > entries[j].task.CreatedTime
		}
		return entries[i].seq > entries[j].seq
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	tasks := make([]*models.Task, 0, len(entries))
	for _, e := range entries {
		t := e.task
		tasks = append(tasks, &t)
	}
	return tasks, nil
}

// Update は指定されたフィールドを更新します。
func (r *MemoryTaskRepository) Update(_ context.Context, taskID string, u models.TaskUpdate) error {
	if u.Empty() {
		return ErrEmptyUpdate
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.tasks[taskID]
	if !ok || e.task.Expired(time.Now()) {
		return ErrTaskNotFound
	}
	if u.Content != nil {
		e.task.Content = *u.Content
	}
	if u.IsDone != nil {
		e.task.IsDone = *u.IsDone
	}
	r.tasks[taskID] = e
	return nil
}

// Delete はタスクを削除します。
func (r *MemoryTaskRepository) Delete(_ context.Context, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.tasks, taskID)
	return nil
}

// DeleteExpired は now 時点で失効しているタスクを削除し、削除件数を返します。
func (r *MemoryTaskRepository) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, e := range r.tasks {
		if e.task.Expired(now) {
			delete(r.tasks, id)
			n++
		}
	}
	return n, nil
}

// Len は失効済みも含めた保持件数を返します。
func (r *MemoryTaskRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

// Ping は常に成功します。
func (r *MemoryTaskRepository) Ping(context.Context) error { return nil }

// Close は何もしません。
func (r *MemoryTaskRepository) Close() error { return nil }
