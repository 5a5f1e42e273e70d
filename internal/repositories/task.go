// Package repositories はタスクの保存先 (ストレージゲートウェイ) を提供します。
// どの実装も1回の呼び出しにつきストレージへの操作は1回だけです。
package repositories

import (
	"context"
	"errors"
	"time"

	"todo-api/internal/models"
)

var (
	// ErrTaskNotFound はタスクが存在しない (または失効済み) 場合のエラーです。
	ErrTaskNotFound = errors.New("task not found")

	// ErrEmptyUpdate は更新するフィールドが1つも指定されていない場合のエラーです。
	ErrEmptyUpdate = errors.New("no fields to update")
)

// UserIndexName は user_id + created_time のセカンダリインデックス名です。
const UserIndexName = "user-index"

// TaskRepository はタスクの読み書きを行うゲートウェイです。
type TaskRepository interface {
	// Create はタスクを無条件に書き込みます (同じIDがあれば上書き)。
	Create(ctx context.Context, t *models.Task) error
	FindByID(ctx context.Context, taskID string) (*models.Task, error)
	// FindByUserID は created_time の降順で最大limit件を返します。該当なしは空スライスです。
	FindByUserID(ctx context.Context, userID string, limit int) ([]*models.Task, error)
	// Update は指定されたフィールドだけを更新します。存在しないIDは ErrTaskNotFound です。
	Update(ctx context.Context, taskID string, u models.TaskUpdate) error
	// Delete は冪等です。存在しないIDでもエラーにしません。
	Delete(ctx context.Context, taskID string) error
	Ping(ctx context.Context) error
	Close() error
}

// ExpiredTaskDeleter はネイティブなTTLを持たない保存先で失効済みのタスクを削除します。
type ExpiredTaskDeleter interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
