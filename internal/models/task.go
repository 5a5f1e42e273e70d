// Package modelsはTaskとリクエストボディを定義します。
package models

import "time"

const (
	// TaskLifetime はタスクが自動削除されるまでの期間です。
	TaskLifetime = 24 * time.Hour

	// ListLimit はユーザーごとの一覧で返す最大件数です。
	ListLimit = 10
)

// Task は保存されるタスク1件を表します。
type Task struct {
	TaskID      string `json:"task_id" dynamodbav:"task_id"`           // 主キー
	UserID      string `json:"user_id" dynamodbav:"user_id,omitempty"` // user-index のパーティションキー
	Content     string `json:"content" dynamodbav:"content"`           // 本文
	IsDone      bool   `json:"is_done" dynamodbav:"is_done"`           // 完了状態
	CreatedTime int64  `json:"created_time" dynamodbav:"created_time"` // 作成日時 (unix秒)、user-index のソートキー
	TTL         int64  `json:"ttl" dynamodbav:"ttl"`                   // 失効日時 (unix秒)
}

// Expired はnow時点でタスクが失効しているかを返します。
func (t *Task) Expired(now time.Time) bool {
	return t.TTL <= now.Unix()
}

// CreateTaskRequest は PUT /create-task のボディです。
// task_id と is_done は受け付けますが、サーバー側で上書きされます。
// content は空文字列も受け付けるため、キーの有無だけを required で確認します。
type CreateTaskRequest struct {
	Content *string `json:"content" binding:"required"`
	UserID  *string `json:"user_id"`
	TaskID  *string `json:"task_id"`
	IsDone  bool    `json:"is_done"`
}

// UpdateTaskRequest は PUT /update-task のボディです。
// nil のフィールドは更新しません (キーが無い場合も null の場合も同じ扱い)。
type UpdateTaskRequest struct {
	TaskID  string  `json:"task_id" binding:"required"`
	Content *string `json:"content"`
	IsDone  *bool   `json:"is_done"`
}

// TaskUpdate はリポジトリに渡す部分更新です。
type TaskUpdate struct {
	Content *string
	IsDone  *bool
}

// Empty は更新対象のフィールドが1つも無いかを返します。
func (u TaskUpdate) Empty() bool {
	return u.Content == nil && u.IsDone == nil
}
