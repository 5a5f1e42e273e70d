package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"todo-api/internal/models"
)

// MySQLTaskRepository はMySQLのテーブルをタスクの保存先として使います。
// MySQLにはTTLが無いため、失効したタスクは読み取りと更新から除外し、
// 実際の削除は DeleteExpired (cmd/sweeper) で行います。
type MySQLTaskRepository struct {
	DB    *sql.DB
	table string
}

// NewMySQLTaskRepository は新しいMySQLTaskRepositoryインスタンスを作成します。
// DSNには clientFoundRows=true が必要です (値が変わらない更新も1行として数えるため)。
func NewMySQLTaskRepository(db *sql.DB, table string) *MySQLTaskRepository {
	return &MySQLTaskRepository{DB: db, table: quoteIdent(table)}
}

func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

const taskColumns = "task_id, user_id, content, is_done, created_time, ttl"

// Migrate はテーブルと user_id + created_time のインデックスを作成します。
func (r *MySQLTaskRepository) Migrate(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS ` + r.table + ` (
		task_id VARCHAR(64) NOT NULL PRIMARY KEY,
		user_id VARCHAR(255) NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		is_done BOOLEAN NOT NULL DEFAULT FALSE,
		created_time BIGINT NOT NULL,
		ttl BIGINT NOT NULL,
		INDEX user_index (user_id, created_time),
		INDEX ttl_index (ttl)
	);`
	if _, err := r.DB.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("could not create tasks table: %w", err)
	}
	return nil
}

// Create はタスクを挿入します。同じIDがあれば上書きします。
func (r *MySQLTaskRepository) Create(ctx context.Context, t *models.Task) error {
	query := "INSERT INTO " + r.table + " (" + taskColumns + ") VALUES (?, ?, ?, ?, ?, ?)" +
		" ON DUPLICATE KEY UPDATE user_id = VALUES(user_id), content = VALUES(content)," +
		" is_done = VALUES(is_done), created_time = VALUES(created_time), ttl = VALUES(ttl)"

	_, err := r.DB.ExecContext(ctx, query, t.TaskID, t.UserID, t.Content, t.IsDone, t.CreatedTime, t.TTL)
	if err != nil {
		log.Printf("Failed to insert task: %v", err)
		return fmt.Errorf("could not insert task: %w", err)
	}
	return nil
}

func scanTask(row interface{ Scan(...any) error }) (*models.Task, error) {
	var t models.Task
	if err := row.Scan(&t.TaskID, &t.UserID, &t.Content, &t.IsDone, &t.CreatedTime, &t.TTL); err != nil {
		return nil, err
	}
	return &t, nil
}

// FindByID は指定されたIDのタスクを取得します。
func (r *MySQLTaskRepository) FindByID(ctx context.Context, taskID string) (*models.Task, error) {
	query := "SELECT " + taskColumns + " FROM " + r.table + " WHERE task_id = ? AND ttl > ?"

	t, err := scanTask(r.DB.QueryRowContext(ctx, query, taskID, time.Now().Unix()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		log.Printf("Failed to query task by ID: %v", err)
		return nil, fmt.Errorf("could not query task: %w", err)
	}
	return t, nil
}

// FindByUserID はユーザーのタスクを作成日時の降順で取得します。
func (r *MySQLTaskRepository) FindByUserID(ctx context.Context, userID string, limit int) ([]*models.Task, error) {
	tasks := make([]*models.Task, 0, limit)
	if userID == "" {
		return tasks, nil
	}

	query := "SELECT " + taskColumns + " FROM " + r.table +
		" WHERE user_id = ? AND ttl > ? ORDER BY created_time DESC LIMIT ?"

	rows, err := r.DB.QueryContext(ctx, query, userID, time.Now().Unix(), limit)
	if err != nil {
		log.Printf("Failed to query tasks: %v", err)
		return nil, fmt.Errorf("could not query tasks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			log.Printf("Failed to scan task: %v", err)
			return nil, fmt.Errorf("could not scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return tasks, nil
}

// Update は指定されたフィールドだけをUPDATE文に含めます。
func (r *MySQLTaskRepository) Update(ctx context.Context, taskID string, u models.TaskUpdate) error {
	var sets []string
	var args []any
	if u.Content != nil {
		sets = append(sets, "content = ?")
		args = append(args, *u.Content)
	}
	if u.IsDone != nil {
		sets = append(sets, "is_done = ?")
		args = append(args, *u.IsDone)
	}
	if len(sets) == 0 {
		return ErrEmptyUpdate
	}

	query := "UPDATE " + r.table + " SET " + strings.Join(sets, ", ") + " WHERE task_id = ? AND ttl > ?"
	args = append(args, taskID, time.Now().Unix())

	result, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		log.Printf("Failed to update task: %v", err)
		return fmt.Errorf("could not update task: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// Delete は指定されたIDのタスクを削除します。
func (r *MySQLTaskRepository) Delete(ctx context.Context, taskID string) error {
	query := "DELETE FROM " + r.table + " WHERE task_id = ?"

	if _, err := r.DB.ExecContext(ctx, query, taskID); err != nil {
		log.Printf("Failed to delete task: %v", err)
		return fmt.Errorf("could not delete task: %w", err)
	}
	return nil
}

// DeleteExpired は now 時点で失効したタスクを削除します。
func (r *MySQLTaskRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.DB.ExecContext(ctx, "DELETE FROM "+r.table+" WHERE ttl <= ?", now.Unix())
	if err != nil {
		log.Printf("Failed to delete expired tasks: %v", err)
		return 0, fmt.Errorf("could not delete expired tasks: %w", err)
	}
	return result.RowsAffected()
}

// Ping はデータベースへの接続を確認します。
func (r *MySQLTaskRepository) Ping(ctx context.Context) error {
	return r.DB.PingContext(ctx)
}

// Close はコネクションプールを閉じます。
func (r *MySQLTaskRepository) Close() error {
	return r.DB.Close()
}
