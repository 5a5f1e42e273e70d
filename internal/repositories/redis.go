package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"todo-api/internal/models"
)

// RedisTaskRepository はタスクをJSON文字列として保存し、EXPIREATでRedisに失効させます。
// ユーザーごとのインデックスは created_time をスコアにしたsorted setです。
//
//	{prefix}:task:{task_id}  -> Task JSON
//	{prefix}:user:{user_id}  -> ZSET(task_id, created_time)
//
// スクリプトが触るキーは全てKEYSで渡します。タスクとインデックスは別のキーなので、
// Redis Clusterではなく単一ノード (またはレプリカ構成) を前提にしています。
type RedisTaskRepository struct {
	client *redis.Client
	prefix string
}

// NewRedisTaskRepository は新しいRedisTaskRepositoryを作成します。prefixにはテーブル名を使います。
func NewRedisTaskRepository(client *redis.Client, prefix string) *RedisTaskRepository {
	return &RedisTaskRepository{client: client, prefix: prefix}
}

func (r *RedisTaskRepository) taskKey(taskID string) string { return r.prefix + ":task:" + taskID }
func (r *RedisTaskRepository) userKey(userID string) string { return r.prefix + ":user:" + userID }

// インデックスの古いメンバーを落としてから追加し、インデックス自体も最新タスクのttlで失効させます。
var createIndexedTaskScript = redis.NewScript(`
	redis.call('SET', KEYS[1], ARGV[1], 'EXAT', ARGV[2])
	redis.call('ZREMRANGEBYSCORE', KEYS[2], '-inf', ARGV[5])
	redis.call('ZADD', KEYS[2], ARGV[3], ARGV[4])
	redis.call('EXPIREAT', KEYS[2], ARGV[2])
	return 1
`)

var updateTaskScript = redis.NewScript(`
	local raw = redis.call('GET', KEYS[1])
	if not raw then
		return 0
	end
	local task = cjson.decode(raw)
	if ARGV[1] == '1' then
		task['content'] = ARGV[2]
	end
	if ARGV[3] == '1' then
		task['is_done'] = (ARGV[4] == '1')
	end
	redis.call('SET', KEYS[1], cjson.encode(task), 'KEEPTTL')
	return 1
`)

var deleteIndexedTaskScript = redis.NewScript(`
	redis.call('DEL', KEYS[1])
	redis.call('ZREM', KEYS[2], ARGV[1])
	return 1
`)

// expiredBefore は now 時点で失効している created_time の上限を返します。
func expiredBefore(now time.Time) int64 {
	return now.Add(-models.TaskLifetime).Unix()
}

// Create はタスクを書き込みます。user_id が空のタスクはインデックスに載せません。
func (r *RedisTaskRepository) Create(ctx context.Context, t *models.Task) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("could not encode task: %w", err)
	}

	if t.UserID == "" {
		err = r.client.SetArgs(ctx, r.taskKey(t.TaskID), data, redis.SetArgs{ExpireAt: time.Unix(t.TTL, 0)}).Err()
	} else {
		err = createIndexedTaskScript.Run(ctx, r.client,
			[]string{r.taskKey(t.TaskID), r.userKey(t.UserID)},
			data, t.TTL, t.CreatedTime, t.TaskID, expiredBefore(time.Now()),
		).Err()
	}
	if err != nil {
		log.Printf("Failed to store task: %v", err)
		return fmt.Errorf("could not store task: %w", err)
	}
	return nil
}

// FindByID はIDでタスクを取得します。
func (r *RedisTaskRepository) FindByID(ctx context.Context, taskID string) (*models.Task, error) {
	data, err := r.client.Get(ctx, r.taskKey(taskID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTaskNotFound
		}
		log.Printf("Failed to get task: %v", err)
		return nil, fmt.Errorf("could not get task: %w", err)
	}

	var t models.Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("could not decode task: %w", err)
	}
	return &t, nil
}

// FindByUserID はsorted setを新しい順に読み、対応するタスクをMGETでまとめて取得します。
func (r *RedisTaskRepository) FindByUserID(ctx context.Context, userID string, limit int) ([]*models.Task, error) {
	tasks := make([]*models.Task, 0, limit)
	if userID == "" {
		return tasks, nil
	}

	ids, err := r.client.ZRevRangeByScore(ctx, r.userKey(userID), &redis.ZRangeBy{
		Min:   fmt.Sprintf("(%d", expiredBefore(time.Now())),
		Max:   "+inf",
		Count: int64(limit),
	}).Result()
	if err != nil {
		log.Printf("Failed to list task ids: %v", err)
		return nil, fmt.Errorf("could not list tasks: %w", err)
	}
	if len(ids) == 0 {
		return tasks, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.taskKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		log.Printf("Failed to list tasks: %v", err)
		return nil, fmt.Errorf("could not list tasks: %w", err)
	}

	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			// 削除と一覧が競合した場合、MGETはnilを返す
			continue
		}
		var t models.Task
		if err := json.Unmarshal([]byte(s), &t); err != nil {
			return nil, fmt.Errorf("could not decode task: %w", err)
		}
		tasks = append(tasks, &t)
	}
	return tasks, nil
}

func flag(set bool) string {
	if set {
		return "1"
	}
	return "0"
}

// Update は指定されたフィールドだけを書き換えます。残りのTTLは保持します。
func (r *RedisTaskRepository) Update(ctx context.Context, taskID string, u models.TaskUpdate) error {
	if u.Empty() {
		return ErrEmptyUpdate
	}

	var content string
	if u.Content != nil {
		content = *u.Content
	}
	isDone := u.IsDone != nil && *u.IsDone

	updated, err := updateTaskScript.Run(ctx, r.client,
		[]string{r.taskKey(taskID)},
		flag(u.Content != nil), content, flag(u.IsDone != nil), flag(isDone),
	).Int()
	if err != nil {
		log.Printf("Failed to update task: %v", err)
		return fmt.Errorf("could not update task: %w", err)
	}
	if updated == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// Delete はタスクとインデックスのエントリを削除します。
// user_id は更新されないので、先に読んだ値からインデックスのキーを決めます。
func (r *RedisTaskRepository) Delete(ctx context.Context, taskID string) error {
	t, err := r.FindByID(ctx, taskID)
	if errors.Is(err, ErrTaskNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if t.UserID == "" {
		err = r.client.Del(ctx, r.taskKey(taskID)).Err()
	} else {
		err = deleteIndexedTaskScript.Run(ctx, r.client,
			[]string{r.taskKey(taskID), r.userKey(t.UserID)}, taskID,
		).Err()
	}
	if err != nil {
		log.Printf("Failed to delete task: %v", err)
		return fmt.Errorf("could not delete task: %w", err)
	}
	return nil
}

// Ping はRedisサーバーの疎通を確認します。
func (r *RedisTaskRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close はクライアントの接続プールを閉じます。
func (r *RedisTaskRepository) Close() error {
	return r.client.Close()
}
