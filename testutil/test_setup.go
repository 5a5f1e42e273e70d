package testutil

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"todo-api/internal/config"
	"todo-api/internal/database"
	"todo-api/internal/models"
	"todo-api/internal/repositories"
	"todo-api/internal/routes"
)

const TestTable = "tasks_test"

// SetupTestRouter はメモリ上の保存先を使うテスト用のGinルーターを返します。
func SetupTestRouter(t *testing.T) (*gin.Engine, *repositories.MemoryTaskRepository) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := repositories.NewMemoryTaskRepository()
	return routes.SetupRouter(repo, []string{"*"}), repo
}

// SetupTestDB はテスト用のMySQLに接続し、空のタスクテーブルを用意します。
// TEST_DB_* が設定されていない、または接続できない場合はテストをスキップします。
func SetupTestDB(t *testing.T) (*sql.DB, *repositories.MySQLTaskRepository) {
	t.Helper()
	_ = godotenv.Load("../../.env")

	c := config.MySQLConfig{
		User: os.Getenv("TEST_DB_USER"),
		Pass: os.Getenv("TEST_DB_PASS"),
		Host: os.Getenv("TEST_DB_HOST"),
		Port: os.Getenv("TEST_DB_PORT"),
		Name: os.Getenv("TEST_DB_NAME"),
	}
	if c.User == "" || c.Host == "" || c.Port == "" || c.Name == "" {
		t.Skip("Skipping test: TEST_DB_* environment variables are not set")
	}

	ctx := context.Background()
	db, err := database.InitDB(ctx, c)
	if err != nil {
		t.Skipf("Skipping test: Failed to connect to MySQL: %v", err)
	}

	repo := repositories.NewMySQLTaskRepository(db, TestTable)
	require.NoError(t, repo.Migrate(ctx))
	_, err = db.Exec("TRUNCATE TABLE " + TestTable)
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })
	return db, repo
}

// SetupTestRedis はテスト用のRedisに接続し、テスト用のキーを消してからリポジトリを返します。
func SetupTestRedis(t *testing.T) (*redis.Client, *repositories.RedisTaskRepository) {
	t.Helper()
	_ = godotenv.Load("../../.env")

	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("Skipping test: TEST_REDIS_ADDR is not set")
	}

	ctx := context.Background()
	client, err := database.NewRedisClient(ctx, config.RedisConfig{Addr: addr})
	if err != nil {
		t.Skipf("Skipping test: %v", err)
	}

	keys, err := client.Keys(ctx, TestTable+":*").Result()
	require.NoError(t, err)
	if len(keys) > 0 {
		require.NoError(t, client.Del(ctx, keys...).Err())
	}

	t.Cleanup(func() { client.Close() })
	return client, repositories.NewRedisTaskRepository(client, TestTable)
}

// PerformRequest はJSONボディ付きのリクエストをルーターに送ります。bodyがnilならボディ無しです。
func PerformRequest(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}

	req, err := http.NewRequest(method, path, &buf)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

// CreateTestTask は PUT /create-task でタスクを作成し、レスポンスのタスクを返します。
func CreateTestTask(t *testing.T, router *gin.Engine, userID, content string) *models.Task {
	t.Helper()

	payload := map[string]any{"content": content}
	if userID != "" {
		payload["user_id"] = userID
	}
	resp := PerformRequest(t, router, http.MethodPut, "/create-task", payload)
	require.Equal(t, http.StatusOK, resp.Code, "タスク作成に失敗しました: %s", resp.Body.String())

	var body struct {
		Task models.Task `json:"task"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	return &body.Task
}
