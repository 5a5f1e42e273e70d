package handlers_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"todo-api/internal/models"
	"todo-api/testutil"
)

func TestCreateTask_Success(t *testing.T) {
	r, _ := testutil.SetupTestRouter(t)

	resp := testutil.PerformRequest(t, r, http.MethodPut, "/create-task", map[string]any{
		"content": "Buy milk",
		"user_id": "user_1",
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var body struct {
		Task models.Task `json:"task"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	task := body.Task

	assert.True(t, strings.HasPrefix(task.TaskID, "task_"), "task_id should start with task_")
	assert.Len(t, task.TaskID, len("task_")+32)
	assert.Equal(t, "user_1", task.UserID)
	assert.Equal(t, "Buy milk", task.Content)
	assert.False(t, task.IsDone)
	assert.InDelta(t, time.Now().Unix(), task.CreatedTime, 5)
	assert.Equal(t, task.CreatedTime+86400, task.TTL)
}

func TestCreateTask_IgnoresClientTaskIDAndIsDone(t *testing.T) {
	r, _ := testutil.SetupTestRouter(t)

	resp := testutil.PerformRequest(t, r, http.MethodPut, "/create-task", map[string]any{
		"content": "client fields",
		"user_id": "user_1",
		"task_id": "task_mine",
		"is_done": true,
	})
	require.Equal(t, http.StatusOK, resp.Code)

	var body struct {
		Task models.Task `json:"task"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.NotEqual(t, "task_mine", body.Task.TaskID)
	assert.False(t, body.Task.IsDone)
}

func TestCreateTask_ValidationError(t *testing.T) {
	r, repo := testutil.SetupTestRouter(t)

	t.Run("Missing content", func(t *testing.T) {
		resp := testutil.PerformRequest(t, r, http.MethodPut, "/create-task", map[string]any{"user_id": "user_1"})
		assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
		assert.Contains(t, resp.Body.String(), "detail")
	})

	t.Run("Null content", func(t *testing.T) {
		resp := testutil.PerformRequest(t, r, http.MethodPut, "/create-task", map[string]any{"content": nil})
		assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	})

	t.Run("Malformed JSON", func(t *testing.T) {
		resp := testutil.PerformRequest(t, r, http.MethodPut, "/create-task", `{"content": `)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	})

	assert.Equal(t, 0, repo.Len(), "no task should be stored")
}

func TestCreateTask_EmptyContent(t *testing.T) {
	r, _ := testutil.SetupTestRouter(t)

	resp := testutil.PerformRequest(t, r, http.MethodPut, "/create-task", map[string]any{
		"content": "",
		"user_id": "u",
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var body struct {
		Task models.Task `json:"task"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "", body.Task.Content)

	resp = testutil.PerformRequest(t, r, http.MethodGet, "/get-task/"+body.Task.TaskID, nil)
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestCreateThenGetTask(t *testing.T) {
	r, _ := testutil.SetupTestRouter(t)
	created := testutil.CreateTestTask(t, r, "user_1", "Write report")

	resp := testutil.PerformRequest(t, r, http.MethodGet, "/get-task/"+created.TaskID, nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var fetched models.Task
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &fetched))
	assert.Equal(t, *created, fetched)
	assert.Equal(t, "user_1", fetched.UserID)
	assert.Equal(t, "Write report", fetched.Content)
	assert.False(t, fetched.IsDone)
}

func TestGetTask_NotFound(t *testing.T) {
	r, _ := testutil.SetupTestRouter(t)

	resp := testutil.PerformRequest(t, r, http.MethodGet, "/get-task/task_missing", nil)
	require.Equal(t, http.StatusNotFound, resp.Code)
	assert.JSONEq(t, `{"detail": "Task task_missing not found."}`, resp.Body.String())
}

func TestGetTask_Expired(t *testing.T) {
	r, repo := testutil.SetupTestRouter(t)

	past := time.Now().Add(-48 * time.Hour).Unix()
	require.NoError(t, repo.Create(context.Background(), &models.Task{
		TaskID:      "task_old",
		UserID:      "user_1",
		Content:     "stale",
		CreatedTime: past,
		TTL:         past + 86400,
	}))

	resp := testutil.PerformRequest(t, r, http.MethodGet, "/get-task/task_old", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestListTasks(t *testing.T) {
	r, _ := testutil.SetupTestRouter(t)

	first := testutil.CreateTestTask(t, r, "user_list", "first")
	second := testutil.CreateTestTask(t, r, "user_list", "second")
	third := testutil.CreateTestTask(t, r, "user_list", "third")
	testutil.CreateTestTask(t, r, "someone_else", "not mine")

	resp := testutil.PerformRequest(t, r, http.MethodGet, "/list-tasks/user_list", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var body struct {
		Tasks []models.Task `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Len(t, body.Tasks, 3)

	// 新しい順
	assert.Equal(t, third.TaskID, body.Tasks[0].TaskID)
	assert.Equal(t, second.TaskID, body.Tasks[1].TaskID)
	assert.Equal(t, first.TaskID, body.Tasks[2].TaskID)
	for i := 1; i < len(body.Tasks); i++ {
		assert.GreaterOrEqual(t, body.Tasks[i-1].CreatedTime, body.Tasks[i].CreatedTime)
	}
}

func TestListTasks_Limit(t *testing.T) {
	r, _ := testutil.SetupTestRouter(t)

	for i := 0; i < 12; i++ {
		testutil.CreateTestTask(t, r, "busy_user", fmt.Sprintf("task %d", i))
	}

	resp := testutil.PerformRequest(t, r, http.MethodGet, "/list-tasks/busy_user", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var body struct {
		Tasks []models.Task `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Len(t, body.Tasks, models.ListLimit)
	assert.Equal(t, "task 11", body.Tasks[0].Content)
}

func TestListTasks_EmptyUser(t *testing.T) {
	r, _ := testutil.SetupTestRouter(t)

	resp := testutil.PerformRequest(t, r, http.MethodGet, "/list-tasks/nobody", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"tasks": []}`, resp.Body.String())
}

func TestListTasks_TaskWithoutUserIsNotIndexed(t *testing.T) {
	r, repo := testutil.SetupTestRouter(t)
	testutil.CreateTestTask(t, r, "user_1", "owned")

	listUser := func(t *testing.T) string {
		resp := testutil.PerformRequest(t, r, http.MethodGet, "/list-tasks/user_1", nil)
		require.Equal(t, http.StatusOK, resp.Code)
		return resp.Body.String()
	}
	before := listUser(t)

	created := testutil.CreateTestTask(t, r, "", "anonymous")
	assert.Equal(t, "", created.UserID)

	// IDでは取得できるが、どの一覧にも出てこない
	resp := testutil.PerformRequest(t, r, http.MethodGet, "/get-task/"+created.TaskID, nil)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, before, listUser(t))
	assert.NotContains(t, listUser(t), created.TaskID)

	tasks, err := repo.FindByUserID(context.Background(), "", models.ListLimit)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestUpdateTask(t *testing.T) {
	r, _ := testutil.SetupTestRouter(t)

	getTask := func(t *testing.T, id string) models.Task {
		resp := testutil.PerformRequest(t, r, http.MethodGet, "/get-task/"+id, nil)
		require.Equal(t, http.StatusOK, resp.Code)
		var task models.Task
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &task))
		return task
	}

	t.Run("Both fields", func(t *testing.T) {
		created := testutil.CreateTestTask(t, r, "user_1", "old content")

		resp := testutil.PerformRequest(t, r, http.MethodPut, "/update-task", map[string]any{
			"task_id": created.TaskID,
			"content": "new content",
			"is_done": true,
		})
		require.Equal(t, http.StatusOK, resp.Code)
		assert.JSONEq(t, fmt.Sprintf(`{"updated_task_id": %q}`, created.TaskID), resp.Body.String())

		task := getTask(t, created.TaskID)
		assert.Equal(t, "new content", task.Content)
		assert.True(t, task.IsDone)
		assert.Equal(t, created.TTL, task.TTL)
	})

	t.Run("Only is_done keeps content", func(t *testing.T) {
		created := testutil.CreateTestTask(t, r, "user_1", "keep me")

		resp := testutil.PerformRequest(t, r, http.MethodPut, "/update-task", map[string]any{
			"task_id": created.TaskID,
			"is_done": true,
		})
		require.Equal(t, http.StatusOK, resp.Code)

		task := getTask(t, created.TaskID)
		assert.Equal(t, "keep me", task.Content)
		assert.True(t, task.IsDone)
	})

	t.Run("Only content keeps is_done", func(t *testing.T) {
		created := testutil.CreateTestTask(t, r, "user_1", "before")

		resp := testutil.PerformRequest(t, r, http.MethodPut, "/update-task", map[string]any{
			"task_id": created.TaskID,
			"content": "after",
			"is_done": nil,
		})
		require.Equal(t, http.StatusOK, resp.Code)

		task := getTask(t, created.TaskID)
		assert.Equal(t, "after", task.Content)
		assert.False(t, task.IsDone)
	})

	t.Run("is_done false is applied", func(t *testing.T) {
		created := testutil.CreateTestTask(t, r, "user_1", "toggle")
		testutil.PerformRequest(t, r, http.MethodPut, "/update-task", map[string]any{"task_id": created.TaskID, "is_done": true})

		resp := testutil.PerformRequest(t, r, http.MethodPut, "/update-task", map[string]any{"task_id": created.TaskID, "is_done": false})
		require.Equal(t, http.StatusOK, resp.Code)
		assert.False(t, getTask(t, created.TaskID).IsDone)
	})
}

func TestUpdateTask_Errors(t *testing.T) {
	r, repo := testutil.SetupTestRouter(t)
	created := testutil.CreateTestTask(t, r, "user_1", "unchanged")

	t.Run("No fields", func(t *testing.T) {
		resp := testutil.PerformRequest(t, r, http.MethodPut, "/update-task", map[string]any{"task_id": created.TaskID})
		require.Equal(t, http.StatusUnprocessableEntity, resp.Code)
		assert.JSONEq(t, `{"detail": "At least one of content or is_done must be provided."}`, resp.Body.String())
	})

	t.Run("Unknown task", func(t *testing.T) {
		resp := testutil.PerformRequest(t, r, http.MethodPut, "/update-task", map[string]any{
			"task_id": "task_missing",
			"content": "x",
		})
		require.Equal(t, http.StatusNotFound, resp.Code)
		assert.JSONEq(t, `{"detail": "Task task_missing not found."}`, resp.Body.String())
		assert.Equal(t, 1, repo.Len(), "update must not create a task")
	})

	t.Run("Missing task_id", func(t *testing.T) {
		resp := testutil.PerformRequest(t, r, http.MethodPut, "/update-task", map[string]any{"content": "x"})
		assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	})

	t.Run("Wrong type", func(t *testing.T) {
		resp := testutil.PerformRequest(t, r, http.MethodPut, "/update-task", map[string]any{
			"task_id": created.TaskID,
			"is_done": "yes",
		})
		assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	})

	resp := testutil.PerformRequest(t, r, http.MethodGet, "/get-task/"+created.TaskID, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var task models.Task
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &task))
	assert.Equal(t, "unchanged", task.Content)
	assert.False(t, task.IsDone)
}

func TestDeleteTask(t *testing.T) {
	r, _ := testutil.SetupTestRouter(t)
	created := testutil.CreateTestTask(t, r, "user_1", "delete me")

	resp := testutil.PerformRequest(t, r, http.MethodDelete, "/delete-task/"+created.TaskID, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, fmt.Sprintf(`{"deleted_task_id": %q}`, created.TaskID), resp.Body.String())

	resp = testutil.PerformRequest(t, r, http.MethodGet, "/get-task/"+created.TaskID, nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = testutil.PerformRequest(t, r, http.MethodGet, "/list-tasks/user_1", nil)
	assert.JSONEq(t, `{"tasks": []}`, resp.Body.String())
}

func TestDeleteTask_NonExistent(t *testing.T) {
	r, _ := testutil.SetupTestRouter(t)

	resp := testutil.PerformRequest(t, r, http.MethodDelete, "/delete-task/task_never_existed", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"deleted_task_id": "task_never_existed"}`, resp.Body.String())
}

func TestCreateTask_UniqueIDs(t *testing.T) {
	r, _ := testutil.SetupTestRouter(t)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		task := testutil.CreateTestTask(t, r, "user_ids", "same content")
		require.False(t, seen[task.TaskID], "duplicate task_id %s", task.TaskID)
		seen[task.TaskID] = true
	}
}
