// Package routesはroutingを行います。
package routes

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"todo-api/internal/handlers"
	"todo-api/internal/repositories"
	"todo-api/internal/services"
)

// SetupRouter はGinルーターをセットアップし、すべてのエンドポイントを登録します。
func SetupRouter(taskRepo repositories.TaskRepository, allowOrigins []string) *gin.Engine {
	r := gin.Default()

	// CORS対策
	r.Use(cors.New(CORSConfig(allowOrigins)))

	// サービス
	taskService := services.NewTaskService(taskRepo)

	// ハンドラー
	taskHandler := handlers.NewTaskHandler(taskService)

	// ルーティング
	r.GET("/", HelloHandler)
	r.GET("/healthz", taskHandler.HealthHandler)
	r.PUT("/create-task", taskHandler.CreateTaskHandler)
	r.GET("/get-task/:task_id", taskHandler.GetTaskHandler)
	r.GET("/list-tasks/:user_id", taskHandler.ListTasksHandler)
	r.PUT("/update-task", taskHandler.UpdateTaskHandler)
	r.DELETE("/delete-task/:task_id", taskHandler.DeleteTaskHandler)

	return r
}

// CORSConfig は許可するオリジンからCORS設定を作ります。"*" を含めば全オリジンを許可します。
// メソッドとヘッダーは全て許可します。Cookie等の認証情報は扱いません。
func CORSConfig(allowOrigins []string) cors.Config {
	config := cors.DefaultConfig()
	config.AllowMethods = []string{"GET", "HEAD", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"*"}

	if len(allowOrigins) == 0 {
		config.AllowAllOrigins = true
		return config
	}
	for _, o := range allowOrigins {
		if o == "*" {
			config.AllowAllOrigins = true
			return config
		}
	}
	config.AllowOrigins = allowOrigins
	return config
}

func HelloHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Hello World from Todo API"})
}
