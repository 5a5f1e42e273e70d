package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"

	"todo-api/internal/config"
	"todo-api/internal/database"
	"todo-api/internal/routes"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Fatal: Invalid configuration: %v", err)
	}

	ctx := context.Background()
	taskRepo, err := database.OpenTaskRepository(ctx, cfg)
	if err != nil {
		log.Fatalf("Fatal: Failed to open %s task store: %v", cfg.StoreDriver, err)
	}

	r := routes.SetupRouter(taskRepo, cfg.CORSAllowOrigins)
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.Printf("Server listening on port %s (store: %s, table: %s)...", cfg.Port, cfg.StoreDriver, cfg.TableName)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Fatal: HTTP server failed: %v", err)
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		ctx,
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			// 受付中のリクエストを捌いてから保存先を閉じる
			"http-server": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				if err := srv.Shutdown(ctx); err != nil {
					return err
				}
				return taskRepo.Close()
			},
		},
	)

	exitCode := <-wait
	log.Printf("Server exited with code: %d", exitCode)
	os.Exit(exitCode)
}
