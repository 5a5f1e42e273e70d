// sweeper はTTLを持たないMySQLから失効したタスクを定期的に削除します。
package main

import (
	"context"
	"errors"
	"log"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"

	"todo-api/internal/config"
	"todo-api/internal/database"
	"todo-api/internal/repositories"
	"todo-api/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Fatal: Invalid configuration: %v", err)
	}
	if cfg.StoreDriver != config.DriverMySQL {
		log.Printf("Store %s expires tasks natively; nothing to sweep", cfg.StoreDriver)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	db, err := database.InitDB(ctx, cfg.MySQL)
	if err != nil {
		log.Fatalf("Fatal: %v", err)
	}
	repo := repositories.NewMySQLTaskRepository(db, cfg.TableName)
	sweeper := services.NewExpirySweeper(repo, cfg.SweepInterval)

	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Printf("Sweeping expired tasks from %s every %s", cfg.TableName, cfg.SweepInterval)
		if err := sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Sweeper stopped: %v", err)
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"sweeper": func(ctx context.Context) error {
				cancel()
				select {
				case <-done:
				case <-ctx.Done():
					return ctx.Err()
				}
				return repo.Close()
			},
		},
	)

	exitCode := <-wait
	log.Printf("Sweeper exited with code: %d", exitCode)
	os.Exit(exitCode)
}
