// Package worker manages the embedded Asynq task worker.
//
// The worker runs as a goroutine inside the PocketBase process,
// connecting to Redis for persistent async task processing.
package worker

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
)

const (
	// TaskExpireLFSTokens sweeps expired lfs_tokens rows. Enqueued
	// periodically by scheduleSweeps.
	TaskExpireLFSTokens = "lfs:expire_tokens"

	sweepInterval = 1 * time.Hour
)

// Worker manages the Asynq server and a shared client for enqueuing tasks.
type Worker struct {
	server *asynq.Server
	client *asynq.Client
	app    core.App // PocketBase app for record access
}

// New creates a Worker with Asynq server and shared client.
// app is the PocketBase core.App used by task handlers.
// Call Start() to begin processing and Shutdown() to stop.
func New(app core.App) *Worker {
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	opt := asynq.RedisClientOpt{Addr: redisAddr}

	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: 5,
		Queues: map[string]int{
			"default": 1,
		},
	})

	client := asynq.NewClient(opt)

	return &Worker{
		server: srv,
		client: client,
		app:    app,
	}
}

// Start begins processing tasks in a background goroutine and kicks off
// the periodic LFS-token expiry sweep. Call only once during the
// application lifecycle.
func (w *Worker) Start() {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskExpireLFSTokens, w.handleExpireLFSTokens)

	go func() {
		if err := w.server.Run(mux); err != nil {
			log.Printf("asynq worker error: %v", err)
		}
	}()

	go w.scheduleSweeps()
}

// scheduleSweeps enqueues TaskExpireLFSTokens on a fixed interval. Asynq has
// no cron primitive wired here, so the cadence is driven by a plain ticker
// goroutine rather than an additional scheduling dependency.
func (w *Worker) scheduleSweeps() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		if _, err := w.client.Enqueue(asynq.NewTask(TaskExpireLFSTokens, nil)); err != nil {
			log.Printf("worker: enqueue %s: %v", TaskExpireLFSTokens, err)
		}
		<-ticker.C
	}
}

// Client returns the shared Asynq client for enqueuing tasks.
func (w *Worker) Client() *asynq.Client {
	return w.client
}

// Shutdown gracefully stops the worker and closes the client connection.
func (w *Worker) Shutdown() {
	w.server.Shutdown()
	_ = w.client.Close()
}

func (w *Worker) handleExpireLFSTokens(_ context.Context, _ *asynq.Task) error {
	records, err := w.app.FindRecordsByFilter(
		"lfs_tokens",
		"expires < {:now}",
		"",
		0, 0,
		dbx.Params{"now": time.Now().UTC()},
	)
	if err != nil {
		log.Printf("handleExpireLFSTokens: query: %v", err)
		return err
	}

	for _, rec := range records {
		if err := w.app.Delete(rec); err != nil {
			log.Printf("handleExpireLFSTokens: delete %s: %v", rec.Id, err)
		}
	}
	return nil
}
