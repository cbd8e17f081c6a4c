package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/hibiken/asynq"
)

// Task type names for the single process-and-done job kinds that ride
// on asynq rather than the Postgres lease queue.
const (
	TaskMetadataRefresh = "media:metadata_refresh"
	TaskBundleRebuild   = "bundle:rebuild"
)

// AsynqQueueService wraps an asynq client/inspector pair, adapted
// almost verbatim from internal/jobs/queue.go's EnqueueUnique idiom:
// the task's own ID doubles as its dedupe key, and a conflicting
// enqueue against a stale (archived or completed) task clears the old
// one before retrying once.
type AsynqQueueService struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	server    *asynq.Server
	mux       *asynq.ServeMux
}

func NewAsynqQueueService(redisAddr string) *AsynqQueueService {
	opt := asynq.RedisClientOpt{Addr: redisAddr}
	return &AsynqQueueService{
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
		server: asynq.NewServer(opt, asynq.Config{
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
		}),
		mux: asynq.NewServeMux(),
	}
}

// EnqueueUnique submits a task identified by taskID, queue, and
// payload. If a task with the same ID already exists but is archived
// (a prior run failed terminally) or completed, it is deleted and
// retried once; a task in any other state is returned as-is.
func (a *AsynqQueueService) EnqueueUnique(taskType, queue string, payload []byte, taskID string) (*asynq.TaskInfo, error) {
	task := asynq.NewTask(taskType, payload, asynq.TaskID(taskID), asynq.Queue(queue))
	info, err := a.client.Enqueue(task)
	if err == nil {
		return info, nil
	}
	if !errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil, fmt.Errorf("enqueue %s: %w", taskType, err)
	}

	existing, getErr := a.inspector.GetTaskInfo(queue, taskID)
	if getErr != nil {
		return nil, fmt.Errorf("inspect conflicting task %s: %w", taskID, getErr)
	}
	if existing.State != asynq.TaskStateArchived && existing.State != asynq.TaskStateCompleted {
		return existing, nil
	}

	if delErr := a.inspector.DeleteTask(queue, taskID); delErr != nil {
		return nil, fmt.Errorf("clear stale task %s: %w", taskID, delErr)
	}
	return a.client.Enqueue(task)
}

// RegisterHandler wires a handler function for a task type.
func (a *AsynqQueueService) RegisterHandler(taskType string, handler func(context.Context, *asynq.Task) error) {
	a.mux.HandleFunc(taskType, handler)
}

// Start runs the asynq server until ctx is cancelled.
func (a *AsynqQueueService) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		a.server.Shutdown()
	}()
	log.Println("[orchestrator] asynq worker starting")
	return a.server.Run(a.mux)
}

func (a *AsynqQueueService) Stop() {
	a.client.Close()
	a.inspector.Close()
}
