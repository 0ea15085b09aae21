// Package pipeline implements the Task Manager (spec §4.G): the
// download/upload state machine, its worker pool, webhook entry points,
// and sec-transfer/local-cache dedup probes. Grounded on the teacher's
// transfer.Queue for the task-registry/cancellation-token shape
// (internal/transfer/queue.go), generalized from a progress-tracking CLI
// registry into a durable, webhook-driven state machine.
package pipeline

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/mediarelay/botcore/internal/chatclient"
	"github.com/mediarelay/botcore/internal/coordinator"
	"github.com/mediarelay/botcore/internal/driveprovider"
	"github.com/mediarelay/botcore/internal/durablequeue"
	"github.com/mediarelay/botcore/internal/events"
	"github.com/mediarelay/botcore/internal/logging"
	"github.com/mediarelay/botcore/internal/models"
	"github.com/mediarelay/botcore/internal/ratelimit"
	"github.com/mediarelay/botcore/internal/taskrepo"
)

// uiMinInterval bounds progress-update edits to at most one per task per
// this interval.
const uiMinInterval = 3 * time.Second

// TaskRepository is the subset of the Task Repository the pipeline reads
// and mutates. taskrepo.D1Store satisfies it.
type TaskRepository interface {
	Create(ctx context.Context, t *models.Task) error
	CreateBatch(ctx context.Context, tasks []*models.Task) error
	FindByID(ctx context.Context, id string) (*models.Task, error)
	FindCompletedByFile(ctx context.Context, userID, fileName string, fileSize int64) (*models.Task, error)
	MarkCancelled(ctx context.Context, id string) error
	ClaimTask(ctx context.Context, id, instanceID string, inFlightStatus models.TaskStatus) (bool, error)
}

// DriveLookup resolves which configured Drive a user's tasks upload to.
type DriveLookup interface {
	DriveForUser(ctx context.Context, userID string) (*models.Drive, error)
}

// ChatSource is the subset of chatclient.Client the pipeline re-resolves
// source messages through and streams media bytes from.
type ChatSource interface {
	GetMessage(ctx context.Context, chatID, messageID string) (*chatclient.Message, error)
	DownloadMedia(ctx context.Context, chatID, messageID string, w io.Writer) error
}

// TaskManager is the Task Pipeline: it owns the waitingTasks/
// waitingUploadTasks caches, a dynamically-scaled worker pool, and the
// webhook handlers the Webhook Router invokes.
type TaskManager struct {
	repo   TaskRepository
	buffer *taskrepo.Buffer
	coord  *coordinator.Coordinator
	queue  *durablequeue.Adapter
	chat   ChatSource
	drives driveprovider.Factory
	lookup DriveLookup
	bus    *events.EventBus
	log    *logging.Logger
	ratel  *ratelimit.Registry

	downloadDir string
	taskLockTTL time.Duration

	downloadPool *workerPool
	uploadPool   *workerPool

	mu                 sync.Mutex
	cancelTokens       map[string]context.CancelFunc
	lastUIUpdate       map[string]time.Time
	waitingTasks       []string
	waitingUploadTasks []string
}

// Deps bundles every collaborator NewTaskManager wires in.
type Deps struct {
	Repo        TaskRepository
	Buffer      *taskrepo.Buffer
	Coordinator *coordinator.Coordinator
	Queue       *durablequeue.Adapter
	Chat        ChatSource
	Drives      driveprovider.Factory
	DriveLookup DriveLookup
	Bus         *events.EventBus
	RateLimit   *ratelimit.Registry
	Log         *logging.Logger
	DownloadDir string
	TaskLockTTL time.Duration

	MinDownloadWorkers, MaxDownloadWorkers int
	MinUploadWorkers, MaxUploadWorkers     int
}

// NewTaskManager builds a TaskManager and its auto-scaled worker pools.
func NewTaskManager(d Deps) *TaskManager {
	tm := &TaskManager{
		repo:         d.Repo,
		buffer:       d.Buffer,
		coord:        d.Coordinator,
		queue:        d.Queue,
		chat:         d.Chat,
		drives:       d.Drives,
		lookup:       d.DriveLookup,
		bus:          d.Bus,
		log:          d.Log,
		ratel:        d.RateLimit,
		downloadDir:  d.DownloadDir,
		taskLockTTL:  d.TaskLockTTL,
		cancelTokens: make(map[string]context.CancelFunc),
		lastUIUpdate: make(map[string]time.Time),
	}
	if tm.taskLockTTL <= 0 {
		tm.taskLockTTL = 5 * time.Minute
	}
	tm.downloadPool = newWorkerPool(d.Log, "download", d.MinDownloadWorkers, d.MaxDownloadWorkers, tm.runDownloadWorker)
	tm.uploadPool = newWorkerPool(d.Log, "upload", d.MinUploadWorkers, d.MaxUploadWorkers, tm.runUploadWorker)
	return tm
}

// Start launches both worker pools' autoscale controllers and the
// write-coalescing buffer's flush loop.
func (tm *TaskManager) Start(ctx context.Context) {
	go tm.downloadPool.run(ctx, tm.queueDownloadDepth)
	go tm.uploadPool.run(ctx, tm.queueUploadDepth)
	go tm.buffer.Run(ctx)
}

func (tm *TaskManager) queueDownloadDepth() int {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return len(tm.waitingTasks)
}

func (tm *TaskManager) queueUploadDepth() int {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return len(tm.waitingUploadTasks)
}

func (tm *TaskManager) pushWaitingTask(taskID string) {
	tm.mu.Lock()
	tm.waitingTasks = append(tm.waitingTasks, taskID)
	tm.mu.Unlock()
	tm.downloadPool.notify()
}

func (tm *TaskManager) pushWaitingUploadTask(taskID string) {
	tm.mu.Lock()
	tm.waitingUploadTasks = append(tm.waitingUploadTasks, taskID)
	tm.mu.Unlock()
	tm.uploadPool.notify()
}

func (tm *TaskManager) popWaitingTask() (string, bool) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if len(tm.waitingTasks) == 0 {
		return "", false
	}
	id := tm.waitingTasks[0]
	tm.waitingTasks = tm.waitingTasks[1:]
	return id, true
}

func (tm *TaskManager) popWaitingUploadTask() (string, bool) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if len(tm.waitingUploadTasks) == 0 {
		return "", false
	}
	id := tm.waitingUploadTasks[0]
	tm.waitingUploadTasks = tm.waitingUploadTasks[1:]
	return id, true
}

func (tm *TaskManager) removeFromWaiting(taskID string) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.waitingTasks = removeString(tm.waitingTasks, taskID)
	tm.waitingUploadTasks = removeString(tm.waitingUploadTasks, taskID)
}

func removeString(list []string, target string) []string {
	out := list[:0]
	for _, v := range list {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}

// tolerance returns the size-mismatch budget the sec-transfer and
// local-cache probes accept, per spec §4.G: 10KiB up to 1MiB files, 1MiB
// beyond that.
func tolerance(size int64) int64 {
	const mib = 1 << 20
	if size <= mib {
		return 10 << 10
	}
	return mib
}

func withinTolerance(a, b int64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff <= tolerance(b)
}

// shouldSendProgress enforces the ≤1-edit-per-uiMinInterval rate limit
// per task.
func (tm *TaskManager) shouldSendProgress(taskID string) bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	last, ok := tm.lastUIUpdate[taskID]
	if ok && time.Since(last) < uiMinInterval {
		return false
	}
	tm.lastUIUpdate[taskID] = time.Now()
	return true
}

// transition buffers a status write and fans the change out on the event
// bus, so the Dispatcher's rate-limited progress-edit path can render it
// without the pipeline depending on the Dispatcher directly.
func (tm *TaskManager) transition(ctx context.Context, taskID string, from, to models.TaskStatus, reason string) {
	if err := tm.buffer.Enqueue(ctx, taskID, to, reason); err != nil {
		tm.log.Error().Err(err).Str("taskId", taskID).Str("status", string(to)).Msg("pipeline: status update failed")
	}
	tm.bus.PublishStateChange(taskID, string(from), string(to), reason)
}

func (tm *TaskManager) setCancelToken(taskID string, cancel context.CancelFunc) {
	tm.mu.Lock()
	tm.cancelTokens[taskID] = cancel
	tm.mu.Unlock()
}

func (tm *TaskManager) clearCancelToken(taskID string) {
	tm.mu.Lock()
	delete(tm.cancelTokens, taskID)
	tm.mu.Unlock()
}
