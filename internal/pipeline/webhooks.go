package pipeline

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mediarelay/botcore/internal/chatclient"
	"github.com/mediarelay/botcore/internal/coordinator"
	"github.com/mediarelay/botcore/internal/driveprovider"
	"github.com/mediarelay/botcore/internal/durablequeue"
	"github.com/mediarelay/botcore/internal/models"
	"github.com/mediarelay/botcore/internal/protocolclient"
	"github.com/mediarelay/botcore/internal/ratelimit"
	"github.com/mediarelay/botcore/internal/taskerrors"
)

func newTaskID() string {
	b := make([]byte, 12)
	_, _ = rand.Read(b)
	return "task-" + hex.EncodeToString(b)
}

// AddTask implements dispatcher.TaskCreator: it persists one queued task
// for a single media-carrying message and publishes its download message,
// spec §4.G's ingress. The local waitingTasks cache is populated only to
// smooth bursts; durability comes from the repository write plus the
// durable-queue publish.
func (tm *TaskManager) AddTask(ctx context.Context, target, userID string, media chatclient.MediaInfo, chatID, messageID string) error {
	task := &models.Task{
		ID:        newTaskID(),
		Type:      models.TaskTypeDownload,
		Status:    models.StatusQueued,
		UserID:    userID,
		ChatID:    chatID,
		MessageID: messageID,
		DriveID:   target,
		FileName:  media.FileName,
		FileSize:  media.FileSize,
	}
	if err := tm.repo.Create(ctx, task); err != nil {
		return fmt.Errorf("pipeline: create task: %w", err)
	}
	if err := tm.queue.EnqueueDownloadTask(ctx, task.ID, durablequeue.DownloadTaskMeta{
		UserID: userID, ChatID: chatID, MessageID: messageID, DriveID: target,
		FileName: media.FileName, FileSize: media.FileSize,
	}); err != nil {
		return fmt.Errorf("pipeline: publish download task: %w", err)
	}
	tm.pushWaitingTask(task.ID)
	return nil
}

// AddBatchTasks implements dispatcher.TaskCreator: it creates one queued
// task per media-carrying message in a groupedId batch and publishes a
// single batch message, spec §4.F/§4.G.
func (tm *TaskManager) AddBatchTasks(ctx context.Context, groupID string, messages []chatclient.Message) error {
	tasks := make([]*models.Task, 0, len(messages))
	ids := make([]string, 0, len(messages))
	for _, msg := range messages {
		if msg.Media == nil {
			continue
		}
		t := &models.Task{
			ID: newTaskID(), Type: models.TaskTypeDownload, Status: models.StatusQueued,
			UserID: msg.UserID, ChatID: msg.ChatID, MessageID: msg.MessageID,
			GroupID: groupID, FileName: msg.Media.FileName, FileSize: msg.Media.FileSize,
		}
		tasks = append(tasks, t)
		ids = append(ids, t.ID)
	}
	if len(tasks) == 0 {
		return nil
	}
	if err := tm.repo.CreateBatch(ctx, tasks); err != nil {
		return fmt.Errorf("pipeline: create batch: %w", err)
	}
	if err := tm.queue.EnqueueMediaBatch(ctx, groupID, ids); err != nil {
		return fmt.Errorf("pipeline: publish batch: %w", err)
	}
	for _, id := range ids {
		tm.pushWaitingTask(id)
	}
	return nil
}

// CancelTask implements dispatcher.TaskCreator: it marks a task cancelled
// (owning user only), drops it from the local caches, and signals any
// in-flight worker via its cancellation token.
func (tm *TaskManager) CancelTask(ctx context.Context, taskID, userID string) error {
	task, err := tm.repo.FindByID(ctx, taskID)
	if err != nil {
		return taskerrors.New(taskerrors.KindPermanent, err)
	}
	if task == nil {
		return taskerrors.ErrNotFound
	}
	if task.UserID != userID {
		return taskerrors.Newf(taskerrors.KindBusiness, "pipeline: user %s may not cancel task owned by %s", userID, task.UserID)
	}
	if models.IsTerminal(task.Status) {
		return nil
	}

	if err := tm.repo.MarkCancelled(ctx, taskID); err != nil {
		return taskerrors.New(taskerrors.KindPermanent, err)
	}
	tm.removeFromWaiting(taskID)

	tm.mu.Lock()
	cancel, ok := tm.cancelTokens[taskID]
	tm.mu.Unlock()
	if ok {
		cancel()
	}

	if task.LocalPath != "" {
		_ = os.Remove(task.LocalPath)
	}
	return nil
}

// HandleDownloadWebhook is the download-stage entry point both the
// Webhook Router and the internal worker pool invoke.
func (tm *TaskManager) HandleDownloadWebhook(ctx context.Context, taskID string) error {
	held, err := tm.coord.HasLock(ctx, coordinator.LeaderRole)
	if err != nil {
		return taskerrors.New(taskerrors.KindTransient, err)
	}
	if !held {
		return taskerrors.ErrNotLeader
	}

	task, err := tm.repo.FindByID(ctx, taskID)
	if err != nil {
		return taskerrors.New(taskerrors.KindPermanent, err)
	}
	if task == nil {
		return taskerrors.ErrNotFound
	}
	if models.IsTerminal(task.Status) {
		return nil
	}

	msg, err := tm.chat.GetMessage(ctx, task.ChatID, task.MessageID)
	if err != nil {
		return taskerrors.New(taskerrors.KindTransient, err)
	}
	if msg == nil || msg.Media == nil {
		_ = tm.buffer.Enqueue(ctx, taskID, models.StatusFailed, "Source msg missing")
		return taskerrors.ErrNotFound
	}

	ok, err := tm.coord.AcquireTaskLock(ctx, taskID, tm.taskLockTTL)
	if err != nil {
		return taskerrors.New(taskerrors.KindTransient, err)
	}
	if !ok {
		return taskerrors.ErrNotLeader
	}

	return tm.downloadTask(ctx, task, msg.Media.FileName, msg.Media.FileSize)
}

// downloadTask runs the sec-transfer probe, local-cache probe, and (if
// neither hits) the full network download, per spec §4.G. Called with the
// task lock already held; every return path releases it.
func (tm *TaskManager) downloadTask(ctx context.Context, task *models.Task, fileName string, fileSize int64) error {
	drive, err := tm.lookup.DriveForUser(ctx, task.UserID)
	if err != nil {
		_ = tm.coord.ReleaseTaskLock(ctx, task.ID)
		return taskerrors.New(taskerrors.KindPermanent, err)
	}
	tool, err := tm.drives.ProviderFor(drive)
	if err != nil {
		_ = tm.coord.ReleaseTaskLock(ctx, task.ID)
		return taskerrors.New(taskerrors.KindPermanent, err)
	}

	var remote *driveprovider.RemoteFileInfo
	var found bool
	probeErr := tm.ratel.WithRetry(ctx, ratelimit.DefaultPolicy(ratelimit.PriorityLow), func(ctx context.Context) error {
		var err error
		remote, found, err = tool.GetRemoteFileInfo(ctx, drive, fileName)
		return err
	})
	if probeErr == nil && found && withinTolerance(remote.Size, fileSize) {
		tm.transition(ctx, task.ID, task.Status, models.StatusCompleted, "sec-transfer dedup hit")
		_ = tm.coord.ReleaseTaskLock(ctx, task.ID)
		return nil
	}

	localPath := filepath.Join(tm.downloadDir, fileName)
	if stat, err := os.Stat(localPath); err == nil && withinTolerance(stat.Size(), fileSize) {
		task.LocalPath = localPath
		tm.transition(ctx, task.ID, task.Status, models.StatusDownloaded, "local-cache dedup hit")
		if err := tm.coord.ReleaseTaskLock(ctx, task.ID); err != nil {
			tm.log.Warn().Err(err).Msg("pipeline: release lock before upload enqueue")
		}
		return tm.enqueueUpload(ctx, task, drive.ID)
	}

	workerCtx, cancel := context.WithCancel(ctx)
	tm.setCancelToken(task.ID, cancel)
	defer func() {
		cancel()
		tm.clearCancelToken(task.ID)
	}()

	tm.transition(workerCtx, task.ID, task.Status, models.StatusDownloading, "")

	tmpPath := localPath + ".part"
	if err := tm.streamDownload(workerCtx, task, tmpPath); err != nil {
		_ = tm.coord.ReleaseTaskLock(ctx, task.ID)
		kind := protocolclient.Classify(err)
		if !protocolclient.IsRecoverable(kind) {
			tm.transition(ctx, task.ID, models.StatusDownloading, models.StatusFailed, err.Error())
			return taskerrors.New(taskerrors.KindPermanent, err)
		}
		return taskerrors.New(taskerrors.KindTransient, err)
	}

	if err := os.Rename(tmpPath, localPath); err != nil {
		_ = tm.coord.ReleaseTaskLock(ctx, task.ID)
		return taskerrors.New(taskerrors.KindPermanent, fmt.Errorf("pipeline: finalize download: %w", err))
	}
	task.LocalPath = localPath

	tm.transition(ctx, task.ID, models.StatusDownloading, models.StatusDownloaded, "")
	if err := tm.coord.ReleaseTaskLock(ctx, task.ID); err != nil {
		tm.log.Warn().Err(err).Msg("pipeline: release lock before upload enqueue")
	}
	return tm.enqueueUpload(ctx, task, drive.ID)
}

// streamDownload pulls the media bytes for task through the chat protocol
// client into tmpPath. The concrete chat-protocol transport is the fixed
// external boundary chatclient.Client wraps; this method only owns file
// placement and cancellation.
func (tm *TaskManager) streamDownload(ctx context.Context, task *models.Task, tmpPath string) error {
	if err := tm.ratel.Acquire(ctx, ratelimit.PriorityNormal); err != nil {
		return fmt.Errorf("pipeline: rate limit: %w", err)
	}

	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("pipeline: create temp file: %w", err)
	}
	defer f.Close()

	if err := tm.chat.DownloadMedia(ctx, task.ChatID, task.MessageID, f); err != nil {
		return fmt.Errorf("pipeline: download media: %w", err)
	}
	return nil
}

func (tm *TaskManager) enqueueUpload(ctx context.Context, task *models.Task, driveID string) error {
	if err := tm.queue.EnqueueUploadTask(ctx, task.ID, durablequeue.UploadTaskMeta{UserID: task.UserID, DriveID: driveID}); err != nil {
		return taskerrors.New(taskerrors.KindTransient, err)
	}
	tm.pushWaitingUploadTask(task.ID)
	return nil
}

// HandleUploadWebhook is the upload-stage entry point.
func (tm *TaskManager) HandleUploadWebhook(ctx context.Context, taskID string) error {
	held, err := tm.coord.HasLock(ctx, coordinator.LeaderRole)
	if err != nil {
		return taskerrors.New(taskerrors.KindTransient, err)
	}
	if !held {
		return taskerrors.ErrNotLeader
	}

	task, err := tm.repo.FindByID(ctx, taskID)
	if err != nil {
		return taskerrors.New(taskerrors.KindPermanent, err)
	}
	if task == nil {
		return taskerrors.ErrNotFound
	}
	if models.IsTerminal(task.Status) {
		return nil
	}
	if task.LocalPath == "" {
		return taskerrors.ErrNotFound
	}
	stat, err := os.Stat(task.LocalPath)
	if err != nil || !withinTolerance(stat.Size(), task.FileSize) {
		return taskerrors.ErrNotFound
	}

	ok, err := tm.coord.AcquireTaskLock(ctx, taskID, tm.taskLockTTL)
	if err != nil {
		return taskerrors.New(taskerrors.KindTransient, err)
	}
	if !ok {
		return taskerrors.ErrNotLeader
	}
	defer func() { _ = tm.coord.ReleaseTaskLock(ctx, taskID) }()

	drive, err := tm.lookup.DriveForUser(ctx, task.UserID)
	if err != nil {
		return taskerrors.New(taskerrors.KindPermanent, err)
	}
	tool, err := tm.drives.ProviderFor(drive)
	if err != nil {
		return taskerrors.New(taskerrors.KindPermanent, err)
	}

	if err := tm.ratel.Acquire(ctx, ratelimit.PriorityNormal); err != nil {
		return taskerrors.New(taskerrors.KindTransient, err)
	}
	if _, err := tool.UploadFile(ctx, task, drive); err != nil {
		kind := protocolclient.Classify(err)
		if protocolclient.IsRecoverable(kind) {
			return taskerrors.New(taskerrors.KindTransient, err)
		}
		tm.transition(ctx, taskID, task.Status, models.StatusFailed, err.Error())
		return taskerrors.New(taskerrors.KindPermanent, err)
	}

	tm.transition(ctx, taskID, task.Status, models.StatusCompleted, "")
	_ = os.Remove(task.LocalPath)
	return nil
}

// HandleMediaBatchWebhook serially invokes HandleDownloadWebhook for
// every task in a groupedId batch, short-circuiting on the first failure
// so the durable queue can redeliver or finalize the whole batch.
func (tm *TaskManager) HandleMediaBatchWebhook(ctx context.Context, taskIDs []string) error {
	for _, id := range taskIDs {
		if err := tm.HandleDownloadWebhook(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (tm *TaskManager) runDownloadWorker(ctx context.Context) bool {
	taskID, ok := tm.popWaitingTask()
	if !ok {
		return false
	}
	if err := tm.HandleDownloadWebhook(ctx, taskID); err != nil {
		tm.log.Warn().Err(err).Str("taskId", taskID).Msg("pipeline: worker download attempt failed")
	}
	return true
}

func (tm *TaskManager) runUploadWorker(ctx context.Context) bool {
	taskID, ok := tm.popWaitingUploadTask()
	if !ok {
		return false
	}
	if err := tm.HandleUploadWebhook(ctx, taskID); err != nil {
		tm.log.Warn().Err(err).Str("taskId", taskID).Msg("pipeline: worker upload attempt failed")
	}
	return true
}
