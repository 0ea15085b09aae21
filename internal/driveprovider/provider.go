// Package driveprovider adapts the teacher's unified S3/Azure transfer
// interface (internal/cloud.CloudTransfer) into the spec's CloudTool
// shape: a single uploadFile/downloadFile surface the Task Pipeline calls
// through the retry layer, keyed by a user's configured Drive rather than
// the teacher's per-job StorageInfo.
package driveprovider

import (
	"context"
	"fmt"

	"github.com/mediarelay/botcore/internal/models"
)

// UploadResult is returned by a successful upload.
type UploadResult struct {
	StoragePath string
}

// RemoteFileInfo is the sec-transfer probe's answer: a prior upload of
// the same logical file already sitting in the user's drive.
type RemoteFileInfo struct {
	Size int64
}

// CloudTool is the unified interface for cloud storage operations the
// Task Pipeline drives. Both the S3 and Azure providers implement it
// uniformly so the pipeline never branches on Drive.Type.
type CloudTool interface {
	// UploadFile streams localPath to the drive under task.RemotePath,
	// returning the final storage path.
	UploadFile(ctx context.Context, task *models.Task, drive *models.Drive) (*UploadResult, error)

	// DownloadFile streams task.RemotePath from the drive to localPath.
	DownloadFile(ctx context.Context, task *models.Task, drive *models.Drive, localPath string) error

	// GetRemoteFileInfo looks up a prior upload of name in the drive, the
	// sec-transfer dedup probe. ok is false if no such object exists.
	GetRemoteFileInfo(ctx context.Context, drive *models.Drive, name string) (info *RemoteFileInfo, ok bool, err error)

	// StorageType reports which backend this instance handles ("s3" or
	// "azure"), matching models.DriveType.
	StorageType() models.DriveType
}

// Factory builds the CloudTool appropriate for a Drive's configured type,
// the runtime counterpart to the teacher's CloudTransferFactory.
type Factory interface {
	ProviderFor(drive *models.Drive) (CloudTool, error)
}

// registryFactory is a Factory backed by a fixed StorageType->CloudTool
// map, populated at composition-root wiring time.
type registryFactory struct {
	byType map[models.DriveType]CloudTool
}

// NewFactory builds a Factory from the given providers, indexed by their
// own StorageType().
func NewFactory(providers ...CloudTool) Factory {
	byType := make(map[models.DriveType]CloudTool, len(providers))
	for _, p := range providers {
		byType[p.StorageType()] = p
	}
	return &registryFactory{byType: byType}
}

func (f *registryFactory) ProviderFor(drive *models.Drive) (CloudTool, error) {
	tool, ok := f.byType[drive.Type]
	if !ok {
		return nil, fmt.Errorf("driveprovider: no provider registered for drive type %q", drive.Type)
	}
	return tool, nil
}
