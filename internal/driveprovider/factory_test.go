package driveprovider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mediarelay/botcore/internal/models"
)

type stubTool struct{ kind models.DriveType }

func (s stubTool) UploadFile(context.Context, *models.Task, *models.Drive) (*UploadResult, error) {
	return nil, nil
}
func (s stubTool) DownloadFile(context.Context, *models.Task, *models.Drive, string) error {
	return nil
}
func (s stubTool) GetRemoteFileInfo(context.Context, *models.Drive, string) (*RemoteFileInfo, bool, error) {
	return nil, false, nil
}
func (s stubTool) StorageType() models.DriveType { return s.kind }

func TestFactoryRoutesByDriveType(t *testing.T) {
	f := NewFactory(stubTool{kind: models.DriveTypeS3}, stubTool{kind: models.DriveTypeAzure})

	tool, err := f.ProviderFor(&models.Drive{Type: models.DriveTypeAzure})
	require.NoError(t, err)
	require.Equal(t, models.DriveTypeAzure, tool.StorageType())
}

func TestFactoryErrorsOnUnregisteredType(t *testing.T) {
	f := NewFactory(stubTool{kind: models.DriveTypeS3})
	_, err := f.ProviderFor(&models.Drive{Type: models.DriveTypeAzure})
	require.Error(t, err)
}
