package driveprovider

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/mediarelay/botcore/internal/logging"
	"github.com/mediarelay/botcore/internal/models"
)

// AzureProvider implements CloudTool against Azure Blob Storage, grounded
// on the teacher's AzureClient connection-string/account-key wiring
// without the encryption layer §1 places outside this core's scope.
type AzureProvider struct {
	log *logging.Logger
}

// NewAzureProvider builds an Azure-backed CloudTool.
func NewAzureProvider(log *logging.Logger) *AzureProvider {
	return &AzureProvider{log: log}
}

func (p *AzureProvider) StorageType() models.DriveType { return models.DriveTypeAzure }

func (p *AzureProvider) client(drive *models.Drive) (*azblob.Client, error) {
	connStr := drive.Settings["connection_string"]
	if connStr == "" {
		return nil, fmt.Errorf("driveprovider: azure drive %q missing connection_string setting", drive.ID)
	}
	client, err := azblob.NewClientFromConnectionString(connStr, nil)
	if err != nil {
		return nil, fmt.Errorf("driveprovider: build azure client: %w", err)
	}
	return client, nil
}

func (p *AzureProvider) UploadFile(ctx context.Context, task *models.Task, drive *models.Drive) (*UploadResult, error) {
	client, err := p.client(drive)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(task.LocalPath)
	if err != nil {
		return nil, fmt.Errorf("driveprovider: open local file: %w", err)
	}
	defer f.Close()

	if _, err := client.UploadFile(ctx, drive.Bucket, task.RemotePath, f, nil); err != nil {
		return nil, fmt.Errorf("driveprovider: azure upload: %w", err)
	}
	return &UploadResult{StoragePath: task.RemotePath}, nil
}

func (p *AzureProvider) GetRemoteFileInfo(ctx context.Context, drive *models.Drive, name string) (*RemoteFileInfo, bool, error) {
	client, err := p.client(drive)
	if err != nil {
		return nil, false, err
	}
	props, err := client.ServiceClient().NewContainerClient(drive.Bucket).NewBlobClient(name).GetProperties(ctx, nil)
	if err != nil {
		if strings.Contains(err.Error(), "BlobNotFound") || strings.Contains(err.Error(), "404") {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("driveprovider: azure get properties: %w", err)
	}
	size := int64(0)
	if props.ContentLength != nil {
		size = *props.ContentLength
	}
	return &RemoteFileInfo{Size: size}, true, nil
}

func (p *AzureProvider) DownloadFile(ctx context.Context, task *models.Task, drive *models.Drive, localPath string) error {
	client, err := p.client(drive)
	if err != nil {
		return err
	}
	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("driveprovider: create local file: %w", err)
	}
	defer f.Close()

	_, err = client.DownloadFile(ctx, drive.Bucket, task.RemotePath, f, nil)
	if err != nil {
		return fmt.Errorf("driveprovider: azure download: %w", err)
	}
	return nil
}
