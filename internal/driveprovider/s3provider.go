package driveprovider

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/mediarelay/botcore/internal/logging"
	"github.com/mediarelay/botcore/internal/models"
)

// S3Provider implements CloudTool against AWS S3 (or an S3-compatible
// endpoint via a Drive's bucket/region settings), grounded on the
// teacher's S3Client credential-refresh wiring without the encryption
// layer, which §1 places outside this core's scope.
type S3Provider struct {
	log *logging.Logger
}

// NewS3Provider builds an S3-backed CloudTool. Per-drive credentials are
// read from Drive.Settings (access_key_id/secret_access_key) when present,
// falling back to the process's default credential chain.
func NewS3Provider(log *logging.Logger) *S3Provider {
	return &S3Provider{log: log}
}

func (p *S3Provider) StorageType() models.DriveType { return models.DriveTypeS3 }

func (p *S3Provider) client(ctx context.Context, drive *models.Drive) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(drive.Region)}
	if keyID, secret := drive.Settings["access_key_id"], drive.Settings["secret_access_key"]; keyID != "" && secret != "" {
		opts = append(opts, config.WithCredentialsProvider(awscreds.NewStaticCredentialsProvider(keyID, secret, "")))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("driveprovider: load aws config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

func (p *S3Provider) UploadFile(ctx context.Context, task *models.Task, drive *models.Drive) (*UploadResult, error) {
	client, err := p.client(ctx, drive)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(task.LocalPath)
	if err != nil {
		return nil, fmt.Errorf("driveprovider: open local file: %w", err)
	}
	defer f.Close()

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(drive.Bucket),
		Key:    aws.String(task.RemotePath),
		Body:   f,
	})
	if err != nil {
		return nil, fmt.Errorf("driveprovider: s3 upload: %w", err)
	}
	return &UploadResult{StoragePath: task.RemotePath}, nil
}

func (p *S3Provider) GetRemoteFileInfo(ctx context.Context, drive *models.Drive, name string) (*RemoteFileInfo, bool, error) {
	client, err := p.client(ctx, drive)
	if err != nil {
		return nil, false, err
	}
	out, err := client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(drive.Bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		var notFound *s3types.NotFound
		if errors.As(err, &notFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("driveprovider: s3 head object: %w", err)
	}
	return &RemoteFileInfo{Size: aws.ToInt64(out.ContentLength)}, true, nil
}

func (p *S3Provider) DownloadFile(ctx context.Context, task *models.Task, drive *models.Drive, localPath string) error {
	client, err := p.client(ctx, drive)
	if err != nil {
		return err
	}
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(drive.Bucket),
		Key:    aws.String(task.RemotePath),
	})
	if err != nil {
		return fmt.Errorf("driveprovider: s3 download: %w", err)
	}
	defer out.Body.Close()

	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("driveprovider: create local file: %w", err)
	}
	defer f.Close()

	if _, err := f.ReadFrom(out.Body); err != nil {
		return fmt.Errorf("driveprovider: write local file: %w", err)
	}
	return nil
}
