package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/datawallet/internal/common"
	"github.com/dmitrijs2005/datawallet/internal/logging"
	"github.com/dmitrijs2005/datawallet/internal/server/config"
	"github.com/dmitrijs2005/datawallet/internal/server/models"
	"github.com/dmitrijs2005/datawallet/internal/server/repositories/repomanager"
)

var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

// MaxFileSize bounds the content a single upload URL may be used for.
const MaxFileSize = 1 << 30

// FileService hands out presigned object storage URLs for encrypted file
// content. The content itself never passes through the backbone.
type FileService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	config      *config.Config
	log         logging.Logger
	now         func() time.Time
}

func NewFileService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, log logging.Logger) *FileService {
	if log == nil {
		log = logging.Nop()
	}
	return &FileService{db: db, repomanager: m, config: cfg, log: log.With("module", "files"), now: time.Now}
}

func GetRandomStorageKey() string {
	d := time.Now()
	return fmt.Sprintf("files/%d/%d/%d/%v", d.Year(), d.Month(), d.Day(), uuid.New())
}

func (s *FileService) getPresignClient(ctx context.Context) (*s3.PresignClient, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		awsconfig.WithRegion(s.config.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,
			s.config.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
		o.UsePathStyle = true
	})

	return newS3PresignClient(client), nil
}

// PresignUpload reserves a fresh storage key for the content of fileID and
// returns a URL the device can PUT the encrypted content to. Uploading again
// replaces the previous location.
func (s *FileService) PresignUpload(ctx context.Context, identityID, fileID string, size int64) (string, error) {
	switch {
	case fileID == "":
		return "", fmt.Errorf("file id is missing: %w", common.ErrValidation)
	case size <= 0 || size > MaxFileSize:
		return "", fmt.Errorf("file size %d out of range: %w", size, common.ErrValidation)
	}

	presignClient, err := s.getPresignClient(ctx)
	if err != nil {
		return "", err
	}

	bucket := s.config.S3Bucket
	key := GetRandomStorageKey()

	req, err := presignPutObject(presignClient, ctx, &s3.PutObjectInput{
		Bucket:        &bucket,
		Key:           &key,
		ContentLength: aws.Int64(size),
	}, s3.WithPresignExpires(s.config.PresignExpiry))
	if err != nil {
		return "", fmt.Errorf("presign upload: %w", err)
	}

	err = s.repomanager.Files(s.db).Upsert(ctx, &models.File{
		ID:         fileID,
		IdentityID: identityID,
		StorageKey: key,
		Size:       size,
		CreatedAt:  s.now().UTC(),
	})
	if err != nil {
		if errors.Is(err, common.ErrVersionConflict) {
			s.log.Warn(ctx, "file id owned by another identity", "identity", identityID, "file_id", fileID)
		}
		return "", err
	}
	return req.URL, nil
}

// PresignDownload returns a URL to GET the stored content of fileID.
func (s *FileService) PresignDownload(ctx context.Context, identityID, fileID string) (string, error) {
	f, err := s.repomanager.Files(s.db).Get(ctx, identityID, fileID)
	if err != nil {
		return "", err
	}

	presignClient, err := s.getPresignClient(ctx)
	if err != nil {
		return "", err
	}

	bucket := s.config.S3Bucket
	req, err := presignGetObject(presignClient, ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &f.StorageKey,
	}, s3.WithPresignExpires(s.config.PresignExpiry))
	if err != nil {
		return "", fmt.Errorf("presign download: %w", err)
	}
	return req.URL, nil
}
