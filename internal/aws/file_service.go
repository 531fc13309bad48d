package aws

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"croesus/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

type FileService interface {
	UploadFile(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
	TestConnection(ctx context.Context) error
}

type fileService struct {
	s3       *s3.Client
	uploader *manager.Uploader
	bucket   string
	region   string
	prefix   string
}

func NewFileService(cfg config.S3Config) (FileService, error) {
	credProvider := aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
		return aws.Credentials{
			AccessKeyID:     cfg.AccessKey,
			SecretAccessKey: cfg.SecretKey,
		}, nil
	})

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credProvider),
	)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg)

	return &fileService{
		s3:       client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
		region:   cfg.Region,
		prefix:   cfg.KeyPrefix,
	}, nil
}

// UploadFile stores body under the configured key prefix and returns its URL
func (s *fileService) UploadFile(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	if s.prefix != "" {
		key = path.Join(s.prefix, key)
	}

	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		log.Error().Err(err).Str("bucket", s.bucket).Str("key", key).Msg("Failed to upload file")
		return "", err
	}

	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key), nil
}

func (s *fileService) TestConnection(ctx context.Context) error {
	_, err := s.s3.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		MaxKeys: aws.Int32(1),
	})
	log.Err(err).Str("bucket", s.bucket).Msg("AWS S3 Test Connection")

	return err
}

// ReportKey names the object a stat report is archived under, e.g.
// "eu/dstats/2024-11-05T00.json"
func ReportKey(server, report string, at time.Time) string {
	return path.Join(strings.ToLower(server), report, at.UTC().Format("2006-01-02T15")+".json")
}
