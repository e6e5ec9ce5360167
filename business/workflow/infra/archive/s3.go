package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/fd1az/stablecoin-engine/business/workflow/domain"
	"github.com/fd1az/stablecoin-engine/internal/apperror"
	"github.com/fd1az/stablecoin-engine/internal/logger"
)

// S3Config locates the archive bucket.
type S3Config struct {
	Bucket   string
	Region   string
	Endpoint string
	Prefix   string
	// PathStyle is needed by most S3-compatible stores.
	PathStyle       bool
	AccessKeyID     string
	SecretAccessKey string
}

// S3 writes one JSON document per saga.
type S3 struct {
	client *s3.Client
	bucket string
	prefix string
	logger logger.LoggerInterface
}

// NewS3 loads AWS configuration and creates the archive. Static credentials
// are used when both keys are set, the default chain otherwise.
func NewS3(ctx context.Context, cfg S3Config, log logger.LoggerInterface) (*S3, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, apperror.New(apperror.CodeConfigurationError, apperror.WithContext("archive bucket not configured"))
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})

	return &S3{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		logger: log,
	}, nil
}

// Key is the object key of a result: <prefix>/<saga>/<yyyy>/<mm>/<dd>/<id>.json.
func (a *S3) Key(r domain.Result) string {
	at := r.FinishedAt.UTC()
	return path.Join(a.prefix, r.Name,
		fmt.Sprintf("%04d/%02d/%02d", at.Year(), at.Month(), at.Day()),
		r.SagaID+".json")
}

// Put uploads r.
func (a *S3) Put(ctx context.Context, r domain.Result) error {
	body, err := json.Marshal(r)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeInvalidInput, "encode saga result")
	}
	key := a.Key(r)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return apperror.External(apperror.CodeExternalServiceError, "put "+key, err)
	}
	a.logger.Debug(ctx, "saga archived", "saga_id", r.SagaID, "key", key)
	return nil
}
