package audit

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/pragati-platform/identity/pkg/observability"
)

// S3Config configures the audit archive bucket.
type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	// UsePathStyle is needed for MinIO and other S3-compatibles.
	UsePathStyle bool
}

// Archiver ships rotated audit segments to S3 for long-term
// retention. Local segments stay the hot copy; the bucket is the
// durable one.
type Archiver struct {
	client *s3.Client
	bucket string
	prefix string
	logger *observability.Logger
}

// NewArchiver builds an archiver. Static credentials are used when
// provided (MinIO, explicit keys); otherwise the default AWS chain.
func NewArchiver(ctx context.Context, cfg S3Config, logger *observability.Logger) (*Archiver, error) {
	var awsCfg aws.Config
	var err error

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKey,
				cfg.SecretKey,
				"",
			)),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.UsePathStyle {
			o.UsePathStyle = true
		}
	})

	return &Archiver{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		logger: logger,
	}, nil
}

// ArchiveFile uploads one rotated segment. The object key is
// prefix/YYYY/MM/<basename> so retention tooling can prune by month.
func (a *Archiver) ArchiveFile(ctx context.Context, filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open audit segment: %w", err)
	}
	defer file.Close()

	now := time.Now().UTC()
	key := path.Join(a.prefix, now.Format("2006"), now.Format("01"), filepath.Base(filePath))

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload audit segment to s3: %w", err)
	}

	a.logger.WithFields(map[string]interface{}{
		"bucket": a.bucket,
		"key":    key,
	}).Info("audit segment archived")
	return nil
}

// RotationHook adapts the archiver to FileLoggerConfig.OnRotate.
// Uploads run in the background; a failed upload is logged and the
// local segment stays on disk for a later retry.
func (a *Archiver) RotationHook() func(string) {
	return func(rotated string) {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			if err := a.ArchiveFile(ctx, rotated); err != nil {
				a.logger.WithError(err).WithField("segment", rotated).
					Error("audit archive upload failed")
			}
		}()
	}
}
