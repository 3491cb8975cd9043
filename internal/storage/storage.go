package storage

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/USA-RedDragon/logcapture-server/internal/config"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ArchiveStore keeps copies of uploaded archives under slash-separated keys.
type ArchiveStore interface {
	// Create opens key for writing. The object is complete once Close returns nil.
	Create(ctx context.Context, key string) (io.WriteCloser, error)
	Remove(ctx context.Context, key string) error
	Close() error
}

func NewArchiveStore(ctx context.Context, cfg *config.Config) (ArchiveStore, error) {
	archives := cfg.Persistence.Archives
	switch archives.Driver {
	case config.ArchivesDriverFilesystem:
		err := os.MkdirAll(archives.Directory, 0755)
		if err != nil {
			return nil, fmt.Errorf("failed to create archives directory: %w", err)
		}
		return newFilesystem(archives.Directory)
	case config.ArchivesDriverS3:
		opts := []func(*awsconfig.LoadOptions) error{}
		if archives.S3.Region != "" {
			opts = append(opts, awsconfig.WithRegion(archives.S3.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.UsePathStyle = true
			if archives.S3.Endpoint != "" {
				o.BaseEndpoint = aws.String(archives.S3.Endpoint)
			}
		})
		return newS3(archives.S3.Bucket, client), nil
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", archives.Driver)
	}
}
