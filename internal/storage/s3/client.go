package s3

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	awsconfig "github.com/scttfrdmn/cargoship/pkg/aws/config"
	cargoships3 "github.com/scttfrdmn/cargoship/pkg/aws/s3"
)

// API is the subset of the S3 client the adapter uses.
type API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	s3.ListObjectsV2APIClient
}

// NewClient builds an S3 client from cfg, plus a CargoShip transporter when
// optimized uploads are enabled.
func NewClient(ctx context.Context, cfg *Config) (*s3.Client, *cargoships3.Transporter, error) {
	if cfg.Bucket == "" {
		return nil, nil, fmt.Errorf("bucket name cannot be empty")
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
		config.WithRetryMaxAttempts(cfg.MaxRetries),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
	})

	var transporter *cargoships3.Transporter
	if cfg.EnableCargoShipOptimization {
		transporter = cargoships3.NewTransporter(client, awsconfig.S3Config{
			Bucket:             cfg.Bucket,
			StorageClass:       cargoStorageClass(cfg.StorageTier),
			MultipartThreshold: 32 * 1024 * 1024,
			MultipartChunkSize: 16 * 1024 * 1024,
			Concurrency:        cfg.Concurrency,
		})
	}

	return client, transporter, nil
}

func storageClass(tier string) s3types.StorageClass {
	switch tier {
	case TierStandardIA:
		return s3types.StorageClassStandardIa
	case TierOneZoneIA:
		return s3types.StorageClassOnezoneIa
	case TierIntelligent:
		return s3types.StorageClassIntelligentTiering
	default:
		return s3types.StorageClassStandard
	}
}

func cargoStorageClass(tier string) awsconfig.StorageClass {
	switch tier {
	case TierStandardIA:
		return awsconfig.StorageClassStandardIA
	case TierOneZoneIA:
		return awsconfig.StorageClassOneZoneIA
	case TierIntelligent:
		return awsconfig.StorageClassIntelligentTiering
	default:
		return awsconfig.StorageClassStandard
	}
}
