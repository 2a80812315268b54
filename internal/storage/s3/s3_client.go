package s3

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"

	"solarbill/internal/config"
	"solarbill/internal/domain"
	"solarbill/internal/port"
)

// Client stores original bill images in S3 or an S3-compatible endpoint.
type Client struct {
	client   *s3.Client
	uploader *manager.Uploader
	log      zerolog.Logger
}

// NewClient creates a new S3-backed port.ObjectStorage.
func NewClient(ctx context.Context, cfg *config.S3Config, log zerolog.Logger) (*Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(cfg.Region))

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		// MinIO and LocalStack need path-style addressing.
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)
	return &Client{
		client:   client,
		uploader: manager.NewUploader(client),
		log:      log,
	}, nil
}

var _ port.ObjectStorage = (*Client)(nil)

func (c *Client) Upload(ctx context.Context, input port.UploadInput) (*port.UploadOutput, error) {
	result, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(input.Bucket),
		Key:         aws.String(input.Key),
		Body:        input.Body,
		ContentType: aws.String(input.ContentType),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: s3 upload %s: %v", domain.ErrStorageFailed, input.Key, err)
	}

	etag := ""
	if result.ETag != nil {
		etag = *result.ETag
	}
	c.log.Debug().Str("bucket", input.Bucket).Str("key", input.Key).Int64("size_bytes", input.Size).Msg("bill image stored")

	return &port.UploadOutput{
		Location: result.Location,
		ETag:     etag,
	}, nil
}

func (c *Client) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	result, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: %s", domain.ErrBillNotFound, key)
		}
		return nil, fmt.Errorf("%w: s3 download %s: %v", domain.ErrStorageFailed, key, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: s3 download read: %v", domain.ErrStorageFailed, err)
	}
	return data, nil
}

func (c *Client) Delete(ctx context.Context, bucket, key string) error {
	_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("%w: s3 delete %s: %v", domain.ErrStorageFailed, key, err)
	}
	return nil
}
