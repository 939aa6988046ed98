// Package aws defines functions used to interact with the AWS API
package aws

import (
	"context"
	"fmt"

	"bitwise74/tmpfile-api/internal/storage"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/viper"
)

type S3Client struct {
	C      *s3.Client
	Bucket *string
}

// NewS3 builds a client from the aws.* settings. Static credentials are used
// when set, otherwise the default chain (env, shared config, IAM role).
// A custom aws.endpoint switches to path style addressing for MinIO and co.
func NewS3(ctx context.Context) (*S3Client, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(viper.GetString("aws.region")),
	}

	if key := viper.GetString("aws.access_key"); key != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			key,
			viper.GetString("aws.secret_access_key"),
			"",
		)))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config, %w", err)
	}

	bucket := aws.String(viper.GetString("aws.bucket"))
	endpoint := viper.GetString("aws.endpoint")

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	if err := storage.CheckBucket(ctx, client, bucket); err != nil {
		return nil, err
	}

	return &S3Client{
		C:      client,
		Bucket: bucket,
	}, nil
}

// Store wraps the client in an object store
func (c *S3Client) Store() *storage.S3Store {
	return storage.NewS3Store(c.C, c.Bucket)
}
