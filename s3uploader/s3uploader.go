package s3uploader

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type Uploader struct {
	client *s3.Client
}

func New(accessKey, secretKey, region string) (*Uploader, error) {
	creds := credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")

	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithCredentialsProvider(creds),
		config.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return NewFromConfig(cfg), nil
}

// NewFromConfig uses the ambient AWS configuration, as inside a Lambda.
func NewFromConfig(cfg aws.Config) *Uploader {
	return &Uploader{
		client: s3.NewFromConfig(cfg),
	}
}

// Upload writes body to bucketName/key. Existing objects are never replaced:
// the request carries If-None-Match so a concurrent writer of the same key
// gets a precondition failure.
func (u *Uploader) Upload(ctx context.Context, bucketName, key string, body io.Reader, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(bucketName),
		Key:         aws.String(key),
		Body:        body,
		IfNoneMatch: aws.String("*"),
	}

	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := u.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", bucketName, key, err)
	}

	return nil
}
