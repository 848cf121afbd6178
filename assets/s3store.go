package assets

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net/http"
	"path"
)

// Uploader is satisfied by s3uploader.Uploader.
type Uploader interface {
	Upload(ctx context.Context, bucketName, key string, body io.Reader, contentType string) error
}

// S3Store puts assets in a bucket under prefix/<key>.
type S3Store struct {
	uploader Uploader
	bucket   string
	prefix   string
}

func NewS3Store(uploader Uploader, bucket, prefix string) *S3Store {
	return &S3Store{
		uploader: uploader,
		bucket:   bucket,
		prefix:   prefix,
	}
}

func (s *S3Store) Put(ctx context.Context, key string, data []byte) (string, error) {
	objectKey := path.Join(s.prefix, key)

	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	if err := s.uploader.Upload(ctx, s.bucket, objectKey, bytes.NewReader(data), contentType); err != nil {
		return "", err
	}

	return "s3://" + s.bucket + "/" + objectKey, nil
}
