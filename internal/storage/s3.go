package storage

import (
	"bytes"
	"context"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type S3 struct {
	bucket string
	client s3API
}

func newS3(bucket string, client s3API) *S3 {
	return &S3{
		bucket: bucket,
		client: client,
	}
}

// s3Object buffers the whole archive and uploads it on Close.
type s3Object struct {
	ctx    context.Context
	key    string
	buffer bytes.Buffer
	store  *S3
}

func (o *s3Object) Write(p []byte) (int, error) {
	return o.buffer.Write(p)
}

func (o *s3Object) Close() error {
	_, err := o.store.client.PutObject(o.ctx, &s3.PutObjectInput{
		Bucket:        aws.String(o.store.bucket),
		Key:           aws.String(o.key),
		Body:          bytes.NewReader(o.buffer.Bytes()),
		ContentLength: aws.Int64(int64(o.buffer.Len())),
		ContentType:   aws.String("application/gzip"),
	})
	return err
}

func (s *S3) Create(ctx context.Context, key string) (io.WriteCloser, error) {
	return &s3Object{
		ctx:   ctx,
		key:   key,
		store: s,
	}, nil
}

func (s *S3) Remove(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return err
}

func (s *S3) Close() error {
	return nil
}
