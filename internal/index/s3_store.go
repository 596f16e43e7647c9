package index

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"github.com/wheelhouse/wheelhouse/internal/wlog"
)

// S3Config configures an S3Store.
type S3Config struct {
	BucketName      string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// S3Store is a Store backed by an S3 bucket, adapted from the teacher's
// S3BlobStore. Intended for a shared, private wheelhouse index that
// multiple installers read from and the Uploader writes to.
type S3Store struct {
	s3       *s3.S3
	uploader *s3manager.Uploader
	config   S3Config
	log      wlog.Log
}

func NewS3Store(config S3Config, logFactory wlog.Factory) (*S3Store, error) {
	if config.BucketName == "" {
		return nil, fmt.Errorf("error bucket name must be configured")
	}
	log := logFactory("index-s3")
	cfg := &aws.Config{}
	if config.Region != "" {
		cfg = cfg.WithRegion(config.Region)
	}
	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		cfg = cfg.WithCredentials(credentials.NewStaticCredentials(config.AccessKeyID, config.SecretAccessKey, ""))
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("error creating AWS session: %w", err)
	}
	return &S3Store{
		s3:       s3.New(sess),
		uploader: s3manager.NewUploader(sess),
		config:   config,
		log:      log,
	}, nil
}

func (s *S3Store) Put(ctx context.Context, key string, content io.Reader) error {
	input := &s3manager.UploadInput{
		Body:                 content,
		Bucket:               aws.String(s.config.BucketName),
		ContentType:          aws.String("application/octet-stream"),
		Key:                  aws.String(key),
		ServerSideEncryption: aws.String("AES256"),
	}
	out, err := s.uploader.UploadWithContext(ctx, input)
	if err != nil {
		return fmt.Errorf("error putting artifact %s: %w", key, err)
	}
	s.log.WithField("bucket", s.config.BucketName).WithField("key", key).
		WithField("upload_id", out.UploadID).Infof("Uploaded artifact")
	return nil
}

func (s *S3Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(s.config.BucketName),
		Key:    aws.String(key),
	}
	output, err := s.s3.GetObjectWithContext(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("error getting artifact %s: %w", key, err)
	}
	return output.Body, nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	input := &s3.DeleteObjectInput{
		Bucket: aws.String(s.config.BucketName),
		Key:    aws.String(key),
	}
	_, err := s.s3.DeleteObjectWithContext(ctx, input)
	if err != nil {
		return fmt.Errorf("error deleting artifact %s: %w", key, err)
	}
	return nil
}
