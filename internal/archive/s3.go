package archive

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/erazemk/inventura/internal/model"
)

// S3Config configures an S3-compatible bucket (AWS S3 or MinIO).
type S3Config struct {
	Bucket          string `toml:"bucket" yaml:"bucket"`
	Region          string `toml:"region" yaml:"region"`
	Endpoint        string `toml:"endpoint" yaml:"endpoint"` // optional, e.g. MinIO
	PathStyle       bool   `toml:"path_style" yaml:"path_style"`
	AccessKeyID     string `toml:"access_key_id" yaml:"access_key_id"` // optional, default chain otherwise
	SecretAccessKey string `toml:"secret_access_key" yaml:"secret_access_key"`
}

// putter is the part of *s3.Client the archiver uses.
type putter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 writes summaries to a bucket.
type S3 struct {
	client putter
	bucket string
}

// NewS3 builds a client from cfg and the default AWS config chain.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &S3{client: client, bucket: cfg.Bucket}, nil
}

// Archive uploads the summary as JSON.
func (a *S3) Archive(ctx context.Context, s model.Summary) error {
	data, err := encode(s)
	if err != nil {
		return fmt.Errorf("encoding summary: %w", err)
	}
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(Key(s.SessionID)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("uploading summary %s: %w", s.SessionID, err)
	}
	return nil
}
