/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package storage

import (
	"context"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"k8s.io/klog/v2"

	"github.com/certsocietegenerale/fame/pkg/config"
)

// S3Archiver mirrors the permanent store into an S3 bucket.
type S3Archiver struct {
	bucket     string
	uploader   *manager.Uploader
	downloader *manager.Downloader
}

// NewS3Archiver builds an archiver from the s3.* configuration.
func NewS3Archiver(ctx context.Context) (*S3Archiver, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(config.GetS3Region()),
	}
	if accessKey := config.GetS3AccessKey(); accessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, config.GetS3SecretKey(), "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint := config.GetS3Endpoint(); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	klog.Infof("s3 archival enabled, bucket %s", config.GetS3Bucket())
	return &S3Archiver{
		bucket:     config.GetS3Bucket(),
		uploader:   manager.NewUploader(client),
		downloader: manager.NewDownloader(client),
	}, nil
}

// Archive uploads a stored file under its key.
func (a *S3Archiver) Archive(ctx context.Context, key, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	_, err = a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
		Body:   file,
	})
	return err
}

// Retrieve downloads an archived file back to the local store.
func (a *S3Archiver) Retrieve(ctx context.Context, key, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	_, err = a.downloader.Download(ctx, file, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		os.Remove(path)
	}
	return err
}

var _ Archiver = &S3Archiver{}
