package blobstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func newTestStore() *S3Store {
	return NewS3Store(Options{
		Region:       "us-east-1",
		AccessKey:    "minioadmin",
		AccessSecret: "minioadmin",
		BaseEndpoint: "http://127.0.0.1:9000",
		Bucket:       "vaultcore",
		URLTTL:       time.Minute,
	})
}

func stubAWS(t *testing.T) {
	t.Helper()

	origLoad, origNewS3, origNewPre := loadDefaultAWSConfig, newS3ClientFromConfig, newS3PresignClient
	origPut, origGet := presignPutObject, presignGetObject
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNewS3
		newS3PresignClient = origNewPre
		presignPutObject = origPut
		presignGetObject = origGet
	})

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, nil
	}
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return nil
	}
	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return nil
	}
}

func TestUploadURL_Success(t *testing.T) {
	stubAWS(t)

	var gotKey, gotBucket string
	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		gotKey = *in.Key
		gotBucket = *in.Bucket
		return &v4.PresignedHTTPRequest{URL: "http://signed/put"}, nil
	}

	url, err := newTestStore().UploadURL(context.Background(), "k1")
	if err != nil {
		t.Fatalf("UploadURL error: %v", err)
	}
	if url != "http://signed/put" {
		t.Fatalf("unexpected url: %q", url)
	}
	if gotKey != "k1" || gotBucket != "vaultcore" {
		t.Fatalf("unexpected input: key=%q bucket=%q", gotKey, gotBucket)
	}
}

func TestDownloadURL_Success(t *testing.T) {
	stubAWS(t)

	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return &v4.PresignedHTTPRequest{URL: "http://signed/get/" + *in.Key}, nil
	}

	url, err := newTestStore().DownloadURL(context.Background(), "k2")
	if err != nil {
		t.Fatalf("DownloadURL error: %v", err)
	}
	if url != "http://signed/get/k2" {
		t.Fatalf("unexpected url: %q", url)
	}
}

func TestUploadURL_PresignError(t *testing.T) {
	stubAWS(t)

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return nil, errors.New("boom")
	}

	if _, err := newTestStore().UploadURL(context.Background(), "k"); err == nil {
		t.Fatalf("expected error, got nil")
	}
}

func TestUploadURL_ConfigError(t *testing.T) {
	stubAWS(t)

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("no creds")
	}

	if _, err := newTestStore().UploadURL(context.Background(), "k"); err == nil {
		t.Fatalf("expected error, got nil")
	}
}
