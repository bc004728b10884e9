package utils

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// R2Archive stores finished match transcripts in a Cloudflare R2 bucket.
type R2Archive struct {
	client     *s3.Client
	bucket     string
	cdnBaseURL string
}

// NewR2Archive builds an S3 client pointed at the account's R2 endpoint.
func NewR2Archive(ctx context.Context, accountID, accessKeyID, accessKeySecret, bucket, cdnBaseURL string) (*R2Archive, error) {
	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID)
	return newArchiveAt(ctx, endpoint, accessKeyID, accessKeySecret, bucket, cdnBaseURL)
}

func newArchiveAt(ctx context.Context, endpoint, accessKeyID, accessKeySecret, bucket, cdnBaseURL string) (*R2Archive, error) {
	if cdnBaseURL == "" {
		cdnBaseURL = endpoint + "/" + bucket
	}

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("auto"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKeyID, accessKeySecret, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load R2 config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})
	return &R2Archive{client: client, bucket: bucket, cdnBaseURL: strings.TrimRight(cdnBaseURL, "/")}, nil
}

// PutJSON uploads body under key and returns its public URL.
func (a *R2Archive) PutJSON(ctx context.Context, key string, body []byte) (string, error) {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to R2: %w", err)
	}
	return fmt.Sprintf("%s/%s", a.cdnBaseURL, key), nil
}
