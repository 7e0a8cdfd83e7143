package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/OFFIS-RIT/causeway/internal/util"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func NewS3Client(ctx context.Context) *s3.Client {
	region := util.GetEnv("AWS_REGION")
	endpoint := util.GetEnv("AWS_ENDPOINT")
	accessKey := util.GetEnv("AWS_ACCESS_KEY")
	secretKey := util.GetEnv("AWS_SECRET_KEY")
	cfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion(region),
		config.WithBaseEndpoint(endpoint),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKey,
			secretKey,
			"",
		)),
	)
	if err != nil {
		return nil
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
	return client
}

// ArchiveTranscript stores the raw transcript exactly as received, so
// segmentation disputes can always be settled against the source.
func ArchiveTranscript(ctx context.Context, client *s3.Client, callID string, transcript string) (string, error) {
	bucket := util.GetEnvString("AWS_BUCKET", "causeway")
	key := fmt.Sprintf("transcripts/%s.txt", callID)
	err := util.RetryErrWithBackoff(ctx, 3, 500*time.Millisecond, func(ctx context.Context) error {
		_, err := client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(bucket),
			Key:         aws.String(key),
			Body:        strings.NewReader(transcript),
			ContentType: aws.String("text/plain; charset=utf-8"),
		})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to archive transcript to S3: %v", err)
	}
	return key, nil
}

// GetTranscript reads an archived raw transcript back.
func GetTranscript(ctx context.Context, client *s3.Client, callID string) (string, error) {
	bucket := util.GetEnvString("AWS_BUCKET", "causeway")
	key := fmt.Sprintf("transcripts/%s.txt", callID)
	result, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get transcript from S3: %v", err)
	}
	defer result.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, result.Body); err != nil {
		return "", fmt.Errorf("failed to read transcript contents: %v", err)
	}
	return buf.String(), nil
}
