package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"edufinx/config"
	"edufinx/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewS3Client erstellt einen S3-Client für den Snapshot-Bucket.
func NewS3Client(cfg *config.Config) (*s3.Client, error) {
	resolver := aws.EndpointResolverWithOptionsFunc(
		func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:               cfg.SnapshotS3URL,
				SigningRegion:     cfg.SnapshotS3Region,
				HostnameImmutable: true,
			}, nil
		},
	)
	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithRegion(cfg.SnapshotS3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.SnapshotS3Key, cfg.SnapshotS3Secret, "")),
		awsconfig.WithEndpointResolverWithOptions(resolver),
	)
	if err != nil {
		return nil, err
	}

	return s3.NewFromConfig(awsCfg), nil
}

// UploadCaseSnapshot lädt den JSON-Snapshot eines veröffentlichten Cases
// hoch und gibt den Link zurück.
func UploadCaseSnapshot(ctx context.Context, client *s3.Client, cfg *config.Config, cs *models.CaseStudy) (string, error) {
	data, err := json.MarshalIndent(cs, "", "  ")
	if err != nil {
		return "", err
	}

	key := fmt.Sprintf("cases/%s-%s.json", cs.Slug, time.Now().UTC().Format("2006-01-02T15-04-05Z"))
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(cfg.SnapshotS3Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", err
	}

	link := fmt.Sprintf("%s/%s/%s", cfg.SnapshotS3URL, cfg.SnapshotS3Bucket, key)
	return link, nil
}
