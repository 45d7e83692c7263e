package sync

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/alfredjeanlab/occurrences/internal/config"
)

// keyTimeLayout formats the export timestamp substituted for {time} in an
// object key.
const keyTimeLayout = "20060102T150405Z"

// S3Destination uploads each export to its own object in an S3-compatible
// bucket. The object carries the export's counts as user metadata.
type S3Destination struct {
	client *s3.Client
	bucket string
	key    string
}

// NewS3Destination creates an S3 destination from the export settings. If
// S3Endpoint is set, path-style addressing is enabled (for MinIO and similar).
func NewS3Destination(ctx context.Context, ecfg config.Export) (*S3Destination, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(ecfg.S3Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if ecfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(ecfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Destination(client, ecfg.S3Bucket, ecfg.S3Key), nil
}

func newS3Destination(client *s3.Client, bucket, key string) *S3Destination {
	return &S3Destination{client: client, bucket: bucket, key: key}
}

// Write uploads one JSONL export. The object key is the configured key with
// {time} replaced by the export's header timestamp.
func (d *S3Destination) Write(ctx context.Context, data []byte) error {
	h, err := readHeader(data)
	if err != nil {
		return err
	}

	key := objectKey(d.key, h.Timestamp)
	_, err = d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(d.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/x-ndjson"),
		Metadata: map[string]string{
			"export-version":   h.Version,
			"occurrence-count": strconv.Itoa(h.OccurrenceCount),
			"price-count":      strconv.Itoa(h.PriceCount),
		},
	})
	if err != nil {
		return fmt.Errorf("s3 put object %s: %w", key, err)
	}
	return nil
}

// readHeader decodes the header record on the first line of an export.
func readHeader(data []byte) (header, error) {
	var h header
	line, _, _ := bufio.NewReader(bytes.NewReader(data)).ReadLine()
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("read export header: %w", err)
	}
	if h.Type != "header" {
		return h, fmt.Errorf("read export header: first record is %q", h.Type)
	}
	return h, nil
}

func objectKey(key string, ts time.Time) string {
	return strings.ReplaceAll(key, "{time}", ts.UTC().Format(keyTimeLayout))
}
