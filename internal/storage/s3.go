package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	appcfg "classroom-judge/internal/config"
)

// maxReportSize caps how much of a stored report is read back.
const maxReportSize = 8 << 20

type Client struct {
	s3     *s3.Client
	bucket string
}

func New(ctx context.Context, c appcfg.S3Config) (*Client, error) {
	resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{URL: fmt.Sprintf("http://%s", c.Endpoint),
			HostnameImmutable: true}, nil
	})
	cfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion(c.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(c.AccessKey,
			c.SecretKey,
			"")),
		config.WithEndpointResolverWithOptions(resolver),
	)
	if err != nil {
		return nil, err
	}
	return &Client{s3: s3.NewFromConfig(cfg), bucket: c.Bucket}, nil
}

// PutReport stores raw report bytes as-is and returns an s3:// reference.
// The bytes are not required to be valid JSON.
func (c *Client) PutReport(ctx context.Context, raw []byte) (string, error) {
	key := reportKey(uuid.New())
	_, err := c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &c.bucket,
		Key:         &key,
		Body:        bytes.NewReader(raw),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("s3://%s/%s", c.bucket, key), nil
}

func (c *Client) GetReport(ctx context.Context, ref string) ([]byte, error) {
	_, key, err := parseS3Ref(ref)
	if err != nil {
		return nil, err
	}
	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &c.bucket,
		Key:    &key,
	})
	if err != nil {
		log.Printf("failed to get s3 object %s: %v", ref, err)
		return nil, err
	}
	defer out.Body.Close()
	b, err := io.ReadAll(io.LimitReader(out.Body, maxReportSize+1))
	if err != nil {
		log.Printf("failed to read s3 object %s: %v", ref, err)
		return nil, err
	}
	if len(b) > maxReportSize {
		return nil, fmt.Errorf("s3 object %s exceeds %d bytes", ref, maxReportSize)
	}
	log.Println("fetched s3 object", ref)
	return b, nil
}

func reportKey(id uuid.UUID) string {
	return fmt.Sprintf("reports/%s.json", id)
}

func parseS3Ref(ref string) (string, string, error) {
	const p = "s3://"
	if !strings.HasPrefix(ref, p) {
		return "", "", fmt.Errorf("bad s3 ref (missing s3://): %q", ref)
	}
	s := strings.TrimPrefix(ref, p)
	slash := strings.IndexByte(s, '/')
	if slash <= 0 || slash == len(s)-1 {
		return "", "", fmt.Errorf("bad s3 ref (need bucket/key): %q", ref)
	}
	return s[:slash], s[slash+1:], nil
}
