package s3

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// Client wraps the S3 client.
type Client struct {
	s3     *s3.Client
	region string
}

// NewClient creates an S3 client for region. A non-empty endpoint points the
// client at an S3-compatible service instead of AWS.
func NewClient(ctx context.Context, region, accessKey, secretKey, endpoint string) (*Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
		config.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return &Client{s3: client, region: region}, nil
}

// EnsureBucket creates bucketName in the client's region unless it already
// exists and is ours. It reports whether the bucket was created.
func (c *Client) EnsureBucket(ctx context.Context, bucketName string) (bool, error) {
	exists, err := c.BucketExists(ctx, bucketName)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(bucketName)}
	// us-east-1 is the one region that rejects an explicit constraint.
	if c.region != "" && c.region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(c.region),
		}
	}
	if _, err := c.s3.CreateBucket(ctx, input); err != nil {
		if isBucketAlreadyOwnedByYou(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create bucket %s: %w", bucketName, err)
	}
	return true, nil
}

// BucketExists checks if a bucket exists and is accessible.
func (c *Client) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	_, err := c.s3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucketName)})
	if err != nil {
		if isNotFoundError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check bucket %s: %w", bucketName, err)
	}
	return true, nil
}

func isBucketAlreadyOwnedByYou(err error) bool {
	var baoby *types.BucketAlreadyOwnedByYou
	if errors.As(err, &baoby) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "BucketAlreadyOwnedByYou"
	}
	return false
}

func isNotFoundError(err error) bool {
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NotFound" || code == "NoSuchBucket" || code == "404"
	}
	return false
}
