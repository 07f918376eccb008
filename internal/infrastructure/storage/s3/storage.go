package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/kirillkom/document-autopilot/internal/core/domain"
)

// api is the slice of the S3 client the gateway uses, split out so tests can
// fake it.
type api interface {
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CopyObject(ctx context.Context, in *s3.CopyObjectInput, opts ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObjectTagging(ctx context.Context, in *s3.PutObjectTaggingInput, opts ...func(*s3.Options)) (*s3.PutObjectTaggingOutput, error)
	GetObjectTagging(ctx context.Context, in *s3.GetObjectTaggingInput, opts ...func(*s3.Options)) (*s3.GetObjectTaggingOutput, error)
}

// Gateway serves the StorageGateway contract from an S3 bucket. The listing
// ETag doubles as the content fingerprint, so the same key re-uploaded with
// new bytes becomes a new identity.
type Gateway struct {
	client api
	bucket string
}

func New(ctx context.Context, bucket, region, endpoint string) (*Gateway, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			// MinIO and other S3-compatible stores need path-style addressing.
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return &Gateway{client: client, bucket: bucket}, nil
}

func (g *Gateway) List(ctx context.Context, prefix string) ([]domain.ObjectInfo, error) {
	var out []domain.ObjectInfo
	var token *string
	for {
		resp, err := g.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(g.bucket),
			Prefix:            optionalString(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, wrapStorageError("list objects", err)
		}
		for _, obj := range resp.Contents {
			info := domain.ObjectInfo{
				Location:    aws.ToString(obj.Key),
				Fingerprint: strings.Trim(aws.ToString(obj.ETag), `"`),
				Size:        aws.ToInt64(obj.Size),
			}
			if obj.LastModified != nil {
				info.Modified = *obj.LastModified
			}
			out = append(out, info)
		}
		if !aws.ToBool(resp.IsTruncated) {
			break
		}
		token = resp.NextContinuationToken
	}
	return out, nil
}

func (g *Gateway) Get(ctx context.Context, location string) ([]byte, error) {
	resp, err := g.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(location),
	})
	if err != nil {
		return nil, wrapStorageError("get object", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.WrapError(domain.ErrTransientStorage, "read object body", err)
	}
	return data, nil
}

func (g *Gateway) Put(ctx context.Context, location string, data []byte, contentType string) error {
	in := &s3.PutObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(location),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := g.client.PutObject(ctx, in); err != nil {
		return wrapStorageError("put object", err)
	}
	return nil
}

// Move is copy-then-delete. A missing source with the destination present is
// a crash-recovery replay of a move that already happened.
func (g *Gateway) Move(ctx context.Context, location, destination string) error {
	_, err := g.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(g.bucket),
		CopySource: aws.String(url.PathEscape(g.bucket + "/" + location)),
		Key:        aws.String(destination),
	})
	if err != nil {
		if isNotFound(err) {
			if _, headErr := g.client.HeadObject(ctx, &s3.HeadObjectInput{
				Bucket: aws.String(g.bucket),
				Key:    aws.String(destination),
			}); headErr == nil {
				return nil
			}
		}
		return wrapStorageError("copy object", err)
	}

	if _, err := g.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(location),
	}); err != nil {
		return wrapStorageError("delete source object", err)
	}
	return nil
}

// Tag merges one tag into the object's tag set. S3 replaces the whole set on
// write, so the existing tags are fetched first.
func (g *Gateway) Tag(ctx context.Context, location, key, value string) error {
	existing, err := g.client.GetObjectTagging(ctx, &s3.GetObjectTaggingInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(location),
	})
	if err != nil {
		return wrapStorageError("get object tags", err)
	}

	tags := make([]types.Tag, 0, len(existing.TagSet)+1)
	for _, tag := range existing.TagSet {
		if aws.ToString(tag.Key) == key {
			continue
		}
		tags = append(tags, tag)
	}
	tags = append(tags, types.Tag{Key: aws.String(key), Value: aws.String(value)})

	if _, err := g.client.PutObjectTagging(ctx, &s3.PutObjectTaggingInput{
		Bucket:  aws.String(g.bucket),
		Key:     aws.String(location),
		Tagging: &types.Tagging{TagSet: tags},
	}); err != nil {
		return wrapStorageError("put object tags", err)
	}
	return nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return aws.String(s)
}

// wrapStorageError maps SDK failures onto the domain error kinds: missing
// objects and access denials never heal with a retry, everything else
// (throttling, 5xx, network) might.
func wrapStorageError(op string, err error) error {
	if isNotFound(err) || isAccessDenied(err) {
		return domain.WrapError(domain.ErrPermanentStorage, op, err)
	}
	return domain.WrapError(domain.ErrTransientStorage, op, err)
}

func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NoSuchKey" || code == "NotFound" || code == "404"
	}
	return false
}

func isAccessDenied(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "AccessDenied" || code == "InvalidAccessKeyId" || code == "SignatureDoesNotMatch"
	}
	return false
}
