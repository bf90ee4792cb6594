// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	awsutils "github.com/gardener/aws-service-broker/pkg/aws/utils"
	"github.com/gardener/aws-service-broker/pkg/utils/ptr"
	"github.com/gardener/aws-service-broker/pkg/utils/slog"
)

// regionUSEast1 is the region, for which S3 rejects an explicit location
// constraint.
const regionUSEast1 = "us-east-1"

// S3API is the subset of the S3 API used by [S3].
type S3API interface {
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	DeleteBucket(ctx context.Context, params *s3.DeleteBucketInput, optFns ...func(*s3.Options)) (*s3.DeleteBucketOutput, error)
	ListBuckets(ctx context.Context, params *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
	GetBucketTagging(ctx context.Context, params *s3.GetBucketTaggingInput, optFns ...func(*s3.Options)) (*s3.GetBucketTaggingOutput, error)
	PutBucketTagging(ctx context.Context, params *s3.PutBucketTaggingInput, optFns ...func(*s3.Options)) (*s3.PutBucketTaggingOutput, error)
	PutBucketVersioning(ctx context.Context, params *s3.PutBucketVersioningInput, optFns ...func(*s3.Options)) (*s3.PutBucketVersioningOutput, error)
	ListObjectVersions(ctx context.Context, params *s3.ListObjectVersionsInput, optFns ...func(*s3.Options)) (*s3.ListObjectVersionsOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

var _ S3API = (*s3.Client)(nil)

// Bucket represents an S3 bucket.
type Bucket struct {
	// Name is the name of the bucket.
	Name string

	// Region is the region of the bucket.
	Region string
}

// S3 is the gateway to the S3 API.
type S3 struct {
	client S3API
}

// NewS3 creates a new [S3] gateway using the given API client.
func NewS3(client S3API) *S3 {
	return &S3{client: client}
}

// withRegion returns the client options, which target the given region. The
// region of the client is used, when region is empty.
func withRegion(region string) []func(*s3.Options) {
	if region == "" {
		return nil
	}

	return []func(*s3.Options){
		func(o *s3.Options) {
			o.Region = region
		},
	}
}

// CreateBucket creates a new bucket in the given region and sets the given
// tags on it. [ErrAlreadyExists] is returned, if the bucket name is taken.
func (g *S3) CreateBucket(ctx context.Context, name, region string, tags map[string]string) error {
	in := &s3.CreateBucketInput{
		Bucket: ptr.To(name),
	}
	if region != "" && region != regionUSEast1 {
		in.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(region),
		}
	}

	_, err := g.client.CreateBucket(ctx, in, withRegion(region)...)
	switch {
	case awsutils.HasErrorCode(err, codeBucketAlreadyExists, codeBucketAlreadyOwnedByYou):
		return fmt.Errorf("%w: bucket %s", ErrAlreadyExists, name)
	case err != nil:
		return fmt.Errorf("create bucket %s: %w", name, err)
	}

	slog.GetLogger(ctx).Info("created bucket", "bucket", name, "region", region)

	if len(tags) == 0 {
		return nil
	}

	return g.PutBucketTagging(ctx, name, region, tags)
}

// GetBucketTagging returns the tags of the bucket. A bucket without tags yields
// an empty map.
func (g *S3) GetBucketTagging(ctx context.Context, name, region string) (map[string]string, error) {
	out, err := g.client.GetBucketTagging(ctx, &s3.GetBucketTaggingInput{
		Bucket: ptr.To(name),
	}, withRegion(region)...)

	switch {
	case awsutils.HasErrorCode(err, codeNoSuchTagSet):
		return make(map[string]string), nil
	case awsutils.HasErrorCode(err, codeNoSuchBucket):
		return nil, fmt.Errorf("%w: bucket %s", ErrNotFound, name)
	case err != nil:
		return nil, fmt.Errorf("get tags of bucket %s: %w", name, err)
	}

	return awsutils.S3TagsToMap(out.TagSet), nil
}

// PutBucketTagging replaces the tag set of the bucket.
func (g *S3) PutBucketTagging(ctx context.Context, name, region string, tags map[string]string) error {
	_, err := g.client.PutBucketTagging(ctx, &s3.PutBucketTaggingInput{
		Bucket: ptr.To(name),
		Tagging: &types.Tagging{
			TagSet: awsutils.MapToS3Tags(tags),
		},
	}, withRegion(region)...)

	switch {
	case awsutils.HasErrorCode(err, codeNoSuchBucket):
		return fmt.Errorf("%w: bucket %s", ErrNotFound, name)
	case err != nil:
		return fmt.Errorf("put tags on bucket %s: %w", name, err)
	}

	return nil
}

// AddBucketTags adds the given tags to the tag set of the bucket.
func (g *S3) AddBucketTags(ctx context.Context, name, region string, tags map[string]string) error {
	current, err := g.GetBucketTagging(ctx, name, region)
	if err != nil {
		return err
	}

	maps.Copy(current, tags)
	if err := g.PutBucketTagging(ctx, name, region, current); err != nil {
		return err
	}

	slog.GetLogger(ctx).Info("added bucket tags", "bucket", name, "tags", tags)

	return nil
}

// RemoveBucketTags removes the tags with the given keys from the bucket.
func (g *S3) RemoveBucketTags(ctx context.Context, name, region string, keys ...string) error {
	current, err := g.GetBucketTagging(ctx, name, region)
	if err != nil {
		return err
	}

	for _, k := range keys {
		delete(current, k)
	}
	if err := g.PutBucketTagging(ctx, name, region, current); err != nil {
		return err
	}

	slog.GetLogger(ctx).Info("removed bucket tags", "bucket", name, "keys", keys)

	return nil
}

// ListBuckets returns all buckets of the account.
func (g *S3) ListBuckets(ctx context.Context) ([]Bucket, error) {
	items := make([]Bucket, 0)
	var token *string
	for {
		out, err := g.client.ListBuckets(ctx, &s3.ListBucketsInput{
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("list buckets: %w", err)
		}

		for _, b := range out.Buckets {
			items = append(items, Bucket{
				Name:   ptr.StringFromPointer(b.Name),
				Region: ptr.StringFromPointer(b.BucketRegion),
			})
		}

		if ptr.StringFromPointer(out.ContinuationToken) == "" {
			return items, nil
		}
		token = out.ContinuationToken
	}
}

// FindBucketByTag returns the first bucket carrying the given tag, or nil if no
// bucket carries it.
func (g *S3) FindBucketByTag(ctx context.Context, key, value string) (*Bucket, error) {
	buckets, err := g.ListBuckets(ctx)
	if err != nil {
		return nil, err
	}

	for _, b := range buckets {
		tags, err := g.GetBucketTagging(ctx, b.Name, b.Region)
		switch {
		case errors.Is(err, ErrNotFound):
			// Deleted between listing and fetching the tags
			continue
		case err != nil:
			return nil, err
		}

		if v, ok := tags[key]; ok && v == value {
			return &b, nil
		}
	}

	return nil, nil
}

// SetVersioning enables or suspends the versioning of the bucket.
func (g *S3) SetVersioning(ctx context.Context, name, region string, enabled bool) error {
	status := types.BucketVersioningStatusSuspended
	if enabled {
		status = types.BucketVersioningStatusEnabled
	}

	_, err := g.client.PutBucketVersioning(ctx, &s3.PutBucketVersioningInput{
		Bucket: ptr.To(name),
		VersioningConfiguration: &types.VersioningConfiguration{
			Status: status,
		},
	}, withRegion(region)...)

	switch {
	case awsutils.HasErrorCode(err, codeNoSuchBucket):
		return fmt.Errorf("%w: bucket %s", ErrNotFound, name)
	case err != nil:
		return fmt.Errorf("set versioning of bucket %s: %w", name, err)
	}

	slog.GetLogger(ctx).Info("configured bucket versioning", "bucket", name, "status", status)

	return nil
}

// DeleteBucket deletes all object versions and delete markers of the bucket,
// and then deletes the bucket. [ErrNotFound] is returned, if the bucket does
// not exist.
func (g *S3) DeleteBucket(ctx context.Context, name, region string) error {
	logger := slog.GetLogger(ctx)
	opts := withRegion(region)

	var keyMarker, versionMarker *string
	for {
		out, err := g.client.ListObjectVersions(ctx, &s3.ListObjectVersionsInput{
			Bucket:          ptr.To(name),
			KeyMarker:       keyMarker,
			VersionIdMarker: versionMarker,
		}, opts...)

		switch {
		case awsutils.HasErrorCode(err, codeNoSuchBucket):
			return fmt.Errorf("%w: bucket %s", ErrNotFound, name)
		case err != nil:
			return fmt.Errorf("list object versions of bucket %s: %w", name, err)
		}

		objects := make([]types.ObjectIdentifier, 0, len(out.Versions)+len(out.DeleteMarkers))
		for _, v := range out.Versions {
			objects = append(objects, types.ObjectIdentifier{Key: v.Key, VersionId: v.VersionId})
		}
		for _, m := range out.DeleteMarkers {
			objects = append(objects, types.ObjectIdentifier{Key: m.Key, VersionId: m.VersionId})
		}

		if err := g.deleteObjects(ctx, name, objects, opts); err != nil {
			return err
		}
		if len(objects) > 0 {
			logger.Info("deleted object versions", "bucket", name, "count", len(objects))
		}

		if !ptr.Value(out.IsTruncated, false) {
			break
		}
		keyMarker = out.NextKeyMarker
		versionMarker = out.NextVersionIdMarker
	}

	_, err := g.client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: ptr.To(name)}, opts...)
	switch {
	case awsutils.HasErrorCode(err, codeNoSuchBucket):
		return fmt.Errorf("%w: bucket %s", ErrNotFound, name)
	case err != nil:
		return fmt.Errorf("delete bucket %s: %w", name, err)
	}

	logger.Info("deleted bucket", "bucket", name, "region", region)

	return nil
}

// deleteObjects deletes the given object versions in batches.
func (g *S3) deleteObjects(ctx context.Context, bucket string, objects []types.ObjectIdentifier, opts []func(*s3.Options)) error {
	for start := 0; start < len(objects); start += maxDeleteObjects {
		end := min(start+maxDeleteObjects, len(objects))
		out, err := g.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: ptr.To(bucket),
			Delete: &types.Delete{
				Objects: objects[start:end],
				Quiet:   ptr.To(true),
			},
		}, opts...)
		if err != nil {
			return fmt.Errorf("delete objects of bucket %s: %w", bucket, err)
		}

		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return fmt.Errorf(
				"delete objects of bucket %s: %d failed, first %s: %s",
				bucket,
				len(out.Errors),
				ptr.StringFromPointer(first.Key),
				ptr.StringFromPointer(first.Message),
			)
		}
	}

	return nil
}
