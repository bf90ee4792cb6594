// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package fakeaws

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	awsutils "github.com/gardener/aws-service-broker/pkg/aws/utils"
	"github.com/gardener/aws-service-broker/pkg/utils/ptr"
)

// Bucket is a snapshot of a fake S3 bucket.
type Bucket struct {
	Name       string
	Region     string
	Tags       map[string]string
	Versioning string
	Objects    int
}

type objectVersion struct {
	key          string
	versionID    string
	deleteMarker bool
}

type bucket struct {
	name       string
	region     string
	tags       map[string]string
	versioning types.BucketVersioningStatus
	objects    []objectVersion
}

// S3 is an in-memory implementation of the S3 API.
type S3 struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	order    []string
	failures map[string]error
	version  int

	// PageSize is the maximum number of items returned per page.
	PageSize int

	// Calls counts the API calls per operation.
	Calls map[string]int
}

// NewS3 returns a new empty [S3] fake.
func NewS3() *S3 {
	return &S3{
		buckets:  make(map[string]*bucket),
		failures: make(map[string]error),
		PageSize: DefaultPageSize,
		Calls:    make(map[string]int),
	}
}

// FailOn makes the given operation fail with err.
func (f *S3) FailOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = err
}

// CallCount returns the number of calls of the given operation.
func (f *S3) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.Calls[op]
}

// AddBucket seeds a bucket with the given name, region and tags. A nil tags
// map results in a bucket without a tag set.
func (f *S3) AddBucket(name, region string, tags map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addBucket(name, region)
	f.buckets[name].tags = maps.Clone(tags)
}

// PutObjectVersion adds a new version of the given object to the bucket.
func (f *S3) PutObjectVersion(bucketName, key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putVersion(bucketName, key, false)
}

// PutDeleteMarker adds a delete marker for the given object to the bucket.
func (f *S3) PutDeleteMarker(bucketName, key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putVersion(bucketName, key, true)
}

// Bucket returns a snapshot of the bucket with the given name.
func (f *S3) Bucket(name string) (Bucket, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, ok := f.buckets[name]
	if !ok {
		return Bucket{}, false
	}

	return Bucket{
		Name:       b.name,
		Region:     b.region,
		Tags:       maps.Clone(b.tags),
		Versioning: string(b.versioning),
		Objects:    len(b.objects),
	}, true
}

// BucketNames returns the names of all buckets in creation order.
func (f *S3) BucketNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return slices.Clone(f.order)
}

func (f *S3) addBucket(name, region string) {
	f.buckets[name] = &bucket{name: name, region: region}
	f.order = append(f.order, name)
}

func (f *S3) putVersion(bucketName, key string, deleteMarker bool) {
	b, ok := f.buckets[bucketName]
	if !ok {
		return
	}
	f.version++
	b.objects = append(b.objects, objectVersion{
		key:          key,
		versionID:    fmt.Sprintf("v%06d", f.version),
		deleteMarker: deleteMarker,
	})
	slices.SortFunc(b.objects, compareVersions)
}

func compareVersions(a, b objectVersion) int {
	return cmp.Or(cmp.Compare(a.key, b.key), cmp.Compare(a.versionID, b.versionID))
}

func (f *S3) begin(op string) error {
	f.Calls[op]++

	return f.failures[op]
}

func (f *S3) bucket(name *string) (*bucket, error) {
	b, ok := f.buckets[ptr.StringFromPointer(name)]
	if !ok {
		return nil, &types.NoSuchBucket{Message: ptr.To("The specified bucket does not exist")}
	}

	return b, nil
}

// CreateBucket implements the S3 API.
func (f *S3) CreateBucket(_ context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("CreateBucket"); err != nil {
		return nil, err
	}

	name := ptr.StringFromPointer(in.Bucket)
	if _, exists := f.buckets[name]; exists {
		return nil, &types.BucketAlreadyOwnedByYou{Message: ptr.To("Your previous request to create the named bucket succeeded and you already own it.")}
	}

	region := "us-east-1"
	if in.CreateBucketConfiguration != nil && in.CreateBucketConfiguration.LocationConstraint != "" {
		region = string(in.CreateBucketConfiguration.LocationConstraint)
	}
	f.addBucket(name, region)

	return &s3.CreateBucketOutput{Location: ptr.To("/" + name)}, nil
}

// DeleteBucket implements the S3 API.
func (f *S3) DeleteBucket(_ context.Context, in *s3.DeleteBucketInput, _ ...func(*s3.Options)) (*s3.DeleteBucketOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("DeleteBucket"); err != nil {
		return nil, err
	}

	b, err := f.bucket(in.Bucket)
	if err != nil {
		return nil, err
	}
	if len(b.objects) > 0 {
		return nil, &smithy.GenericAPIError{
			Code:    "BucketNotEmpty",
			Message: "The bucket you tried to delete is not empty",
			Fault:   smithy.FaultClient,
		}
	}
	delete(f.buckets, b.name)
	f.order = slices.DeleteFunc(f.order, func(n string) bool { return n == b.name })

	return &s3.DeleteBucketOutput{}, nil
}

// ListBuckets implements the S3 API.
func (f *S3) ListBuckets(_ context.Context, in *s3.ListBucketsInput, _ ...func(*s3.Options)) (*s3.ListBucketsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("ListBuckets"); err != nil {
		return nil, err
	}

	start, end, token, _ := page(len(f.order), in.ContinuationToken, pageSize(in.MaxBuckets, f.PageSize))
	items := make([]types.Bucket, 0, end-start)
	for _, name := range f.order[start:end] {
		items = append(items, types.Bucket{
			Name:         ptr.To(name),
			BucketRegion: ptr.To(f.buckets[name].region),
		})
	}

	return &s3.ListBucketsOutput{Buckets: items, ContinuationToken: token}, nil
}

// GetBucketTagging implements the S3 API.
func (f *S3) GetBucketTagging(_ context.Context, in *s3.GetBucketTaggingInput, _ ...func(*s3.Options)) (*s3.GetBucketTaggingOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("GetBucketTagging"); err != nil {
		return nil, err
	}

	b, err := f.bucket(in.Bucket)
	if err != nil {
		return nil, err
	}
	if len(b.tags) == 0 {
		return nil, &smithy.GenericAPIError{
			Code:    "NoSuchTagSet",
			Message: "The TagSet does not exist",
			Fault:   smithy.FaultClient,
		}
	}

	return &s3.GetBucketTaggingOutput{TagSet: awsutils.MapToS3Tags(b.tags)}, nil
}

// PutBucketTagging implements the S3 API.
func (f *S3) PutBucketTagging(_ context.Context, in *s3.PutBucketTaggingInput, _ ...func(*s3.Options)) (*s3.PutBucketTaggingOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("PutBucketTagging"); err != nil {
		return nil, err
	}

	b, err := f.bucket(in.Bucket)
	if err != nil {
		return nil, err
	}
	b.tags = make(map[string]string)
	if in.Tagging != nil {
		b.tags = awsutils.S3TagsToMap(in.Tagging.TagSet)
	}

	return &s3.PutBucketTaggingOutput{}, nil
}

// PutBucketVersioning implements the S3 API.
func (f *S3) PutBucketVersioning(_ context.Context, in *s3.PutBucketVersioningInput, _ ...func(*s3.Options)) (*s3.PutBucketVersioningOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("PutBucketVersioning"); err != nil {
		return nil, err
	}

	b, err := f.bucket(in.Bucket)
	if err != nil {
		return nil, err
	}
	if in.VersioningConfiguration != nil {
		b.versioning = in.VersioningConfiguration.Status
	}

	return &s3.PutBucketVersioningOutput{}, nil
}

// ListObjectVersions implements the S3 API.
func (f *S3) ListObjectVersions(_ context.Context, in *s3.ListObjectVersionsInput, _ ...func(*s3.Options)) (*s3.ListObjectVersionsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("ListObjectVersions"); err != nil {
		return nil, err
	}

	b, err := f.bucket(in.Bucket)
	if err != nil {
		return nil, err
	}

	// Resume after the marker, which may refer to an already deleted version
	start := 0
	if in.KeyMarker != nil {
		marker := objectVersion{
			key:       ptr.StringFromPointer(in.KeyMarker),
			versionID: ptr.StringFromPointer(in.VersionIdMarker),
		}
		start = len(b.objects)
		for i, o := range b.objects {
			if compareVersions(o, marker) > 0 {
				start = i
				break
			}
		}
	}

	end := min(start+pageSize(in.MaxKeys, f.PageSize), len(b.objects))
	out := &s3.ListObjectVersionsOutput{
		Name:        in.Bucket,
		IsTruncated: ptr.To(end < len(b.objects)),
	}
	for _, o := range b.objects[start:end] {
		if o.deleteMarker {
			out.DeleteMarkers = append(out.DeleteMarkers, types.DeleteMarkerEntry{
				Key:       ptr.To(o.key),
				VersionId: ptr.To(o.versionID),
			})
			continue
		}
		out.Versions = append(out.Versions, types.ObjectVersion{
			Key:       ptr.To(o.key),
			VersionId: ptr.To(o.versionID),
		})
	}
	if end < len(b.objects) && end > start {
		last := b.objects[end-1]
		out.NextKeyMarker = ptr.To(last.key)
		out.NextVersionIdMarker = ptr.To(last.versionID)
	}

	return out, nil
}

// DeleteObjects implements the S3 API.
func (f *S3) DeleteObjects(_ context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("DeleteObjects"); err != nil {
		return nil, err
	}

	b, err := f.bucket(in.Bucket)
	if err != nil {
		return nil, err
	}

	out := &s3.DeleteObjectsOutput{}
	if in.Delete == nil {
		return out, nil
	}
	for _, id := range in.Delete.Objects {
		target := objectVersion{
			key:       ptr.StringFromPointer(id.Key),
			versionID: ptr.StringFromPointer(id.VersionId),
		}
		b.objects = slices.DeleteFunc(b.objects, func(o objectVersion) bool {
			return compareVersions(o, target) == 0
		})
		out.Deleted = append(out.Deleted, types.DeletedObject{Key: id.Key, VersionId: id.VersionId})
	}

	return out, nil
}
