// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package utils provides helpers for converting AWS resource tags and for
// classifying AWS API errors.
package utils

import (
	"errors"
	"maps"
	"slices"

	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/gardener/aws-service-broker/pkg/utils/ptr"
)

// IAMTagsToMap converts the given IAM tags into a map.
func IAMTagsToMap(tags []iamtypes.Tag) map[string]string {
	result := make(map[string]string, len(tags))
	for _, t := range tags {
		if t.Key == nil {
			continue
		}
		result[*t.Key] = ptr.StringFromPointer(t.Value)
	}

	return result
}

// MapToIAMTags converts the given map into IAM tags, ordered by key.
func MapToIAMTags(m map[string]string) []iamtypes.Tag {
	result := make([]iamtypes.Tag, 0, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		result = append(result, iamtypes.Tag{
			Key:   ptr.To(k),
			Value: ptr.To(m[k]),
		})
	}

	return result
}

// S3TagsToMap converts the given S3 tags into a map.
func S3TagsToMap(tags []s3types.Tag) map[string]string {
	result := make(map[string]string, len(tags))
	for _, t := range tags {
		if t.Key == nil {
			continue
		}
		result[*t.Key] = ptr.StringFromPointer(t.Value)
	}

	return result
}

// MapToS3Tags converts the given map into S3 tags, ordered by key.
func MapToS3Tags(m map[string]string) []s3types.Tag {
	result := make([]s3types.Tag, 0, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		result = append(result, s3types.Tag{
			Key:   ptr.To(k),
			Value: ptr.To(m[k]),
		})
	}

	return result
}

// ErrorCode returns the code of the AWS API error wrapped in err, or an empty
// string if err does not wrap an API error.
func ErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}

	return ""
}

// HasErrorCode returns true if err wraps an AWS API error with any of the
// given codes.
func HasErrorCode(err error, codes ...string) bool {
	code := ErrorCode(err)
	if code == "" {
		return false
	}

	return slices.Contains(codes, code)
}

// IsClientFault returns true if err wraps an AWS API error caused by the
// caller.
func IsClientFault(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorFault() == smithy.FaultClient
	}

	return false
}
