// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package gateway provides thin typed wrappers around the AWS IAM, S3 and
// DynamoDB APIs used by the broker.
//
// The wrappers exhaust the paginated list operations and implement the
// cascading deletes required by the AWS APIs, e.g. detaching all policies of a
// role before deleting it, or deleting all object versions of a bucket before
// deleting the bucket itself.
package gateway

import (
	"errors"
)

// ErrNotFound is an error, which is returned when the requested resource does
// not exist.
var ErrNotFound = errors.New("resource not found")

// ErrAlreadyExists is an error, which is returned when creating a resource,
// which already exists.
var ErrAlreadyExists = errors.New("resource already exists")

// AWS API error codes handled by the gateways.
const (
	codeNoSuchEntity            = "NoSuchEntity"
	codeEntityAlreadyExists     = "EntityAlreadyExists"
	codeNoSuchBucket            = "NoSuchBucket"
	codeNoSuchTagSet            = "NoSuchTagSet"
	codeBucketAlreadyExists     = "BucketAlreadyExists"
	codeBucketAlreadyOwnedByYou = "BucketAlreadyOwnedByYou"
	codeResourceNotFound        = "ResourceNotFoundException"
)

// listRolesPageSize is the maximum number of roles fetched per ListRoles call.
const listRolesPageSize int32 = 1000

// maxDeleteObjects is the maximum number of objects accepted by a single
// DeleteObjects call.
const maxDeleteObjects = 1000
