// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package broker provides the service broker protocol shared by the resource
// kinds, the errors reported to the platform and the [Dispatcher], which routes
// requests to the broker of a kind.
//
// Brokers keep no state of their own. The relationship between a service
// instance, its role and its resources is recorded in the tags and the names
// of the AWS resources. Operations are not atomic: a failure in the middle of
// an operation leaves the resources created so far in place.
package broker

import (
	"context"
)

// Kinds of resources managed by the brokers.
const (
	KindIAMRole  = "iam-role"
	KindS3       = "s3"
	KindDynamoDB = "dynamodb"
)

// Kinds returns the supported kinds of resources.
func Kinds() []string {
	return []string{KindIAMRole, KindS3, KindDynamoDB}
}

// Operation names used in logs and metrics.
const (
	OperationProvision   = "provision"
	OperationUpdate      = "update"
	OperationDeprovision = "deprovision"
	OperationBind        = "bind"
	OperationUnbind      = "unbind"
)

// Broker manages the service instances and bindings of a single kind of
// resource.
//
// Unbind and Deprovision are idempotent and succeed when the state of the
// instance is missing. Errors meant for the platform are of type [*Error].
type Broker interface {
	// Provision creates the resource of a service instance.
	Provision(ctx context.Context, req ProvisionRequest) (*ProvisionResponse, error)

	// Update modifies the resource of a service instance.
	Update(ctx context.Context, req UpdateRequest) (*UpdateResponse, error)

	// Deprovision deletes the resource of a service instance.
	Deprovision(ctx context.Context, req DeprovisionRequest) error

	// Bind grants access to the resource of a service instance.
	Bind(ctx context.Context, req BindRequest) (*BindResponse, error)

	// Unbind revokes access to the resource of a service instance.
	Unbind(ctx context.Context, req UnbindRequest) error
}
