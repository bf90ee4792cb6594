// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package tableprefix implements the broker for DynamoDB table name prefixes.
// An instance grants access to all tables whose names start with the prefix
// of the instance. The prefix is recorded on the role named at provisioning
// time.
package tableprefix

import (
	"context"

	"github.com/gardener/aws-service-broker/pkg/aws/gateway"
	"github.com/gardener/aws-service-broker/pkg/aws/policy"
	"github.com/gardener/aws-service-broker/pkg/broker"
	"github.com/gardener/aws-service-broker/pkg/core/tags"
	"github.com/gardener/aws-service-broker/pkg/utils/slog"
)

// DynamoDB is the subset of the DynamoDB gateway used by the [Broker].
type DynamoDB interface {
	DeleteTablesWithPrefix(ctx context.Context, prefix string) ([]string, error)
}

var _ DynamoDB = (*gateway.DynamoDB)(nil)

// Options specifies the settings of the [Broker].
type Options struct {
	// TablePrefix is the prefix of the table name prefixes.
	TablePrefix string

	// Region is the region reported in the credentials.
	Region string

	// DeleteTables specifies whether the tables of an instance are deleted
	// on deprovisioning.
	DeleteTables bool
}

type provisionParameters struct {
	RoleName string `json:"role_name"`
}

// Broker is the [broker.Broker] for DynamoDB table name prefixes.
type Broker struct {
	roles    *broker.Roles
	dynamodb DynamoDB
	opts     Options
}

var _ broker.Broker = (*Broker)(nil)

// New creates a new [Broker].
func New(roles *broker.Roles, dynamodb DynamoDB, opts Options) *Broker {
	return &Broker{roles: roles, dynamodb: dynamodb, opts: opts}
}

// Prefix returns the table name prefix of the given instance.
func Prefix(tablePrefix, instanceID string) string {
	return tablePrefix + tags.StripHyphens(instanceID) + "-"
}

// Provision records the table name prefix of the instance on the given role.
func (b *Broker) Provision(ctx context.Context, req broker.ProvisionRequest) (*broker.ProvisionResponse, error) {
	var params provisionParameters
	if err := broker.DecodeParameters(req.Parameters, &params); err != nil {
		return nil, err
	}
	if params.RoleName == "" {
		return nil, broker.Errorf(broker.ErrValidation, "'role_name' parameter is required")
	}

	role, err := b.roles.Resolver().FindByName(ctx, params.RoleName)
	if err != nil {
		return nil, err
	}
	if role == nil {
		return nil, broker.Errorf(broker.ErrValidation, "The given role (role_name=%s) is not found", params.RoleName)
	}

	prefix := Prefix(b.opts.TablePrefix, req.InstanceID)
	if err := b.roles.Tag(ctx, role.Name, broker.KindDynamoDB, req.InstanceID, prefix); err != nil {
		return nil, err
	}

	slog.GetLogger(ctx).Info("provisioned table prefix", "role_name", role.Name, "prefix", prefix)

	return &broker.ProvisionResponse{}, nil
}

// Update verifies that the prefix of the instance is still recorded.
func (b *Broker) Update(ctx context.Context, req broker.UpdateRequest) (*broker.UpdateResponse, error) {
	role, prefix, err := b.roles.FindTagged(ctx, broker.KindDynamoDB, req.InstanceID)
	if err != nil {
		return nil, err
	}
	if role == nil || prefix == "" {
		return nil, b.missingTag(req.InstanceID)
	}

	return &broker.UpdateResponse{}, nil
}

// Deprovision deletes the tables of the instance, if configured, and removes
// the role tag.
func (b *Broker) Deprovision(ctx context.Context, req broker.DeprovisionRequest) error {
	logger := slog.GetLogger(ctx)
	role, prefix, err := b.roles.FindTagged(ctx, broker.KindDynamoDB, req.InstanceID)
	if err != nil {
		return err
	}
	if role == nil {
		logger.Info("table prefix already deprovisioned")
		return nil
	}

	if b.opts.DeleteTables && prefix != "" {
		deleted, err := b.dynamodb.DeleteTablesWithPrefix(ctx, prefix)
		if err != nil {
			return err
		}
		logger.Info("deleted tables", "prefix", prefix, "count", len(deleted))
	}

	return b.roles.Untag(ctx, role.Name, broker.KindDynamoDB, req.InstanceID)
}

// Bind attaches the policy granting access to the tables of the instance to
// the role.
func (b *Broker) Bind(ctx context.Context, req broker.BindRequest) (*broker.BindResponse, error) {
	role, prefix, err := b.roles.FindTagged(ctx, broker.KindDynamoDB, req.InstanceID)
	if err != nil {
		return nil, err
	}
	// An empty prefix would grant access to every table.
	if role == nil || prefix == "" {
		return nil, b.missingTag(req.InstanceID)
	}

	policyName := tags.PolicyName(broker.KindDynamoDB, req.InstanceID, req.BindingID)
	if err := b.roles.AttachPolicy(ctx, role.Name, policyName, policy.TablePrefixAccess(prefix)); err != nil {
		return nil, err
	}

	resp := &broker.BindResponse{
		Credentials: broker.Credentials{
			"role_name": role.Name,
			"role_arn":  role.ARN,
			"prefix":    prefix,
			"region":    b.opts.Region,
		},
	}

	return resp, nil
}

// Unbind detaches the policy of the binding from the role.
func (b *Broker) Unbind(ctx context.Context, req broker.UnbindRequest) error {
	role, prefix, err := b.roles.FindTagged(ctx, broker.KindDynamoDB, req.InstanceID)
	if err != nil {
		return err
	}
	if role == nil || prefix == "" {
		slog.GetLogger(ctx).Info("no role found for binding")
		return nil
	}

	return b.roles.DetachPolicy(ctx, role.Name, tags.PolicyName(broker.KindDynamoDB, req.InstanceID, req.BindingID))
}

func (b *Broker) missingTag(instanceID string) error {
	return broker.Errorf(broker.ErrGone, "Role tag (key: %s) is missing", tags.RoleTagKey(broker.KindDynamoDB, instanceID))
}
