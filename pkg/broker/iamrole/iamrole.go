// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package iamrole implements the broker for IAM roles, which may be assumed
// by the workloads of an org and space via web identity federation.
package iamrole

import (
	"context"
	"errors"
	"strings"

	"github.com/gardener/aws-service-broker/pkg/aws/gateway"
	"github.com/gardener/aws-service-broker/pkg/aws/policy"
	"github.com/gardener/aws-service-broker/pkg/broker"
	"github.com/gardener/aws-service-broker/pkg/core/config"
	"github.com/gardener/aws-service-broker/pkg/core/tags"
	"github.com/gardener/aws-service-broker/pkg/utils/slog"
)

// RoleNameDelimiter separates the components of a role name.
const RoleNameDelimiter = "_"

// RoleName returns the name of the role created for the given instance.
func RoleName(prefix string, inst broker.Instance) string {
	return strings.Join([]string{prefix, inst.OrgName, inst.SpaceName, inst.Name}, RoleNameDelimiter)
}

// Broker is the [broker.Broker] for IAM roles.
type Broker struct {
	roles *broker.Roles
	conf  config.IAMConfig
}

var _ broker.Broker = (*Broker)(nil)

// New creates a new [Broker].
func New(roles *broker.Roles, conf config.IAMConfig) *Broker {
	return &Broker{roles: roles, conf: conf}
}

// Provision creates a role for the org and space of the instance. Only one
// role per org and space is allowed.
func (b *Broker) Provision(ctx context.Context, req broker.ProvisionRequest) (*broker.ProvisionResponse, error) {
	inst := req.Instance()

	existing, err := b.roles.Resolver().FindByOrgAndSpace(ctx, inst.OrgName, inst.SpaceName)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, broker.Errorf(
			broker.ErrConflict,
			"The IAM role for the given org and space already exists. You can only create one IAM role per org and space.",
		)
	}

	trust, err := policy.WebIdentityTrust(b.conf.OIDCProviderARN, inst.OrgGUID, inst.SpaceGUID)
	if err != nil {
		return nil, err
	}

	name := RoleName(b.conf.RoleNamePrefix, inst)
	_, err = b.roles.IAM().CreateRole(ctx, gateway.CreateRoleInput{
		Name:             name,
		Path:             b.conf.RolePath,
		AssumeRolePolicy: trust.String(),
		Tags: inst.TagsWith(map[string]string{
			tags.RoleTagKey(broker.KindIAMRole, inst.ID): name,
		}),
	})
	switch {
	case errors.Is(err, gateway.ErrAlreadyExists):
		return nil, broker.Errorf(broker.ErrConflict, "Role with name %s already exists.", name)
	case err != nil:
		return nil, err
	}

	slog.GetLogger(ctx).Info("provisioned role", "role_name", name)

	return &broker.ProvisionResponse{}, nil
}

// Update verifies that the role of the instance still exists.
func (b *Broker) Update(ctx context.Context, req broker.UpdateRequest) (*broker.UpdateResponse, error) {
	role, err := b.roles.Resolver().FindByInstanceID(ctx, req.InstanceID)
	if err != nil {
		return nil, err
	}
	if role == nil {
		return nil, broker.Errorf(broker.ErrGone, "The instance has gone.")
	}

	return &broker.UpdateResponse{}, nil
}

// Deprovision deletes the role of the instance along with all of its
// policies.
func (b *Broker) Deprovision(ctx context.Context, req broker.DeprovisionRequest) error {
	role, err := b.roles.Resolver().FindByInstanceID(ctx, req.InstanceID)
	if err != nil {
		return err
	}
	if role == nil {
		slog.GetLogger(ctx).Info("role already deleted")
		return nil
	}

	err = b.roles.IAM().DeleteRole(ctx, role.Name)
	if err != nil && !errors.Is(err, gateway.ErrNotFound) {
		return err
	}

	return nil
}

// Bind returns the role of the instance as credentials.
func (b *Broker) Bind(ctx context.Context, req broker.BindRequest) (*broker.BindResponse, error) {
	role, err := b.roles.Resolver().FindByInstanceID(ctx, req.InstanceID)
	if err != nil {
		return nil, err
	}
	if role == nil {
		return nil, broker.Errorf(broker.ErrGone, "The instance has gone.")
	}

	resp := &broker.BindResponse{
		Credentials: broker.Credentials{
			"role_name": role.Name,
			"role_arn":  role.ARN,
		},
	}

	return resp, nil
}

// Unbind is a no-op, since bindings do not modify the role.
func (b *Broker) Unbind(_ context.Context, _ broker.UnbindRequest) error {
	return nil
}
