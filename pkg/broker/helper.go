// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"context"
	"errors"

	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"

	"github.com/gardener/aws-service-broker/pkg/aws/gateway"
	"github.com/gardener/aws-service-broker/pkg/aws/policy"
	"github.com/gardener/aws-service-broker/pkg/broker/roles"
	"github.com/gardener/aws-service-broker/pkg/core/tags"
	"github.com/gardener/aws-service-broker/pkg/utils/slog"
)

// IAM is the subset of the IAM gateway used by the brokers.
type IAM interface {
	CreateRole(ctx context.Context, in gateway.CreateRoleInput) (iamtypes.Role, error)
	DeleteRole(ctx context.Context, roleName string) error
	TagRole(ctx context.Context, roleName string, tags map[string]string) error
	UntagRole(ctx context.Context, roleName string, keys ...string) error
	PutRolePolicy(ctx context.Context, roleName, policyName, document string) error
	DeleteRolePolicy(ctx context.Context, roleName, policyName string) error
}

var _ IAM = (*gateway.IAM)(nil)

// Roles provides the role operations shared by the brokers.
type Roles struct {
	resolver *roles.Resolver
	iam      IAM
}

// NewRoles creates a new [Roles] helper.
func NewRoles(resolver *roles.Resolver, iam IAM) *Roles {
	return &Roles{resolver: resolver, iam: iam}
}

// Resolver returns the underlying [roles.Resolver].
func (r *Roles) Resolver() *roles.Resolver {
	return r.resolver
}

// IAM returns the underlying IAM gateway.
func (r *Roles) IAM() IAM {
	return r.iam
}

// FindTagged returns the role carrying the tag of the given service instance
// along with the value of the tag. A nil role is returned, if no role carries
// the tag.
func (r *Roles) FindTagged(ctx context.Context, kind, instanceID string) (*roles.Role, string, error) {
	return r.resolver.FindByTagKey(ctx, tags.RoleTagKey(kind, instanceID))
}

// Tag records the state of the given service instance on the role.
func (r *Roles) Tag(ctx context.Context, roleName, kind, instanceID, value string) error {
	return r.iam.TagRole(ctx, roleName, map[string]string{
		tags.RoleTagKey(kind, instanceID): value,
	})
}

// Untag removes the state of the given service instance from the role. A
// missing role is ignored.
func (r *Roles) Untag(ctx context.Context, roleName, kind, instanceID string) error {
	err := r.iam.UntagRole(ctx, roleName, tags.RoleTagKey(kind, instanceID))
	if errors.Is(err, gateway.ErrNotFound) {
		slog.GetLogger(ctx).Warn("role vanished before untagging", "role_name", roleName)
		return nil
	}

	return err
}

// AttachPolicy puts the inline policy with the given name on the role.
func (r *Roles) AttachPolicy(ctx context.Context, roleName, policyName string, doc policy.Document) error {
	return r.iam.PutRolePolicy(ctx, roleName, policyName, doc.String())
}

// DetachPolicy deletes the inline policy with the given name from the role. A
// missing role or policy is ignored.
func (r *Roles) DetachPolicy(ctx context.Context, roleName, policyName string) error {
	err := r.iam.DeleteRolePolicy(ctx, roleName, policyName)
	if errors.Is(err, gateway.ErrNotFound) {
		slog.GetLogger(ctx).Info("inline policy already detached", "role_name", roleName, "policy_name", policyName)
		return nil
	}

	return err
}
