// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package roles resolves the IAM roles managed by the broker.
//
// IAM offers no server-side filtering of roles by tag. The [Resolver] lists
// all roles under the configured path and fetches the tags of each role, until
// a role matches. Lookups are therefore O(roles × tags) in API calls.
//
// At most one role is expected to match a given predicate. When several roles
// match, the first one in listing order is returned.
package roles

import (
	"context"
	"errors"
	"slices"

	"github.com/aws/aws-sdk-go-v2/service/iam/types"

	"github.com/gardener/aws-service-broker/pkg/aws/gateway"
	"github.com/gardener/aws-service-broker/pkg/core/tags"
	"github.com/gardener/aws-service-broker/pkg/utils/ptr"
	"github.com/gardener/aws-service-broker/pkg/utils/slog"
)

// Predicate evaluates the tags of a role.
type Predicate func(tags map[string]string) bool

// Role is an IAM role along with its tags.
type Role struct {
	// Name is the name of the role.
	Name string

	// ARN is the ARN of the role.
	ARN string

	// Path is the path of the role.
	Path string

	// Tags are the tags of the role. Tags are not populated by
	// [Resolver.FindByName].
	Tags map[string]string
}

// IAM is the subset of the IAM gateway used by the [Resolver].
type IAM interface {
	ListRoles(ctx context.Context, pathPrefix string) ([]types.Role, error)
	ListRoleTags(ctx context.Context, roleName string) (map[string]string, error)
	ListRolePolicies(ctx context.Context, roleName string) ([]string, error)
}

var _ IAM = (*gateway.IAM)(nil)

// Resolver looks up roles under a path prefix.
type Resolver struct {
	iam  IAM
	path string
}

// NewResolver creates a new [Resolver], which looks up roles under the given
// path.
func NewResolver(iam IAM, path string) *Resolver {
	return &Resolver{iam: iam, path: path}
}

func newRole(r types.Role, tags map[string]string) *Role {
	return &Role{
		Name: ptr.StringFromPointer(r.RoleName),
		ARN:  ptr.StringFromPointer(r.Arn),
		Path: ptr.StringFromPointer(r.Path),
		Tags: tags,
	}
}

// List returns all roles under the path along with their tags.
func (r *Resolver) List(ctx context.Context) ([]*Role, error) {
	items, err := r.iam.ListRoles(ctx, r.path)
	if err != nil {
		return nil, err
	}

	result := make([]*Role, 0, len(items))
	for _, item := range items {
		roleTags, err := r.iam.ListRoleTags(ctx, ptr.StringFromPointer(item.RoleName))
		switch {
		case errors.Is(err, gateway.ErrNotFound):
			continue
		case err != nil:
			return nil, err
		}
		result = append(result, newRole(item, roleTags))
	}

	return result, nil
}

// FindByName returns the role with the given name, or nil if no role with this
// name exists under the path.
func (r *Resolver) FindByName(ctx context.Context, name string) (*Role, error) {
	items, err := r.iam.ListRoles(ctx, r.path)
	if err != nil {
		return nil, err
	}

	idx := slices.IndexFunc(items, func(item types.Role) bool {
		return ptr.StringFromPointer(item.RoleName) == name
	})
	if idx < 0 {
		return nil, nil
	}

	return newRole(items[idx], nil), nil
}

// FindByTags returns the first role whose tags satisfy the predicate, or nil
// if no role does.
func (r *Resolver) FindByTags(ctx context.Context, pred Predicate) (*Role, error) {
	items, err := r.iam.ListRoles(ctx, r.path)
	if err != nil {
		return nil, err
	}

	for _, item := range items {
		name := ptr.StringFromPointer(item.RoleName)
		roleTags, err := r.iam.ListRoleTags(ctx, name)
		switch {
		case errors.Is(err, gateway.ErrNotFound):
			// Deleted between listing and fetching the tags
			slog.GetLogger(ctx).Debug("skipping vanished role", "role_name", name)
			continue
		case err != nil:
			return nil, err
		}

		if pred(roleTags) {
			return newRole(item, roleTags), nil
		}
	}

	return nil, nil
}

// FindByTagKey returns the first role carrying the tag with the given key along
// with the value of the tag.
func (r *Resolver) FindByTagKey(ctx context.Context, key string) (*Role, string, error) {
	role, err := r.FindByTags(ctx, HasKey(key))
	if err != nil || role == nil {
		return nil, "", err
	}

	return role, role.Tags[key], nil
}

// FindByInstanceID returns the role created for the given service instance.
func (r *Resolver) FindByInstanceID(ctx context.Context, instanceID string) (*Role, error) {
	return r.FindByTags(ctx, HasValue(tags.KeyInstanceID, instanceID))
}

// FindByOrgAndSpace returns the role created for the given org and space.
func (r *Resolver) FindByOrgAndSpace(ctx context.Context, orgName, spaceName string) (*Role, error) {
	return r.FindByTags(ctx, All(
		HasValue(tags.KeyOrgName, orgName),
		HasValue(tags.KeySpaceName, spaceName),
	))
}

// FindByPolicyName returns the first role with an inline policy of the given
// name.
func (r *Resolver) FindByPolicyName(ctx context.Context, policyName string) (*Role, error) {
	items, err := r.iam.ListRoles(ctx, r.path)
	if err != nil {
		return nil, err
	}

	for _, item := range items {
		name := ptr.StringFromPointer(item.RoleName)
		policies, err := r.iam.ListRolePolicies(ctx, name)
		if err != nil {
			return nil, err
		}
		if slices.Contains(policies, policyName) {
			return newRole(item, nil), nil
		}
	}

	return nil, nil
}

// HasKey returns a [Predicate], which matches tags containing the given key.
func HasKey(key string) Predicate {
	return func(t map[string]string) bool {
		_, ok := t[key]
		return ok
	}
}

// HasValue returns a [Predicate], which matches tags containing the given key
// and value.
func HasValue(key, value string) Predicate {
	return func(t map[string]string) bool {
		v, ok := t[key]
		return ok && v == value
	}
}

// All returns a [Predicate], which matches when all of the given predicates
// match.
func All(preds ...Predicate) Predicate {
	return func(t map[string]string) bool {
		for _, p := range preds {
			if !p(t) {
				return false
			}
		}

		return true
	}
}
