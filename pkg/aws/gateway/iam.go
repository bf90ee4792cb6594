// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/iam/types"

	awsutils "github.com/gardener/aws-service-broker/pkg/aws/utils"
	"github.com/gardener/aws-service-broker/pkg/utils/ptr"
	"github.com/gardener/aws-service-broker/pkg/utils/slog"
)

// IAMAPI is the subset of the IAM API used by [IAM].
type IAMAPI interface {
	CreateRole(ctx context.Context, params *iam.CreateRoleInput, optFns ...func(*iam.Options)) (*iam.CreateRoleOutput, error)
	DeleteRole(ctx context.Context, params *iam.DeleteRoleInput, optFns ...func(*iam.Options)) (*iam.DeleteRoleOutput, error)
	ListRoles(ctx context.Context, params *iam.ListRolesInput, optFns ...func(*iam.Options)) (*iam.ListRolesOutput, error)
	ListRoleTags(ctx context.Context, params *iam.ListRoleTagsInput, optFns ...func(*iam.Options)) (*iam.ListRoleTagsOutput, error)
	TagRole(ctx context.Context, params *iam.TagRoleInput, optFns ...func(*iam.Options)) (*iam.TagRoleOutput, error)
	UntagRole(ctx context.Context, params *iam.UntagRoleInput, optFns ...func(*iam.Options)) (*iam.UntagRoleOutput, error)
	PutRolePolicy(ctx context.Context, params *iam.PutRolePolicyInput, optFns ...func(*iam.Options)) (*iam.PutRolePolicyOutput, error)
	DeleteRolePolicy(ctx context.Context, params *iam.DeleteRolePolicyInput, optFns ...func(*iam.Options)) (*iam.DeleteRolePolicyOutput, error)
	ListRolePolicies(ctx context.Context, params *iam.ListRolePoliciesInput, optFns ...func(*iam.Options)) (*iam.ListRolePoliciesOutput, error)
	ListAttachedRolePolicies(ctx context.Context, params *iam.ListAttachedRolePoliciesInput, optFns ...func(*iam.Options)) (*iam.ListAttachedRolePoliciesOutput, error)
	DetachRolePolicy(ctx context.Context, params *iam.DetachRolePolicyInput, optFns ...func(*iam.Options)) (*iam.DetachRolePolicyOutput, error)
}

var _ IAMAPI = (*iam.Client)(nil)

// IAM is the gateway to the IAM API.
type IAM struct {
	client IAMAPI
}

// NewIAM creates a new [IAM] gateway using the given API client.
func NewIAM(client IAMAPI) *IAM {
	return &IAM{client: client}
}

// CreateRoleInput specifies the settings of a new role.
type CreateRoleInput struct {
	// Name is the name of the role.
	Name string

	// Path is the path of the role.
	Path string

	// AssumeRolePolicy is the trust policy document of the role.
	AssumeRolePolicy string

	// Tags are the tags of the role.
	Tags map[string]string
}

// CreateRole creates a new role. [ErrAlreadyExists] is returned, if a role with
// the same name exists.
func (g *IAM) CreateRole(ctx context.Context, in CreateRoleInput) (types.Role, error) {
	out, err := g.client.CreateRole(ctx, &iam.CreateRoleInput{
		RoleName:                 ptr.To(in.Name),
		Path:                     ptr.To(in.Path),
		AssumeRolePolicyDocument: ptr.To(in.AssumeRolePolicy),
		Tags:                     awsutils.MapToIAMTags(in.Tags),
	})

	switch {
	case awsutils.HasErrorCode(err, codeEntityAlreadyExists):
		return types.Role{}, fmt.Errorf("%w: role %s", ErrAlreadyExists, in.Name)
	case err != nil:
		return types.Role{}, fmt.Errorf("create role %s: %w", in.Name, err)
	}

	slog.GetLogger(ctx).Info("created role", "role_name", in.Name, "path", in.Path)

	return ptr.Value(out.Role, types.Role{}), nil
}

// ListRoles returns all roles under the given path prefix.
func (g *IAM) ListRoles(ctx context.Context, pathPrefix string) ([]types.Role, error) {
	items := make([]types.Role, 0)
	paginator := iam.NewListRolesPaginator(
		g.client,
		&iam.ListRolesInput{PathPrefix: ptr.To(pathPrefix)},
		func(o *iam.ListRolesPaginatorOptions) {
			o.Limit = listRolesPageSize
		},
	)

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list roles under %s: %w", pathPrefix, err)
		}
		items = append(items, page.Roles...)
	}

	return items, nil
}

// ListRoleTags returns the tags of the given role.
func (g *IAM) ListRoleTags(ctx context.Context, roleName string) (map[string]string, error) {
	result := make(map[string]string)
	var marker *string
	for {
		out, err := g.client.ListRoleTags(ctx, &iam.ListRoleTagsInput{
			RoleName: ptr.To(roleName),
			Marker:   marker,
		})

		switch {
		case awsutils.HasErrorCode(err, codeNoSuchEntity):
			return nil, fmt.Errorf("%w: role %s", ErrNotFound, roleName)
		case err != nil:
			return nil, fmt.Errorf("list tags of role %s: %w", roleName, err)
		}

		for k, v := range awsutils.IAMTagsToMap(out.Tags) {
			result[k] = v
		}

		if !out.IsTruncated || out.Marker == nil {
			return result, nil
		}
		marker = out.Marker
	}
}

// TagRole adds the given tags to the role, replacing the values of existing
// keys.
func (g *IAM) TagRole(ctx context.Context, roleName string, tags map[string]string) error {
	_, err := g.client.TagRole(ctx, &iam.TagRoleInput{
		RoleName: ptr.To(roleName),
		Tags:     awsutils.MapToIAMTags(tags),
	})

	switch {
	case awsutils.HasErrorCode(err, codeNoSuchEntity):
		return fmt.Errorf("%w: role %s", ErrNotFound, roleName)
	case err != nil:
		return fmt.Errorf("tag role %s: %w", roleName, err)
	}

	slog.GetLogger(ctx).Info("added role tags", "role_name", roleName, "tags", tags)

	return nil
}

// UntagRole removes the tags with the given keys from the role.
func (g *IAM) UntagRole(ctx context.Context, roleName string, keys ...string) error {
	_, err := g.client.UntagRole(ctx, &iam.UntagRoleInput{
		RoleName: ptr.To(roleName),
		TagKeys:  keys,
	})

	switch {
	case awsutils.HasErrorCode(err, codeNoSuchEntity):
		return fmt.Errorf("%w: role %s", ErrNotFound, roleName)
	case err != nil:
		return fmt.Errorf("untag role %s: %w", roleName, err)
	}

	slog.GetLogger(ctx).Info("removed role tags", "role_name", roleName, "keys", keys)

	return nil
}

// PutRolePolicy creates or replaces the inline policy with the given name.
func (g *IAM) PutRolePolicy(ctx context.Context, roleName, policyName, document string) error {
	_, err := g.client.PutRolePolicy(ctx, &iam.PutRolePolicyInput{
		RoleName:       ptr.To(roleName),
		PolicyName:     ptr.To(policyName),
		PolicyDocument: ptr.To(document),
	})

	switch {
	case awsutils.HasErrorCode(err, codeNoSuchEntity):
		return fmt.Errorf("%w: role %s", ErrNotFound, roleName)
	case err != nil:
		return fmt.Errorf("put policy %s on role %s: %w", policyName, roleName, err)
	}

	slog.GetLogger(ctx).Info("attached inline policy", "role_name", roleName, "policy_name", policyName)

	return nil
}

// DeleteRolePolicy deletes the inline policy with the given name.
// [ErrNotFound] is returned, if either the role or the policy does not exist.
func (g *IAM) DeleteRolePolicy(ctx context.Context, roleName, policyName string) error {
	_, err := g.client.DeleteRolePolicy(ctx, &iam.DeleteRolePolicyInput{
		RoleName:   ptr.To(roleName),
		PolicyName: ptr.To(policyName),
	})

	switch {
	case awsutils.HasErrorCode(err, codeNoSuchEntity):
		return fmt.Errorf("%w: policy %s on role %s", ErrNotFound, policyName, roleName)
	case err != nil:
		return fmt.Errorf("delete policy %s from role %s: %w", policyName, roleName, err)
	}

	slog.GetLogger(ctx).Info("detached inline policy", "role_name", roleName, "policy_name", policyName)

	return nil
}

// ListRolePolicies returns the names of the inline policies of the role.
func (g *IAM) ListRolePolicies(ctx context.Context, roleName string) ([]string, error) {
	items := make([]string, 0)
	paginator := iam.NewListRolePoliciesPaginator(
		g.client,
		&iam.ListRolePoliciesInput{RoleName: ptr.To(roleName)},
	)

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list inline policies of role %s: %w", roleName, err)
		}
		items = append(items, page.PolicyNames...)
	}

	return items, nil
}

// ListAttachedRolePolicies returns the ARNs of the managed policies attached to
// the role.
func (g *IAM) ListAttachedRolePolicies(ctx context.Context, roleName string) ([]string, error) {
	items := make([]string, 0)
	paginator := iam.NewListAttachedRolePoliciesPaginator(
		g.client,
		&iam.ListAttachedRolePoliciesInput{RoleName: ptr.To(roleName)},
	)

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list attached policies of role %s: %w", roleName, err)
		}
		for _, p := range page.AttachedPolicies {
			items = append(items, ptr.StringFromPointer(p.PolicyArn))
		}
	}

	return items, nil
}

// DetachRolePolicy detaches the managed policy with the given ARN.
func (g *IAM) DetachRolePolicy(ctx context.Context, roleName, policyARN string) error {
	_, err := g.client.DetachRolePolicy(ctx, &iam.DetachRolePolicyInput{
		RoleName:  ptr.To(roleName),
		PolicyArn: ptr.To(policyARN),
	})
	if err != nil {
		return fmt.Errorf("detach policy %s from role %s: %w", policyARN, roleName, err)
	}

	return nil
}

// DeleteRole deletes the role after detaching all of its managed policies and
// deleting all of its inline policies. [ErrNotFound] is returned, if the role
// does not exist.
func (g *IAM) DeleteRole(ctx context.Context, roleName string) error {
	logger := slog.GetLogger(ctx)

	attached, err := g.ListAttachedRolePolicies(ctx, roleName)
	if err != nil {
		return g.notFound(err, roleName)
	}
	for _, arn := range attached {
		if err := g.DetachRolePolicy(ctx, roleName, arn); err != nil {
			return g.notFound(err, roleName)
		}
		logger.Info("detached managed policy", "role_name", roleName, "policy_arn", arn)
	}

	inline, err := g.ListRolePolicies(ctx, roleName)
	if err != nil {
		return g.notFound(err, roleName)
	}
	for _, name := range inline {
		err := g.DeleteRolePolicy(ctx, roleName, name)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}

	_, err = g.client.DeleteRole(ctx, &iam.DeleteRoleInput{RoleName: ptr.To(roleName)})
	if err != nil {
		return g.notFound(fmt.Errorf("delete role %s: %w", roleName, err), roleName)
	}

	logger.Info("deleted role", "role_name", roleName)

	return nil
}

// notFound maps NoSuchEntity errors to [ErrNotFound].
func (g *IAM) notFound(err error, roleName string) error {
	if awsutils.HasErrorCode(err, codeNoSuchEntity) {
		return fmt.Errorf("%w: role %s", ErrNotFound, roleName)
	}

	return err
}
