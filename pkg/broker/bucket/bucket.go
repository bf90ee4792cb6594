// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package bucket implements the broker for S3 buckets.
//
// The bucket of an instance is recorded on the role named at provisioning
// time, as a role tag with the bucket name and region. Instances provisioned
// without a role are found by the instance_id tag of the bucket. Each binding
// may name its own role, which is recorded in the binding tags of the bucket.
package bucket

import (
	"context"
	"errors"
	"strings"

	"github.com/gardener/aws-service-broker/pkg/aws/gateway"
	"github.com/gardener/aws-service-broker/pkg/aws/policy"
	"github.com/gardener/aws-service-broker/pkg/broker"
	"github.com/gardener/aws-service-broker/pkg/broker/roles"
	"github.com/gardener/aws-service-broker/pkg/core/tags"
	"github.com/gardener/aws-service-broker/pkg/utils/slog"
)

// S3 is the subset of the S3 gateway used by the [Broker].
type S3 interface {
	CreateBucket(ctx context.Context, name, region string, tags map[string]string) error
	GetBucketTagging(ctx context.Context, name, region string) (map[string]string, error)
	AddBucketTags(ctx context.Context, name, region string, tags map[string]string) error
	RemoveBucketTags(ctx context.Context, name, region string, keys ...string) error
	FindBucketByTag(ctx context.Context, key, value string) (*gateway.Bucket, error)
	SetVersioning(ctx context.Context, name, region string, enabled bool) error
	DeleteBucket(ctx context.Context, name, region string) error
}

var _ S3 = (*gateway.S3)(nil)

// Options specifies the settings of the [Broker].
type Options struct {
	// BucketNamePrefix is the prefix of the default bucket names.
	BucketNamePrefix string

	// Region is the region of buckets created without a region parameter.
	Region string
}

type provisionParameters struct {
	RoleName         string `json:"role_name"`
	BucketName       string `json:"bucket_name"`
	Region           string `json:"region"`
	EnableVersioning bool   `json:"enable_versioning"`
}

type updateParameters struct {
	EnableVersioning *bool `json:"enable_versioning"`
}

type bindParameters struct {
	RoleName string `json:"role_name"`
}

// Broker is the [broker.Broker] for S3 buckets.
type Broker struct {
	roles *broker.Roles
	s3    S3
	opts  Options
}

var _ broker.Broker = (*Broker)(nil)

// New creates a new [Broker].
func New(roles *broker.Roles, s3 S3, opts Options) *Broker {
	return &Broker{roles: roles, s3: s3, opts: opts}
}

// DefaultBucketName returns the name of the bucket for the given instance,
// unless a name was requested explicitly.
func DefaultBucketName(prefix, instanceID string) string {
	return prefix + tags.StripHyphens(instanceID)
}

// state is the state of an instance as recorded in the tags.
type state struct {
	// role is the role named at provisioning time, if any.
	role *roles.Role

	// bucket is the bucket of the instance, if it still exists.
	bucket *gateway.Bucket
}

// resolve returns the state of the instance. The bucket is looked up via the
// role tag first, and via the instance_id bucket tag otherwise.
func (b *Broker) resolve(ctx context.Context, instanceID string) (*state, error) {
	logger := slog.GetLogger(ctx)
	role, value, err := b.roles.FindTagged(ctx, broker.KindS3, instanceID)
	if err != nil {
		return nil, err
	}

	result := &state{role: role}
	if role != nil {
		parts, err := tags.DecodeN(value, 2)
		if err == nil {
			result.bucket = &gateway.Bucket{Name: parts[0], Region: parts[1]}
			return result, nil
		}
		logger.Warn("ignoring malformed role tag", "role_name", role.Name, "reason", err)
	}

	bucket, err := b.s3.FindBucketByTag(ctx, tags.KeyInstanceID, instanceID)
	if err != nil {
		return nil, err
	}
	result.bucket = bucket

	return result, nil
}

// Provision creates the bucket of the instance. When a role is named, the
// bucket is recorded on the role.
func (b *Broker) Provision(ctx context.Context, req broker.ProvisionRequest) (*broker.ProvisionResponse, error) {
	var params provisionParameters
	if err := broker.DecodeParameters(req.Parameters, &params); err != nil {
		return nil, err
	}

	var role *roles.Role
	if params.RoleName != "" {
		var err error
		role, err = b.roles.Resolver().FindByName(ctx, params.RoleName)
		if err != nil {
			return nil, err
		}
		if role == nil {
			return nil, broker.Errorf(broker.ErrPrecondition, "Role with name %s does not exist.", params.RoleName)
		}
	}

	inst := req.Instance()
	name := params.BucketName
	if name == "" {
		name = DefaultBucketName(b.opts.BucketNamePrefix, inst.ID)
	}
	region := params.Region
	if region == "" {
		region = b.opts.Region
	}

	extra := map[string]string{tags.KeyRegion: region}
	if role != nil {
		extra[tags.KeyRoleName] = role.Name
	}

	err := b.s3.CreateBucket(ctx, name, region, inst.TagsWith(extra))
	switch {
	case errors.Is(err, gateway.ErrAlreadyExists):
		return nil, broker.Errorf(broker.ErrConflict, "Bucket with name %s already exists.", name)
	case err != nil:
		return nil, err
	}

	if params.EnableVersioning {
		if err := b.s3.SetVersioning(ctx, name, region, true); err != nil {
			return nil, err
		}
	}

	if role != nil {
		if err := b.roles.Tag(ctx, role.Name, broker.KindS3, inst.ID, tags.Encode(name, region)); err != nil {
			return nil, err
		}
	}

	slog.GetLogger(ctx).Info("provisioned bucket", "bucket", name, "region", region)

	return &broker.ProvisionResponse{}, nil
}

// Update enables or suspends the versioning of the bucket.
func (b *Broker) Update(ctx context.Context, req broker.UpdateRequest) (*broker.UpdateResponse, error) {
	var params updateParameters
	if err := broker.DecodeParameters(req.Parameters, &params); err != nil {
		return nil, err
	}

	st, err := b.resolve(ctx, req.InstanceID)
	if err != nil {
		return nil, err
	}
	if st.bucket == nil {
		return nil, broker.Errorf(broker.ErrGone, "The instance has gone.")
	}

	if params.EnableVersioning != nil {
		err := b.s3.SetVersioning(ctx, st.bucket.Name, st.bucket.Region, *params.EnableVersioning)
		switch {
		case errors.Is(err, gateway.ErrNotFound):
			return nil, broker.Errorf(broker.ErrGone, "The instance has gone.")
		case err != nil:
			return nil, err
		}
	}

	return &broker.UpdateResponse{}, nil
}

// Deprovision detaches the policies of all bindings, deletes the bucket and
// removes the role tag.
func (b *Broker) Deprovision(ctx context.Context, req broker.DeprovisionRequest) error {
	logger := slog.GetLogger(ctx)
	st, err := b.resolve(ctx, req.InstanceID)
	if err != nil {
		return err
	}

	if st.bucket != nil {
		if err := b.detachBindings(ctx, *st.bucket); err != nil {
			return err
		}

		err := b.s3.DeleteBucket(ctx, st.bucket.Name, st.bucket.Region)
		switch {
		case errors.Is(err, gateway.ErrNotFound):
			logger.Info("bucket already deleted", "bucket", st.bucket.Name)
		case err != nil:
			return err
		}
	}

	if st.role != nil {
		return b.roles.Untag(ctx, st.role.Name, broker.KindS3, req.InstanceID)
	}

	return nil
}

// detachBindings detaches the policies recorded in the binding tags of the
// bucket.
func (b *Broker) detachBindings(ctx context.Context, bucket gateway.Bucket) error {
	bucketTags, err := b.s3.GetBucketTagging(ctx, bucket.Name, bucket.Region)
	switch {
	case errors.Is(err, gateway.ErrNotFound):
		return nil
	case err != nil:
		return err
	}

	rolePrefix := tags.KeyRoleName + "_"
	for key, roleName := range bucketTags {
		suffix, found := strings.CutPrefix(key, rolePrefix)
		if !found {
			continue
		}
		policyName, ok := bucketTags[tags.KeyPolicyName+"_"+suffix]
		if !ok {
			continue
		}
		if err := b.roles.DetachPolicy(ctx, roleName, policyName); err != nil {
			return err
		}
	}

	return nil
}

// Bind attaches the bucket access policy to the role named by the binding, or
// to the role named at provisioning time.
func (b *Broker) Bind(ctx context.Context, req broker.BindRequest) (*broker.BindResponse, error) {
	var params bindParameters
	if err := broker.DecodeParameters(req.Parameters, &params); err != nil {
		return nil, err
	}

	st, err := b.resolve(ctx, req.InstanceID)
	if err != nil {
		return nil, err
	}

	target := st.role
	if params.RoleName != "" {
		target, err = b.roles.Resolver().FindByName(ctx, params.RoleName)
		if err != nil {
			return nil, err
		}
		if target == nil {
			return nil, broker.Errorf(broker.ErrValidation, "The given role (role_name=%s) is not found", params.RoleName)
		}
	}
	if target == nil {
		return nil, broker.Errorf(
			broker.ErrValidation,
			"If you do not specify the 'role_name' parameter in the service instance, you must specify the 'role_name' parameter in the service binding.",
		)
	}

	if st.bucket == nil {
		return nil, broker.Errorf(broker.ErrGone, "The instance has gone.")
	}

	policyName := tags.PolicyName(broker.KindS3, req.InstanceID, req.BindingID)
	err = b.s3.AddBucketTags(ctx, st.bucket.Name, st.bucket.Region, map[string]string{
		tags.BindingTagKey(tags.KeyRoleName, req.BindingID):   target.Name,
		tags.BindingTagKey(tags.KeyPolicyName, req.BindingID): policyName,
	})
	switch {
	case errors.Is(err, gateway.ErrNotFound):
		return nil, broker.Errorf(broker.ErrGone, "The instance has gone.")
	case err != nil:
		return nil, err
	}

	if err := b.roles.AttachPolicy(ctx, target.Name, policyName, policy.BucketAccess(st.bucket.Name)); err != nil {
		return nil, err
	}

	resp := &broker.BindResponse{
		Credentials: broker.Credentials{
			"role_name":   target.Name,
			"role_arn":    target.ARN,
			"bucket_name": st.bucket.Name,
			"region":      st.bucket.Region,
		},
	}

	return resp, nil
}

// Unbind detaches the policy of the binding from the role recorded in the
// binding tags of the bucket, or from the role named at provisioning time.
func (b *Broker) Unbind(ctx context.Context, req broker.UnbindRequest) error {
	st, err := b.resolve(ctx, req.InstanceID)
	if err != nil {
		return err
	}

	roleKey := tags.BindingTagKey(tags.KeyRoleName, req.BindingID)
	policyKey := tags.BindingTagKey(tags.KeyPolicyName, req.BindingID)

	if st.bucket != nil {
		bucketTags, err := b.s3.GetBucketTagging(ctx, st.bucket.Name, st.bucket.Region)
		switch {
		case errors.Is(err, gateway.ErrNotFound):
			bucketTags = nil
		case err != nil:
			return err
		}

		roleName, hasRole := bucketTags[roleKey]
		policyName, hasPolicy := bucketTags[policyKey]
		if hasRole && hasPolicy {
			if err := b.roles.DetachPolicy(ctx, roleName, policyName); err != nil {
				return err
			}
			err := b.s3.RemoveBucketTags(ctx, st.bucket.Name, st.bucket.Region, roleKey, policyKey)
			if err != nil && !errors.Is(err, gateway.ErrNotFound) {
				return err
			}

			return nil
		}
	}

	policyName := tags.PolicyName(broker.KindS3, req.InstanceID, req.BindingID)
	target := st.role
	if target == nil {
		// The bucket may be gone together with its binding tags.
		target, err = b.roles.Resolver().FindByPolicyName(ctx, policyName)
		if err != nil {
			return err
		}
	}
	if target == nil {
		slog.GetLogger(ctx).Info("no role found for binding")
		return nil
	}

	return b.roles.DetachPolicy(ctx, target.Name, policyName)
}
