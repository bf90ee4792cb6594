// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package bucket_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gardener/aws-service-broker/internal/pkg/fakeaws"
	"github.com/gardener/aws-service-broker/pkg/aws/gateway"
	"github.com/gardener/aws-service-broker/pkg/broker"
	"github.com/gardener/aws-service-broker/pkg/broker/bucket"
	"github.com/gardener/aws-service-broker/pkg/broker/roles"
)

const (
	instanceID = "5e1d3f2a-0b4c-4d6e-8f9a-1b2c3d4e5f60"
	bindingID  = "9a8b7c6d-5e4f-4a3b-2c1d-0e9f8a7b6c5d"
	bucketName = "cf-5e1d3f2a0b4c4d6e8f9a1b2c3d4e5f60"
	policyName = "s3-5e1d3f2a0b4c4d6e8f9a1b2c3d4e5f60-9a8b7c6d5e4f4a3b2c1d0e9f8a7b6c5d"
)

type env struct {
	iam    *fakeaws.IAM
	s3     *fakeaws.S3
	broker *bucket.Broker
}

func newEnv(t *testing.T) *env {
	t.Helper()
	fakeIAM := fakeaws.NewIAM()
	fakeIAM.AddRole("app-role", "/cf-role/", nil)
	fakeIAM.AddRole("other-role", "/cf-role/", nil)
	fakeS3 := fakeaws.NewS3()

	iam := gateway.NewIAM(fakeIAM)
	helper := broker.NewRoles(roles.NewResolver(iam, "/cf-role/"), iam)
	b := bucket.New(helper, gateway.NewS3(fakeS3), bucket.Options{
		BucketNamePrefix: "cf-",
		Region:           "eu-central-1",
	})

	return &env{iam: fakeIAM, s3: fakeS3, broker: b}
}

func params(t *testing.T, v map[string]any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)

	return data
}

// assertPolicyTagsAttached checks that every policy recorded on the bucket is
// attached to the role recorded next to it.
func assertPolicyTagsAttached(t *testing.T, e *env, name string) {
	t.Helper()
	b, ok := e.s3.Bucket(name)
	require.True(t, ok)

	for key, policy := range b.Tags {
		suffix, found := strings.CutPrefix(key, "policy_name")
		if !found {
			continue
		}
		roleName, ok := b.Tags["role_name"+suffix]
		require.True(t, ok, "no role recorded for %s", key)
		role, ok := e.iam.Role(roleName)
		require.True(t, ok, "role %s missing", roleName)
		assert.Contains(t, role.Inline, policy, "policy %s not attached to %s", policy, roleName)
	}
}

func TestDefaultBucketName(t *testing.T) {
	assert.Equal(t, bucketName, bucket.DefaultBucketName("cf-", instanceID))
}

func TestProvisionBindDeprovision(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.broker.Provision(ctx, broker.ProvisionRequest{
		InstanceID: instanceID,
		Parameters: params(t, map[string]any{"role_name": "app-role", "region": "eu-west-1"}),
	})
	require.NoError(t, err)

	b, ok := e.s3.Bucket(bucketName)
	require.True(t, ok)
	assert.Equal(t, "eu-west-1", b.Region)
	assert.Equal(t, instanceID, b.Tags["instance_id"])
	assert.Equal(t, "eu-west-1", b.Tags["region"])
	assert.Equal(t, "app-role", b.Tags["role_name"])
	assert.NotContains(t, b.Tags, "policy_name")

	role, _ := e.iam.Role("app-role")
	assert.Equal(t, bucketName+"|eu-west-1", role.Tags["s3-"+instanceID])
	assert.Empty(t, role.Inline)

	resp, err := e.broker.Bind(ctx, broker.BindRequest{InstanceID: instanceID, BindingID: bindingID})
	require.NoError(t, err)
	assert.Equal(t, broker.Credentials{
		"role_name":   "app-role",
		"role_arn":    "arn:aws:iam::123456789012:role/cf-role/app-role",
		"bucket_name": bucketName,
		"region":      "eu-west-1",
	}, resp.Credentials)

	role, _ = e.iam.Role("app-role")
	assert.Contains(t, role.Inline, policyName)
	b, _ = e.s3.Bucket(bucketName)
	assert.Equal(t, "app-role", b.Tags["role_name_9a8b7c6d5e4f4a3b2c1d0e9f8a7b6c5d"])
	assert.Equal(t, policyName, b.Tags["policy_name_9a8b7c6d5e4f4a3b2c1d0e9f8a7b6c5d"])
	assertPolicyTagsAttached(t, e, bucketName)

	e.s3.PutObjectVersion(bucketName, "data.txt")
	e.s3.PutObjectVersion(bucketName, "data.txt")

	for range 2 {
		require.NoError(t, e.broker.Deprovision(ctx, broker.DeprovisionRequest{InstanceID: instanceID}))
	}

	_, ok = e.s3.Bucket(bucketName)
	assert.False(t, ok)
	role, _ = e.iam.Role("app-role")
	assert.Empty(t, role.Inline)
	assert.NotContains(t, role.Tags, "s3-"+instanceID)

	_, err = e.broker.Bind(ctx, broker.BindRequest{InstanceID: instanceID, BindingID: bindingID,
		Parameters: params(t, map[string]any{"role_name": "app-role"})})
	assert.ErrorIs(t, err, broker.ErrGone)
}

func TestProvisionWithUnknownRoleCreatesNothing(t *testing.T) {
	e := newEnv(t)

	_, err := e.broker.Provision(context.Background(), broker.ProvisionRequest{
		InstanceID: instanceID,
		Parameters: params(t, map[string]any{"role_name": "missing"}),
	})
	require.ErrorIs(t, err, broker.ErrPrecondition)
	assert.Equal(t, "Role with name missing does not exist.", broker.Message(err))
	assert.Empty(t, e.s3.BucketNames())
	assert.Zero(t, e.s3.CallCount("CreateBucket"))
}

func TestProvisionRejectsTakenBucketName(t *testing.T) {
	e := newEnv(t)
	e.s3.AddBucket("taken", "eu-central-1", nil)

	_, err := e.broker.Provision(context.Background(), broker.ProvisionRequest{
		InstanceID: instanceID,
		Parameters: params(t, map[string]any{"bucket_name": "taken"}),
	})
	assert.ErrorIs(t, err, broker.ErrConflict)
}

func TestBindingRoles(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.broker.Provision(ctx, broker.ProvisionRequest{
		InstanceID: instanceID,
		Parameters: params(t, map[string]any{"enable_versioning": true}),
	})
	require.NoError(t, err)

	b, ok := e.s3.Bucket(bucketName)
	require.True(t, ok)
	assert.Equal(t, "eu-central-1", b.Region)
	assert.Equal(t, "Enabled", b.Versioning)
	assert.NotContains(t, b.Tags, "role_name")

	_, err = e.broker.Bind(ctx, broker.BindRequest{InstanceID: instanceID, BindingID: bindingID})
	require.ErrorIs(t, err, broker.ErrValidation)
	assert.Equal(t,
		"If you do not specify the 'role_name' parameter in the service instance, you must specify the 'role_name' parameter in the service binding.",
		broker.Message(err),
	)

	_, err = e.broker.Bind(ctx, broker.BindRequest{
		InstanceID: instanceID,
		BindingID:  bindingID,
		Parameters: params(t, map[string]any{"role_name": "missing"}),
	})
	require.ErrorIs(t, err, broker.ErrValidation)
	assert.Equal(t, "The given role (role_name=missing) is not found", broker.Message(err))

	resp, err := e.broker.Bind(ctx, broker.BindRequest{
		InstanceID: instanceID,
		BindingID:  bindingID,
		Parameters: params(t, map[string]any{"role_name": "other-role"}),
	})
	require.NoError(t, err)
	assert.Equal(t, "other-role", resp.Credentials["role_name"])
	assert.Equal(t, "eu-central-1", resp.Credentials["region"])

	role, _ := e.iam.Role("other-role")
	assert.Contains(t, role.Inline, policyName)
	assertPolicyTagsAttached(t, e, bucketName)

	for range 2 {
		require.NoError(t, e.broker.Unbind(ctx, broker.UnbindRequest{InstanceID: instanceID, BindingID: bindingID}))
	}

	role, _ = e.iam.Role("other-role")
	assert.Empty(t, role.Inline)
	b, _ = e.s3.Bucket(bucketName)
	assert.NotContains(t, b.Tags, "role_name_9a8b7c6d5e4f4a3b2c1d0e9f8a7b6c5d")
	assert.NotContains(t, b.Tags, "policy_name_9a8b7c6d5e4f4a3b2c1d0e9f8a7b6c5d")
}

func TestDeprovisionDetachesBindingPolicies(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.broker.Provision(ctx, broker.ProvisionRequest{InstanceID: instanceID})
	require.NoError(t, err)
	_, err = e.broker.Bind(ctx, broker.BindRequest{
		InstanceID: instanceID,
		BindingID:  bindingID,
		Parameters: params(t, map[string]any{"role_name": "other-role"}),
	})
	require.NoError(t, err)

	require.NoError(t, e.broker.Deprovision(ctx, broker.DeprovisionRequest{InstanceID: instanceID}))

	role, _ := e.iam.Role("other-role")
	assert.Empty(t, role.Inline)
	assert.Empty(t, e.s3.BucketNames())
}

func TestUpdateVersioning(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.broker.Update(ctx, broker.UpdateRequest{
		InstanceID: instanceID,
		Parameters: params(t, map[string]any{"enable_versioning": true}),
	})
	require.ErrorIs(t, err, broker.ErrGone)

	_, err = e.broker.Provision(ctx, broker.ProvisionRequest{
		InstanceID: instanceID,
		Parameters: params(t, map[string]any{"role_name": "app-role"}),
	})
	require.NoError(t, err)

	testCases := []struct {
		desc   string
		params map[string]any
		wanted string
	}{
		{desc: "enable", params: map[string]any{"enable_versioning": true}, wanted: "Enabled"},
		{desc: "no parameter", params: map[string]any{}, wanted: "Enabled"},
		{desc: "suspend", params: map[string]any{"enable_versioning": false}, wanted: "Suspended"},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := e.broker.Update(ctx, broker.UpdateRequest{InstanceID: instanceID, Parameters: params(t, tc.params)})
			require.NoError(t, err)
			b, _ := e.s3.Bucket(bucketName)
			assert.Equal(t, tc.wanted, b.Versioning)
		})
	}
}

func TestInvalidParameters(t *testing.T) {
	e := newEnv(t)

	_, err := e.broker.Provision(context.Background(), broker.ProvisionRequest{
		InstanceID: instanceID,
		Parameters: json.RawMessage(`{"enable_versioning":"yes"}`),
	})
	assert.ErrorIs(t, err, broker.ErrValidation)
	assert.Empty(t, e.s3.BucketNames())
}

func TestUnbindAfterBucketVanished(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.broker.Provision(ctx, broker.ProvisionRequest{InstanceID: instanceID})
	require.NoError(t, err)

	_, err = e.broker.Bind(ctx, broker.BindRequest{
		InstanceID: instanceID,
		BindingID:  bindingID,
		Parameters: params(t, map[string]any{"role_name": "other-role"}),
	})
	require.NoError(t, err)

	require.NoError(t, gateway.NewS3(e.s3).DeleteBucket(ctx, bucketName, "eu-central-1"))

	require.NoError(t, e.broker.Unbind(ctx, broker.UnbindRequest{InstanceID: instanceID, BindingID: bindingID}))
	role, _ := e.iam.Role("other-role")
	assert.Empty(t, role.Inline)
}
