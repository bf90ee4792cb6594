// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package iamrole_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gardener/aws-service-broker/internal/pkg/fakeaws"
	"github.com/gardener/aws-service-broker/pkg/aws/gateway"
	"github.com/gardener/aws-service-broker/pkg/aws/policy"
	"github.com/gardener/aws-service-broker/pkg/broker"
	"github.com/gardener/aws-service-broker/pkg/broker/iamrole"
	"github.com/gardener/aws-service-broker/pkg/broker/roles"
	"github.com/gardener/aws-service-broker/pkg/core/config"
)

const providerARN = "arn:aws:iam::123456789012:oidc-provider/uaa.sys.example.com/oauth/token"

func newBroker(t *testing.T) (*fakeaws.IAM, *iamrole.Broker) {
	t.Helper()
	fake := fakeaws.NewIAM()
	iam := gateway.NewIAM(fake)
	conf := config.IAMConfig{
		OIDCProviderARN: providerARN,
		RoleNamePrefix:  "cf",
		RolePath:        "/cf-role/",
	}
	helper := broker.NewRoles(roles.NewResolver(iam, conf.RolePath), iam)

	return fake, iamrole.New(helper, conf)
}

func provisionRequest(instanceID, org, space string) broker.ProvisionRequest {
	return broker.ProvisionRequest{
		InstanceID: instanceID,
		Context: &broker.Context{
			OrganizationGUID: org + "-guid",
			OrganizationName: org,
			SpaceGUID:        space + "-guid",
			SpaceName:        space,
			InstanceName:     "role",
		},
	}
}

func TestRoleName(t *testing.T) {
	inst := broker.Instance{Name: "db", OrgName: "org", SpaceName: "dev"}
	assert.Equal(t, "cf_org_dev_db", iamrole.RoleName("cf", inst))
}

func TestLifecycle(t *testing.T) {
	fake, b := newBroker(t)
	ctx := context.Background()
	instanceID := uuid.NewString()

	_, err := b.Provision(ctx, provisionRequest(instanceID, "org", "dev"))
	require.NoError(t, err)

	role, ok := fake.Role("cf_org_dev_role")
	require.True(t, ok)
	assert.Equal(t, "/cf-role/", role.Path)
	assert.Equal(t, instanceID, role.Tags["instance_id"])
	assert.Equal(t, "org", role.Tags["org_name"])
	assert.Equal(t, "cf_org_dev_role", role.Tags["iam-role-"+instanceID])

	trust, err := policy.Parse(role.Trust)
	require.NoError(t, err)
	require.Len(t, trust.Statement, 1)
	assert.Equal(t, providerARN, trust.Statement[0].Principal["Federated"])
	assert.Equal(t, []string{"sts:AssumeRoleWithWebIdentity"}, trust.Statement[0].Action)

	_, err = b.Update(ctx, broker.UpdateRequest{InstanceID: instanceID})
	require.NoError(t, err)

	resp, err := b.Bind(ctx, broker.BindRequest{InstanceID: instanceID, BindingID: uuid.NewString()})
	require.NoError(t, err)
	assert.Equal(t, broker.Credentials{
		"role_name": "cf_org_dev_role",
		"role_arn":  "arn:aws:iam::123456789012:role/cf-role/cf_org_dev_role",
	}, resp.Credentials)

	require.NoError(t, b.Unbind(ctx, broker.UnbindRequest{InstanceID: instanceID, BindingID: "b"}))

	require.NoError(t, b.Deprovision(ctx, broker.DeprovisionRequest{InstanceID: instanceID}))
	_, ok = fake.Role("cf_org_dev_role")
	assert.False(t, ok)

	require.NoError(t, b.Deprovision(ctx, broker.DeprovisionRequest{InstanceID: instanceID}))

	_, err = b.Bind(ctx, broker.BindRequest{InstanceID: instanceID, BindingID: "b"})
	assert.ErrorIs(t, err, broker.ErrGone)
	_, err = b.Update(ctx, broker.UpdateRequest{InstanceID: instanceID})
	assert.ErrorIs(t, err, broker.ErrGone)
}

func TestProvisionRejectsSecondRoleInSpace(t *testing.T) {
	fake, b := newBroker(t)
	ctx := context.Background()

	_, err := b.Provision(ctx, provisionRequest("1", "org", "dev"))
	require.NoError(t, err)

	_, err = b.Provision(ctx, provisionRequest("2", "org", "dev"))
	require.ErrorIs(t, err, broker.ErrConflict)
	assert.Equal(t,
		"The IAM role for the given org and space already exists. You can only create one IAM role per org and space.",
		broker.Message(err),
	)

	_, err = b.Provision(ctx, provisionRequest("3", "org", "prod"))
	require.NoError(t, err)
	assert.Len(t, fake.RoleNames(), 2)
}

func TestProvisionReportsExistingRoleName(t *testing.T) {
	fake, b := newBroker(t)
	fake.AddRole("cf_org_dev_role", "/other/", nil)

	_, err := b.Provision(context.Background(), provisionRequest("1", "org", "dev"))
	assert.ErrorIs(t, err, broker.ErrConflict)
}

func TestProvisionWithoutContext(t *testing.T) {
	fake, b := newBroker(t)

	_, err := b.Provision(context.Background(), broker.ProvisionRequest{InstanceID: "1"})
	require.NoError(t, err)

	role, ok := fake.Role("cf_unknown-org_unknown-space_unknown-instance")
	require.True(t, ok)
	assert.Equal(t, "unknown-org-guid", role.Tags["org_guid"])
}

func TestProvisionWithInvalidProvider(t *testing.T) {
	fake := fakeaws.NewIAM()
	iam := gateway.NewIAM(fake)
	helper := broker.NewRoles(roles.NewResolver(iam, "/cf-role/"), iam)
	b := iamrole.New(helper, config.IAMConfig{RoleNamePrefix: "cf", RolePath: "/cf-role/"})

	_, err := b.Provision(context.Background(), provisionRequest("1", "org", "dev"))
	require.ErrorIs(t, err, policy.ErrInvalidProviderARN)
	assert.Empty(t, fake.RoleNames())
}
