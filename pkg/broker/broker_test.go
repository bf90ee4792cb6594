// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package broker_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gardener/aws-service-broker/internal/pkg/fakeaws"
	"github.com/gardener/aws-service-broker/pkg/aws/gateway"
	"github.com/gardener/aws-service-broker/pkg/aws/policy"
	"github.com/gardener/aws-service-broker/pkg/broker"
	"github.com/gardener/aws-service-broker/pkg/broker/roles"
	"github.com/gardener/aws-service-broker/pkg/core/registry"
)

func TestErrorUnwrapsToKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", broker.Errorf(broker.ErrGone, "Role tag (key: %s) is missing", "dynamodb-1"))

	assert.ErrorIs(t, err, broker.ErrGone)
	assert.NotErrorIs(t, err, broker.ErrConflict)
	assert.Equal(t, "Role tag (key: dynamodb-1) is missing", broker.Message(err))
	assert.Equal(t, "boom", broker.Message(errors.New("boom")))
}

func TestProvisionRequestInstance(t *testing.T) {
	testCases := []struct {
		desc   string
		req    broker.ProvisionRequest
		wanted broker.Instance
	}{
		{
			desc: "without context",
			req:  broker.ProvisionRequest{InstanceID: "1"},
			wanted: broker.Instance{
				ID:        "1",
				Name:      broker.UnknownInstanceName,
				OrgGUID:   broker.UnknownOrgGUID,
				OrgName:   broker.UnknownOrg,
				SpaceGUID: broker.UnknownSpaceGUID,
				SpaceName: broker.UnknownSpace,
			},
		},
		{
			desc: "with top-level guids",
			req:  broker.ProvisionRequest{InstanceID: "1", OrganizationGUID: "o", SpaceGUID: "s"},
			wanted: broker.Instance{
				ID:        "1",
				Name:      broker.UnknownInstanceName,
				OrgGUID:   "o",
				OrgName:   broker.UnknownOrg,
				SpaceGUID: "s",
				SpaceName: broker.UnknownSpace,
			},
		},
		{
			desc: "with context",
			req: broker.ProvisionRequest{
				InstanceID: "1",
				Context: &broker.Context{
					OrganizationGUID: "og",
					OrganizationName: "org",
					SpaceGUID:        "sg",
					SpaceName:        "space",
					InstanceName:     "db",
				},
			},
			wanted: broker.Instance{
				ID:        "1",
				Name:      "db",
				OrgGUID:   "og",
				OrgName:   "org",
				SpaceGUID: "sg",
				SpaceName: "space",
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Equal(t, tc.wanted, tc.req.Instance())
		})
	}
}

func TestInstanceTags(t *testing.T) {
	inst := broker.Instance{ID: "1", Name: "n", OrgGUID: "og", OrgName: "o", SpaceGUID: "sg", SpaceName: "s"}

	got := inst.TagsWith(map[string]string{"region": "eu-west-1"})
	assert.Equal(t, map[string]string{
		"org_guid":      "og",
		"org_name":      "o",
		"space_guid":    "sg",
		"space_name":    "s",
		"instance_id":   "1",
		"instance_name": "n",
		"region":        "eu-west-1",
	}, got)
}

func TestDecodeParameters(t *testing.T) {
	var params struct {
		RoleName string `json:"role_name"`
		Enabled  *bool  `json:"enable_versioning"`
	}

	require.NoError(t, broker.DecodeParameters(nil, &params))
	require.NoError(t, broker.DecodeParameters(json.RawMessage("null"), &params))
	require.NoError(t, broker.DecodeParameters(json.RawMessage(`{"role_name":"r","enable_versioning":true}`), &params))
	assert.Equal(t, "r", params.RoleName)
	require.NotNil(t, params.Enabled)
	assert.True(t, *params.Enabled)

	err := broker.DecodeParameters(json.RawMessage(`{"enable_versioning":"yes"}`), &params)
	assert.ErrorIs(t, err, broker.ErrValidation)
}

func TestRolesHelper(t *testing.T) {
	fake := fakeaws.NewIAM()
	fake.AddRole("byo", "/cf-role/", nil)
	iam := gateway.NewIAM(fake)
	helper := broker.NewRoles(roles.NewResolver(iam, "/cf-role/"), iam)
	ctx := context.Background()

	require.NoError(t, helper.Tag(ctx, "byo", broker.KindS3, "1", "bucket|eu-west-1"))
	role, value, err := helper.FindTagged(ctx, broker.KindS3, "1")
	require.NoError(t, err)
	require.NotNil(t, role)
	assert.Equal(t, "byo", role.Name)
	assert.Equal(t, "bucket|eu-west-1", value)

	require.NoError(t, helper.AttachPolicy(ctx, "byo", "s3-1-b", policy.BucketAccess("bucket")))
	stored, _ := fake.Role("byo")
	assert.Contains(t, stored.Inline, "s3-1-b")

	require.NoError(t, helper.DetachPolicy(ctx, "byo", "s3-1-b"))
	require.NoError(t, helper.DetachPolicy(ctx, "byo", "s3-1-b"))
	require.NoError(t, helper.DetachPolicy(ctx, "missing", "s3-1-b"))

	require.NoError(t, helper.Untag(ctx, "byo", broker.KindS3, "1"))
	require.NoError(t, helper.Untag(ctx, "missing", broker.KindS3, "1"))
	role, _, err = helper.FindTagged(ctx, broker.KindS3, "1")
	require.NoError(t, err)
	assert.Nil(t, role)
}

// recordingBroker records the requests it receives.
type recordingBroker struct {
	calls []string
	err   error
}

func (b *recordingBroker) Provision(_ context.Context, req broker.ProvisionRequest) (*broker.ProvisionResponse, error) {
	b.calls = append(b.calls, "provision "+req.InstanceID)
	return &broker.ProvisionResponse{}, b.err
}

func (b *recordingBroker) Update(_ context.Context, req broker.UpdateRequest) (*broker.UpdateResponse, error) {
	b.calls = append(b.calls, "update "+req.InstanceID)
	return &broker.UpdateResponse{}, b.err
}

func (b *recordingBroker) Deprovision(_ context.Context, req broker.DeprovisionRequest) error {
	b.calls = append(b.calls, "deprovision "+req.InstanceID)
	return b.err
}

func (b *recordingBroker) Bind(_ context.Context, req broker.BindRequest) (*broker.BindResponse, error) {
	b.calls = append(b.calls, "bind "+req.InstanceID+" "+req.BindingID)
	return &broker.BindResponse{Credentials: broker.Credentials{"role_name": "r"}}, b.err
}

func (b *recordingBroker) Unbind(_ context.Context, req broker.UnbindRequest) error {
	b.calls = append(b.calls, "unbind "+req.InstanceID+" "+req.BindingID)
	return b.err
}

func TestDispatcherRoutesByServiceID(t *testing.T) {
	s3Broker := &recordingBroker{}
	ddbBroker := &recordingBroker{}
	d, err := broker.NewDispatcher(
		broker.Service{ID: "s3-id", Kind: broker.KindS3, Broker: s3Broker},
		broker.Service{ID: "ddb-id", Kind: broker.KindDynamoDB, Broker: ddbBroker},
	)
	require.NoError(t, err)
	assert.Equal(t, 2, d.Length())
	services := d.Services()
	require.Len(t, services, 2)
	assert.Equal(t, "s3-id", services[0].ID)
	assert.Equal(t, broker.KindDynamoDB, services[1].Kind)
	ctx := context.Background()

	_, err = d.Provision(ctx, broker.ProvisionRequest{InstanceID: "1", ServiceID: "s3-id"})
	require.NoError(t, err)
	_, err = d.Update(ctx, broker.UpdateRequest{InstanceID: "1", ServiceID: "s3-id"})
	require.NoError(t, err)
	resp, err := d.Bind(ctx, broker.BindRequest{InstanceID: "2", BindingID: "b", ServiceID: "ddb-id"})
	require.NoError(t, err)
	assert.Equal(t, "r", resp.Credentials["role_name"])
	require.NoError(t, d.Unbind(ctx, broker.UnbindRequest{InstanceID: "2", BindingID: "b", ServiceID: "ddb-id"}))
	require.NoError(t, d.Deprovision(ctx, broker.DeprovisionRequest{InstanceID: "1", ServiceID: "s3-id"}))

	assert.Equal(t, []string{"provision 1", "update 1", "deprovision 1"}, s3Broker.calls)
	assert.Equal(t, []string{"bind 2 b", "unbind 2 b"}, ddbBroker.calls)
}

func TestDispatcherRejectsUnknownServices(t *testing.T) {
	d, err := broker.NewDispatcher(broker.Service{ID: "s3-id", Kind: broker.KindS3, Broker: &recordingBroker{}})
	require.NoError(t, err)

	_, err = d.Provision(context.Background(), broker.ProvisionRequest{InstanceID: "1", ServiceID: "other"})
	require.ErrorIs(t, err, broker.ErrValidation)
	assert.Equal(t, "Unsupported service id: other", broker.Message(err))

	err = d.Deprovision(context.Background(), broker.DeprovisionRequest{InstanceID: "1"})
	assert.ErrorIs(t, err, broker.ErrValidation)
}

func TestDispatcherRejectsUnknownPlans(t *testing.T) {
	b := &recordingBroker{}
	d, err := broker.NewDispatcher(broker.Service{ID: "s3-id", Kind: broker.KindS3, Broker: b, Plans: []string{"default"}})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = d.Provision(ctx, broker.ProvisionRequest{InstanceID: "1", ServiceID: "s3-id", PlanID: "premium"})
	require.ErrorIs(t, err, broker.ErrValidation)
	assert.Equal(t, "Unsupported plan id: premium", broker.Message(err))

	err = d.Unbind(ctx, broker.UnbindRequest{InstanceID: "1", BindingID: "b", ServiceID: "s3-id", PlanID: "premium"})
	require.ErrorIs(t, err, broker.ErrValidation)

	_, err = d.Provision(ctx, broker.ProvisionRequest{InstanceID: "1", ServiceID: "s3-id", PlanID: "default"})
	require.NoError(t, err)
	require.NoError(t, d.Deprovision(ctx, broker.DeprovisionRequest{InstanceID: "1", ServiceID: "s3-id"}))

	assert.Equal(t, []string{"provision 1", "deprovision 1"}, b.calls)
}

func TestDispatcherPropagatesBrokerErrors(t *testing.T) {
	want := broker.Errorf(broker.ErrConflict, "exists")
	d, err := broker.NewDispatcher(broker.Service{ID: "id", Kind: broker.KindIAMRole, Broker: &recordingBroker{err: want}})
	require.NoError(t, err)

	_, err = d.Provision(context.Background(), broker.ProvisionRequest{InstanceID: "1", ServiceID: "id"})
	assert.ErrorIs(t, err, broker.ErrConflict)
}

func TestNewDispatcherRejectsInvalidServices(t *testing.T) {
	_, err := broker.NewDispatcher(broker.Service{Kind: broker.KindS3})
	assert.ErrorIs(t, err, broker.ErrNoServiceID)

	_, err = broker.NewDispatcher(
		broker.Service{ID: "id", Kind: broker.KindS3},
		broker.Service{ID: "id", Kind: broker.KindDynamoDB},
	)
	assert.ErrorIs(t, err, registry.ErrKeyAlreadyRegistered)
}
