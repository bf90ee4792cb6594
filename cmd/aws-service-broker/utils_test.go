// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/gardener/aws-service-broker/internal/pkg/fakeaws"
	"github.com/gardener/aws-service-broker/pkg/broker"
	"github.com/gardener/aws-service-broker/pkg/broker/catalog"
	"github.com/gardener/aws-service-broker/pkg/core/config"
)

const oidcProviderARN = "arn:aws:iam::123456789012:oidc-provider/uaa.example.com/oauth/token"

func TestLoadCatalog(t *testing.T) {
	conf := config.New()
	if _, err := loadCatalog(conf); !errors.Is(err, errNoOIDCProvider) {
		t.Fatalf("want error %v, got %v", errNoOIDCProvider, err)
	}

	conf.IAM.OIDCProviderARN = oidcProviderARN
	cat, err := loadCatalog(conf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cat.Services) != 3 {
		t.Fatalf("want 3 services, got %d", len(cat.Services))
	}
}

func TestValidateAWSConfig(t *testing.T) {
	testCases := []struct {
		desc    string
		mutate  func(c *config.Config)
		wantErr error
	}{
		{
			desc:    "defaults",
			mutate:  func(*config.Config) {},
			wantErr: nil,
		},
		{
			desc:    "no token retriever",
			mutate:  func(c *config.Config) { c.AWS.Credentials.TokenRetriever = "" },
			wantErr: errNoAWSTokenRetriever,
		},
		{
			desc:    "unknown token retriever",
			mutate:  func(c *config.Config) { c.AWS.Credentials.TokenRetriever = "kube_sa_token" },
			wantErr: errUnknownAWSTokenRetriever,
		},
		{
			desc:    "static without keys",
			mutate:  func(c *config.Config) { c.AWS.Credentials.TokenRetriever = staticTokenRetriever },
			wantErr: errNoStaticCredentials,
		},
		{
			desc: "static with keys",
			mutate: func(c *config.Config) {
				c.AWS.Credentials.TokenRetriever = staticTokenRetriever
				c.AWS.Credentials.Static = config.StaticCredentialsConfig{AccessKeyID: "test", SecretAccessKey: "test"}
			},
			wantErr: nil,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			conf := config.New()
			tc.mutate(conf)
			if err := validateAWSConfig(conf); !errors.Is(err, tc.wantErr) {
				t.Fatalf("want error %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestNewDispatcher(t *testing.T) {
	conf := config.New()
	conf.IAM.OIDCProviderARN = oidcProviderARN
	cat, err := loadCatalog(conf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fakeIAM := fakeaws.NewIAM()
	fakeIAM.AddRole("app-role", conf.IAM.RolePath, nil)
	clients := apis{
		iam:      fakeIAM,
		s3:       fakeaws.NewS3(),
		dynamodb: fakeaws.NewDynamoDB(),
	}

	dispatcher, err := newDispatcher(conf, cat, clients)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dispatcher.Length() != len(cat.Services) {
		t.Fatalf("want %d services, got %d", len(cat.Services), dispatcher.Length())
	}

	for _, svc := range cat.Services {
		got, err := dispatcher.Lookup(svc.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Kind != svc.Kind() {
			t.Fatalf("want kind %s, got %s", svc.Kind(), got.Kind)
		}
		if len(got.Plans) != len(svc.Plans) || len(got.Plans) == 0 {
			t.Fatalf("want %d plans, got %v", len(svc.Plans), got.Plans)
		}
	}

	// The DynamoDB broker records the table prefix on the named role
	instanceID := uuid.NewString()
	svc := cat.Services[slices.IndexFunc(cat.Services, func(s catalog.Service) bool {
		return s.Kind() == broker.KindDynamoDB
	})]
	_, err = dispatcher.Provision(context.Background(), broker.ProvisionRequest{
		InstanceID: instanceID,
		ServiceID:  svc.ID,
		Parameters: json.RawMessage(`{"role_name":"app-role"}`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	role, value, err := newRoles(conf, fakeIAM).FindTagged(context.Background(), broker.KindDynamoDB, instanceID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if role == nil || role.Name != "app-role" {
		t.Fatalf("unexpected role %+v", role)
	}
	if !strings.HasPrefix(value, conf.DynamoDB.TablePrefix) {
		t.Fatalf("unexpected table prefix %q", value)
	}

	var out bytes.Buffer
	if err := printInstance(&out, broker.KindDynamoDB, instanceID, role, value); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), value) {
		t.Fatalf("table prefix missing in output:\n%s", out.String())
	}
}

func TestNewDispatcherRejectsUnknownKinds(t *testing.T) {
	cat := &catalog.Catalog{
		Services: []catalog.Service{
			{ID: "svc", Name: "svc", Metadata: map[string]any{catalog.MetadataKind: "sqs"}},
		},
	}
	clients := apis{iam: fakeaws.NewIAM(), s3: fakeaws.NewS3(), dynamodb: fakeaws.NewDynamoDB()}

	if _, err := newDispatcher(config.New(), cat, clients); !errors.Is(err, catalog.ErrInvalidCatalog) {
		t.Fatalf("want error %v, got %v", catalog.ErrInvalidCatalog, err)
	}
}

func TestValidateInstanceArgs(t *testing.T) {
	testCases := []struct {
		desc       string
		kind       string
		instanceID string
		wantErr    bool
	}{
		{desc: "valid", kind: broker.KindS3, instanceID: uuid.NewString()},
		{desc: "unknown kind", kind: "sqs", instanceID: uuid.NewString(), wantErr: true},
		{desc: "opaque id", kind: broker.KindIAMRole, instanceID: "not-a-uuid"},
		{desc: "empty id", kind: broker.KindDynamoDB, instanceID: "", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			err := validateInstanceArgs(tc.kind, tc.instanceID)
			if (err != nil) != tc.wantErr {
				t.Fatalf("want error %t, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestInstanceTags(t *testing.T) {
	roleTags := map[string]string{
		"s3-b":         "bucket-b|eu-west-1",
		"dynamodb-a":   "cf-a-",
		"iam-role-c":   "cf_org_space_c",
		"org_name":     "org",
		"instance_id":  "c",
		"unrelated-s3": "x",
	}

	want := []string{
		"dynamodb-a=cf-a-",
		"iam-role-c=cf_org_space_c",
		"s3-b=bucket-b|eu-west-1",
	}
	if got := instanceTags(roleTags); !slices.Equal(got, want) {
		t.Fatalf("want %v, got %v", want, got)
	}
}

func TestPrintCatalog(t *testing.T) {
	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var out bytes.Buffer
	if err := printCatalog(&out, cat, outputJSON); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var decoded catalog.Catalog
	if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid json output: %v", err)
	}
	if len(decoded.Services) != len(cat.Services) {
		t.Fatalf("want %d services, got %d", len(cat.Services), len(decoded.Services))
	}

	out.Reset()
	if err := printCatalog(&out, cat, outputYAML); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reparsed, err := catalog.Parse(out.Bytes())
	if err != nil {
		t.Fatalf("invalid yaml output: %v", err)
	}
	if reparsed.Services[0].ID != cat.Services[0].ID {
		t.Fatalf("unexpected service %s", reparsed.Services[0].ID)
	}

	if err := printCatalog(&out, cat, "xml"); !errors.Is(err, errUnknownOutput) {
		t.Fatalf("want error %v, got %v", errUnknownOutput, err)
	}
}
