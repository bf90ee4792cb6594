// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"

	"github.com/gardener/aws-service-broker/pkg/aws/gateway"
	"github.com/gardener/aws-service-broker/pkg/broker"
	"github.com/gardener/aws-service-broker/pkg/broker/bucket"
	"github.com/gardener/aws-service-broker/pkg/broker/catalog"
	"github.com/gardener/aws-service-broker/pkg/broker/iamrole"
	"github.com/gardener/aws-service-broker/pkg/broker/roles"
	"github.com/gardener/aws-service-broker/pkg/broker/tableprefix"
	"github.com/gardener/aws-service-broker/pkg/core/config"
)

// na is the placeholder of missing values in tables.
const na = "N/A"

// errNoOIDCProvider is an error, which is returned when the catalog offers IAM
// roles, but no OIDC provider has been configured.
var errNoOIDCProvider = errors.New("no OIDC provider ARN specified")

// configKey is the key used to store the parsed configuration in the context.
type configKey struct{}

// getConfig extracts and returns the [config.Config] from app context.
func getConfig(ctx *cli.Context) *config.Config {
	conf, ok := ctx.Context.Value(configKey{}).(*config.Config)
	if !ok {
		panic("cannot get config from context")
	}

	return conf
}

// newTableWriter returns a new [tablewriter.Table] with the given headers.
func newTableWriter(w io.Writer, headers []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.Header(headers)

	return table
}

// loadCatalog loads the catalog and validates the kinds bound to its
// services.
func loadCatalog(conf *config.Config) (*catalog.Catalog, error) {
	cat, err := catalog.Load(conf.Catalog.Path)
	if err != nil {
		return nil, err
	}

	if err := cat.ValidateKinds(broker.Kinds()...); err != nil {
		return nil, err
	}

	if cat.HasKind(broker.KindIAMRole) && conf.IAM.OIDCProviderARN == "" {
		return nil, fmt.Errorf("%w: required by the %s service", errNoOIDCProvider, broker.KindIAMRole)
	}

	return cat, nil
}

// apis groups the AWS APIs used by the brokers.
type apis struct {
	iam      gateway.IAMAPI
	s3       gateway.S3API
	dynamodb gateway.DynamoDBAPI
}

// newRoles creates the shared role helper of the brokers.
func newRoles(conf *config.Config, api gateway.IAMAPI) *broker.Roles {
	iamGateway := gateway.NewIAM(api)

	return broker.NewRoles(roles.NewResolver(iamGateway, conf.IAM.RolePath), iamGateway)
}

// newDispatcher creates the brokers of the kinds and binds them to the
// services of the catalog.
func newDispatcher(conf *config.Config, cat *catalog.Catalog, clients apis) (*broker.Dispatcher, error) {
	helper := newRoles(conf, clients.iam)
	region := conf.AWS.EffectiveRegion()

	brokers := map[string]broker.Broker{
		broker.KindIAMRole: iamrole.New(helper, conf.IAM),
		broker.KindS3: bucket.New(helper, gateway.NewS3(clients.s3), bucket.Options{
			BucketNamePrefix: conf.S3.BucketNamePrefix,
			Region:           region,
		}),
		broker.KindDynamoDB: tableprefix.New(helper, gateway.NewDynamoDB(clients.dynamodb), tableprefix.Options{
			TablePrefix:  conf.DynamoDB.TablePrefix,
			Region:       region,
			DeleteTables: conf.DynamoDB.ShouldDeleteTables(),
		}),
	}

	services := make([]broker.Service, 0, len(cat.Services))
	for _, svc := range cat.Services {
		b, ok := brokers[svc.Kind()]
		if !ok {
			return nil, fmt.Errorf("%w: service %s has unsupported kind %q", catalog.ErrInvalidCatalog, svc.Name, svc.Kind())
		}
		plans := make([]string, 0, len(svc.Plans))
		for _, plan := range svc.Plans {
			plans = append(plans, plan.ID)
		}
		services = append(services, broker.Service{ID: svc.ID, Kind: svc.Kind(), Broker: b, Plans: plans})
	}

	return broker.NewDispatcher(services...)
}
