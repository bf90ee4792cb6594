// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/gardener/aws-service-broker/pkg/aws/stscreds/provider"
	"github.com/gardener/aws-service-broker/pkg/aws/stscreds/tokenfile"
	awsclients "github.com/gardener/aws-service-broker/pkg/clients/aws"
	"github.com/gardener/aws-service-broker/pkg/core/config"
)

// staticTokenRetriever is the name of the retriever, which uses the static
// access keys from the config.
const staticTokenRetriever = "static"

// errNoAWSTokenRetriever is an error, which is returned when there was no token
// retriever name specified.
var errNoAWSTokenRetriever = errors.New("no AWS token retriever specified")

// errUnknownAWSTokenRetriever is an error, which is returned when using an
// unknown/unsupported identity token retriever.
var errUnknownAWSTokenRetriever = errors.New("unknown AWS token retriever specified")

// errNoStaticCredentials is an error, which is returned when the static token
// retriever is used without access keys.
var errNoStaticCredentials = errors.New("no static AWS credentials specified")

// validateAWSConfig validates the AWS configuration settings.
func validateAWSConfig(conf *config.Config) error {
	creds := conf.AWS.Credentials
	if creds.TokenRetriever == "" {
		return errNoAWSTokenRetriever
	}

	supportedTokenRetrievers := []string{
		config.DefaultAWSTokenRetriever,
		tokenfile.TokenRetrieverName,
		staticTokenRetriever,
	}
	if !slices.Contains(supportedTokenRetrievers, creds.TokenRetriever) {
		return fmt.Errorf("%w: %s", errUnknownAWSTokenRetriever, creds.TokenRetriever)
	}

	if creds.TokenRetriever == staticTokenRetriever && (creds.Static.AccessKeyID == "" || creds.Static.SecretAccessKey == "") {
		return errNoStaticCredentials
	}

	return nil
}

// newAWSSTSClient creates a new [sts.Client] based on the provided
// [config.Config] spec.
func newAWSSTSClient(conf *config.Config) *sts.Client {
	awsConf := aws.Config{
		Region: conf.AWS.EffectiveRegion(),
		AppID:  conf.AWS.AppID,
	}
	client := sts.NewFromConfig(awsConf, func(o *sts.Options) {
		if conf.AWS.Endpoint != "" {
			o.BaseEndpoint = aws.String(conf.AWS.Endpoint)
		}
	})

	return client
}

// loadAWSConfig loads the AWS configuration for the configured credentials.
func loadAWSConfig(ctx context.Context, conf *config.Config) (aws.Config, error) {
	// Default set of options
	opts := []func(o *awsconfig.LoadOptions) error{
		awsconfig.WithRegion(conf.AWS.Region),
		awsconfig.WithDefaultRegion(conf.AWS.DefaultRegion),
		awsconfig.WithAppID(conf.AWS.AppID),
	}

	creds := conf.AWS.Credentials
	switch creds.TokenRetriever {
	case config.DefaultAWSTokenRetriever:
		// Load shared credentials config only
		break // nolint: revive
	case tokenfile.TokenRetrieverName:
		credsProvider, err := provider.FromTokenFile(newAWSSTSClient(conf), creds.TokenFile)
		if err != nil {
			return aws.Config{}, err
		}
		opts = append(opts, awsconfig.WithCredentialsProvider(credsProvider))
	case staticTokenRetriever:
		credsProvider := credentials.NewStaticCredentialsProvider(
			creds.Static.AccessKeyID,
			creds.Static.SecretAccessKey,
			creds.Static.SessionToken,
		)
		opts = append(opts, awsconfig.WithCredentialsProvider(credsProvider))
	default:
		return aws.Config{}, errUnknownAWSTokenRetriever
	}

	return awsconfig.LoadDefaultConfig(ctx, opts...)
}

// newClientset creates the AWS API clients used by the brokers.
func newClientset(ctx context.Context, conf *config.Config) (*awsclients.Clientset, error) {
	if err := validateAWSConfig(conf); err != nil {
		return nil, err
	}

	awsConf, err := loadAWSConfig(ctx, conf)
	if err != nil {
		return nil, err
	}

	opts := awsclients.Options{
		Credentials: conf.AWS.Credentials.TokenRetriever,
		Endpoint:    conf.AWS.Endpoint,
	}
	cs, err := awsclients.NewClientset(ctx, awsConf, opts)
	if err != nil {
		return nil, fmt.Errorf("unable to configure AWS clients: %w", err)
	}

	slog.Info(
		"configured AWS clients",
		"credentials", opts.Credentials,
		"region", awsConf.Region,
		"account_id", cs.IAM.Identity.AccountID,
		"arn", cs.IAM.Identity.ARN,
		"user_id", cs.IAM.Identity.UserID,
	)

	return cs, nil
}

// newAPIs returns the AWS APIs of the given clientset.
func newAPIs(cs *awsclients.Clientset) apis {
	return apis{
		iam:      cs.IAM.Client,
		s3:       cs.S3.Client,
		dynamodb: cs.DynamoDB.Client,
	}
}
