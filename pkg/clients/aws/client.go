// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package aws provides the AWS API clients used by the brokers.
package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/gardener/aws-service-broker/pkg/utils/ptr"
)

// Client is a wrapper for an AWS API client, which comes with additional
// metadata such as the credentials which were used to create the client, and
// also includes information about the caller identity.
type Client[T any] struct {
	// Credentials is the name of the token retriever, which provided the
	// credentials of the client.
	Credentials string

	// Identity is the caller identity of the client.
	Identity Identity

	// Client is the client used to make API calls to the AWS services.
	Client T
}

// Identity describes the calling entity of the API clients.
type Identity struct {
	// Account is the AWS Account ID that owns or contains the calling
	// entity.
	AccountID string

	// ARN is the AWS ARN associated with the calling entity.
	ARN string

	// UserID is the unique identifier of the calling identity.
	UserID string
}

// STSAPI is the subset of the STS API used to resolve the caller identity.
type STSAPI interface {
	GetCallerIdentity(ctx context.Context, in *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// GetCallerIdentity returns the identity of the entity calling the AWS APIs.
func GetCallerIdentity(ctx context.Context, client STSAPI) (Identity, error) {
	out, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return Identity{}, err
	}

	identity := Identity{
		AccountID: ptr.StringFromPointer(out.Account),
		ARN:       ptr.StringFromPointer(out.Arn),
		UserID:    ptr.StringFromPointer(out.UserId),
	}

	return identity, nil
}

// Options configures the clients of a [Clientset].
type Options struct {
	// Credentials is the name of the token retriever, which provided the
	// credentials.
	Credentials string

	// Endpoint overrides the base endpoint of all clients. S3 requests use
	// path-style addressing when set.
	Endpoint string
}

// Clientset provides the API clients of the services managed by the brokers.
type Clientset struct {
	IAM      *Client[*iam.Client]
	S3       *Client[*s3.Client]
	DynamoDB *Client[*dynamodb.Client]
}

// NewClientset creates the API clients from the given [aws.Config] and
// resolves the caller identity, which also verifies the credentials.
func NewClientset(ctx context.Context, awsConf aws.Config, opts Options) (*Clientset, error) {
	stsClient := sts.NewFromConfig(awsConf, func(o *sts.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	})
	identity, err := GetCallerIdentity(ctx, stsClient)
	if err != nil {
		return nil, err
	}

	iamClient := iam.NewFromConfig(awsConf, func(o *iam.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	})
	s3Client := s3.NewFromConfig(awsConf, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	dynamodbClient := dynamodb.NewFromConfig(awsConf, func(o *dynamodb.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	})

	cs := &Clientset{
		IAM:      newClient(opts.Credentials, identity, iamClient),
		S3:       newClient(opts.Credentials, identity, s3Client),
		DynamoDB: newClient(opts.Credentials, identity, dynamodbClient),
	}

	return cs, nil
}

func newClient[T any](creds string, identity Identity, client T) *Client[T] {
	return &Client[T]{
		Credentials: creds,
		Identity:    identity,
		Client:      client,
	}
}
