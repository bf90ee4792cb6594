// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package policy provides the IAM policy documents attached to the roles
// managed by the broker.
package policy

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Version is the version of the IAM policy language.
const Version = "2012-10-17"

// EffectAllow allows the actions of a statement.
const EffectAllow = "Allow"

// ErrInvalidProviderARN is an error, which is returned when the ARN of an OIDC
// identity provider cannot be parsed.
var ErrInvalidProviderARN = errors.New("invalid OIDC provider ARN")

// Document is an IAM policy document.
type Document struct {
	Version   string      `json:"Version"`
	Statement []Statement `json:"Statement"`
}

// Statement is a single statement of an IAM policy document.
type Statement struct {
	Sid       string         `json:"Sid,omitempty"`
	Effect    string         `json:"Effect"`
	Principal map[string]any `json:"Principal,omitempty"`
	Action    []string       `json:"Action"`
	Resource  []string       `json:"Resource,omitempty"`
	Condition map[string]any `json:"Condition,omitempty"`
}

// String returns the JSON representation of the document.
func (d Document) String() string {
	data, err := json.Marshal(d)
	if err != nil {
		// A document consists of strings, slices and maps only
		panic(err)
	}

	return string(data)
}

// Parse parses the given JSON policy document. Policy documents returned by
// IAM are URL-encoded, callers need to decode them first.
func Parse(data string) (Document, error) {
	var doc Document
	err := json.Unmarshal([]byte(data), &doc)

	return doc, err
}

// Issuer returns the issuer of the OIDC identity provider with the given ARN,
// e.g. oidc.example.org for arn:aws:iam::123456789012:oidc-provider/oidc.example.org.
func Issuer(providerARN string) (string, error) {
	_, issuer, found := strings.Cut(providerARN, ":oidc-provider/")
	if !found || issuer == "" {
		return "", fmt.Errorf("%w: %s", ErrInvalidProviderARN, providerARN)
	}

	return issuer, nil
}

// WebIdentityTrust returns the trust policy of a role, which may be assumed
// via web identity tokens issued for workloads of the given org and space.
func WebIdentityTrust(providerARN, orgGUID, spaceGUID string) (Document, error) {
	issuer, err := Issuer(providerARN)
	if err != nil {
		return Document{}, err
	}

	doc := Document{
		Version: Version,
		Statement: []Statement{
			{
				Effect:    EffectAllow,
				Principal: map[string]any{"Federated": providerARN},
				Action:    []string{"sts:AssumeRoleWithWebIdentity"},
				Condition: map[string]any{
					"StringLike": map[string]string{
						issuer + ":sub": orgGUID + ":" + spaceGUID + ":*",
						issuer + ":aud": "sts.amazonaws.com",
					},
				},
			},
		},
	}

	return doc, nil
}

var bucketActions = []string{
	"s3:ListBucket",
	"s3:ListBucketVersions",
	"s3:ListBucketMultipartUploads",
	"s3:GetAccelerateConfiguration",
	"s3:PutAccelerateConfiguration",
	"s3:GetBucketAcl",
	"s3:PutBucketAcl",
	"s3:GetBucketCORS",
	"s3:PutBucketCORS",
	"s3:GetBucketVersioning",
	"s3:PutBucketVersioning",
	"s3:GetBucketRequestPayment",
	"s3:PutBucketRequestPayment",
	"s3:GetBucketLocation",
	"s3:GetBucketPolicy",
	"s3:DeleteBucketPolicy",
	"s3:PutBucketPolicy",
	"s3:GetBucketNotification",
	"s3:PutBucketNotification",
	"s3:GetBucketLogging",
	"s3:PutBucketLogging",
	"s3:GetBucketTagging",
	"s3:PutBucketTagging",
	"s3:GetBucketWebsite",
	"s3:PutBucketWebsite",
	"s3:DeleteBucketWebsite",
	"s3:GetLifecycleConfiguration",
	"s3:PutLifecycleConfiguration",
	"s3:PutReplicationConfiguration",
	"s3:GetReplicationConfiguration",
	"s3:DeleteReplicationConfiguration",
}

var objectActions = []string{
	"s3:GetObject",
	"s3:GetObjectVersion",
	"s3:PutObject",
	"s3:GetObjectAcl",
	"s3:GetObjectVersionAcl",
	"s3:PutObjectAcl",
	"s3:PutObjectVersionAcl",
	"s3:DeleteObject",
	"s3:DeleteObjectVersion",
	"s3:ListMultipartUploadParts",
	"s3:AbortMultipartUpload",
	"s3:GetObjectTorrent",
	"s3:GetObjectVersionTorrent",
	"s3:RestoreObject",
	"s3:PutObjectTagging",
	"s3:PutObjectVersionTagging",
	"s3:GetObjectTagging",
	"s3:GetObjectVersionTagging",
	"s3:DeleteObjectTagging",
	"s3:DeleteObjectVersionTagging",
}

// BucketAccess returns the policy granting access to the given bucket and its
// objects.
func BucketAccess(bucket string) Document {
	bucketARN := "arn:aws:s3:::" + bucket

	return Document{
		Version: Version,
		Statement: []Statement{
			{
				Effect:   EffectAllow,
				Action:   []string{"s3:ListAllMyBuckets"},
				Resource: []string{"arn:aws:s3:::*"},
			},
			{
				Effect:   EffectAllow,
				Action:   bucketActions,
				Resource: []string{bucketARN},
			},
			{
				Effect:   EffectAllow,
				Action:   objectActions,
				Resource: []string{bucketARN + "/*"},
			},
		},
	}
}

// TablePrefixAccess returns the policy granting full access to the DynamoDB
// tables whose names start with the given prefix.
func TablePrefixAccess(prefix string) Document {
	return Document{
		Version: Version,
		Statement: []Statement{
			{
				Effect:   EffectAllow,
				Action:   []string{"dynamodb:*"},
				Resource: []string{"arn:aws:dynamodb:*:*:table/" + prefix + "*"},
			},
		},
	}
}
