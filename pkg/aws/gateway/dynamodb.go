// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	awsutils "github.com/gardener/aws-service-broker/pkg/aws/utils"
	"github.com/gardener/aws-service-broker/pkg/utils/ptr"
	"github.com/gardener/aws-service-broker/pkg/utils/slog"
)

// DynamoDBAPI is the subset of the DynamoDB API used by [DynamoDB].
type DynamoDBAPI interface {
	ListTables(ctx context.Context, params *dynamodb.ListTablesInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ListTablesOutput, error)
	DeleteTable(ctx context.Context, params *dynamodb.DeleteTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteTableOutput, error)
}

var _ DynamoDBAPI = (*dynamodb.Client)(nil)

// DynamoDB is the gateway to the DynamoDB API.
type DynamoDB struct {
	client DynamoDBAPI
}

// NewDynamoDB creates a new [DynamoDB] gateway using the given API client.
func NewDynamoDB(client DynamoDBAPI) *DynamoDB {
	return &DynamoDB{client: client}
}

// ListTables returns the names of the tables starting with the given prefix.
func (g *DynamoDB) ListTables(ctx context.Context, prefix string) ([]string, error) {
	items := make([]string, 0)
	paginator := dynamodb.NewListTablesPaginator(g.client, &dynamodb.ListTablesInput{})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list tables: %w", err)
		}

		for _, name := range page.TableNames {
			if strings.HasPrefix(name, prefix) {
				items = append(items, name)
			}
		}
	}

	return items, nil
}

// DeleteTable deletes the table with the given name. [ErrNotFound] is
// returned, if the table does not exist.
func (g *DynamoDB) DeleteTable(ctx context.Context, name string) error {
	_, err := g.client.DeleteTable(ctx, &dynamodb.DeleteTableInput{
		TableName: ptr.To(name),
	})

	switch {
	case awsutils.HasErrorCode(err, codeResourceNotFound):
		return fmt.Errorf("%w: table %s", ErrNotFound, name)
	case err != nil:
		return fmt.Errorf("delete table %s: %w", name, err)
	}

	slog.GetLogger(ctx).Info("deleted table", "table", name)

	return nil
}

// DeleteTablesWithPrefix deletes all tables starting with the given prefix and
// returns their names.
func (g *DynamoDB) DeleteTablesWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	names, err := g.ListTables(ctx, prefix)
	if err != nil {
		return nil, err
	}

	deleted := make([]string, 0, len(names))
	for _, name := range names {
		err := g.DeleteTable(ctx, name)
		switch {
		case errors.Is(err, ErrNotFound):
			continue
		case err != nil:
			return deleted, err
		}
		deleted = append(deleted, name)
	}

	return deleted, nil
}
