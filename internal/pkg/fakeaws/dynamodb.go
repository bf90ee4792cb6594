// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package fakeaws

import (
	"context"
	"slices"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/gardener/aws-service-broker/pkg/utils/ptr"
)

// DynamoDB is an in-memory implementation of the DynamoDB API.
type DynamoDB struct {
	mu       sync.Mutex
	tables   []string
	failures map[string]error

	// PageSize is the maximum number of table names returned per page.
	PageSize int

	// Calls counts the API calls per operation.
	Calls map[string]int
}

// NewDynamoDB returns a new [DynamoDB] fake with the given tables.
func NewDynamoDB(tables ...string) *DynamoDB {
	f := &DynamoDB{
		failures: make(map[string]error),
		PageSize: DefaultPageSize,
		Calls:    make(map[string]int),
	}
	for _, t := range tables {
		f.CreateTable(t)
	}

	return f
}

// FailOn makes the given operation fail with err.
func (f *DynamoDB) FailOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = err
}

// CreateTable adds a table with the given name.
func (f *DynamoDB) CreateTable(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !slices.Contains(f.tables, name) {
		f.tables = append(f.tables, name)
		slices.Sort(f.tables)
	}
}

// Tables returns the names of all tables in lexicographic order.
func (f *DynamoDB) Tables() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return slices.Clone(f.tables)
}

func (f *DynamoDB) begin(op string) error {
	f.Calls[op]++

	return f.failures[op]
}

// ListTables implements the DynamoDB API.
func (f *DynamoDB) ListTables(_ context.Context, in *dynamodb.ListTablesInput, _ ...func(*dynamodb.Options)) (*dynamodb.ListTablesOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("ListTables"); err != nil {
		return nil, err
	}

	start := 0
	if in.ExclusiveStartTableName != nil {
		start, _ = slices.BinarySearch(f.tables, *in.ExclusiveStartTableName)
		if start < len(f.tables) && f.tables[start] == *in.ExclusiveStartTableName {
			start++
		}
	}

	end := min(start+pageSize(in.Limit, f.PageSize), len(f.tables))
	out := &dynamodb.ListTablesOutput{
		TableNames: slices.Clone(f.tables[start:end]),
	}
	if end < len(f.tables) {
		out.LastEvaluatedTableName = ptr.To(f.tables[end-1])
	}

	return out, nil
}

// DeleteTable implements the DynamoDB API.
func (f *DynamoDB) DeleteTable(_ context.Context, in *dynamodb.DeleteTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("DeleteTable"); err != nil {
		return nil, err
	}

	name := ptr.StringFromPointer(in.TableName)
	idx := slices.Index(f.tables, name)
	if idx < 0 {
		return nil, &types.ResourceNotFoundException{Message: ptr.To("Requested resource not found: Table: " + name + " not found")}
	}
	f.tables = slices.Delete(f.tables, idx, idx+1)

	return &dynamodb.DeleteTableOutput{}, nil
}
