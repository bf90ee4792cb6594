// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package fakeaws provides in-memory implementations of the AWS APIs used by
// the broker. The fakes paginate with small page sizes and return the same
// error types as the AWS SDK, so that callers exercise their pagination loops
// and error handling in tests.
package fakeaws

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/smithy-go"

	awsutils "github.com/gardener/aws-service-broker/pkg/aws/utils"
	"github.com/gardener/aws-service-broker/pkg/utils/ptr"
)

// DefaultPageSize is the page size used by the fakes, unless configured
// otherwise.
const DefaultPageSize = 2

// AccountID is the account ID used in the ARNs of fake resources.
const AccountID = "123456789012"

// Role is a snapshot of a fake IAM role.
type Role struct {
	Name     string
	Path     string
	ARN      string
	Trust    string
	Tags     map[string]string
	Inline   map[string]string
	Attached []string
}

// IAM is an in-memory implementation of the IAM API.
type IAM struct {
	mu       sync.Mutex
	roles    map[string]*Role
	order    []string
	failures map[string]error

	// PageSize is the maximum number of items returned per page.
	PageSize int

	// Calls counts the API calls per operation.
	Calls map[string]int
}

// NewIAM returns a new empty [IAM] fake.
func NewIAM() *IAM {
	return &IAM{
		roles:    make(map[string]*Role),
		failures: make(map[string]error),
		PageSize: DefaultPageSize,
		Calls:    make(map[string]int),
	}
}

// FailOn makes the given operation fail with err.
func (f *IAM) FailOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = err
}

// CallCount returns the number of calls of the given operation.
func (f *IAM) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.Calls[op]
}

// AddRole seeds a role with the given name, path and tags.
func (f *IAM) AddRole(name, path string, tags map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addRole(name, path, "", tags)
}

// AttachManagedPolicy attaches a managed policy to the given role.
func (f *IAM) AttachManagedPolicy(roleName, policyARN string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.roles[roleName]; ok {
		r.Attached = append(r.Attached, policyARN)
	}
}

// Role returns a snapshot of the role with the given name.
func (f *IAM) Role(name string) (Role, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, ok := f.roles[name]
	if !ok {
		return Role{}, false
	}

	return Role{
		Name:     r.Name,
		Path:     r.Path,
		ARN:      r.ARN,
		Trust:    r.Trust,
		Tags:     maps.Clone(r.Tags),
		Inline:   maps.Clone(r.Inline),
		Attached: slices.Clone(r.Attached),
	}, true
}

// RoleNames returns the names of all roles in creation order.
func (f *IAM) RoleNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return slices.Clone(f.order)
}

func (f *IAM) addRole(name, path, trust string, tags map[string]string) *Role {
	if path == "" {
		path = "/"
	}
	r := &Role{
		Name:   name,
		Path:   path,
		ARN:    fmt.Sprintf("arn:aws:iam::%s:role%s%s", AccountID, path, name),
		Trust:  trust,
		Tags:   maps.Clone(tags),
		Inline: make(map[string]string),
	}
	if r.Tags == nil {
		r.Tags = make(map[string]string)
	}
	f.roles[name] = r
	f.order = append(f.order, name)

	return r
}

func (f *IAM) removeRole(name string) {
	delete(f.roles, name)
	f.order = slices.DeleteFunc(f.order, func(n string) bool { return n == name })
}

// begin records the call and returns the injected failure, if any.
func (f *IAM) begin(op string) error {
	f.Calls[op]++

	return f.failures[op]
}

func (f *IAM) role(name *string) (*Role, error) {
	r, ok := f.roles[ptr.StringFromPointer(name)]
	if !ok {
		return nil, &types.NoSuchEntityException{
			Message: ptr.To(fmt.Sprintf("The role with name %s cannot be found.", ptr.StringFromPointer(name))),
		}
	}

	return r, nil
}

// page returns the window of n items starting at the given marker, the next
// marker and whether the result is truncated.
func page(n int, marker *string, size int) (int, int, *string, bool) {
	start, _ := strconv.Atoi(ptr.StringFromPointer(marker))
	start = min(start, n)
	end := min(start+size, n)
	if end < n {
		return start, end, ptr.To(strconv.Itoa(end)), true
	}

	return start, end, nil, false
}

func pageSize(limit *int32, def int) int {
	if limit != nil && int(*limit) > 0 && int(*limit) < def {
		return int(*limit)
	}

	return def
}

func (f *IAM) toRole(r *Role) types.Role {
	return types.Role{
		RoleName: ptr.To(r.Name),
		Path:     ptr.To(r.Path),
		Arn:      ptr.To(r.ARN),
		RoleId:   ptr.To("AROA" + strings.ToUpper(r.Name)),
	}
}

// CreateRole implements the IAM API.
func (f *IAM) CreateRole(_ context.Context, in *iam.CreateRoleInput, _ ...func(*iam.Options)) (*iam.CreateRoleOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("CreateRole"); err != nil {
		return nil, err
	}

	name := ptr.StringFromPointer(in.RoleName)
	if _, exists := f.roles[name]; exists {
		return nil, &types.EntityAlreadyExistsException{
			Message: ptr.To(fmt.Sprintf("Role with name %s already exists.", name)),
		}
	}

	r := f.addRole(name, ptr.StringFromPointer(in.Path), ptr.StringFromPointer(in.AssumeRolePolicyDocument), awsutils.IAMTagsToMap(in.Tags))
	role := f.toRole(r)

	return &iam.CreateRoleOutput{Role: &role}, nil
}

// DeleteRole implements the IAM API.
func (f *IAM) DeleteRole(_ context.Context, in *iam.DeleteRoleInput, _ ...func(*iam.Options)) (*iam.DeleteRoleOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("DeleteRole"); err != nil {
		return nil, err
	}

	r, err := f.role(in.RoleName)
	if err != nil {
		return nil, err
	}
	if len(r.Inline) > 0 || len(r.Attached) > 0 {
		return nil, &types.DeleteConflictException{
			Message: ptr.To("Cannot delete entity, must delete policies first."),
		}
	}
	f.removeRole(r.Name)

	return &iam.DeleteRoleOutput{}, nil
}

// ListRoles implements the IAM API.
func (f *IAM) ListRoles(_ context.Context, in *iam.ListRolesInput, _ ...func(*iam.Options)) (*iam.ListRolesOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("ListRoles"); err != nil {
		return nil, err
	}

	prefix := ptr.Value(in.PathPrefix, "/")
	matching := make([]types.Role, 0)
	for _, name := range f.order {
		r := f.roles[name]
		if strings.HasPrefix(r.Path, prefix) {
			matching = append(matching, f.toRole(r))
		}
	}

	start, end, marker, truncated := page(len(matching), in.Marker, pageSize(in.MaxItems, f.PageSize))
	out := &iam.ListRolesOutput{
		Roles:       matching[start:end],
		Marker:      marker,
		IsTruncated: truncated,
	}

	return out, nil
}

// ListRoleTags implements the IAM API.
func (f *IAM) ListRoleTags(_ context.Context, in *iam.ListRoleTagsInput, _ ...func(*iam.Options)) (*iam.ListRoleTagsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("ListRoleTags"); err != nil {
		return nil, err
	}

	r, err := f.role(in.RoleName)
	if err != nil {
		return nil, err
	}

	all := awsutils.MapToIAMTags(r.Tags)
	start, end, marker, truncated := page(len(all), in.Marker, pageSize(in.MaxItems, f.PageSize))
	out := &iam.ListRoleTagsOutput{
		Tags:        all[start:end],
		Marker:      marker,
		IsTruncated: truncated,
	}

	return out, nil
}

// TagRole implements the IAM API.
func (f *IAM) TagRole(_ context.Context, in *iam.TagRoleInput, _ ...func(*iam.Options)) (*iam.TagRoleOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("TagRole"); err != nil {
		return nil, err
	}

	r, err := f.role(in.RoleName)
	if err != nil {
		return nil, err
	}
	maps.Copy(r.Tags, awsutils.IAMTagsToMap(in.Tags))

	return &iam.TagRoleOutput{}, nil
}

// UntagRole implements the IAM API.
func (f *IAM) UntagRole(_ context.Context, in *iam.UntagRoleInput, _ ...func(*iam.Options)) (*iam.UntagRoleOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("UntagRole"); err != nil {
		return nil, err
	}

	r, err := f.role(in.RoleName)
	if err != nil {
		return nil, err
	}
	for _, k := range in.TagKeys {
		delete(r.Tags, k)
	}

	return &iam.UntagRoleOutput{}, nil
}

// PutRolePolicy implements the IAM API.
func (f *IAM) PutRolePolicy(_ context.Context, in *iam.PutRolePolicyInput, _ ...func(*iam.Options)) (*iam.PutRolePolicyOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("PutRolePolicy"); err != nil {
		return nil, err
	}

	r, err := f.role(in.RoleName)
	if err != nil {
		return nil, err
	}
	r.Inline[ptr.StringFromPointer(in.PolicyName)] = ptr.StringFromPointer(in.PolicyDocument)

	return &iam.PutRolePolicyOutput{}, nil
}

// DeleteRolePolicy implements the IAM API.
func (f *IAM) DeleteRolePolicy(_ context.Context, in *iam.DeleteRolePolicyInput, _ ...func(*iam.Options)) (*iam.DeleteRolePolicyOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("DeleteRolePolicy"); err != nil {
		return nil, err
	}

	r, err := f.role(in.RoleName)
	if err != nil {
		return nil, err
	}

	name := ptr.StringFromPointer(in.PolicyName)
	if _, ok := r.Inline[name]; !ok {
		return nil, &types.NoSuchEntityException{
			Message: ptr.To(fmt.Sprintf("The role policy with name %s cannot be found.", name)),
		}
	}
	delete(r.Inline, name)

	return &iam.DeleteRolePolicyOutput{}, nil
}

// ListRolePolicies implements the IAM API.
func (f *IAM) ListRolePolicies(_ context.Context, in *iam.ListRolePoliciesInput, _ ...func(*iam.Options)) (*iam.ListRolePoliciesOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("ListRolePolicies"); err != nil {
		return nil, err
	}

	r, err := f.role(in.RoleName)
	if err != nil {
		return nil, err
	}

	names := slices.Sorted(maps.Keys(r.Inline))
	start, end, marker, truncated := page(len(names), in.Marker, pageSize(in.MaxItems, f.PageSize))
	out := &iam.ListRolePoliciesOutput{
		PolicyNames: names[start:end],
		Marker:      marker,
		IsTruncated: truncated,
	}

	return out, nil
}

// ListAttachedRolePolicies implements the IAM API.
func (f *IAM) ListAttachedRolePolicies(_ context.Context, in *iam.ListAttachedRolePoliciesInput, _ ...func(*iam.Options)) (*iam.ListAttachedRolePoliciesOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("ListAttachedRolePolicies"); err != nil {
		return nil, err
	}

	r, err := f.role(in.RoleName)
	if err != nil {
		return nil, err
	}

	start, end, marker, truncated := page(len(r.Attached), in.Marker, pageSize(in.MaxItems, f.PageSize))
	policies := make([]types.AttachedPolicy, 0, end-start)
	for _, arn := range r.Attached[start:end] {
		policies = append(policies, types.AttachedPolicy{
			PolicyArn:  ptr.To(arn),
			PolicyName: ptr.To(arn[strings.LastIndex(arn, "/")+1:]),
		})
	}

	out := &iam.ListAttachedRolePoliciesOutput{
		AttachedPolicies: policies,
		Marker:           marker,
		IsTruncated:      truncated,
	}

	return out, nil
}

// DetachRolePolicy implements the IAM API.
func (f *IAM) DetachRolePolicy(_ context.Context, in *iam.DetachRolePolicyInput, _ ...func(*iam.Options)) (*iam.DetachRolePolicyOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("DetachRolePolicy"); err != nil {
		return nil, err
	}

	r, err := f.role(in.RoleName)
	if err != nil {
		return nil, err
	}

	arn := ptr.StringFromPointer(in.PolicyArn)
	idx := slices.Index(r.Attached, arn)
	if idx < 0 {
		return nil, &types.NoSuchEntityException{
			Message: ptr.To(fmt.Sprintf("Policy %s was not found.", arn)),
		}
	}
	r.Attached = slices.Delete(r.Attached, idx, idx+1)

	return &iam.DetachRolePolicyOutput{}, nil
}

// APIError returns a generic AWS API error with the given code, which is
// attributed to the server.
func APIError(code string) error {
	return &smithy.GenericAPIError{
		Code:    code,
		Message: "injected failure",
		Fault:   smithy.FaultServer,
	}
}
