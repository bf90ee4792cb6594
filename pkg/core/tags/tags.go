// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package tags provides the codec for the values and keys of the resource tags,
// which the broker uses to record the state of service instances and bindings.
package tags

import (
	"errors"
	"fmt"
	"strings"
)

// Delimiter separates the components of a composite tag value.
const Delimiter = "|"

// Semantic tag keys set on roles and buckets managed by the broker.
const (
	KeyOrgGUID      = "org_guid"
	KeyOrgName      = "org_name"
	KeySpaceGUID    = "space_guid"
	KeySpaceName    = "space_name"
	KeyInstanceID   = "instance_id"
	KeyInstanceName = "instance_name"
	KeyRoleName     = "role_name"
	KeyPolicyName   = "policy_name"
	KeyRegion       = "region"
)

// ErrInvalidValue is an error, which is returned when a composite tag value
// does not decode into the expected number of components.
var ErrInvalidValue = errors.New("invalid tag value")

// Encode joins the given values into a single tag value.
func Encode(values ...string) string {
	return strings.Join(values, Delimiter)
}

// Decode splits the given tag value into its components. Callers are expected
// to know the arity of the value.
func Decode(value string) []string {
	return strings.Split(value, Delimiter)
}

// DecodeN splits the given tag value and verifies that it consists of exactly
// n components.
func DecodeN(value string, n int) ([]string, error) {
	parts := Decode(value)
	if len(parts) != n {
		return nil, fmt.Errorf("%w: %q has %d components, expected %d", ErrInvalidValue, value, len(parts), n)
	}

	return parts, nil
}

// StripHyphens removes all hyphens from s. Used to derive provider-compliant
// names out of UUIDs.
func StripHyphens(s string) string {
	return strings.ReplaceAll(s, "-", "")
}

// RoleTagKey returns the key of the role tag, which records the state of the
// service instance of the given kind.
func RoleTagKey(kind, instanceID string) string {
	return kind + "-" + instanceID
}

// PolicyName returns the name of the inline policy for the given kind, instance
// and binding. An empty bindingID yields the instance-level policy name.
func PolicyName(kind, instanceID, bindingID string) string {
	name := kind + "-" + StripHyphens(instanceID)
	if bindingID == "" {
		return name
	}

	return name + "-" + StripHyphens(bindingID)
}

// BindingTagKey returns a tag key scoped to the given binding, e.g.
// role_name_<binding>.
func BindingTagKey(base, bindingID string) string {
	return base + "_" + StripHyphens(bindingID)
}
