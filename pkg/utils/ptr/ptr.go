// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package ptr provides helpers for dealing with the pointer fields of the AWS
// API types.
package ptr

// Value returns the value referenced by p, if p is non-nil, else it returns the
// default value def.
func Value[T any](p *T, def T) T {
	if p != nil {
		return *p
	}

	return def
}

// To returns a pointer to a copy of the given value.
func To[T any](v T) *T {
	return &v
}

// StringFromPointer returns the string referenced by s, or an empty string if
// s is nil.
func StringFromPointer(s *string) string {
	return Value(s, "")
}
