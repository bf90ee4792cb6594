// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package tags

import (
	"errors"
	"slices"
	"testing"
)

func TestEncodeDecode(t *testing.T) {
	testCases := []struct {
		desc   string
		values []string
		want   string
	}{
		{
			desc:   "bucket and region",
			values: []string{"cf-0a1b2c", "eu-central-1"},
			want:   "cf-0a1b2c|eu-central-1",
		},
		{
			desc:   "single value",
			values: []string{"cf-0a1b2c-"},
			want:   "cf-0a1b2c-",
		},
		{
			desc:   "empty components",
			values: []string{"", ""},
			want:   "|",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			got := Encode(tc.values...)
			if got != tc.want {
				t.Fatalf("want encoded %q, got %q", tc.want, got)
			}

			decoded := Decode(got)
			if !slices.Equal(decoded, tc.values) {
				t.Fatalf("want decoded %v, got %v", tc.values, decoded)
			}
		})
	}
}

func TestDecodeN(t *testing.T) {
	parts, err := DecodeN("bucket|us-east-1", 2)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if parts[0] != "bucket" || parts[1] != "us-east-1" {
		t.Fatalf("unexpected components: %v", parts)
	}

	if _, err := DecodeN("bucket", 2); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("want ErrInvalidValue, got %v", err)
	}
}

func TestRoleTagKey(t *testing.T) {
	got := RoleTagKey("s3", "6a1e1f5e-6f3c-4a5f-9a55-0f9d3b4f5b21")
	want := "s3-6a1e1f5e-6f3c-4a5f-9a55-0f9d3b4f5b21"
	if got != want {
		t.Fatalf("want %q, got %q", want, got)
	}
}

func TestPolicyName(t *testing.T) {
	testCases := []struct {
		desc     string
		kind     string
		instance string
		binding  string
		wantName string
	}{
		{
			desc:     "binding policy",
			kind:     "s3",
			instance: "aaaa-bbbb",
			binding:  "cccc-dddd",
			wantName: "s3-aaaabbbb-ccccdddd",
		},
		{
			desc:     "instance policy",
			kind:     "dynamodb",
			instance: "aaaa-bbbb",
			wantName: "dynamodb-aaaabbbb",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			got := PolicyName(tc.kind, tc.instance, tc.binding)
			if got != tc.wantName {
				t.Fatalf("want %q, got %q", tc.wantName, got)
			}
			if again := PolicyName(tc.kind, tc.instance, tc.binding); again != got {
				t.Fatalf("policy name is not deterministic: %q != %q", got, again)
			}
		})
	}

	if PolicyName("s3", "a", "b") == PolicyName("s3", "a", "c") {
		t.Fatal("distinct bindings must yield distinct policy names")
	}
	if PolicyName("s3", "a", "b") == PolicyName("dynamodb", "a", "b") {
		t.Fatal("distinct kinds must yield distinct policy names")
	}
}

func TestBindingTagKey(t *testing.T) {
	got := BindingTagKey(KeyRoleName, "1234-5678")
	if got != "role_name_12345678" {
		t.Fatalf("unexpected binding tag key %q", got)
	}
}
