// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"errors"
	"slices"
	"testing"
)

func keys[V any](r *Registry[string, V]) []string {
	result := make([]string, 0, r.Length())
	_ = r.Range(func(key string, _ V) error {
		result = append(result, key)
		return nil
	})

	return result
}

func TestRegister(t *testing.T) {
	testCases := []struct {
		desc    string
		keys    []string
		wantErr error
		want    []string
	}{
		{
			desc: "distinct keys",
			keys: []string{"s3", "iam-role", "dynamodb"},
			want: []string{"s3", "iam-role", "dynamodb"},
		},
		{
			desc:    "duplicate key",
			keys:    []string{"s3", "s3"},
			wantErr: ErrKeyAlreadyRegistered,
			want:    []string{"s3"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			r := New[string, int]()
			var err error
			for i, k := range tc.keys {
				if err = r.Register(k, i); err != nil {
					break
				}
			}

			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("want error %v, got %v", tc.wantErr, err)
			}
			if got := keys(r); !slices.Equal(got, tc.want) {
				t.Fatalf("want keys %v, got %v", tc.want, got)
			}
			if r.Length() != len(tc.want) {
				t.Fatalf("want length %d, got %d", len(tc.want), r.Length())
			}
		})
	}
}

func TestGet(t *testing.T) {
	r := New[string, int]()
	if err := r.Register("key", 42); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	val, ok := r.Get("key")
	if !ok || val != 42 {
		t.Fatalf("want 42, got %d (found: %t)", val, ok)
	}
	if _, ok := r.Get("missing"); ok {
		t.Fatal("missing key should not be found")
	}
}

func TestFreeze(t *testing.T) {
	r := New[string, int]()
	if err := r.Register("a", 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r.Freeze()

	if err := r.Register("b", 2); !errors.Is(err, ErrFrozen) {
		t.Fatalf("want error %v, got %v", ErrFrozen, err)
	}
	if val, ok := r.Get("a"); !ok || val != 1 {
		t.Fatalf("frozen registry lost key a")
	}
}

func TestRange(t *testing.T) {
	errBoom := errors.New("boom")

	testCases := []struct {
		desc    string
		stopAt  string
		stopErr error
		wantErr error
		want    []string
	}{
		{desc: "full iteration", want: []string{"a", "b", "c"}},
		{desc: "stop iteration", stopAt: "b", stopErr: ErrStopIteration, want: []string{"a", "b"}},
		{desc: "continue", stopAt: "b", stopErr: ErrContinue, want: []string{"a", "b", "c"}},
		{desc: "error", stopAt: "a", stopErr: errBoom, wantErr: errBoom, want: []string{"a"}},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			r := New[string, int]()
			for i, k := range []string{"a", "b", "c"} {
				if err := r.Register(k, i); err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
			}

			visited := make([]string, 0)
			err := r.Range(func(key string, _ int) error {
				visited = append(visited, key)
				if key == tc.stopAt {
					return tc.stopErr
				}
				return nil
			})

			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("want error %v, got %v", tc.wantErr, err)
			}
			if !slices.Equal(visited, tc.want) {
				t.Fatalf("want visited %v, got %v", tc.want, visited)
			}
		})
	}
}
