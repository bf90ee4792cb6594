// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package catalog provides the catalog of services offered by the broker.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/goccy/go-yaml"
)

// ErrInvalidCatalog is an error, which is returned when the catalog does not
// pass validation.
var ErrInvalidCatalog = errors.New("invalid catalog")

// MetadataKind is the metadata key, which binds a service to a kind of
// resources.
const MetadataKind = "kind"

//go:embed catalog.yaml
var defaultCatalog []byte

// Catalog is the catalog of services.
type Catalog struct {
	Services []Service `yaml:"services" json:"services"`
}

// Service is a service offered by the broker.
type Service struct {
	ID             string         `yaml:"id" json:"id"`
	Name           string         `yaml:"name" json:"name"`
	Description    string         `yaml:"description" json:"description"`
	Bindable       bool           `yaml:"bindable" json:"bindable"`
	PlanUpdateable bool           `yaml:"plan_updateable" json:"plan_updateable"`
	Tags           []string       `yaml:"tags,omitempty" json:"tags,omitempty"`
	Metadata       map[string]any `yaml:"metadata,omitempty" json:"metadata,omitempty"`
	Plans          []Plan         `yaml:"plans" json:"plans"`
}

// Kind returns the kind of resources managed by the service.
func (s Service) Kind() string {
	kind, _ := s.Metadata[MetadataKind].(string)

	return kind
}

// Plan is a plan of a service.
type Plan struct {
	ID          string         `yaml:"id" json:"id"`
	Name        string         `yaml:"name" json:"name"`
	Description string         `yaml:"description" json:"description"`
	Free        *bool          `yaml:"free,omitempty" json:"free,omitempty"`
	Metadata    map[string]any `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// Default returns the catalog embedded in the binary.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load returns the catalog from the given path, or the default catalog if path
// is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return Parse(data)
}

// Parse parses and validates the catalog from the given YAML data.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return &c, nil
}

// Validate checks that all services and plans have IDs and names, and that the
// IDs are unique.
func (c *Catalog) Validate() error {
	if len(c.Services) == 0 {
		return fmt.Errorf("%w: no services", ErrInvalidCatalog)
	}

	ids := make(map[string]bool)
	for _, svc := range c.Services {
		if svc.ID == "" || svc.Name == "" {
			return fmt.Errorf("%w: service without id or name", ErrInvalidCatalog)
		}
		if ids[svc.ID] {
			return fmt.Errorf("%w: duplicate id %s", ErrInvalidCatalog, svc.ID)
		}
		ids[svc.ID] = true

		if len(svc.Plans) == 0 {
			return fmt.Errorf("%w: service %s has no plans", ErrInvalidCatalog, svc.Name)
		}
		for _, plan := range svc.Plans {
			if plan.ID == "" || plan.Name == "" {
				return fmt.Errorf("%w: plan without id or name in service %s", ErrInvalidCatalog, svc.Name)
			}
			if ids[plan.ID] {
				return fmt.Errorf("%w: duplicate id %s", ErrInvalidCatalog, plan.ID)
			}
			ids[plan.ID] = true
		}
	}

	return nil
}

// ValidateKinds checks that each service is bound to one of the given kinds,
// and that no kind is bound twice.
func (c *Catalog) ValidateKinds(kinds ...string) error {
	seen := make(map[string]bool)
	for _, svc := range c.Services {
		kind := svc.Kind()
		if !slices.Contains(kinds, kind) {
			return fmt.Errorf("%w: service %s has unsupported kind %q", ErrInvalidCatalog, svc.Name, kind)
		}
		if seen[kind] {
			return fmt.Errorf("%w: kind %s is bound to more than one service", ErrInvalidCatalog, kind)
		}
		seen[kind] = true
	}

	return nil
}

// HasKind returns whether a service of the catalog is bound to the given kind.
func (c *Catalog) HasKind(kind string) bool {
	return slices.ContainsFunc(c.Services, func(s Service) bool {
		return s.Kind() == kind
	})
}
