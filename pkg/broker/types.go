// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"encoding/json"
	"maps"

	"github.com/gardener/aws-service-broker/pkg/core/tags"
)

// Default names used when the platform does not send a context.
const (
	UnknownOrg          = "unknown-org"
	UnknownOrgGUID      = "unknown-org-guid"
	UnknownSpace        = "unknown-space"
	UnknownSpaceGUID    = "unknown-space-guid"
	UnknownInstanceName = "unknown-instance"
)

// Context is the platform context sent along with the requests.
type Context struct {
	Platform                string         `json:"platform,omitempty"`
	OrganizationGUID        string         `json:"organization_guid,omitempty"`
	OrganizationName        string         `json:"organization_name,omitempty"`
	SpaceGUID               string         `json:"space_guid,omitempty"`
	SpaceName               string         `json:"space_name,omitempty"`
	InstanceName            string         `json:"instance_name,omitempty"`
	OrganizationAnnotations map[string]any `json:"organization_annotations,omitempty"`
	SpaceAnnotations        map[string]any `json:"space_annotations,omitempty"`
	InstanceAnnotations     map[string]any `json:"instance_annotations,omitempty"`
}

// MaintenanceInfo describes the maintenance version of a plan.
type MaintenanceInfo struct {
	Version     string `json:"version,omitempty"`
	Description string `json:"description,omitempty"`
}

// PreviousValues are the values of a service instance prior to an update.
type PreviousValues struct {
	ServiceID       string           `json:"service_id,omitempty"`
	PlanID          string           `json:"plan_id,omitempty"`
	OrganizationID  string           `json:"organization_id,omitempty"`
	SpaceID         string           `json:"space_id,omitempty"`
	MaintenanceInfo *MaintenanceInfo `json:"maintenance_info,omitempty"`
}

// BindResource describes the resource a binding is created for.
type BindResource struct {
	AppGUID string `json:"app_guid,omitempty"`
	Route   string `json:"route,omitempty"`
}

// ProvisionRequest is a request to provision a service instance.
type ProvisionRequest struct {
	InstanceID       string           `json:"-"`
	ServiceID        string           `json:"service_id"`
	PlanID           string           `json:"plan_id"`
	Context          *Context         `json:"context,omitempty"`
	OrganizationGUID string           `json:"organization_guid,omitempty"`
	SpaceGUID        string           `json:"space_guid,omitempty"`
	Parameters       json.RawMessage  `json:"parameters,omitempty"`
	MaintenanceInfo  *MaintenanceInfo `json:"maintenance_info,omitempty"`
}

// UpdateRequest is a request to update a service instance.
type UpdateRequest struct {
	InstanceID      string           `json:"-"`
	ServiceID       string           `json:"service_id"`
	PlanID          string           `json:"plan_id,omitempty"`
	Context         *Context         `json:"context,omitempty"`
	Parameters      json.RawMessage  `json:"parameters,omitempty"`
	PreviousValues  *PreviousValues  `json:"previous_values,omitempty"`
	MaintenanceInfo *MaintenanceInfo `json:"maintenance_info,omitempty"`
}

// DeprovisionRequest is a request to deprovision a service instance.
type DeprovisionRequest struct {
	InstanceID string
	ServiceID  string
	PlanID     string
}

// BindRequest is a request to create a service binding.
type BindRequest struct {
	InstanceID   string          `json:"-"`
	BindingID    string          `json:"-"`
	ServiceID    string          `json:"service_id"`
	PlanID       string          `json:"plan_id"`
	Context      *Context        `json:"context,omitempty"`
	BindResource *BindResource   `json:"bind_resource,omitempty"`
	Parameters   json.RawMessage `json:"parameters,omitempty"`
}

// UnbindRequest is a request to delete a service binding.
type UnbindRequest struct {
	InstanceID string
	BindingID  string
	ServiceID  string
	PlanID     string
}

// ProvisionResponse is the response to a [ProvisionRequest].
type ProvisionResponse struct {
	DashboardURL string `json:"dashboard_url,omitempty"`
}

// UpdateResponse is the response to an [UpdateRequest].
type UpdateResponse struct {
	DashboardURL string `json:"dashboard_url,omitempty"`
}

// Credentials are the credentials of a service binding.
type Credentials map[string]any

// BindResponse is the response to a [BindRequest].
type BindResponse struct {
	Credentials Credentials `json:"credentials"`
}

// Instance describes a service instance and the org and space it belongs to.
type Instance struct {
	ID        string
	Name      string
	OrgGUID   string
	OrgName   string
	SpaceGUID string
	SpaceName string
}

// Instance returns the [Instance] described by the request. Missing names are
// replaced by placeholders.
func (r ProvisionRequest) Instance() Instance {
	inst := Instance{
		ID:        r.InstanceID,
		Name:      UnknownInstanceName,
		OrgGUID:   orDefault(r.OrganizationGUID, UnknownOrgGUID),
		OrgName:   UnknownOrg,
		SpaceGUID: orDefault(r.SpaceGUID, UnknownSpaceGUID),
		SpaceName: UnknownSpace,
	}

	if c := r.Context; c != nil {
		inst.Name = orDefault(c.InstanceName, inst.Name)
		inst.OrgGUID = orDefault(c.OrganizationGUID, inst.OrgGUID)
		inst.OrgName = orDefault(c.OrganizationName, inst.OrgName)
		inst.SpaceGUID = orDefault(c.SpaceGUID, inst.SpaceGUID)
		inst.SpaceName = orDefault(c.SpaceName, inst.SpaceName)
	}

	return inst
}

// Tags returns the tags recorded on the resources of the instance.
func (i Instance) Tags() map[string]string {
	return map[string]string{
		tags.KeyOrgGUID:      i.OrgGUID,
		tags.KeyOrgName:      i.OrgName,
		tags.KeySpaceGUID:    i.SpaceGUID,
		tags.KeySpaceName:    i.SpaceName,
		tags.KeyInstanceID:   i.ID,
		tags.KeyInstanceName: i.Name,
	}
}

// TagsWith returns the tags of the instance merged with the given extra tags.
func (i Instance) TagsWith(extra map[string]string) map[string]string {
	result := i.Tags()
	maps.Copy(result, extra)

	return result
}

func orDefault(value, def string) string {
	if value == "" {
		return def
	}

	return value
}

// DecodeParameters decodes the raw parameters of a request into out. Missing
// parameters leave out untouched.
func DecodeParameters(raw json.RawMessage, out any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return Errorf(ErrValidation, "Invalid parameters: %s", err)
	}

	return nil
}
