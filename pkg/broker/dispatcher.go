// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"context"
	"errors"
	"fmt"
	"slices"

	awsutils "github.com/gardener/aws-service-broker/pkg/aws/utils"
	"github.com/gardener/aws-service-broker/pkg/core/registry"
	"github.com/gardener/aws-service-broker/pkg/metrics"
	slogutils "github.com/gardener/aws-service-broker/pkg/utils/slog"
)

// ErrNoServiceID is an error, which is returned when registering a service
// without an ID.
var ErrNoServiceID = errors.New("no service id specified")

// Service binds a service of the catalog to the broker of a kind.
type Service struct {
	// ID is the ID of the service in the catalog.
	ID string

	// Kind is the kind of resources managed by the service.
	Kind string

	// Broker is the broker of the kind.
	Broker Broker

	// Plans are the IDs of the plans of the service. When empty, any plan
	// is accepted.
	Plans []string
}

// checkPlan validates the plan ID of a request against the plans of the
// service. Requests without a plan ID are accepted.
func (s Service) checkPlan(planID string) error {
	if planID == "" || len(s.Plans) == 0 || slices.Contains(s.Plans, planID) {
		return nil
	}

	return Errorf(ErrValidation, "Unsupported plan id: %s", planID)
}

// Dispatcher routes requests to the broker of the requested service. The
// services are fixed at construction time.
type Dispatcher struct {
	services *registry.Registry[string, Service]
}

// NewDispatcher creates a new [Dispatcher] for the given services.
func NewDispatcher(services ...Service) (*Dispatcher, error) {
	reg := registry.New[string, Service]()
	for _, svc := range services {
		if svc.ID == "" {
			return nil, fmt.Errorf("%w: kind %s", ErrNoServiceID, svc.Kind)
		}
		if err := reg.Register(svc.ID, svc); err != nil {
			return nil, err
		}
	}

	reg.Freeze()
	d := &Dispatcher{
		services: reg,
	}

	return d, nil
}

// Length returns the number of services known to the dispatcher.
func (d *Dispatcher) Length() int {
	return d.services.Length()
}

// Services returns the services in registration order.
func (d *Dispatcher) Services() []Service {
	result := make([]Service, 0, d.services.Length())
	_ = d.services.Range(func(_ string, svc Service) error {
		result = append(result, svc)
		return nil
	})

	return result
}

// Lookup returns the service with the given ID.
func (d *Dispatcher) Lookup(serviceID string) (Service, error) {
	if serviceID == "" {
		return Service{}, Errorf(ErrValidation, "'service_id' is required")
	}

	svc, ok := d.services.Get(serviceID)
	if !ok {
		return Service{}, Errorf(ErrValidation, "Unsupported service id: %s", serviceID)
	}

	return svc, nil
}

// dispatch resolves the service and runs the operation against its broker.
func (d *Dispatcher) dispatch(ctx context.Context, serviceID, planID, op string, attrs []any, fn func(context.Context, Broker) error) error {
	svc, err := d.Lookup(serviceID)
	if err != nil {
		return err
	}
	if err := svc.checkPlan(planID); err != nil {
		return err
	}

	ctx, logger := slogutils.With(ctx, append([]any{"kind", svc.Kind, "operation", op}, attrs...)...)

	err = fn(ctx, svc.Broker)
	metrics.BrokerOperationsTotal.WithLabelValues(svc.Kind, op, metrics.Result(err)).Inc()

	var brokerErr *Error
	switch {
	case errors.As(err, &brokerErr):
		logger.Warn("operation rejected", "reason", err)
	case err != nil:
		logger.Error("operation failed", "reason", err, "client_fault", awsutils.IsClientFault(err))
	default:
		logger.Info("operation completed")
	}

	return err
}

func instanceAttrs(instanceID string) []any {
	return []any{"instance_id", instanceID}
}

func bindingAttrs(instanceID, bindingID string) []any {
	return []any{"instance_id", instanceID, "binding_id", bindingID}
}

// Provision provisions a service instance.
func (d *Dispatcher) Provision(ctx context.Context, req ProvisionRequest) (*ProvisionResponse, error) {
	var resp *ProvisionResponse
	err := d.dispatch(ctx, req.ServiceID, req.PlanID, OperationProvision, instanceAttrs(req.InstanceID), func(ctx context.Context, b Broker) error {
		var err error
		resp, err = b.Provision(ctx, req)
		return err
	})

	return resp, err
}

// Update updates a service instance.
func (d *Dispatcher) Update(ctx context.Context, req UpdateRequest) (*UpdateResponse, error) {
	var resp *UpdateResponse
	err := d.dispatch(ctx, req.ServiceID, req.PlanID, OperationUpdate, instanceAttrs(req.InstanceID), func(ctx context.Context, b Broker) error {
		var err error
		resp, err = b.Update(ctx, req)
		return err
	})

	return resp, err
}

// Deprovision deprovisions a service instance.
func (d *Dispatcher) Deprovision(ctx context.Context, req DeprovisionRequest) error {
	return d.dispatch(ctx, req.ServiceID, req.PlanID, OperationDeprovision, instanceAttrs(req.InstanceID), func(ctx context.Context, b Broker) error {
		return b.Deprovision(ctx, req)
	})
}

// Bind creates a service binding.
func (d *Dispatcher) Bind(ctx context.Context, req BindRequest) (*BindResponse, error) {
	var resp *BindResponse
	err := d.dispatch(ctx, req.ServiceID, req.PlanID, OperationBind, bindingAttrs(req.InstanceID, req.BindingID), func(ctx context.Context, b Broker) error {
		var err error
		resp, err = b.Bind(ctx, req)
		return err
	})

	return resp, err
}

// Unbind deletes a service binding.
func (d *Dispatcher) Unbind(ctx context.Context, req UnbindRequest) error {
	return d.dispatch(ctx, req.ServiceID, req.PlanID, OperationUnbind, bindingAttrs(req.InstanceID, req.BindingID), func(ctx context.Context, b Broker) error {
		return b.Unbind(ctx, req)
	})
}

var _ Broker = (*Dispatcher)(nil)
