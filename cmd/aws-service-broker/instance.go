// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/gardener/aws-service-broker/pkg/broker"
	"github.com/gardener/aws-service-broker/pkg/broker/roles"
	"github.com/gardener/aws-service-broker/pkg/core/tags"
)

// errUnknownKind is an error, which is returned when an unsupported kind was
// requested.
var errUnknownKind = errors.New("unknown kind")

// errInstanceNotFound is an error, which is returned when no role records the
// requested instance.
var errInstanceNotFound = errors.New("instance not found")

// errNoInstanceID is an error, which is returned when no instance ID was
// given.
var errNoInstanceID = errors.New("no instance id specified")

// NewInstanceCommand returns a new command for inspecting service instances.
func NewInstanceCommand() *cli.Command {
	cmd := &cli.Command{
		Name:    "instance",
		Usage:   "service instance operations",
		Aliases: []string{"i"},
		Subcommands: []*cli.Command{
			{
				Name:  "show",
				Usage: "display the role and the tagged state of a service instance",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "kind",
						Usage:    "kind of the service instance",
						Required: true,
						Aliases:  []string{"k"},
					},
					&cli.StringFlag{
						Name:     "instance-id",
						Usage:    "id of the service instance",
						Required: true,
						Aliases:  []string{"id"},
					},
				},
				Action: func(ctx *cli.Context) error {
					kind := ctx.String("kind")
					instanceID := ctx.String("instance-id")
					if err := validateInstanceArgs(kind, instanceID); err != nil {
						return err
					}

					conf := getConfig(ctx)
					cs, err := newClientset(ctx.Context, conf)
					if err != nil {
						return err
					}

					role, value, err := newRoles(conf, cs.IAM.Client).FindTagged(ctx.Context, kind, instanceID)
					if err != nil {
						return err
					}
					if role == nil {
						return fmt.Errorf("%w: %s %s", errInstanceNotFound, kind, instanceID)
					}

					return printInstance(os.Stdout, kind, instanceID, role, value)
				},
			},
		},
	}

	return cmd
}

// validateInstanceArgs validates the kind and the instance ID. Instance IDs
// are opaque, so an ID which is not a UUID only yields a warning.
func validateInstanceArgs(kind, instanceID string) error {
	if !slices.Contains(broker.Kinds(), kind) {
		return fmt.Errorf("%w: %s", errUnknownKind, kind)
	}

	if instanceID == "" {
		return errNoInstanceID
	}

	if _, err := uuid.Parse(instanceID); err != nil {
		slog.Warn("instance id is not a UUID", "instance_id", instanceID, "reason", err)
	}

	return nil
}

// printInstance tabulates the state of an instance recorded on its role.
func printInstance(w io.Writer, kind, instanceID string, role *roles.Role, value string) error {
	rows := [][]string{
		{"KIND", kind},
		{"INSTANCE-ID", instanceID},
		{"ROLE-NAME", role.Name},
		{"ROLE-ARN", valueOrNA(role.ARN)},
		{"TAG-KEY", tags.RoleTagKey(kind, instanceID)},
	}

	switch kind {
	case broker.KindS3:
		if parts, err := tags.DecodeN(value, 2); err == nil {
			rows = append(rows, []string{"BUCKET", parts[0]}, []string{"REGION", parts[1]})
			break
		}
		rows = append(rows, []string{"TAG-VALUE", value})
	case broker.KindDynamoDB:
		rows = append(rows, []string{"TABLE-PREFIX", value})
	default:
		rows = append(rows, []string{"TAG-VALUE", value})
	}

	table := newTableWriter(w, []string{"FIELD", "VALUE"})
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return err
		}
	}

	return table.Render()
}
