// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"io"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/gardener/aws-service-broker/pkg/broker"
	"github.com/gardener/aws-service-broker/pkg/broker/roles"
	"github.com/gardener/aws-service-broker/pkg/core/tags"
)

// NewRoleCommand returns a new command for inspecting the managed roles.
func NewRoleCommand() *cli.Command {
	cmd := &cli.Command{
		Name:    "role",
		Usage:   "role operations",
		Aliases: []string{"r"},
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "list the roles under the role path along with their instance tags",
				Action: func(ctx *cli.Context) error {
					conf := getConfig(ctx)
					cs, err := newClientset(ctx.Context, conf)
					if err != nil {
						return err
					}

					items, err := newRoles(conf, cs.IAM.Client).Resolver().List(ctx.Context)
					if err != nil {
						return err
					}

					return printRoles(os.Stdout, items)
				},
			},
		},
	}

	return cmd
}

// printRoles tabulates the given roles.
func printRoles(w io.Writer, items []*roles.Role) error {
	headers := []string{
		"NAME",
		"ORG",
		"SPACE",
		"INSTANCES",
	}
	table := newTableWriter(w, headers)
	for _, item := range items {
		instances := strings.Join(instanceTags(item.Tags), "\n")
		if instances == "" {
			instances = na
		}
		row := []string{
			item.Name,
			valueOrNA(item.Tags[tags.KeyOrgName]),
			valueOrNA(item.Tags[tags.KeySpaceName]),
			instances,
		}
		if err := table.Append(row); err != nil {
			return err
		}
	}

	return table.Render()
}

// instanceTags returns the role tags of service instances as sorted
// key=value pairs.
func instanceTags(roleTags map[string]string) []string {
	result := make([]string, 0)
	for _, key := range slices.Sorted(maps.Keys(roleTags)) {
		for _, kind := range broker.Kinds() {
			if strings.HasPrefix(key, kind+"-") {
				result = append(result, key+"="+roleTags[key])
				break
			}
		}
	}

	return result
}

func valueOrNA(value string) string {
	if value == "" {
		return na
	}

	return value
}
