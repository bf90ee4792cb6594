// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package version provides the version of the broker, which is set at build
// time.
package version

// Version is the version of the broker, set via -ldflags.
var Version = "v0.0.0-dev"
