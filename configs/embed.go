// Package configs provides embedded configuration templates for kbresolve.
//
// Templates are embedded at build time using Go's //go:embed directive so
// they are available in all distributions, source builds included.
//
// The templates are used by:
//   - cmd/kbresolve/cmd/init.go - creates .kbresolve.yaml in the project root
//
// Configuration hierarchy (see internal/config.Load):
//  1. Hardcoded defaults (internal/config.NewConfig)
//  2. User config (~/.config/kbresolve/config.yaml)
//  3. Project config (.kbresolve.yaml)
//  4. Environment variables (KBRESOLVE_*)
package configs

import _ "embed"

// ProjectConfigTemplate is the template for project-level configuration,
// written to .kbresolve.yaml by `kbresolve init`. It holds settings that are
// version-controlled with the project: mapping directory, ranking boosts,
// resolution tuning.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string

// UserConfigTemplate is the template for user/machine-level configuration at
// ~/.config/kbresolve/config.yaml. It holds machine-specific settings such as
// the index data directory and log level.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// SampleMapping is a starter mapping file written by `kbresolve init` so a
// new project has a working entity type to fit and resolve against.
//
//go:embed sample-mapping.json
var SampleMapping string
