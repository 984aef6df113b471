// Package configs provides embedded configuration templates for forge.
//
// Templates are embedded at build time with go:embed so they ship inside
// the binary itself, independent of how it was installed.
//
// Configuration hierarchy (see internal/config/config.go Load()):
//  1. Hardcoded defaults (internal/config.NewConfig())
//  2. User config (~/.config/forge/config.yaml)
//  3. Project config (.forge.yaml in the project root)
//  4. Environment variables (FORGE_*, CONTENT_STORE_CONFIG, CORE_DATA_BUILD_VERSION)
package configs

import _ "embed"

// UserConfigTemplate is written by `forge config init` to
// ~/.config/forge/config.yaml (or $XDG_CONFIG_HOME/forge/config.yaml).
// It holds machine-wide defaults: which content-store backend this
// machine talks to and where discovered compilers live.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate is written by `forge init` to .forge.yaml in a
// project root. It holds settings meant to be version-controlled with the
// project: the build index location and the project resource index path.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
