// Package configs holds the configuration templates embedded into the
// binary. `kbengine init` writes the project template into the
// knowledge base root; the user template documents the machine-level
// config at ~/.config/kbengine/config.yaml.
//
// Precedence is defined in internal/config: built-in defaults, then
// the user config, then the project config, then KBENGINE_* environment
// variables.
package configs

import _ "embed"

// ProjectConfigTemplate becomes kbengine.yaml in the knowledge base
// root. It carries per-project settings: document paths, search
// weights, chunking.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string

// UserConfigTemplate documents the machine-level settings, such as the
// Ollama host, that apply to every knowledge base on the machine.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string
