package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/helpbase/kbengine/configs"
	"github.com/helpbase/kbengine/internal/config"
)

// mcpServerEntry is one server in an MCP client's .mcp.json.
type mcpServerEntry struct {
	Type    string   `json:"type,omitempty"`
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

type mcpClientConfig struct {
	MCPServers map[string]mcpServerEntry `json:"mcpServers"`
}

func newInitCmd() *cobra.Command {
	var (
		force      bool
		userConfig bool
		noMCP      bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold a knowledge base in the current directory",
		Long: `Scaffold a knowledge base in the current directory.

Creates the docs/ directory, writes a commented kbengine.yaml, and
registers the server in .mcp.json so MCP clients can start it with
'kbengine serve'. Existing files are left alone unless --force is set.`,
		Example: `  # Scaffold a knowledge base here
  kbengine init

  # Overwrite an existing kbengine.yaml
  kbengine init --force

  # Also write the machine-level config template
  kbengine init --user`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd, force, userConfig, noMCP)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration files")
	cmd.Flags().BoolVar(&userConfig, "user", false, "Also write the user config template")
	cmd.Flags().BoolVar(&noMCP, "no-mcp", false, "Skip the .mcp.json server registration")

	return cmd
}

func runInit(cmd *cobra.Command, force, userConfig, noMCP bool) error {
	out := newOutput(cmd)

	root, err := resolveRoot()
	if err != nil {
		return err
	}

	docsDir := filepath.Join(root, "docs")
	if err := os.MkdirAll(docsDir, 0o755); err != nil {
		return fmt.Errorf("create docs directory: %w", err)
	}
	out.Statusf("📁", "Documents directory: %s", docsDir)

	wrote, err := writeTemplate(filepath.Join(root, "kbengine.yaml"), configs.ProjectConfigTemplate, force)
	if err != nil {
		return err
	}
	if wrote {
		out.Success("Wrote kbengine.yaml")
	} else {
		out.Status("", "kbengine.yaml already exists, use --force to overwrite")
	}

	if userConfig {
		path := config.GetUserConfigPath()
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("create user config directory: %w", err)
		}
		wrote, err := writeTemplate(path, configs.UserConfigTemplate, force)
		if err != nil {
			return err
		}
		if wrote {
			out.Successf("Wrote user config %s", path)
		} else {
			out.Statusf("", "user config %s already exists", path)
		}
	}

	if !noMCP {
		if err := registerMCPServer(filepath.Join(root, ".mcp.json")); err != nil {
			return err
		}
		out.Success("Registered kbengine in .mcp.json")
	}

	out.Newline()
	out.Status("", out.Dim("Drop Markdown files into docs/ and run 'kbengine rebuild' to index them."))
	return nil
}

// writeTemplate writes content to path unless it already exists and
// force is off. Reports whether the file was written.
func writeTemplate(path, content string, force bool) (bool, error) {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}

// registerMCPServer adds the kbengine entry to .mcp.json, preserving
// any servers already registered there.
func registerMCPServer(path string) error {
	cfg := mcpClientConfig{MCPServers: map[string]mcpServerEntry{}}

	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("parse existing %s: %w", path, err)
		}
		if cfg.MCPServers == nil {
			cfg.MCPServers = map[string]mcpServerEntry{}
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("read %s: %w", path, err)
	}

	cfg.MCPServers["kbengine"] = mcpServerEntry{
		Type:    "stdio",
		Command: "kbengine",
		Args:    []string{"serve"},
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
