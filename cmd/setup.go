package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fatih/color"
)

// mcpClient describes where an MCP client looks for its configuration.
type mcpClient struct {
	name      string
	dir       string
	localFile string
}

var mcpClients = map[string]mcpClient{
	"claude": {name: "Claude", dir: ".claude", localFile: "settings.json"},
	"cursor": {name: "Cursor", dir: ".cursor", localFile: "mcp.json"},
	"qwen":   {name: "Qwen", dir: ".qwen", localFile: "mcp.json"},
}

// SetupCmd configures MCP for various AI clients.
type SetupCmd struct {
	Qwen     bool   `help:"Configure for Qwen CLI"`
	Claude   bool   `help:"Configure for Claude Code"`
	Cursor   bool   `help:"Configure for Cursor"`
	Local    bool   `help:"Create project-local configuration"`
	Global   bool   `help:"Create global configuration"`
	Watch    bool   `help:"Serve with --watch"`
	Format   string `help:"Output format (json|text)" enum:"json,text" default:"json"`
	FilePath string `help:"Custom directory for the local configuration"`
}

// Run executes the setup command.
func (c *SetupCmd) Run(rt *Runtime) error {
	if c.Format != "json" && c.Format != "text" {
		return fmt.Errorf("invalid format: %s (must be json or text)", c.Format)
	}

	workdir, err := filepath.Abs(rt.Workdir)
	if err != nil {
		return fmt.Errorf("resolving workdir: %w", err)
	}
	config := serverConfig(workdir, c.Watch)

	var clients []string
	for key, on := range map[string]bool{"qwen": c.Qwen, "claude": c.Claude, "cursor": c.Cursor} {
		if on {
			clients = append(clients, key)
		}
	}
	if len(clients) == 0 {
		content, err := renderConfig(config, c.Format)
		if err != nil {
			return err
		}
		fmt.Print(string(content))
		return nil
	}
	sort.Strings(clients)

	if !c.Local && !c.Global {
		c.Local = true
	}

	for _, key := range clients {
		client := mcpClients[key]
		if c.Global {
			path := globalConfigPath(client)
			if err := writeConfig(path, config, c.Format); err != nil {
				return err
			}
			color.Green("✓ Created global %s MCP config at %s", client.name, path)
		}
		if c.Local {
			path := filepath.Join(workdir, client.dir, client.localFile)
			if c.FilePath != "" {
				path = filepath.Join(c.FilePath, client.localFile)
			}
			if err := writeConfig(path, config, c.Format); err != nil {
				return err
			}
			color.Green("✓ Created local %s MCP config at %s", client.name, path)
		}
	}
	return nil
}

func serverConfig(workdir string, watch bool) map[string]any {
	args := []string{"--workdir", workdir, "serve"}
	if watch {
		args = append(args, "--watch")
	}
	return map[string]any{
		"mcpServers": map[string]any{
			"ontolink": map[string]any{
				"command": "ontolink",
				"args":    args,
			},
		},
	}
}

func globalConfigPath(client mcpClient) string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = os.Getenv("HOME")
	}
	return filepath.Join(homeDir, client.dir, "global", "mcp.json")
}

func renderConfig(config map[string]any, format string) ([]byte, error) {
	if format == "json" {
		content, err := json.MarshalIndent(config, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshaling JSON: %w", err)
		}
		return append(content, '\n'), nil
	}

	var sb strings.Builder
	sb.WriteString("# MCP configuration for ontolink\n")
	sb.WriteString("# Generated by ontolink setup\n\n")
	for key, value := range config {
		data, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("marshaling JSON: %w", err)
		}
		fmt.Fprintf(&sb, "%s: %s\n", key, data)
	}
	return []byte(sb.String()), nil
}

func writeConfig(configPath string, config map[string]any, format string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	content, err := renderConfig(config, format)
	if err != nil {
		return err
	}
	if err := os.WriteFile(configPath, content, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
