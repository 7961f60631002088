package claude

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// MCPServer is one tool server the agent may launch, written into the
// --mcp-config file.
type MCPServer struct {
	Name    string
	Command string
	Args    []string
	Env     map[string]string // values may reference ${VAR} from the agent environment
}

type mcpServerEntry struct {
	Command string            `json:"command"`
	Args    []string          `json:"args"`
	Env     map[string]string `json:"env,omitempty"`
}

type mcpConfigFile struct {
	MCPServers map[string]mcpServerEntry `json:"mcpServers"`
}

// WriteMCPConfig writes servers to path in the CLI's --mcp-config format.
// The file is replaced atomically and readable only by the owner, since
// server env blocks may name credentials.
func WriteMCPConfig(path string, servers []MCPServer) error {
	cfg := mcpConfigFile{MCPServers: make(map[string]mcpServerEntry, len(servers))}
	for _, s := range servers {
		if s.Name == "" || s.Command == "" {
			return fmt.Errorf("mcp server needs a name and a command: %+v", s)
		}
		if _, dup := cfg.MCPServers[s.Name]; dup {
			return fmt.Errorf("duplicate mcp server %q", s.Name)
		}
		args := s.Args
		if args == nil {
			args = []string{}
		}
		cfg.MCPServers[s.Name] = mcpServerEntry{Command: s.Command, Args: args, Env: s.Env}
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal MCP config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create MCP config directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".mcp-*.json")
	if err != nil {
		return fmt.Errorf("failed to write MCP config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write MCP config: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write MCP config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write MCP config: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write MCP config: %w", err)
	}
	return nil
}
