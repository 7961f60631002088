package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zhubert/plural-gateway/claude"
	"github.com/zhubert/plural-gateway/paths"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Environment overrides, applied after the file is read.
const (
	EnvAddr        = "PLURAL_GATEWAY_ADDR"
	EnvDatabaseURL = "DATABASE_URL"
	EnvReposDir    = "PLURAL_GATEWAY_REPOS_DIR"
)

// Config is the gateway configuration, read from gateway.yaml.
type Config struct {
	Server       ServerConfig `yaml:"server"`
	Agent        AgentConfig  `yaml:"agent"`
	Capabilities []Capability `yaml:"capabilities"` // MCP servers offered to the agent
	Repos        ReposConfig  `yaml:"repos"`
	Store        StoreConfig  `yaml:"store"`
	Log          LogConfig    `yaml:"log"`

	filePath string
}

type ServerConfig struct {
	Addr            string   `yaml:"addr"`
	CORSOrigins     []string `yaml:"cors_origins"`
	Debug           bool     `yaml:"debug"` // gin debug mode
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

type AgentConfig struct {
	Binary       string   `yaml:"binary"`
	AllowedTools []string `yaml:"allowed_tools"`
	// CapabilityConfig is an existing --mcp-config file. When empty the file
	// is generated from Capabilities.
	CapabilityConfig string `yaml:"capability_config"`
	CredentialEnv    string `yaml:"credential_env"`
	WorkingDir       string `yaml:"working_dir"`
}

// Capability is one MCP server definition.
type Capability struct {
	Name    string            `yaml:"name"`
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`
}

type ReposConfig struct {
	Dir string `yaml:"dir"`
}

type StoreConfig struct {
	Driver      string `yaml:"driver"`
	DatabaseURL string `yaml:"database_url"`
}

type LogConfig struct {
	Path  string `yaml:"path"` // "-" for stderr, empty for the default log file
	Debug bool   `yaml:"debug"`
}

// Duration is a wrapper around time.Duration that implements YAML unmarshaling
// from human-readable strings like "10s".
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (any, error) {
	return d.Duration.String(), nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			CORSOrigins:     []string{"http://localhost:3000"},
			ShutdownTimeout: Duration{10 * time.Second},
		},
		Agent: AgentConfig{
			Binary:        claude.DefaultBinary,
			AllowedTools:  append([]string(nil), claude.DefaultAllowedTools...),
			CredentialEnv: claude.DefaultCredentialEnv,
		},
		Capabilities: []Capability{
			{
				Name:    "github",
				Command: "npx",
				Args:    []string{"-y", "@modelcontextprotocol/server-github"},
				Env:     map[string]string{"GITHUB_PERSONAL_ACCESS_TOKEN": "${" + claude.DefaultCredentialEnv + "}"},
			},
		},
		Store: StoreConfig{Driver: DriverMemory},
	}
}

// Load reads the config at path over the defaults, applies environment
// overrides and validates the result. An empty path means the default
// location; a missing file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := paths.ConfigFilePath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := Default()
	cfg.filePath = path

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FilePath returns the path Load read from.
func (c *Config) FilePath() string {
	return c.filePath
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvAddr); ok && v != "" {
		c.Server.Addr = v
	}
	if v, ok := lookup(EnvDatabaseURL); ok && v != "" {
		c.Store.DatabaseURL = v
	}
	if v, ok := lookup(EnvReposDir); ok && v != "" {
		c.Repos.Dir = v
	}
}

// Validate checks the configuration for values the gateway cannot run with.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	if c.Agent.Binary == "" {
		return fmt.Errorf("agent.binary must not be empty")
	}
	if strings.ContainsAny(c.Agent.CredentialEnv, "= ") {
		return fmt.Errorf("agent.credential_env %q is not a valid variable name", c.Agent.CredentialEnv)
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("store.database_url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q (want %s or %s)", c.Store.Driver, DriverMemory, DriverPostgres)
	}

	seen := make(map[string]bool)
	for i, capability := range c.Capabilities {
		if capability.Name == "" {
			return fmt.Errorf("capabilities[%d] has no name", i)
		}
		if capability.Command == "" {
			return fmt.Errorf("capability %s has no command", capability.Name)
		}
		if seen[capability.Name] {
			return fmt.Errorf("duplicate capability: %s", capability.Name)
		}
		seen[capability.Name] = true
	}
	return nil
}

// ReposDir returns the directory repositories are cloned into.
func (c *Config) ReposDir() (string, error) {
	if c.Repos.Dir != "" {
		return filepath.Abs(c.Repos.Dir)
	}
	return paths.ReposDir()
}

// MCPServers converts the configured capabilities for the agent's config file.
func (c *Config) MCPServers() []claude.MCPServer {
	servers := make([]claude.MCPServer, 0, len(c.Capabilities))
	for _, capability := range c.Capabilities {
		servers = append(servers, claude.MCPServer{
			Name:    capability.Name,
			Command: capability.Command,
			Args:    capability.Args,
			Env:     capability.Env,
		})
	}
	return servers
}

// CapabilityConfigPath returns the --mcp-config path, writing the generated
// file first when no explicit file is configured. It returns "" when there
// is nothing to configure.
func (c *Config) CapabilityConfigPath() (string, error) {
	if c.Agent.CapabilityConfig != "" {
		return c.Agent.CapabilityConfig, nil
	}
	if len(c.Capabilities) == 0 {
		return "", nil
	}
	path, err := paths.CapabilityConfigPath()
	if err != nil {
		return "", err
	}
	if err := claude.WriteMCPConfig(path, c.MCPServers()); err != nil {
		return "", err
	}
	return path, nil
}

// ProcessConfig returns the agent process settings.
func (c *Config) ProcessConfig(capabilityConfigPath string) claude.ProcessConfig {
	return claude.ProcessConfig{
		Binary:               c.Agent.Binary,
		AllowedTools:         c.Agent.AllowedTools,
		CapabilityConfigPath: capabilityConfigPath,
		CredentialEnv:        c.Agent.CredentialEnv,
		WorkingDir:           c.Agent.WorkingDir,
	}
}
