// Package paths locates the gateway's files: gateway.yaml and the generated
// mcp-servers.json (config), cloned repositories (data) and logs (state).
//
// All three live under one base directory, $PLURAL_GATEWAY_HOME or
// ~/.plural-gateway, unless that directory is absent and XDG variables are
// set, in which case each goes to its XDG location.
package paths

import (
	"os"
	"path/filepath"
	"sync"
)

const appName = "plural-gateway"

// EnvHome names a single base directory for everything, for containers.
const EnvHome = "PLURAL_GATEWAY_HOME"

type layout struct {
	config string
	data   string
	state  string
}

var (
	mu     sync.Mutex
	cached *layout
)

func current() (*layout, error) {
	mu.Lock()
	defer mu.Unlock()

	if cached == nil {
		l, err := resolve()
		if err != nil {
			return nil, err
		}
		cached = l
	}
	return cached, nil
}

func resolve() (*layout, error) {
	if base := os.Getenv(EnvHome); base != "" {
		return single(base), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	base := filepath.Join(home, "."+appName)
	if info, err := os.Stat(base); err == nil && info.IsDir() {
		return single(base), nil
	}

	cfg, data, state := os.Getenv("XDG_CONFIG_HOME"), os.Getenv("XDG_DATA_HOME"), os.Getenv("XDG_STATE_HOME")
	if cfg == "" && data == "" && state == "" {
		return single(base), nil
	}
	return &layout{
		config: filepath.Join(orDefault(cfg, home, ".config"), appName),
		data:   filepath.Join(orDefault(data, home, ".local", "share"), appName),
		state:  filepath.Join(orDefault(state, home, ".local", "state"), appName),
	}, nil
}

func single(base string) *layout {
	return &layout{config: base, data: base, state: base}
}

func orDefault(dir, home string, rel ...string) string {
	if dir != "" {
		return dir
	}
	return filepath.Join(append([]string{home}, rel...)...)
}

// ConfigFilePath returns the default gateway.yaml location.
func ConfigFilePath() (string, error) {
	l, err := current()
	if err != nil {
		return "", err
	}
	return filepath.Join(l.config, "gateway.yaml"), nil
}

// CapabilityConfigPath returns where the generated --mcp-config file goes.
func CapabilityConfigPath() (string, error) {
	l, err := current()
	if err != nil {
		return "", err
	}
	return filepath.Join(l.config, "mcp-servers.json"), nil
}

// ReposDir returns the default clone directory.
func ReposDir() (string, error) {
	l, err := current()
	if err != nil {
		return "", err
	}
	return filepath.Join(l.data, "repos"), nil
}

func LogsDir() (string, error) {
	l, err := current()
	if err != nil {
		return "", err
	}
	return filepath.Join(l.state, "logs"), nil
}

// Reset drops the cached layout so tests can change HOME or XDG variables.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	cached = nil
}
