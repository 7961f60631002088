package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zhubert/plural-gateway/claude"
	"github.com/zhubert/plural-gateway/config"
	"github.com/zhubert/plural-gateway/logger"
	"github.com/zhubert/plural-gateway/metrics"
)

var (
	flagConfig string
	flagLog    string
	flagDebug  bool
)

var rootCmd = &cobra.Command{
	Use:   "plural-gateway",
	Short: "HTTP gateway in front of the Claude Code CLI",
	Long: `plural-gateway runs Claude Code CLI invocations on behalf of HTTP clients
and streams the agent's output back as server-sent events. It also stores
projects and chat sessions and keeps project repositories cloned locally.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default <configDir>/gateway.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagLog, "log", "", `log destination, a file path or "-" for stderr`)
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd, askCmd, doctorCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads the config and initializes logging. fallbackLog is used when
// neither --log nor the config names a destination.
func setup(fallbackLog string) (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}

	dest := cfg.Log.Path
	if flagLog != "" {
		dest = flagLog
	}
	if dest == "" {
		dest = fallbackLog
	}
	if dest == "" {
		if dest, err = logger.DefaultLogPath(); err != nil {
			return nil, err
		}
	}
	logger.SetDebug(flagDebug || cfg.Log.Debug)
	if err := logger.Init(dest); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newGateway wires the agent runner from cfg. m may be nil.
func newGateway(cfg *config.Config, m *metrics.Metrics) (*claude.Gateway, string, error) {
	reposDir, err := cfg.ReposDir()
	if err != nil {
		return nil, "", fmt.Errorf("failed to resolve repos dir: %w", err)
	}
	capPath, err := cfg.CapabilityConfigPath()
	if err != nil {
		return nil, "", fmt.Errorf("failed to write capability config: %w", err)
	}

	pm := claude.NewProcessManager(cfg.ProcessConfig(capPath), logger.WithComponent("process"))
	gw := claude.NewGateway(claude.PromptBuilder{ReposDir: reposDir}, pm, m)
	return gw, reposDir, nil
}
