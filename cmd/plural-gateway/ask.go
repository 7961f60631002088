package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zhubert/plural-gateway/claude"
	"github.com/zhubert/plural-gateway/logger"
)

var askRepo string

var askCmd = &cobra.Command{
	Use:   "ask <message>",
	Short: "Ask the agent a question and stream the answer",
	Long: `Runs a single agent invocation and prints its events as they arrive.
The credential is read from the variable named by agent.credential_env.
Ctrl-C kills the agent.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup("")
		if err != nil {
			return err
		}
		defer logger.Close()

		gw, _, err := newGateway(cfg, nil)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		_, events := gw.Stream(ctx, claude.Request{
			Message:       strings.Join(args, " "),
			RepositoryURL: askRepo,
			Credential:    os.Getenv(cfg.Agent.CredentialEnv),
		})
		return printEvents(cmd.OutOrStdout(), events)
	},
}

func init() {
	askCmd.Flags().StringVar(&askRepo, "repo", "", "repository URL to mention in the prompt")
}

// printEvents drains events to w. It returns an error when the invocation
// ended with an error event.
func printEvents(w io.Writer, events <-chan claude.Event) error {
	var failure error
	for ev := range events {
		switch ev.Type {
		case claude.EventText:
			fmt.Fprint(w, ev.Content)
		case claude.EventToolUse:
			fmt.Fprintf(w, "\n[%s] %s\n", ev.ToolName, ev.Content)
		case claude.EventResult:
			fmt.Fprintf(w, "\n\n%s\n", ev.Content)
		case claude.EventError:
			failure = errors.New(ev.Content)
		}
	}
	return failure
}
