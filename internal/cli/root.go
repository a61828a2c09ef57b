// Package cli implements schedctl, the operator command line for the
// scheduler HTTP API.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/SirClappington/wheelsched/internal/logging"
)

type app struct {
	server   string
	output   string
	logLevel string
	debug    bool

	client *Client
	out    printer
}

// defaultServer returns the server URL, checking WHEELSCHED_SERVER first.
func defaultServer() string {
	if s := os.Getenv("WHEELSCHED_SERVER"); s != "" {
		return s
	}
	return "http://localhost:8130"
}

func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "schedctl",
		Short: "Drive a wheelsched scheduler over HTTP",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if !validFormat(a.output) {
				return fmt.Errorf("unknown output format %q (json, yaml, table)", a.output)
			}
			level := a.logLevel
			if a.debug {
				level = "debug"
			}
			a.client = NewClient(a.server, logging.NewWithWriter(level, "console", cmd.ErrOrStderr()))
			a.out = printer{w: cmd.OutOrStdout(), format: a.output}
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&a.server, "server", defaultServer(), "scheduler URL (or WHEELSCHED_SERVER env)")
	root.PersistentFlags().StringVarP(&a.output, "output", "o", "json", "output format: json, yaml, table")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(
		a.newSubmitCmd(),
		a.newHeartbeatCmd(),
		a.newJobsCmd(),
		a.newJobCmd(),
		a.newExecutionsCmd(),
		a.newNodesCmd(),
		a.newShardsCmd(),
		a.newSimpleCmd("stats", "Show wheel and queue statistics", http.MethodGet, "/api/queues"),
		a.newEventsCmd(),
		a.newSimpleCmd("pause", "Pause dispatch", http.MethodPost, "/api/controls/pause"),
		a.newSimpleCmd("resume", "Resume dispatch", http.MethodPost, "/api/controls/resume"),
		a.newSeedCmd(),
	)
	return root
}

func (a *app) fetch(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var raw json.RawMessage
	var err error
	if method == http.MethodPost {
		err = a.client.Post(ctx, path, body, &raw)
	} else {
		err = a.client.Get(ctx, path, &raw)
	}
	return raw, err
}

// render prints raw as json/yaml, or through table when table output was
// requested and the command supports it.
func (a *app) render(raw json.RawMessage, table func(json.RawMessage) error) error {
	if a.out.table() && table != nil {
		return table(raw)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return a.out.print(v)
}

func (a *app) newSimpleCmd(use, short, method, path string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := a.fetch(cmd.Context(), method, path, nil)
			if err != nil {
				return fmt.Errorf("%s: %w", use, err)
			}
			return a.render(raw, nil)
		},
	}
}
