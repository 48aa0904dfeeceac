// Command mcpcheck runs the MCP conformance scenario against a server and
// reports each step.
package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	conformance "github.com/ajitpratap0/mcp-conformance"
	"github.com/ajitpratap0/mcp-conformance/pkg/config"
)

// channelModule is the websocket library the harness speaks through
const channelModule = "github.com/gorilla/websocket@v1.5.3"

type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	installDeps func(ctx context.Context) error
}

func newApp() *app {
	a := &app{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	a.installDeps = func(ctx context.Context) error {
		cmd := installCommand(ctx)
		cmd.Stdout = a.stdout
		cmd.Stderr = a.stderr
		return cmd.Run()
	}
	return a
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := newApp().execute(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

// installCommand downloads the channel library into the module cache
func installCommand(ctx context.Context) *exec.Cmd {
	return exec.CommandContext(ctx, "go", "mod", "download", channelModule)
}

func (a *app) execute(ctx context.Context, args []string) int {
	code := 0
	cmd := a.command(&code)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(a.stderr, "mcpcheck: %v\n", err)
		return 1
	}
	return code
}

func (a *app) command(code *int) *cobra.Command {
	var installDeps bool

	var variables bytes.Buffer
	_ = config.Usage(&variables)

	cmd := &cobra.Command{
		Use:     "mcpcheck",
		Short:   "Check an MCP server over a persistent JSON-RPC channel",
		Version: conformance.Version,
		Long: `mcpcheck connects to an MCP server, performs the initialize handshake,
lists the advertised tools and calls a fixed sequence of tools, reporting
whether every reply is a well-formed, correctly correlated JSON-RPC response.

The exit status is 1 when the configuration is invalid or the channel fails
(connection lost or a call timed out) and 0 otherwise, even when steps fail.

Configuration is read from the environment:

` + variables.String(),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if installDeps {
				if err := a.installDeps(cmd.Context()); err != nil {
					return fmt.Errorf("failed to download %s: %w", channelModule, err)
				}
				fmt.Fprintf(a.stdout, "downloaded %s\n", channelModule)
				return nil
			}

			*code = a.run(cmd.Context())
			return nil
		},
	}
	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)
	cmd.Flags().BoolVar(&installDeps, "install-deps", false, "download the websocket library and exit")
	return cmd
}

func (a *app) run(ctx context.Context) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(a.stderr, "mcpcheck: %v\n", err)
		return 1
	}

	out := a.stdout
	options := []conformance.Option{conformance.WithLogOutput(a.stderr)}
	if cfg.Transport == "stdio" {
		// stdout carries the channel
		out = a.stderr
		options = append(options, conformance.WithStdio(a.stdin, a.stdout))
	}

	report, err := conformance.Run(ctx, cfg, out, options...)
	if err != nil && report == nil {
		fmt.Fprintf(a.stderr, "mcpcheck: %v\n", err)
	}
	return conformance.ExitCode(report, err)
}
