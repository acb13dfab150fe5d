// Command agentctl runs the ReAct agent against a configured LLM provider.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/effective-security/agentloop/callbacks"
	"github.com/effective-security/agentloop/encoding"
	"github.com/effective-security/agentloop/pkg/llms"
	"github.com/effective-security/xlog"
)

// Globals are the flags shared by the commands
type Globals struct {
	Config  string `name:"config" short:"c" type:"existingfile" env:"AGENTCTL_CONFIG" help:"Location of the agentctl config"`
	Verbose bool   `name:"verbose" short:"v" help:"Print the loop trace"`
	Quiet   bool   `name:"quiet" short:"q" help:"Do not print the loop trace"`
	Audit   string `name:"audit" help:"Print the tool calls of each turn in the format: json, yaml or toml"`
	Debug   bool   `name:"debug" help:"Enable debug logs"`
	DryRun  bool   `name:"dry-run" help:"Use the offline model that repeats the user message"`

	ctx   context.Context
	out   io.Writer
	in    io.Reader
	model llms.Model
}

// CLI is the command line interface
type CLI struct {
	Globals

	Run     RunCmd     `cmd:"" help:"Run the agent for one message"`
	Chat    ChatCmd    `cmd:"" help:"Start an interactive chat"`
	Tools   ToolsCmd   `cmd:"" help:"Print the tools available to the agent"`
	Chats   ChatsCmd   `cmd:"" help:"List the chats of the tenant"`
	History HistoryCmd `cmd:"" help:"Print the messages of a chat"`
}

func main() {
	cli := CLI{}
	cmd := kong.Parse(&cli,
		kong.Name("agentctl"),
		kong.Description("ReAct agent command line interface"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cli.ctx = ctx
	cli.out = os.Stdout
	cli.in = os.Stdin

	level := xlog.WARNING
	if cli.Debug {
		level = xlog.DEBUG
	}
	xlog.SetFormatter(xlog.NewStringFormatter(os.Stderr))
	xlog.SetGlobalLogLevel(level)

	err := cmd.Run(&cli.Globals)
	cmd.FatalIfErrorf(err)
}

// app loads the config and creates the App
func (g *Globals) app() (*App, error) {
	cfg, err := LoadConfig(g.Config)
	if err != nil {
		return nil, err
	}

	model := g.model
	if model == nil && g.DryRun {
		model = dryRun{}
	}
	if model == nil {
		if model, err = NewModel(cfg); err != nil {
			return nil, err
		}
	}

	opts := []AppOption{WithOutput(g.out)}
	if g.Audit != "" {
		enc, err := encoding.NewEncoder(g.Audit)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithAudit(enc))
	}
	return NewApp(cfg, model, g.callback(), opts...)
}

func (g *Globals) callback() callbacks.Callback {
	fanout := callbacks.NewFanout(callbacks.NewPackageLogger(logger))
	if !g.Quiet {
		mode := callbacks.ModeDefault
		if g.Verbose {
			mode = callbacks.ModeVerbose
		}
		fanout.Add(callbacks.NewPrinter(os.Stderr, mode))
	}
	return fanout
}
