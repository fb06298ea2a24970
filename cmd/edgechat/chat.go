package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/OnslaughtSnail/edgechat/kernel/relay"
)

var chatCommands = []string{"clear", "memory", "session", "help", "exit"}

type chatOptions struct {
	server  string
	session string
	model   string
}

type chatUI struct {
	out    io.Writer
	client *apiClient
	opts   chatOptions

	assistant *color.Color
	notice    *color.Color
	failure   *color.Color
}

func newChatCmd() *cobra.Command {
	var opts chatOptions
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with a running server from the terminal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.session == "" {
				opts.session = uuid.NewString()
			}
			editor := newLineEditor(lineEditorConfig{
				HistoryFile: historyPath(),
				Commands:    chatCommands,
			}, cmd.InOrStdin(), cmd.OutOrStdout())
			defer editor.Close()
			return runChat(cmd.Context(), editor, opts)
		},
	}
	cmd.Flags().StringVar(&opts.server, "server", defaultServerURL, "server base URL")
	cmd.Flags().StringVar(&opts.session, "session", "", "session id (default: a new random id)")
	cmd.Flags().StringVar(&opts.model, "model", "", "model id override")
	return cmd
}

func historyPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "edgechat", "history")
}

func runChat(ctx context.Context, editor lineEditor, opts chatOptions) error {
	ui := &chatUI{
		out:       editor.Output(),
		client:    newAPIClient(opts.server),
		opts:      opts,
		assistant: color.New(color.FgCyan),
		notice:    color.New(color.Faint),
		failure:   color.New(color.FgRed),
	}
	ui.notice.Fprintf(ui.out, "session %s (type /help for commands)\n", opts.session)
	for {
		line, err := editor.ReadLine("> ")
		switch {
		case errors.Is(err, errInputInterrupt):
			continue
		case errors.Is(err, errInputEOF):
			return nil
		case err != nil:
			return err
		}
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if done := ui.command(ctx, line); done {
				return nil
			}
			continue
		}
		if err := ui.send(ctx, line); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			ui.failure.Fprintf(ui.out, "error: %v\n", err)
		}
	}
}

// command runs a slash command and reports whether the REPL should exit.
func (ui *chatUI) command(ctx context.Context, line string) bool {
	switch strings.TrimPrefix(strings.Fields(line)[0], "/") {
	case "exit", "quit":
		return true
	case "clear":
		if err := ui.client.clear(ctx, ui.opts.session); err != nil {
			ui.failure.Fprintf(ui.out, "error: %v\n", err)
			return false
		}
		ui.notice.Fprintln(ui.out, "memory cleared")
	case "memory":
		raw, err := ui.client.memory(ctx, ui.opts.session)
		if err != nil {
			ui.failure.Fprintf(ui.out, "error: %v\n", err)
			return false
		}
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, raw, "", "  "); err != nil {
			pretty.Reset()
			pretty.Write(raw)
		}
		fmt.Fprintln(ui.out, pretty.String())
	case "session":
		fmt.Fprintln(ui.out, ui.opts.session)
	case "help":
		ui.notice.Fprintln(ui.out, "/clear   forget this session\n/memory  show stored memory\n/session print the session id\n/exit    quit")
	default:
		ui.failure.Fprintf(ui.out, "unknown command %s\n", line)
	}
	return false
}

// send streams one reply to the output as it arrives.
func (ui *chatUI) send(ctx context.Context, message string) error {
	wrote := false
	err := ui.client.chat(ctx, ui.opts.session, message, ui.opts.model, func(ev relay.ClientEvent) error {
		switch ev.Name {
		case relay.EventDelta:
			var d relay.Delta
			if err := json.Unmarshal(ev.Data, &d); err != nil {
				return fmt.Errorf("decode delta: %w", err)
			}
			if d.Delta != "" {
				ui.assistant.Fprint(ui.out, d.Delta)
				wrote = true
			}
		case relay.EventError:
			var e relay.ErrorData
			_ = json.Unmarshal(ev.Data, &e)
			if wrote {
				fmt.Fprintln(ui.out)
				wrote = false
			}
			ui.failure.Fprintf(ui.out, "stream error: %s\n", e.Message)
		case relay.EventDone:
			if wrote {
				fmt.Fprintln(ui.out)
				wrote = false
			}
		}
		return nil
	})
	if wrote {
		fmt.Fprintln(ui.out)
	}
	return err
}
