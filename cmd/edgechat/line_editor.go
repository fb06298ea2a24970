package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
)

var (
	errInputInterrupt = errors.New("chat: input interrupted")
	errInputEOF       = errors.New("chat: input eof")
)

type lineEditor interface {
	ReadLine(prompt string) (string, error)
	Output() io.Writer
	Close() error
}

type lineEditorConfig struct {
	HistoryFile string
	Commands    []string
}

// newLineEditor uses readline on a terminal and plain line reads otherwise,
// so piped input works.
func newLineEditor(cfg lineEditorConfig, in io.Reader, out io.Writer) lineEditor {
	if isTTY(os.Stdin) && isTTY(os.Stdout) && in == os.Stdin {
		if rl, err := newReadlineEditor(cfg); err == nil {
			return rl
		}
	}
	return &stdioEditor{reader: bufio.NewReader(in), out: out}
}

func isTTY(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

type readlineEditor struct {
	rl *readline.Instance
}

func newReadlineEditor(cfg lineEditorConfig) (*readlineEditor, error) {
	historyFile := strings.TrimSpace(cfg.HistoryFile)
	if historyFile != "" {
		if err := os.MkdirAll(filepath.Dir(historyFile), 0o755); err != nil {
			return nil, fmt.Errorf("chat: create history dir: %w", err)
		}
	}
	items := make([]readline.PrefixCompleterInterface, 0, len(cfg.Commands))
	for _, cmd := range cfg.Commands {
		items = append(items, readline.PcItem("/"+cmd))
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "> ",
		HistoryFile:       historyFile,
		AutoComplete:      readline.NewPrefixCompleter(items...),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return nil, err
	}
	return &readlineEditor{rl: rl}, nil
}

func (r *readlineEditor) ReadLine(prompt string) (string, error) {
	r.rl.SetPrompt(prompt)
	line, err := r.rl.Readline()
	switch {
	case err == nil:
		return strings.TrimSpace(line), nil
	case errors.Is(err, readline.ErrInterrupt):
		return "", errInputInterrupt
	case errors.Is(err, io.EOF):
		return "", errInputEOF
	default:
		return "", err
	}
}

func (r *readlineEditor) Output() io.Writer { return r.rl.Stdout() }

func (r *readlineEditor) Close() error { return r.rl.Close() }

type stdioEditor struct {
	reader *bufio.Reader
	out    io.Writer
}

func (s *stdioEditor) ReadLine(prompt string) (string, error) {
	fmt.Fprint(s.out, prompt)
	line, err := s.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			if strings.TrimSpace(line) != "" {
				return strings.TrimSpace(line), nil
			}
			return "", errInputEOF
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (s *stdioEditor) Output() io.Writer { return s.out }

func (s *stdioEditor) Close() error { return nil }
