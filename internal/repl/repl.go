// Package repl runs an intake interview over a line-oriented terminal.
package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/BTreeMap/IntakePipe/internal/flow"
	"github.com/BTreeMap/IntakePipe/internal/state"
)

const (
	agentPrefix = "Agent: "
	userPrefix  = "You: "
	goodbye     = "Progress saved. Goodbye."
)

// Turner is the part of flow.IntakeFlow the loop drives.
type Turner interface {
	ProcessTurn(ctx context.Context, doc *state.Document, text string) (flow.TurnResult, error)
	Prompt(doc *state.Document) string
	Complete(doc *state.Document) bool
}

// REPL reads user lines and prints agent replies.
type REPL struct {
	flow Turner
	in   io.Reader
	out  io.Writer
}

// Option configures a REPL.
type Option func(*REPL)

// WithInput reads user lines from r instead of stdin.
func WithInput(r io.Reader) Option {
	return func(l *REPL) {
		l.in = r
	}
}

// WithOutput writes the dialogue to w instead of stdout.
func WithOutput(w io.Writer) Option {
	return func(l *REPL) {
		l.out = w
	}
}

// New creates a REPL around f.
func New(f Turner, opts ...Option) *REPL {
	l := &REPL{flow: f, in: os.Stdin, out: os.Stdout}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// IsExit reports whether line asks to leave the interview.
func IsExit(line string) bool {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "exit", "quit":
		return true
	default:
		return false
	}
}

// Run asks questions until the application is complete, the user exits, the
// input ends or ctx is cancelled. Persistence failures are reported and the
// interview continues.
func (l *REPL) Run(ctx context.Context, doc *state.Document) error {
	l.say(l.flow.Prompt(doc))
	if l.flow.Complete(doc) {
		return nil
	}

	scanner := bufio.NewScanner(l.in)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Fprint(l.out, userPrefix)
		if !scanner.Scan() {
			fmt.Fprintln(l.out)
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("failed to read input: %w", err)
			}
			slog.Debug("repl.REPL.Run: input closed", "applicationID", doc.ID())
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if IsExit(line) {
			l.say(goodbye)
			return nil
		}

		res, err := l.flow.ProcessTurn(ctx, doc, line)
		if err != nil {
			slog.Error("repl.REPL.Run: turn not persisted", "applicationID", doc.ID(), "error", err)
			fmt.Fprintf(l.out, "(warning: progress could not be saved: %v)\n", err)
		}
		for _, msg := range res.Messages {
			l.say(msg)
		}
		if res.Complete {
			return nil
		}
	}
}

func (l *REPL) say(msg string) {
	fmt.Fprintln(l.out, agentPrefix+msg)
}
