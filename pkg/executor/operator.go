package executor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

// Operator is the human at a manual checkpoint.
type Operator interface {
	// Acknowledge blocks until the operator confirms prompt is done. Any
	// error means the checkpoint was abandoned.
	Acknowledge(ctx context.Context, prompt string) error
}

// OperatorFunc adapts a function to Operator.
type OperatorFunc func(ctx context.Context, prompt string) error

// Acknowledge calls f(ctx, prompt).
func (f OperatorFunc) Acknowledge(ctx context.Context, prompt string) error {
	return f(ctx, prompt)
}

// Errors returned by ConsoleOperator.
var (
	ErrNotInteractive  = errors.New("input is not an interactive terminal")
	ErrOperatorAborted = errors.New("operator aborted the checkpoint")
	ErrOperatorHungUp  = errors.New("input closed before acknowledgment")
)

// ConsoleOperator prompts on Out and waits for a line on In. An empty line
// (Enter) acknowledges; "abort", "a" or "q" abandons. Lines entered while no
// prompt is showing are discarded, so one operator can serve every run of a
// process.
type ConsoleOperator struct {
	In  io.Reader
	Out io.Writer

	// RequireTTY abandons immediately when In is a file that is not a
	// terminal, so unattended runs never hang on a checkpoint.
	RequireTTY bool

	startOnce sync.Once
	lines     chan lineResult
}

type lineResult struct {
	line string
	err  error
	at   time.Time
}

// typeAhead bounds how many unprompted lines are held before the reader
// stops draining In.
const typeAhead = 64

// NewConsoleOperator returns an operator on stdin/stdout.
func NewConsoleOperator() *ConsoleOperator {
	return &ConsoleOperator{In: os.Stdin, Out: os.Stdout, RequireTTY: true}
}

// Acknowledge implements Operator. Cancelling ctx abandons the checkpoint.
func (o *ConsoleOperator) Acknowledge(ctx context.Context, prompt string) error {
	if o.RequireTTY {
		if f, ok := o.In.(*os.File); ok && !term.IsTerminal(int(f.Fd())) {
			return ErrNotInteractive
		}
	}

	shown := time.Now()
	fmt.Fprintf(o.Out, "\n  ⏸  %s\n     Press Enter when done (or type 'abort'): ", prompt)
	o.startOnce.Do(func() {
		o.lines = make(chan lineResult, typeAhead)
		go o.readLines()
	})

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(o.Out)
			return ctx.Err()
		case res, ok := <-o.lines:
			if !ok {
				return ErrOperatorHungUp
			}
			if res.err != nil {
				if errors.Is(res.err, io.EOF) {
					return ErrOperatorHungUp
				}
				return res.err
			}
			if res.at.Before(shown) {
				continue
			}
			switch strings.ToLower(strings.TrimSpace(res.line)) {
			case "abort", "a", "q", "quit":
				return ErrOperatorAborted
			}
			return nil
		}
	}
}

// readLines feeds timestamped lines from In to Acknowledge. It runs for the
// life of the operator since a blocked read cannot be interrupted; the
// channel is closed after the first read error.
func (o *ConsoleOperator) readLines() {
	defer close(o.lines)
	r := bufio.NewReader(o.In)
	for {
		line, err := r.ReadString('\n')
		if err != nil && line != "" && errors.Is(err, io.EOF) {
			err = nil
		}
		o.lines <- lineResult{line: line, err: err, at: time.Now()}
		if err != nil {
			return
		}
	}
}
