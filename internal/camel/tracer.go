package camel

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"

	"github.com/epalmerini/camelhole/internal/trace"
)

const defaultBin = "camel"

// Config describes how to reach the Camel CLI and which integration to trace.
type Config struct {
	Bin         string   // Camel CLI binary, defaults to "camel"
	Args        []string // extra args inserted before the subcommand
	Integration string   // integration name or pid as understood by the CLI
}

func (c Config) bin() string {
	if c.Bin == "" {
		return defaultBin
	}
	return c.Bin
}

// Tracer runs the Camel CLI trace command for one integration and turns
// its dump output into ExchangeEvents. One Tracer owns one parser and one
// child process; create a new Tracer per tracing session.
type Tracer struct {
	config Config
	opts   []trace.Option

	cmd     *exec.Cmd
	cancel  context.CancelFunc
	waitErr error
	done    chan struct{}
}

// NewTracer creates a tracer for the given integration. Parser options
// (emission delays) are passed through to the underlying trace.Parser.
func NewTracer(cfg Config, opts ...trace.Option) *Tracer {
	return &Tracer{config: cfg, opts: opts}
}

// Start spawns the trace command and returns a channel of parsed events.
// The channel closes when the process exits or ctx is cancelled. Events
// are dropped when the consumer lags behind the buffer.
func (t *Tracer) Start(ctx context.Context) (<-chan trace.ExchangeEvent, error) {
	ctx, cancel := context.WithCancel(ctx)

	args := append(append([]string{}, t.config.Args...), "trace", t.config.Integration)
	cmd := exec.CommandContext(ctx, t.config.bin(), args...)

	// Stdout and stderr share one pipe so line order across the two
	// streams is preserved as the CLI interleaves them.
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start %s trace: %w", t.config.bin(), err)
	}
	t.cmd = cmd
	t.cancel = cancel

	events := make(chan trace.ExchangeEvent, 100)
	parser := trace.New(func(ev trace.ExchangeEvent) {
		select {
		case events <- ev:
		default:
			// Consumer lagging, drop event
		}
	}, t.opts...)

	t.done = make(chan struct{})
	go func() {
		t.waitErr = cmd.Wait()
		_ = pw.Close()
		close(t.done)
	}()

	go func() {
		defer close(events)
		pump(pr, parser)
	}()

	return events, nil
}

// pump feeds whole lines from r into the parser and finishes it at EOF.
func pump(r io.Reader, p *trace.Parser) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if err := p.Feed(sc.Text()); err != nil {
			break
		}
	}
	p.Done()
}

// Close terminates the trace process and waits for it to exit.
func (t *Tracer) Close() error {
	if t.cancel != nil {
		t.cancel()
	}
	if t.done == nil {
		return nil
	}
	<-t.done
	// Killed-by-cancel is the expected shutdown path.
	var exitErr *exec.ExitError
	if t.waitErr != nil && !errors.As(t.waitErr, &exitErr) {
		return t.waitErr
	}
	return nil
}

// action runs a trace control subcommand against the integration and
// waits for it. These are pass-through commands to the CLI; the running
// dump stream is unaffected.
func (t *Tracer) action(ctx context.Context, action string) error {
	args := append(append([]string{}, t.config.Args...), "trace", t.config.Integration, "--action="+action)
	out, err := exec.CommandContext(ctx, t.config.bin(), args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s trace --action=%s: %w: %s", t.config.bin(), action, err, bytes.TrimSpace(out))
	}
	return nil
}

// StartTrace enables tracing for the integration.
func (t *Tracer) StartTrace(ctx context.Context) error { return t.action(ctx, "start") }

// StopTrace disables tracing for the integration.
func (t *Tracer) StopTrace(ctx context.Context) error { return t.action(ctx, "stop") }

// ClearTrace clears the events the CLI has accumulated for the
// integration. The consumer-side event list is reset separately; the
// parser itself has no clear operation.
func (t *Tracer) ClearTrace(ctx context.Context) error { return t.action(ctx, "clear") }
