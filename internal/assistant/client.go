// Package assistant talks to an external assistant CLI (claude by default).
// A Client is built once from configuration and handed to whatever needs it.
package assistant

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/kingrea/timeless/internal/logging"
)

// MaxPromptBytes caps a prompt. The prompt travels as one command-line
// argument and Linux rejects single arguments over 128 KiB.
const MaxPromptBytes = 96 << 10

var (
	// ErrDisabled is returned by a client built from a disabled configuration.
	ErrDisabled = errors.New("assistant: disabled in configuration")
	// ErrPromptTooLarge is returned before spawning when a prompt exceeds MaxPromptBytes.
	ErrPromptTooLarge = errors.New("assistant: prompt too large")
)

// Client sends a prompt and returns the assistant's reply.
type Client interface {
	Send(ctx context.Context, prompt string) (string, error)
}

// Options configures a Process client.
type Options struct {
	Enabled bool
	Command string
	Args    []string
	Timeout time.Duration
	Logger  *logging.Logger
}

// Process runs `<command> <args...> <prompt>` once per Send.
type Process struct {
	command string
	args    []string
	timeout time.Duration
	log     *logging.Logger
}

// New returns a Process client, or a client that always fails with ErrDisabled.
func New(opts Options) Client {
	if !opts.Enabled {
		return disabled{}
	}
	return &Process{
		command: strings.TrimSpace(opts.Command),
		args:    append([]string(nil), opts.Args...),
		timeout: opts.Timeout,
		log:     opts.Logger,
	}
}

// Send runs the command and returns trimmed stdout.
func (p *Process) Send(ctx context.Context, prompt string) (string, error) {
	if p.command == "" {
		return "", fmt.Errorf("assistant: command is empty")
	}
	if len(prompt) > MaxPromptBytes {
		return "", fmt.Errorf("%w: %d bytes, limit %d", ErrPromptTooLarge, len(prompt), MaxPromptBytes)
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	args := append(append([]string(nil), p.args...), prompt)
	cmd := exec.CommandContext(ctx, p.command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	p.log.Debugf("assistant: sending %d-char prompt to %s", len(prompt), p.command)
	start := time.Now()
	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", fmt.Errorf("assistant: %s not found; make sure it is installed and in PATH: %w", p.command, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("assistant: %s: %w", p.command, ctxErr)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		p.log.Warnf("assistant: %s failed: %s", p.command, msg)
		return "", fmt.Errorf("assistant: %s failed: %s", p.command, msg)
	}
	reply := strings.TrimSpace(stdout.String())
	p.log.Debugf("assistant: reply of %d chars in %s", len(reply), time.Since(start).Round(time.Millisecond))
	return reply, nil
}

type disabled struct{}

func (disabled) Send(context.Context, string) (string, error) {
	return "", ErrDisabled
}
