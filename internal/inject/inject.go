// Package inject delivers an accepted chat message to where the player can
// send it.
package inject

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/atotto/clipboard"

	"github.com/petems/lfs-stt/internal/config"
)

// Injector defines the interface for message delivery
type Injector interface {
	Deliver(ctx context.Context, text string) error
}

// New returns the injector for the configured mode.
func New(cfg config.InjectConfig) (Injector, error) {
	switch cfg.Mode {
	case config.InjectClipboard, "":
		return &clipboardInjector{write: clipboard.WriteAll}, nil
	case config.InjectStdout:
		return NewWriter(os.Stdout), nil
	default:
		return nil, fmt.Errorf("unknown inject mode %q", cfg.Mode)
	}
}

type clipboardInjector struct {
	write func(string) error
}

// Deliver places text on the system clipboard.
func (c *clipboardInjector) Deliver(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if clipboard.Unsupported {
		return fmt.Errorf("failed to write clipboard: no clipboard utility available")
	}
	if err := c.write(text); err != nil {
		return fmt.Errorf("failed to write clipboard: %w", err)
	}
	return nil
}

// WriterInjector writes each message as one line, for piping into a game
// client or another tool.
type WriterInjector struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriter(w io.Writer) *WriterInjector {
	return &WriterInjector{w: w}
}

func (s *WriterInjector) Deliver(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintln(s.w, text); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}
