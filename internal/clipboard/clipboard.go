package clipboard

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/mattn/go-shellwords"
)

// Copier writes text into the system clipboard.
type Copier interface {
	SetText(ctx context.Context, text string) error
}

// execCopier pipes text into an external clipboard command such as
// wl-copy or xclip.
type execCopier struct {
	cmd []string
}

func NewExecCopier(command string) (Copier, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse clipboard command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("clipboard command empty")
	}
	return &execCopier{cmd: args}, nil
}

func (c *execCopier) SetText(ctx context.Context, text string) error {
	base := c.cmd[0]
	args := append([]string{}, c.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	cmd.Stdin = strings.NewReader(text)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("clipboard command failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// MemoryCopier stores the last copied text in memory; tests use it in
// place of a real clipboard.
type MemoryCopier struct {
	Text string
	Err  error
}

func (m *MemoryCopier) SetText(_ context.Context, text string) error {
	if m.Err != nil {
		return m.Err
	}
	m.Text = text
	return nil
}
