// Package cmdlog decorates a transport so every exchange with the
// instrument is logged, with commands and responses colored for terminals.
package cmdlog

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/gotmc/instrument"
	"go.uber.org/zap"
)

var (
	CmdStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	R1Style  = lipgloss.NewStyle().Foreground(lipgloss.Color("35"))
	R2Style  = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	ErrStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func isAscii(s string) bool {
	return !strings.ContainsFunc(s, func(r rune) bool {
		switch {
		case r < 7:
			return true
		case r > 6 && r < 14:
			return false
		case r > 13 && r < 32:
			return true
		case r > 127:
			return true
		}
		return false
	})
}

// Pretty renders a response for a log line. Binary responses (block data,
// status bytes) are shown as hex.
func Pretty(a string) string {
	a = strings.TrimSuffix(a, "\n")
	switch {
	case len(a) == 0:
		return "<no response>"
	case isAscii(a):
		return fmt.Sprintf("[%d] %q", len(a), a)
	case len(a) < 32:
		return fmt.Sprintf("[%d] %q (% 2x)", len(a), a, []byte(a))
	default:
		return fmt.Sprintf("[%d] % 2x", len(a), []byte(a))
	}
}

// Transport logs each exchange of the wrapped transport at info level.
type Transport struct {
	next   instrument.Transport
	logger *zap.Logger
	// Styled colors the logged command and response. Turn it off for log
	// files and JSON output.
	Styled bool
}

func New(next instrument.Transport, logger *zap.Logger) *Transport {
	return &Transport{next: next, logger: logger, Styled: true}
}

func (t *Transport) render(style lipgloss.Style, s string) string {
	if !t.Styled {
		return s
	}
	return style.Render(s)
}

func (t *Transport) Write(cmd string) error {
	err := t.next.Write(cmd)
	if err != nil {
		t.logger.Warn("cmd failed", zap.String("cmd", t.render(CmdStyle, cmd)), zap.Error(err))
		return err
	}
	t.logger.Info(t.render(CmdStyle, cmd) + "()")
	return nil
}

func (t *Transport) Read() (string, error) {
	s, err := t.next.Read()
	if err != nil {
		t.logger.Warn("read failed", zap.Error(err))
		return s, err
	}
	t.logger.Info("read", zap.String("response", t.render(R1Style, Pretty(s))))
	return s, nil
}

func (t *Transport) Ask(cmd string) (string, error) {
	s, err := t.next.Ask(cmd)
	q := t.render(CmdStyle, cmd)
	if err != nil {
		t.logger.Warn("query failed", zap.String("query", q), zap.Error(err))
		return s, err
	}
	t.logger.Info(q, zap.String("response", t.render(R2Style, Pretty(s))))
	return s, nil
}

// Close closes the wrapped transport when it supports closing.
func (t *Transport) Close() error {
	if c, ok := t.next.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
