// Package notify pushes human-facing alerts about trades and failures.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

type Message struct {
	Level  Level
	Symbol string
	Title  string
	Text   string
}

func (m Message) String() string {
	if m.Symbol == "" {
		return fmt.Sprintf("[%s] %s: %s", m.Level, m.Title, m.Text)
	}
	return fmt.Sprintf("[%s] %s %s: %s", m.Level, m.Symbol, m.Title, m.Text)
}

type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Multi delivers to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "notify")}
}

func (n *LogNotifier) Notify(ctx context.Context, msg Message) error {
	level := slog.LevelInfo
	switch msg.Level {
	case LevelWarn:
		level = slog.LevelWarn
	case LevelError:
		level = slog.LevelError
	}
	n.logger.Log(ctx, level, msg.Title, "symbol", msg.Symbol, "text", msg.Text)
	return nil
}
