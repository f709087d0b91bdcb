// Package notifier provides run notification functionality
package notifier

import (
	"fmt"
	"time"

	"github.com/gen2brain/beeep"

	"github.com/marketpack/marketpack/pkg/logger"
	"github.com/marketpack/marketpack/pkg/types"
)

// SendFunc delivers one desktop notification
type SendFunc func(title, message string) error

// RunNotifier handles run notifications
type RunNotifier struct {
	enabled bool
	send    SendFunc
	logger  logger.Logger
}

// Config represents notification configuration
type Config struct {
	Enabled bool
	// Beep plays the system beep when a run fails
	Beep bool
}

// Option configures a RunNotifier
type Option func(*RunNotifier)

// WithSender replaces the desktop notification backend
func WithSender(send SendFunc) Option {
	return func(n *RunNotifier) {
		n.send = send
	}
}

// New creates a new run notifier
func New(config Config, log logger.Logger, opts ...Option) *RunNotifier {
	if log == nil {
		log = logger.NewNopLogger()
	}
	n := &RunNotifier{
		enabled: config.Enabled,
		logger:  log,
		send: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
	}
	if config.Beep {
		notify := n.send
		n.send = func(title, message string) error {
			if err := notify(title, message); err != nil {
				return err
			}
			if title == titleFailed {
				return beeep.Beep(beeep.DefaultFreq, beeep.DefaultDuration)
			}
			return nil
		}
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

const (
	titleSucceeded = "📦 Packaging Succeeded"
	titleFailed    = "📦 Packaging Failed"
)

// NotifyTargetStart logs that a target started. Targets are too frequent for
// desktop notifications.
func (n *RunNotifier) NotifyTargetStart(target string) {
	n.logger.Debug("Target started", logger.WithField("target", target))
}

// NotifyTargetResult logs a finished target
func (n *RunNotifier) NotifyTargetResult(result types.TargetResult) {
	n.logger.Debug("Target finished",
		logger.WithField("target", result.Target),
		logger.WithField("status", result.Status),
	)
}

// NotifyRunComplete sends one desktop notification summarizing the run
func (n *RunNotifier) NotifyRunComplete(result *types.RunResult) {
	if !n.enabled || result == nil {
		return
	}

	title := titleSucceeded
	if !result.AllSucceeded() {
		title = titleFailed
	}
	message := fmt.Sprintf("%s in %s", result.Summary(), formatDuration(result.Duration))
	if result.PublishError != "" {
		message += "; publish failed"
	}

	if err := n.send(title, message); err != nil {
		n.logger.Debug("Failed to send notification", logger.WithField("error", err))
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
