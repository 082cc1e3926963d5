// Package notify fans healing and breaker events out to a human-facing
// channel. It is an optional collaborator: a nil *Notifier is always safe
// to call, so subsystems that have no Slack webhook configured simply omit
// the notification step.
package notify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
)

// Notifier posts operator-facing alerts to Slack.
type Notifier struct {
	client  *slack.Client
	channel string
}

// New constructs a Notifier. token is a Slack bot token; channel is the
// destination channel ID or name.
func New(token, channel string) *Notifier {
	if token == "" {
		return nil
	}
	return &Notifier{client: slack.New(token), channel: channel}
}

// Recovery announces that the self-healing supervisor invoked a recovery
// hook for component.
func (n *Notifier) Recovery(ctx context.Context, component, detail string) error {
	if n == nil {
		return nil
	}
	return n.post(ctx, fmt.Sprintf(":adhesive_bandage: recovery attempted for *%s*: %s", component, detail))
}

// CircuitBreak announces that a breaker opened for a critical-risk tool.
func (n *Notifier) CircuitBreak(ctx context.Context, operation string, failureCount int) error {
	if n == nil {
		return nil
	}
	return n.post(ctx, fmt.Sprintf(":rotating_light: breaker *%s* opened after %d failures", operation, failureCount))
}

func (n *Notifier) post(ctx context.Context, text string) error {
	_, _, err := n.client.PostMessageContext(ctx, n.channel, slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("notify: post slack message: %w", err)
	}
	return nil
}
