package discord

import "github.com/Strob0t/agentplan/internal/port/notifier"

func init() {
	notifier.Register(kind, func(spec notifier.Spec) (notifier.Notifier, error) {
		return NewNotifier(spec.WebhookURL, spec.Timeout), nil
	})
}
