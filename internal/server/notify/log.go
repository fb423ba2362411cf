package notify

import (
	"context"
	"fmt"
	"sort"

	"github.com/dmitrijs2005/safepass/internal/logging"
)

// LogNotifier records notifications in the log instead of sending them. It
// is used when no SMTP host is configured. Substitution values are never
// logged since they carry codes and reset links, so kinds that require
// delivery fail with ErrNotDelivered.
type LogNotifier struct {
	renderer *Renderer
	logger   logging.Logger
}

func NewLogNotifier(renderer *Renderer, logger logging.Logger) *LogNotifier {
	return &LogNotifier{renderer: renderer, logger: logger.With("module", "notify.log")}
}

func (l *LogNotifier) Send(ctx context.Context, to string, kind Kind, subs map[string]string) error {
	msg, err := l.renderer.Render(kind, subs)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(subs))
	for k := range subs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if kind.RequiresDelivery() {
		l.logger.Warn(ctx, "notification not sent, smtp disabled",
			"kind", string(kind), "to", logging.MaskEmail(to), "subject", msg.Subject, "keys", keys)
		return fmt.Errorf("%w: %s: smtp disabled", ErrNotDelivered, kind)
	}
	l.logger.Info(ctx, "notification not sent, smtp disabled",
		"kind", string(kind), "to", logging.MaskEmail(to), "subject", msg.Subject, "keys", keys)
	return nil
}
