package notify

import (
	"context"

	"github.com/okian/agora/internal/domain/model"
	"github.com/okian/agora/pkg/logger"
)

// LogNotifier only logs what would be sent. Used for dry runs.
type LogNotifier struct {
	logger logger.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{logger: logger.Get().Named("notify.log")}
}

func (l *LogNotifier) Send(ctx context.Context, email model.Email) error {
	subject, _ := email.Model["subject"].(string)
	l.logger.Info(ctx, "email",
		logger.String("from", email.From),
		logger.String("to", email.To),
		logger.String("template_id", email.TemplateID),
		logger.String("subject", subject),
	)
	return nil
}
