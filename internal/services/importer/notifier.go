package importer

import (
	"context"
	"fmt"
	"time"

	"github.com/mailgun/mailgun-go/v4"
	"go.uber.org/zap"
)

// Result describes a finished import job
type Result struct {
	JobID      string
	EntityType string
	Recipient  string
	Created    int
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Subject is the one-line summary of the result
func (r *Result) Subject() string {
	if r.Err != nil {
		return fmt.Sprintf("CSV import of %s failed", r.EntityType)
	}
	return fmt.Sprintf("CSV import of %s succeeded", r.EntityType)
}

// Body is the plain-text report of the result
func (r *Result) Body() string {
	status := fmt.Sprintf("%d record(s) were created.", r.Created)
	if r.Err != nil {
		status = fmt.Sprintf("No records were created: %v", r.Err)
	}
	return fmt.Sprintf("Import job %s for %s finished in %s.\n\n%s\n",
		r.JobID, r.EntityType, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond), status)
}

// Notifier tells the requester how an import ended
type Notifier interface {
	Notify(ctx context.Context, r *Result) error
}

// LogNotifier writes results to the log; used when no mail service is configured
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a new LogNotifier
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Notify implements Notifier
func (n *LogNotifier) Notify(ctx context.Context, r *Result) error {
	fields := []zap.Field{
		zap.String("job_id", r.JobID),
		zap.String("entity", r.EntityType),
		zap.String("recipient", r.Recipient),
		zap.Int("created", r.Created),
		zap.Duration("duration", r.FinishedAt.Sub(r.StartedAt)),
	}
	if r.Err != nil {
		n.logger.Error("csv import failed", append(fields, zap.Error(r.Err))...)
		return nil
	}
	n.logger.Info("csv import finished", fields...)
	return nil
}

// MailgunNotifier mails results through Mailgun
type MailgunNotifier struct {
	client  *mailgun.MailgunImpl
	from    string
	timeout time.Duration
	logger  *zap.Logger
}

// NewMailgunNotifier creates a notifier sending from the given address
func NewMailgunNotifier(domain, apiKey, from string, logger *zap.Logger) *MailgunNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MailgunNotifier{
		client:  mailgun.NewMailgun(domain, apiKey),
		from:    from,
		timeout: 30 * time.Second,
		logger:  logger,
	}
}

// Notify implements Notifier. Results without a recipient are only logged.
func (n *MailgunNotifier) Notify(ctx context.Context, r *Result) error {
	if r.Recipient == "" {
		n.logger.Info("csv import finished without recipient", zap.String("job_id", r.JobID), zap.Int("created", r.Created))
		return nil
	}

	message := n.client.NewMessage(n.from, r.Subject(), r.Body(), r.Recipient)
	sendCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	_, messageID, err := n.client.Send(sendCtx, message)
	if err != nil {
		return fmt.Errorf("failed to mail import result to %s: %w", r.Recipient, err)
	}
	n.logger.Info("import result mailed",
		zap.String("job_id", r.JobID),
		zap.String("to", r.Recipient),
		zap.String("message_id", messageID))
	return nil
}
