package email

import (
	"context"

	"github.com/smallbiznis/storefront/internal/audit/masking"
	obslogger "github.com/smallbiznis/storefront/internal/observability/logger"
	"go.uber.org/zap"
)

// TemplateRestock is the back-in-stock notification sent by the waitlist fan-out.
const TemplateRestock = "restock"

type Provider interface {
	Send(ctx context.Context, to []string, subject string, htmlBody string) error
	SendTemplate(ctx context.Context, to []string, templateName string, data map[string]any) error
}

// LogProvider writes each message to the log instead of delivering it.
// Used when SMTP is not configured so local fan-outs still complete.
type LogProvider struct {
	log *zap.Logger
}

func NewLogProvider(log *zap.Logger) *LogProvider {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogProvider{log: log.Named("email.log")}
}

func (p *LogProvider) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	if len(to) == 0 {
		return ErrNoRecipients
	}
	obslogger.WithContext(ctx, p.log).Info("email not delivered, smtp disabled",
		zap.Strings("to", maskRecipients(to)),
		zap.String("subject", subject),
		zap.Int("body_bytes", len(htmlBody)),
	)
	return nil
}

func (p *LogProvider) SendTemplate(ctx context.Context, to []string, templateName string, data map[string]any) error {
	subject, body, err := Render(templateName, data)
	if err != nil {
		return err
	}
	return p.Send(ctx, to, subject, body)
}

func maskRecipients(to []string) []string {
	out := make([]string, len(to))
	for i, addr := range to {
		out[i] = masking.MaskEmail(addr)
	}
	return out
}
