package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"subgate/internal/common/config"
	"subgate/internal/common/logger"
)

type SESService interface {
	SendEmail(ctx context.Context, input *ses.SendEmailInput) (*ses.SendEmailOutput, error)
}

type SNSService interface {
	Publish(ctx context.Context, input *sns.PublishInput) (*sns.PublishOutput, error)
}

// Notifier tells operators when a gate channel stopped being checkable,
// usually because the bot lost its admin rights or the channel was
// deleted. Alerts for the same channel are rate limited so a popular
// post does not page anyone a thousand times.
type Notifier struct {
	cfg    config.AlertConfig
	ses    SESService
	sns    SNSService
	logger logger.Logger

	mu       sync.Mutex
	lastSent map[string]time.Time
	cooldown time.Duration
}

func New(cfg config.AlertConfig, sesClient SESService, snsClient SNSService, log logger.Logger) *Notifier {
	return &Notifier{
		cfg:      cfg,
		ses:      sesClient,
		sns:      snsClient,
		logger:   log,
		lastSent: make(map[string]time.Time),
		cooldown: time.Hour,
	}
}

// NotifyChannelFault sends the alert through every enabled transport.
// Failures are logged and swallowed; alerting never propagates into
// the gate path.
func (n *Notifier) NotifyChannelFault(ctx context.Context, channel string, faultErr error) {
	if !n.shouldSend(channel) {
		return
	}

	subject := fmt.Sprintf("Gate channel %s needs attention", channel)
	body := fmt.Sprintf(
		"Membership checks against %s are failing and the channel is being skipped.\n\nError: %v\n\nRestore the bot's admin rights or remove the channel from affected posts.",
		channel, faultErr)

	if n.cfg.Email.Enabled && n.ses != nil {
		for _, to := range n.cfg.Email.ToEmails {
			if err := n.sendEmail(ctx, to, subject, body); err != nil {
				n.logger.Error("alert email failed", map[string]interface{}{
					"to":    to,
					"error": err.Error(),
				})
			}
		}
	}

	if n.cfg.SMS.Enabled && n.sns != nil {
		for _, phone := range n.cfg.SMS.PhoneNumbers {
			if err := n.sendSMS(ctx, phone, subject); err != nil {
				n.logger.Error("alert sms failed", map[string]interface{}{
					"phone": phone,
					"error": err.Error(),
				})
			}
		}
	}
}

func (n *Notifier) shouldSend(channel string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if last, ok := n.lastSent[channel]; ok && time.Since(last) < n.cooldown {
		return false
	}
	n.lastSent[channel] = time.Now()
	return true
}

func (n *Notifier) sendEmail(ctx context.Context, to, subject, body string) error {
	_, err := n.ses.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &sestypes.Destination{
			ToAddresses: []string{to},
		},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{Data: aws.String(subject)},
			Body: &sestypes.Body{
				Text: &sestypes.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(n.cfg.Email.FromEmail),
	})
	return err
}

func (n *Notifier) sendSMS(ctx context.Context, to, message string) error {
	_, err := n.sns.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(to),
		Message:     aws.String(message),
	})
	return err
}
