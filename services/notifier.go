package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ses"
	"github.com/aws/aws-sdk-go/service/ses/sesiface"
	"github.com/google/uuid"

	"transcriber/config"
	"transcriber/models"
)

type notificationStore interface {
	InsertNotification(ctx context.Context, n *models.Notification) error
	GetAccount(ctx context.Context, accountID string) (models.Account, error)
}

// Notifier records user-visible events when jobs reach a terminal state and,
// when enabled, mirrors them to email. Emit never reports failure to the
// caller: notification delivery must not fail a lifecycle transition.
type Notifier struct {
	store        notificationStore
	email        sesiface.SESAPI
	sender       string
	emailEnabled bool
}

func NewNotifier(cfg *config.Config, store *DatabaseService) *Notifier {
	n := &Notifier{
		store:        store,
		sender:       cfg.EmailSender,
		emailEnabled: cfg.EmailEnabled,
	}

	if cfg.EmailEnabled {
		awsCfg := &aws.Config{
			Region: aws.String(cfg.AWSRegion),
		}
		if cfg.AWSAccessKey != "" {
			awsCfg.Credentials = credentials.NewStaticCredentials(
				cfg.AWSAccessKey,
				cfg.AWSSecretKey,
				"",
			)
		}
		if cfg.AWSEndpoint != "" {
			awsCfg.Endpoint = aws.String(cfg.AWSEndpoint)
		}
		n.email = ses.New(session.Must(session.NewSession(awsCfg)))
	}

	return n
}

func (n *Notifier) Emit(ctx context.Context, accountID string, kind models.NotificationKind, jobID, title, detail string) {
	record := &models.Notification{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Kind:      kind,
		JobID:     jobID,
		Title:     title,
		Detail:    detail,
		CreatedAt: time.Now(),
	}

	if err := n.store.InsertNotification(ctx, record); err != nil {
		log.Printf("[Notifier] Failed to record %s notification for job %s: %v", kind, jobID, err)
		return
	}

	if n.emailEnabled && n.email != nil {
		n.sendEmail(ctx, accountID, kind, title, detail)
	}
}

func (n *Notifier) sendEmail(ctx context.Context, accountID string, kind models.NotificationKind, title, detail string) {
	acct, err := n.store.GetAccount(ctx, accountID)
	if err != nil || acct.Email == "" {
		return
	}

	subject := fmt.Sprintf("Transcription %s: %s", kind, title)
	body := detail
	if body == "" {
		body = subject
	}

	_, err = n.email.SendEmailWithContext(ctx, &ses.SendEmailInput{
		Source: aws.String(n.sender),
		Destination: &ses.Destination{
			ToAddresses: []*string{aws.String(acct.Email)},
		},
		Message: &ses.Message{
			Subject: &ses.Content{Data: aws.String(subject)},
			Body: &ses.Body{
				Text: &ses.Content{Data: aws.String(body)},
			},
		},
	})
	if err != nil {
		log.Printf("[Notifier] Failed to email %s: %v", acct.Email, err)
	}
}
