package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"

	"transcriber/config"
	"transcriber/models"
)

// QueueMessage is the payload handed to the external transcription worker
// pool. CallbackURL is where the worker reports the outcome.
type QueueMessage struct {
	JobID       string `json:"jobId"`
	SourceURL   string `json:"sourceUrl"`
	CallbackURL string `json:"callbackUrl"`
}

type QueuePublisher struct {
	client   sqsiface.SQSAPI
	queueURL string
}

func NewQueuePublisher(cfg *config.Config) *QueuePublisher {
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

	sess := session.Must(session.NewSession(awsCfg))

	return &QueuePublisher{
		client:   sqs.New(sess),
		queueURL: cfg.SQSQueueURL,
	}
}

// Enqueue hands a job to the worker pool. Transport failures surface as
// *models.PublishError; there is no internal retry, the caller decides.
func (q *QueuePublisher) Enqueue(ctx context.Context, jobID, sourceURL, callbackURL string) error {
	body, err := json.Marshal(QueueMessage{
		JobID:       jobID,
		SourceURL:   sourceURL,
		CallbackURL: callbackURL,
	})
	if err != nil {
		return &models.PublishError{Err: fmt.Errorf("failed to serialize message: %w", err)}
	}

	_, err = q.client.SendMessageWithContext(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return &models.PublishError{Err: err}
	}

	return nil
}
