// Package queue is the task-queue client: durable, at-least-once delivery
// with manual acknowledgment. A message is acknowledged (deleted) only after
// the handler returns nil; a handler error resets its visibility so the
// broker redelivers it. Each consumer holds at most one message in flight.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"

	"example.com/soundsright/internal/types"
)

const (
	// waitSeconds is the long-poll window for one receive call.
	waitSeconds = 20
	// visibilityTimeout bounds one processing attempt. Transcription can run
	// for minutes; a worker that dies holds its message at most this long
	// before the broker redelivers it.
	visibilityTimeout = 900
	// retentionSeconds keeps undelivered tasks for 14 days.
	retentionSeconds = "1209600"
)

// Handler processes one delivered task. A nil return acknowledges the
// message; an error requests redelivery.
type Handler func(msg types.TaskMessage) error

type Client struct {
	SQS  sqsiface.SQSAPI
	Name string

	// mu guards url; one client is shared by every HTTP handler.
	mu  sync.Mutex
	url string
}

func New(svc sqsiface.SQSAPI, name string) *Client {
	return &Client{SQS: svc, Name: name}
}

// ensureQueue resolves the queue URL, declaring the durable queue if it does
// not exist yet. Declaration is idempotent, so every producer and consumer
// runs it on first use and after reconnects.
func (c *Client) ensureQueue() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.url != "" {
		return c.url, nil
	}
	out, err := c.SQS.GetQueueUrl(&sqs.GetQueueUrlInput{QueueName: aws.String(c.Name)})
	if err == nil {
		c.url = aws.StringValue(out.QueueUrl)
		return c.url, nil
	}
	var aerr awserr.Error
	if !errors.As(err, &aerr) || aerr.Code() != sqs.ErrCodeQueueDoesNotExist {
		return "", fmt.Errorf("resolve queue %s: %w", c.Name, err)
	}
	created, err := c.SQS.CreateQueue(&sqs.CreateQueueInput{
		QueueName: aws.String(c.Name),
		Attributes: map[string]*string{
			"MessageRetentionPeriod": aws.String(retentionSeconds),
			"VisibilityTimeout":      aws.String(fmt.Sprintf("%d", visibilityTimeout)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("declare queue %s: %w", c.Name, err)
	}
	c.url = aws.StringValue(created.QueueUrl)
	return c.url, nil
}

// Publish serializes the task message and hands it to the broker. A failure
// here is synchronous; the caller decides what to do with the job it already
// created.
func (c *Client) Publish(msg types.TaskMessage) error {
	url, err := c.ensureQueue()
	if err != nil {
		return err
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal task for job %s: %w", msg.JobID, err)
	}
	_, err = c.SQS.SendMessage(&sqs.SendMessageInput{
		QueueUrl:    aws.String(url),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("publish task for job %s: %w", msg.JobID, err)
	}
	return nil
}

// Consume long-polls the queue until ctx is canceled, delivering messages to
// handler one at a time. Messages that cannot be decoded are dropped after
// logging; redelivering them could never succeed.
func (c *Client) Consume(ctx context.Context, handler Handler) error {
	url, err := c.ensureQueue()
	if err != nil {
		return err
	}
	for {
		out, err := c.SQS.ReceiveMessageWithContext(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(url),
			MaxNumberOfMessages: aws.Int64(1),
			WaitTimeSeconds:     aws.Int64(waitSeconds),
			VisibilityTimeout:   aws.Int64(visibilityTimeout),
		})
		if err != nil {
			if ctx.Err() != nil || isCanceled(err) {
				return nil
			}
			log.Printf("queue %s: receive failed: %v", c.Name, err)
			continue
		}
		for _, raw := range out.Messages {
			c.dispatch(url, raw, handler)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *Client) dispatch(url string, raw *sqs.Message, handler Handler) {
	var msg types.TaskMessage
	if err := json.Unmarshal([]byte(aws.StringValue(raw.Body)), &msg); err != nil {
		log.Printf("queue %s: dropping undecodable message: %v", c.Name, err)
		c.ack(url, raw)
		return
	}
	if err := handler(msg); err != nil {
		log.Printf("queue %s: handler failed for job %s, requesting redelivery: %v", c.Name, msg.JobID, err)
		c.nack(url, raw)
		return
	}
	c.ack(url, raw)
}

func (c *Client) ack(url string, raw *sqs.Message) {
	_, err := c.SQS.DeleteMessage(&sqs.DeleteMessageInput{
		QueueUrl:      aws.String(url),
		ReceiptHandle: raw.ReceiptHandle,
	})
	if err != nil {
		// The broker will redeliver; the handler must tolerate duplicates.
		log.Printf("queue %s: ack failed: %v", c.Name, err)
	}
}

func (c *Client) nack(url string, raw *sqs.Message) {
	_, err := c.SQS.ChangeMessageVisibility(&sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(url),
		ReceiptHandle:     raw.ReceiptHandle,
		VisibilityTimeout: aws.Int64(0),
	})
	if err != nil {
		log.Printf("queue %s: nack failed: %v", c.Name, err)
	}
}

func isCanceled(err error) bool {
	var aerr awserr.Error
	if errors.As(err, &aerr) && aerr.Code() == request.CanceledErrorCode {
		return true
	}
	return errors.Is(err, context.Canceled)
}
