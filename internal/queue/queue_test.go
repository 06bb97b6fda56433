package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"

	"example.com/soundsright/internal/types"
)

type fakeMessage struct {
	body    string
	visible bool
}

// fakeSQS is an in-memory single-queue broker. Receives hide a message until
// it is deleted or its visibility is reset.
type fakeSQS struct {
	sqsiface.SQSAPI
	mu       sync.Mutex
	created  int
	declared bool
	messages []*fakeMessage
}

func (f *fakeSQS) GetQueueUrl(in *sqs.GetQueueUrlInput) (*sqs.GetQueueUrlOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.declared {
		return nil, awserr.New(sqs.ErrCodeQueueDoesNotExist, "no queue", nil)
	}
	return &sqs.GetQueueUrlOutput{QueueUrl: aws.String("fake://queue")}, nil
}

func (f *fakeSQS) CreateQueue(in *sqs.CreateQueueInput) (*sqs.CreateQueueOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	f.declared = true
	return &sqs.CreateQueueOutput{QueueUrl: aws.String("fake://queue")}, nil
}

func (f *fakeSQS) SendMessage(in *sqs.SendMessageInput) (*sqs.SendMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, &fakeMessage{body: aws.StringValue(in.MessageBody), visible: true})
	return &sqs.SendMessageOutput{}, nil
}

func (f *fakeSQS) ReceiveMessageWithContext(ctx aws.Context, in *sqs.ReceiveMessageInput, _ ...request.Option) (*sqs.ReceiveMessageOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &sqs.ReceiveMessageOutput{}
	for i, m := range f.messages {
		if m.visible {
			m.visible = false
			out.Messages = append(out.Messages, &sqs.Message{
				Body:          aws.String(m.body),
				ReceiptHandle: aws.String(handle(i)),
			})
			break
		}
	}
	return out, nil
}

func (f *fakeSQS) DeleteMessage(in *sqs.DeleteMessageInput) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := indexFromHandle(aws.StringValue(in.ReceiptHandle))
	f.messages = append(f.messages[:i], f.messages[i+1:]...)
	return &sqs.DeleteMessageOutput{}, nil
}

func (f *fakeSQS) ChangeMessageVisibility(in *sqs.ChangeMessageVisibilityInput) (*sqs.ChangeMessageVisibilityOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := indexFromHandle(aws.StringValue(in.ReceiptHandle))
	f.messages[i].visible = true
	return &sqs.ChangeMessageVisibilityOutput{}, nil
}

func handle(i int) string { return string(rune('a' + i)) }

func indexFromHandle(h string) int { return int(h[0] - 'a') }

func taskMsg(jobID string) types.TaskMessage {
	return types.TaskMessage{
		Task:     types.TaskTranscribeAudio,
		JobID:    jobID,
		AudioURL: "s3://review/A/B/C/1/song.wav",
	}
}

func TestPublishDeclaresQueueOnce(t *testing.T) {
	f := &fakeSQS{}
	c := New(f, "transcription")

	if err := c.Publish(taskMsg("job-1")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := c.Publish(taskMsg("job-2")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if f.created != 1 {
		t.Fatalf("queue declared %d times, want 1", f.created)
	}
	if len(f.messages) != 2 {
		t.Fatalf("broker holds %d messages, want 2", len(f.messages))
	}

	var msg types.TaskMessage
	if err := json.Unmarshal([]byte(f.messages[0].body), &msg); err != nil {
		t.Fatalf("wire form not JSON: %v", err)
	}
	if msg.Task != types.TaskTranscribeAudio || msg.JobID != "job-1" {
		t.Fatalf("unexpected wire message %+v", msg)
	}
	if msg.Lyrics != nil {
		t.Fatal("absent lyrics should serialize as null")
	}
}

func TestPublishConcurrently(t *testing.T) {
	f := &fakeSQS{}
	c := New(f, "transcription")

	const publishers = 8
	var wg sync.WaitGroup
	errs := make(chan error, publishers)
	for i := 0; i < publishers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- c.Publish(taskMsg("job-" + strconv.Itoa(i)))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	if f.created != 1 {
		t.Fatalf("queue declared %d times, want 1", f.created)
	}
	if len(f.messages) != publishers {
		t.Fatalf("broker holds %d messages, want %d", len(f.messages), publishers)
	}
}

func TestConsumeAcknowledgesOnSuccess(t *testing.T) {
	f := &fakeSQS{}
	c := New(f, "transcription")
	if err := c.Publish(taskMsg("job-1")); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var got []string
	err := c.Consume(ctx, func(msg types.TaskMessage) error {
		got = append(got, msg.JobID)
		cancel()
		return nil
	})
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if len(got) != 1 || got[0] != "job-1" {
		t.Fatalf("handled %v", got)
	}
	if len(f.messages) != 0 {
		t.Fatal("acknowledged message still on queue")
	}
}

func TestConsumeRedeliversOnHandlerError(t *testing.T) {
	f := &fakeSQS{}
	c := New(f, "transcription")
	if err := c.Publish(taskMsg("job-1")); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := c.Consume(ctx, func(msg types.TaskMessage) error {
		attempts++
		if attempts == 1 {
			return errors.New("boom")
		}
		cancel()
		return nil
	})
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("message delivered %d times, want 2", attempts)
	}
	if len(f.messages) != 0 {
		t.Fatal("message not acknowledged after successful retry")
	}
}

func TestConsumeDropsUndecodableMessage(t *testing.T) {
	f := &fakeSQS{}
	c := New(f, "transcription")
	if _, err := c.ensureQueue(); err != nil {
		t.Fatal(err)
	}
	f.messages = append(f.messages, &fakeMessage{body: "{not json", visible: true})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		// One receive round is enough to drain the poison message.
		cancel()
	}()
	handled := 0
	if err := c.Consume(ctx, func(types.TaskMessage) error { handled++; return nil }); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if handled != 0 {
		t.Fatal("handler should not see undecodable messages")
	}
}
