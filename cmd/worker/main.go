package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/sqs"

	"example.com/soundsright/internal/jobstore"
	"example.com/soundsright/internal/queue"
	"example.com/soundsright/internal/storage"
	"example.com/soundsright/internal/transcribe"
	"example.com/soundsright/internal/worker"
)

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	region := env("AWS_REGION", "us-east-1")
	reviewBucket := env("REVIEW_BUCKET", "song-transcription-review")
	productionBucket := env("PRODUCTION_BUCKET", "song-transcription")
	table := env("TABLE_NAME", "transcription_jobs")
	queueName := env("QUEUE_NAME", "transcription_tasks")

	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		log.Fatalf("worker: aws session: %v", err)
	}

	jobs := jobstore.New(dynamodb.New(sess), table)
	artifacts := storage.New(s3.New(sess), reviewBucket, productionBucket)
	tasks := queue.New(sqs.New(sess), queueName)
	transcriber := transcribe.NewWhisperCLI(
		os.Getenv("WHISPER_COMMAND"),
		os.Getenv("WHISPER_MODEL"),
		os.Getenv("DEMUCS_COMMAND"),
	)
	w := worker.New(jobs, artifacts, transcriber)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("worker: consuming %s (table=%s review=%s)", queueName, table, reviewBucket)
	if err := tasks.Consume(ctx, w.Handle); err != nil {
		log.Fatalf("worker: consume: %v", err)
	}
	log.Print("worker: shut down")
}
