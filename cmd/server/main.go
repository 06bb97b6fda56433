package main

import (
	"log"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/urfave/negroni"

	"example.com/soundsright/internal/jobstore"
	"example.com/soundsright/internal/queue"
	"example.com/soundsright/internal/service"
	"example.com/soundsright/internal/storage"
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
	port := env("PORT", "8080")

	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		log.Fatalf("server: aws session: %v", err)
	}

	jobs := jobstore.New(dynamodb.New(sess), table)
	artifacts := storage.New(s3.New(sess), reviewBucket, productionBucket)
	tasks := queue.New(sqs.New(sess), queueName)
	svc := service.New(jobs, artifacts, tasks)

	srv := &server{api: svc, versions: jobs, signer: artifacts}

	n := negroni.Classic()
	if jwksURL := os.Getenv("JWKS_URL"); jwksURL != "" {
		auth, err := newAuthMiddleware(jwksURL)
		if err != nil {
			log.Fatalf("server: auth middleware: %v", err)
		}
		n.Use(auth)
	} else {
		log.Print("server: JWKS_URL not set, running without authentication")
	}
	n.UseHandler(srv.routes())

	log.Printf("server: listening on :%s (review=%s production=%s table=%s queue=%s)",
		port, reviewBucket, productionBucket, table, queueName)
	n.Run(":" + port)
}
