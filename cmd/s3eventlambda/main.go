// Lambda entry point for direct uploads: when a presigned PUT drops an
// object into the review bucket, the object-created event lands here and
// becomes a pending job plus a task message. The object key already carries
// the song identity and assigned version: artist/album/title/version/file.
package main

import (
	"context"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/sqs"

	"example.com/soundsright/internal/jobstore"
	"example.com/soundsright/internal/queue"
	"example.com/soundsright/internal/service"
	"example.com/soundsright/internal/storage"
	"example.com/soundsright/internal/types"
)

var svc *service.Service

func handleEvent(ctx context.Context, event events.S3Event) error {
	for _, record := range event.Records {
		bucket := record.S3.Bucket.Name
		key, err := url.QueryUnescape(record.S3.Object.Key)
		if err != nil {
			log.Printf("s3event: undecodable key %q: %v", record.S3.Object.Key, err)
			continue
		}

		song, version, ok := parseKey(key)
		if !ok {
			log.Printf("s3event: ignoring key outside the versioned layout: %s", key)
			continue
		}

		job, err := svc.SubmitStored(song, version, storage.Locator(bucket, key))
		if err != nil {
			return err
		}
		log.Printf("s3event: job %s created for %s version %d", job.ID, song.Key(), version)
	}
	return nil
}

var audioExtensions = map[string]bool{
	".wav":  true,
	".mp3":  true,
	".flac": true,
}

// parseKey splits artist/album/title/version/filename and requires an audio
// extension. Anything else (lyrics sidecars, foreign objects) is skipped.
func parseKey(key string) (types.Song, int, bool) {
	parts := strings.Split(key, "/")
	if len(parts) != 5 {
		return types.Song{}, 0, false
	}
	version, err := strconv.Atoi(parts[3])
	if err != nil || version < 1 {
		return types.Song{}, 0, false
	}
	if !audioExtensions[strings.ToLower(filepath.Ext(parts[4]))] {
		return types.Song{}, 0, false
	}
	song := types.Song{Artist: parts[0], Album: parts[1], Title: parts[2]}
	return song, version, true
}

func main() {
	region := os.Getenv("AWS_REGION")
	table := os.Getenv("TABLE_NAME")
	queueName := os.Getenv("QUEUE_NAME")
	reviewBucket := os.Getenv("REVIEW_BUCKET")
	productionBucket := os.Getenv("PRODUCTION_BUCKET")

	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		log.Fatalf("s3event: aws session: %v", err)
	}

	jobs := jobstore.New(dynamodb.New(sess), table)
	artifacts := storage.New(s3.New(sess), reviewBucket, productionBucket)
	tasks := queue.New(sqs.New(sess), queueName)
	svc = service.New(jobs, artifacts, tasks)

	lambda.Start(handleEvent)
}
