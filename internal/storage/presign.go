package storage

import (
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"

	"example.com/soundsright/internal/types"
)

const presignExpiry = 15 * time.Minute

// SignedPutURL returns a presigned URL that lets a client upload one file
// directly into the review bucket under an already-assigned version. The
// bucket's object-created notification turns such uploads into jobs.
func (s *Store) SignedPutURL(song types.Song, version int, filename string) (string, error) {
	req, _ := s.S3.PutObjectRequest(&s3.PutObjectInput{
		Bucket: aws.String(s.ReviewBucket),
		Key:    aws.String(ObjectKey(song, version, filename)),
	})
	return req.Presign(presignExpiry)
}

// SignedGetURL returns a presigned download URL for an artifact locator.
func (s *Store) SignedGetURL(locator string) (string, error) {
	bucket, key, err := ParseLocator(locator)
	if err != nil {
		return "", err
	}
	req, _ := s.S3.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	return req.Presign(presignExpiry)
}
