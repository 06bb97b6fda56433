// Package storage is the versioned artifact store. Files live under
// artist/album/title/version/filename in the review bucket until approval
// promotes the whole version prefix to the production bucket.
package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"example.com/soundsright/internal/types"
)

// Store wraps the blob service and the two bucket names. Versions are
// immutable once written; promotion is copy-then-delete so a crash leaves
// duplicates, never a lost version.
type Store struct {
	S3               s3iface.S3API
	ReviewBucket     string
	ProductionBucket string
}

func New(svc s3iface.S3API, reviewBucket, productionBucket string) *Store {
	return &Store{S3: svc, ReviewBucket: reviewBucket, ProductionBucket: productionBucket}
}

// Upload writes content under the given song version in the review bucket
// and returns its locator. The version must already be assigned; see the job
// store's version counter.
func (s *Store) Upload(content []byte, song types.Song, version int, filename, contentType string) (string, error) {
	key := ObjectKey(song, version, filename)
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.ReviewBucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(content),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.S3.PutObject(input); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return Locator(s.ReviewBucket, key), nil
}

// Download resolves a locator and materializes the object at a temporary
// local path. The caller owns the file and must remove it.
func (s *Store) Download(locator string) (string, error) {
	bucket, key, err := ParseLocator(locator)
	if err != nil {
		return "", err
	}
	out, err := s.S3.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return "", fmt.Errorf("artifact %s: %w", locator, types.ErrNotFound)
		}
		return "", fmt.Errorf("download %s: %w", locator, err)
	}
	defer out.Body.Close()

	tmp, err := os.CreateTemp("", "soundsright-*-"+path.Base(key))
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, out.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	return tmp.Name(), nil
}

// Promote copies every file of the version from the review bucket to the
// production bucket, then deletes the review copies. Returns filename to new
// locator. Safe to retry: a partial earlier run only means some files are
// already in production and no longer listed in review.
func (s *Store) Promote(song types.Song, version int) (map[string]string, error) {
	prefix := VersionPrefix(song, version)
	keys, err := s.listKeys(s.ReviewBucket, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("no files under %s: %w", prefix, types.ErrNotFound)
	}

	moved := make(map[string]string, len(keys))
	for _, key := range keys {
		_, err := s.S3.CopyObject(&s3.CopyObjectInput{
			Bucket:     aws.String(s.ProductionBucket),
			Key:        aws.String(key),
			CopySource: aws.String(url.PathEscape(s.ReviewBucket + "/" + key)),
		})
		if err != nil {
			return nil, fmt.Errorf("copy %s: %w", key, err)
		}
		_, err = s.S3.DeleteObject(&s3.DeleteObjectInput{
			Bucket: aws.String(s.ReviewBucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return nil, fmt.Errorf("delete review copy %s: %w", key, err)
		}
		moved[path.Base(key)] = Locator(s.ProductionBucket, key)
	}
	return moved, nil
}

// PromotedFiles lists the production copies of a version, filename to
// locator. An empty map means the version was never promoted.
func (s *Store) PromotedFiles(song types.Song, version int) (map[string]string, error) {
	prefix := VersionPrefix(song, version)
	keys, err := s.listKeys(s.ProductionBucket, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	files := make(map[string]string, len(keys))
	for _, key := range keys {
		files[path.Base(key)] = Locator(s.ProductionBucket, key)
	}
	return files, nil
}

// Delete removes a single object. Cleanup only; promotion never calls it.
func (s *Store) Delete(locator string) error {
	bucket, key, err := ParseLocator(locator)
	if err != nil {
		return err
	}
	_, err = s.S3.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", locator, err)
	}
	return nil
}

func (s *Store) listKeys(bucket, prefix string) ([]string, error) {
	var keys []string
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	}
	for {
		out, err := s.S3.ListObjectsV2(input)
		if err != nil {
			return nil, err
		}
		for _, obj := range out.Contents {
			keys = append(keys, aws.StringValue(obj.Key))
		}
		if !aws.BoolValue(out.IsTruncated) {
			break
		}
		input.ContinuationToken = out.NextContinuationToken
	}
	return keys, nil
}

func isNoSuchKey(err error) bool {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		return aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound"
	}
	return false
}
