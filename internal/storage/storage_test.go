package storage

import (
	"bytes"
	"errors"
	"io"
	"net/url"
	"os"
	"sort"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"example.com/soundsright/internal/types"
)

// fakeS3 keeps objects in memory, bucket -> key -> content.
type fakeS3 struct {
	s3iface.S3API
	objects map[string]map[string][]byte
}

func newFakeS3(buckets ...string) *fakeS3 {
	f := &fakeS3{objects: make(map[string]map[string][]byte)}
	for _, b := range buckets {
		f.objects[b] = make(map[string][]byte)
	}
	return f
}

func (f *fakeS3) PutObject(in *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.StringValue(in.Bucket)][aws.StringValue(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(in *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.StringValue(in.Bucket)][aws.StringValue(in.Key)]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "no such key", nil)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) CopyObject(in *s3.CopyObjectInput) (*s3.CopyObjectOutput, error) {
	source, err := url.PathUnescape(aws.StringValue(in.CopySource))
	if err != nil {
		return nil, err
	}
	srcBucket, srcKey, _ := strings.Cut(source, "/")
	data, ok := f.objects[srcBucket][srcKey]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "no such key", nil)
	}
	f.objects[aws.StringValue(in.Bucket)][aws.StringValue(in.Key)] = data
	return &s3.CopyObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(in *s3.DeleteObjectInput) (*s3.DeleteObjectOutput, error) {
	delete(f.objects[aws.StringValue(in.Bucket)], aws.StringValue(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(in *s3.ListObjectsV2Input) (*s3.ListObjectsV2Output, error) {
	var keys []string
	for key := range f.objects[aws.StringValue(in.Bucket)] {
		if strings.HasPrefix(key, aws.StringValue(in.Prefix)) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, key := range keys {
		out.Contents = append(out.Contents, &s3.Object{Key: aws.String(key)})
	}
	return out, nil
}

var testSong = types.Song{Artist: "A", Album: "B", Title: "C"}

func newTestStore() (*Store, *fakeS3) {
	f := newFakeS3("review", "production")
	return New(f, "review", "production"), f
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	store, _ := newTestStore()
	content := []byte("RIFF fake wav bytes")

	locator, err := store.Upload(content, testSong, 1, "song.wav", "audio/wav")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if locator != "s3://review/A/B/C/1/song.wav" {
		t.Fatalf("unexpected locator %q", locator)
	}

	local, err := store.Download(locator)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer os.Remove(local)

	got, err := os.ReadFile(local)
	if err != nil {
		t.Fatalf("read temp: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("round trip mismatch: got %q want %q", got, content)
	}
}

func TestDownloadMissingArtifact(t *testing.T) {
	store, _ := newTestStore()
	_, err := store.Download("s3://review/A/B/C/1/missing.wav")
	if !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPromoteMovesWholeVersion(t *testing.T) {
	store, f := newTestStore()
	if _, err := store.Upload([]byte("audio"), testSong, 2, "song.wav", "audio/wav"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Upload([]byte("lyrics"), testSong, 2, "lyrics.txt", "text/plain"); err != nil {
		t.Fatal(err)
	}

	moved, err := store.Promote(testSong, 2)
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if len(moved) != 2 {
		t.Fatalf("expected 2 moved files, got %d", len(moved))
	}
	if moved["song.wav"] != "s3://production/A/B/C/2/song.wav" {
		t.Fatalf("unexpected production locator %q", moved["song.wav"])
	}
	if len(f.objects["review"]) != 0 {
		t.Fatalf("review copies not deleted: %v", f.objects["review"])
	}
	if string(f.objects["production"]["A/B/C/2/lyrics.txt"]) != "lyrics" {
		t.Fatal("lyrics content not copied")
	}
}

func TestPromoteEmptyPrefix(t *testing.T) {
	store, _ := newTestStore()
	_, err := store.Promote(testSong, 9)
	if !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPromoteRetryAfterPartialCopy(t *testing.T) {
	store, f := newTestStore()
	if _, err := store.Upload([]byte("audio"), testSong, 1, "song.wav", "audio/wav"); err != nil {
		t.Fatal(err)
	}
	// Simulate an earlier run that copied but crashed before deleting.
	f.objects["production"]["A/B/C/1/song.wav"] = []byte("audio")

	moved, err := store.Promote(testSong, 1)
	if err != nil {
		t.Fatalf("promote retry: %v", err)
	}
	if moved["song.wav"] != "s3://production/A/B/C/1/song.wav" {
		t.Fatalf("unexpected locator %q", moved["song.wav"])
	}
	if len(f.objects["review"]) != 0 {
		t.Fatal("review copy should be gone after retry")
	}
}

func TestPromotedFiles(t *testing.T) {
	store, _ := newTestStore()
	if _, err := store.Upload([]byte("audio"), testSong, 1, "song.wav", "audio/wav"); err != nil {
		t.Fatal(err)
	}

	files, err := store.PromotedFiles(testSong, 1)
	if err != nil {
		t.Fatalf("promoted files: %v", err)
	}
	if len(files) != 0 {
		t.Fatalf("nothing promoted yet, got %v", files)
	}

	if _, err := store.Promote(testSong, 1); err != nil {
		t.Fatal(err)
	}
	files, err = store.PromotedFiles(testSong, 1)
	if err != nil {
		t.Fatal(err)
	}
	if files["song.wav"] != "s3://production/A/B/C/1/song.wav" {
		t.Fatalf("files = %v", files)
	}
}

func TestDeleteObject(t *testing.T) {
	store, f := newTestStore()
	locator, err := store.Upload([]byte("audio"), testSong, 1, "song.wav", "audio/wav")
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(locator); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(f.objects["review"]) != 0 {
		t.Fatal("object still present after delete")
	}
}

func TestParseLocator(t *testing.T) {
	bucket, key, err := ParseLocator("s3://review/A/B/C/1/song.wav")
	if err != nil {
		t.Fatal(err)
	}
	if bucket != "review" || key != "A/B/C/1/song.wav" {
		t.Fatalf("got %q %q", bucket, key)
	}
	if _, _, err := ParseLocator("http://example.com/x"); err == nil {
		t.Fatal("expected error for foreign scheme")
	}
	if _, _, err := ParseLocator("s3://justbucket"); err == nil {
		t.Fatal("expected error for missing key")
	}
}
