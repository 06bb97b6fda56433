package storage

import (
	"fmt"
	"strings"

	"example.com/soundsright/internal/types"
)

// Locator builds the opaque "s3://bucket/key" form handed back to callers.
func Locator(bucket, key string) string {
	return "s3://" + bucket + "/" + key
}

// ParseLocator splits a locator back into bucket and key.
func ParseLocator(locator string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(locator, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an artifact locator: %q", locator)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("malformed artifact locator: %q", locator)
	}
	return bucket, key, nil
}

// ObjectKey is the versioned path of one file:
// artist/album/title/version/filename.
func ObjectKey(song types.Song, version int, filename string) string {
	return fmt.Sprintf("%s/%d/%s", song.Key(), version, filename)
}

// VersionPrefix is the path prefix holding every file of one version.
func VersionPrefix(song types.Song, version int) string {
	return fmt.Sprintf("%s/%d/", song.Key(), version)
}
