package storagepath

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// Generator lays out object URLs as {host}/{bucket}/{path}.
type Generator struct {
	Host   string
	Bucket string
}

func (g Generator) GeneratePath(segments ...string) string {
	return fmt.Sprintf("%s/%s/%s", g.Host, g.Bucket, strings.Join(segments, "/"))
}

// StemPath is where a job's stem is written. ext includes the dot.
func (g Generator) StemPath(jobID string, stem string, ext string) string {
	return g.GeneratePath("jobs", jobID, "stems", stem+ext)
}

func (g Generator) UploadPath(owner string, uploadID string, ext string) string {
	return g.GeneratePath("uploads", owner, uploadID, "original"+ext)
}

// IsUploadOf reports whether url is an upload by owner in this bucket.
func (g Generator) IsUploadOf(url string, owner string) bool {
	if !validSegment(owner) {
		return false
	}

	bucket, object, err := g.Split(url)
	if err != nil || bucket != g.Bucket {
		return false
	}

	prefix := "uploads/" + owner + "/"
	if !strings.HasPrefix(object, prefix) {
		return false
	}

	for _, segment := range strings.Split(strings.TrimPrefix(object, prefix), "/") {
		if !validSegment(segment) {
			return false
		}
	}

	return true
}

func validSegment(segment string) bool {
	return segment != "" && segment != "." && segment != ".." && !strings.Contains(segment, "/")
}

// Split breaks a URL under Host into its bucket and object name.
func (g Generator) Split(url string) (string, string, error) {
	prefix := g.Host + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", "", errors.Newf("%s is not under %s", url, g.Host)
	}

	bucket, object, found := strings.Cut(strings.TrimPrefix(url, prefix), "/")
	if !found || bucket == "" || object == "" {
		return "", "", errors.Newf("%s does not name a bucket and object", url)
	}

	return bucket, object, nil
}
