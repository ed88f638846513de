// Package filesource implements the CSV and JSONL file adapters. Files are
// full-scan-only sources: they have no change stream, and a re-import is a
// new full sync. Locations may be local paths, HTTP(S) URLs, or s3://
// bucket/key objects.
package filesource

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	log "github.com/sirupsen/logrus"

	"github.com/surrealdb/surreal-sync/core"
)

// DefaultBufferSize is the read buffer for file and object streams.
const DefaultBufferSize = 1 << 20

// OpenLocation opens a readable stream over a local path, an HTTP(S) URL, or
// an s3://bucket/key object.
func OpenLocation(ctx context.Context, location string, bufferSize int) (io.ReadCloser, error) {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	switch {
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		return openHTTP(ctx, location)
	case strings.HasPrefix(location, "s3://"):
		return openS3(ctx, location, bufferSize)
	default:
		return openLocal(location, bufferSize)
	}
}

func openLocal(path string, bufferSize int) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &core.SourceError{Op: "open " + path, Err: err}
	}
	return &bufferedReadCloser{Reader: bufio.NewReaderSize(f, bufferSize), closer: f}, nil
}

func openHTTP(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &core.ConfigError{Msg: "invalid source URL " + url, Err: err}
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, &core.SourceError{Op: "fetch " + url, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &core.SourceError{Op: "fetch " + url, Err: fmt.Errorf("HTTP status %s", resp.Status)}
	}
	log.WithField("url", url).Debug("fetching source file over http")
	return resp.Body, nil
}

func openS3(ctx context.Context, location string, bufferSize int) (io.ReadCloser, error) {
	rest := strings.TrimPrefix(location, "s3://")
	slash := strings.Index(rest, "/")
	if slash <= 0 || slash == len(rest)-1 {
		return nil, &core.ConfigError{Msg: "invalid s3 location " + location + ", expected s3://bucket/key"}
	}
	bucket, key := rest[:slash], rest[slash+1:]

	sess, err := session.NewSession()
	if err != nil {
		return nil, &core.SourceError{Op: "load aws configuration", Err: err}
	}
	out, err := s3.New(sess).GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, &core.SourceError{Op: "fetch s3://" + bucket + "/" + key, Err: err}
	}
	return &bufferedReadCloser{Reader: bufio.NewReaderSize(out.Body, bufferSize), closer: out.Body}, nil
}

type bufferedReadCloser struct {
	*bufio.Reader
	closer io.Closer
}

func (b *bufferedReadCloser) Close() error { return b.closer.Close() }
