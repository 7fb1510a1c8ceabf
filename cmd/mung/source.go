package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"

	"gocloud.dev/blob"

	// blob drivers for --file URLs
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
)

var errUsage = errors.New("usage error")

// openSource returns the commands to run: the positional argument, stdin when it is "-",
// or the file given with --file, a local path or a blob URL like gs://bucket/cmds.js.
func openSource(ctx context.Context, args []string, file string, stdin io.Reader) (io.ReadCloser, error) {
	switch {
	case file != "" && len(args) > 0:
		return nil, fmt.Errorf("%w: a command argument can't be used with --file", errUsage)
	case file != "":
		if strings.Contains(file, "://") {
			return openBlob(ctx, file)
		}
		f, err := os.Open(file)
		if err != nil {
			return nil, fmt.Errorf("opening commands file: %w", err)
		}
		return f, nil
	case len(args) == 0:
		return nil, fmt.Errorf("%w: missing COMMAND, use - to read from stdin", errUsage)
	case len(args) > 1:
		return nil, fmt.Errorf("%w: expected a single COMMAND, got %d arguments", errUsage, len(args))
	case args[0] == "-":
		return io.NopCloser(stdin), nil
	}
	return io.NopCloser(strings.NewReader(args[0])), nil
}

type blobReader struct {
	*blob.Reader
	bucket *blob.Bucket
}

func (r blobReader) Close() error {
	return errors.Join(r.Reader.Close(), r.bucket.Close())
}

// openBlob opens the object of the URL. For file URLs the bucket is the directory of the
// file, for any other scheme it is the URL host.
func openBlob(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid --file URL: %v", errUsage, err)
	}
	bucketURL := url.URL{Scheme: u.Scheme, Host: u.Host, RawQuery: u.RawQuery}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Scheme == "file" {
		bucketURL.Path = path.Dir(u.Path)
		key = path.Base(u.Path)
	}

	bucket, err := blob.OpenBucket(ctx, bucketURL.String())
	if err != nil {
		return nil, fmt.Errorf("opening bucket %q: %w", bucketURL.String(), err)
	}
	r, err := bucket.NewReader(ctx, key, nil)
	if err != nil {
		_ = bucket.Close()
		return nil, fmt.Errorf("opening %q: %w", rawURL, err)
	}
	return blobReader{Reader: r, bucket: bucket}, nil
}
