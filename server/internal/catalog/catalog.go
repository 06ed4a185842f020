package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/grabtube/grabtube/server/internal/downloader"
	"github.com/grabtube/grabtube/server/internal/media"
	"github.com/juju/ratelimit"
	"github.com/spf13/afero"
)

const chunkSize = 64 * 1024

// Catalog resolves source URLs with an external resolver binary and performs
// stream byte transfers over HTTP. Implements downloader.Catalog.
type Catalog struct {
	resolverPath string
	client       *http.Client
	fs           afero.Fs
	bucket       *ratelimit.Bucket // nil means unthrottled
}

// New builds a catalog. rateKBps > 0 enables a token bucket shared by all
// transfers of this catalog.
func New(resolverPath string, rateKBps int64, fs afero.Fs) *Catalog {
	var bucket *ratelimit.Bucket
	if rateKBps > 0 {
		rate := float64(rateKBps * 1024)
		bucket = ratelimit.NewBucketWithRate(rate, rateKBps*1024)
	}

	return &Catalog{
		resolverPath: resolverPath,
		client:       &http.Client{Timeout: 0}, // transfers are long-lived, ctx bounds them
		fs:           fs,
		bucket:       bucket,
	}
}

// FetchStream transfers one stream to dest, invoking onProgress after every
// chunk. It returns between chunks once ctx is cancelled; partial file
// cleanup is the caller's concern.
func (c *Catalog) FetchStream(
	ctx context.Context,
	item *media.Item,
	stream media.StreamDescriptor,
	dest string,
	onProgress downloader.ProgressFunc,
) (string, error) {
	src := stream.SourceURL
	if src == "" {
		// the descriptor crossed a serialization boundary, re-request it
		fresh, err := c.Resolve(ctx, item.URL)
		if err != nil {
			return "", err
		}

		found, ok := fresh.Stream(stream.Id)
		if !ok {
			return "", downloader.ErrStreamNotFound
		}
		src = found.SourceURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return "", fmt.Errorf("unexpected response status %d", resp.StatusCode)
	}

	total := resp.ContentLength
	if total <= 0 {
		total = stream.Size
	}

	out, err := c.fs.Create(dest)
	if err != nil {
		return "", err
	}
	defer out.Close()

	var body io.Reader = resp.Body
	if c.bucket != nil {
		body = ratelimit.Reader(resp.Body, c.bucket)
	}

	var (
		buf      = make([]byte, chunkSize)
		received int64
	)

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			if _, err := out.Write(buf[:n]); err != nil {
				return "", err
			}
			received += int64(n)

			if onProgress != nil {
				onProgress(received, total)
			}
		}

		if readErr == io.EOF {
			return dest, nil
		}
		if readErr != nil {
			return "", readErr
		}
	}
}

// FetchCaption retrieves one caption track and returns its SubRip content.
func (c *Catalog) FetchCaption(ctx context.Context, item *media.Item, caption media.CaptionDescriptor) (string, error) {
	if caption.SourceURL == "" {
		return "", errors.New("caption track has no source")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*30)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, caption.SourceURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected response status %d", resp.StatusCode)
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	return string(content), nil
}
