// Package fetch downloads remote images and embeds them as data URLs.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/jo-hoe/sheetimage/internal/backend/imageprocessing"
	"github.com/vincent-petithory/dataurl"
)

const defaultMaxBytes = 20 << 20

var (
	ErrUnexpectedStatus = errors.New("unexpected status code")
	ErrNotImage         = errors.New("response is not an image")
	ErrEmptyBody        = errors.New("response body is empty")
	ErrTooLarge         = errors.New("response body exceeds size limit")
)

type Options struct {
	// Timeout bounds a single fetch. Zero means no timeout.
	Timeout time.Duration `yaml:"timeout"`
	// MaxBytes caps the downloaded body. Zero selects 20 MiB.
	MaxBytes int64 `yaml:"maxBytes"`
	// RequireImageContentType rejects responses not declared as image/*.
	RequireImageContentType bool                            `yaml:"requireImageContentType"`
	Commands                []imageprocessing.CommandConfig `yaml:"commands"`
}

type Converter struct {
	client                  *http.Client
	timeout                 time.Duration
	maxBytes                int64
	requireImageContentType bool
	invoker                 *imageprocessing.CommandInvoker
}

// NewConverter uses http.DefaultClient when client is nil.
func NewConverter(client *http.Client, options Options) (*Converter, error) {
	if client == nil {
		client = http.DefaultClient
	}
	invoker, err := imageprocessing.NewCommandInvokerFromConfig(imageprocessing.DefaultRegistry, options.Commands)
	if err != nil {
		return nil, err
	}
	maxBytes := options.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	return &Converter{
		client:                  client,
		timeout:                 options.Timeout,
		maxBytes:                maxBytes,
		requireImageContentType: options.RequireImageContentType,
		invoker:                 invoker,
	}, nil
}

// ToDataURL fetches url and returns it as a data URL. Every failure is logged
// and reported as ok=false.
func (c *Converter) ToDataURL(ctx context.Context, url string) (string, bool) {
	encoded, err := c.Fetch(ctx, url)
	if err != nil {
		slog.Warn("could not fetch image as data url", "url", url, "error", err)
		return "", false
	}
	return encoded.String(), true
}

// Fetch downloads url, runs the processing pipeline and wraps the result.
func (c *Converter) Fetch(ctx context.Context, url string) (*dataurl.DataURL, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "image/*")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	contentType := mediaType(resp.Header.Get("Content-Type"))
	if c.requireImageContentType && !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("%w: %q", ErrNotImage, contentType)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > c.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, c.maxBytes)
	}
	if len(body) == 0 {
		return nil, ErrEmptyBody
	}

	if c.invoker.Len() > 0 {
		body, err = c.invoker.Execute(body)
		if err != nil {
			return nil, fmt.Errorf("failed to process image: %w", err)
		}
		contentType = ""
	}
	if contentType == "" {
		contentType = mediaType(http.DetectContentType(body))
	}

	slog.Debug("image fetched", "url", url, "content_type", contentType, "size_bytes", len(body))
	return dataurl.New(body, contentType), nil
}

func mediaType(header string) string {
	if header == "" {
		return ""
	}
	parsed, _, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	// A bare token such as "image" is not a type/subtype pair.
	if mainType, subType, ok := strings.Cut(parsed, "/"); !ok || mainType == "" || subType == "" {
		return ""
	}
	return parsed
}
