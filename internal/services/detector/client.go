// Package detector talks to the remote sprite detection service.
//
// One batch is one multipart POST: every image becomes a part under the
// configured field name, and a 200 response carries a ZIP archive of
// annotated images. The request body is streamed so memory use is bounded by
// the response, not the batch.
package detector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"spritebatch/internal/batch"
	"spritebatch/internal/services"
)

const (
	// DefaultFieldName is the multipart field the service reads images from.
	DefaultFieldName = "files"
	defaultTimeout   = 10 * time.Minute
	diagnosticLimit  = 512
)

// Client uploads batches to the detection endpoint.
type Client struct {
	endpoint  string
	fieldName string
	userAgent string
	timeout   time.Duration
	http      *http.Client
}

// Option customizes a client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithFieldName overrides the multipart field name.
func WithFieldName(name string) Option {
	return func(c *Client) {
		if strings.TrimSpace(name) != "" {
			c.fieldName = strings.TrimSpace(name)
		}
	}
}

// WithTimeout bounds each upload, including reading the response.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = strings.TrimSpace(ua)
	}
}

// New constructs a client for endpoint.
func New(endpoint string, opts ...Option) *Client {
	client := &Client{
		endpoint:  strings.TrimSpace(endpoint),
		fieldName: DefaultFieldName,
		timeout:   defaultTimeout,
		http:      &http.Client{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Endpoint returns the configured endpoint URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Upload sends every image in b as one multipart request and returns the
// response body on HTTP 200. All failures are *services.BatchError values
// marked services.ErrUploadFailed.
func (c *Client) Upload(ctx context.Context, b batch.Batch) ([]byte, error) {
	if c == nil {
		return nil, services.NewBatchError(services.ErrUploadFailed, b.Index, "nil client", nil)
	}
	if len(b.Images) == 0 {
		return nil, services.NewBatchError(services.ErrUploadFailed, b.Index, "empty batch", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	done := make(chan struct{})
	var writeErr error
	go func() {
		defer close(done)
		writeErr = c.writeParts(writer, b.Images)
		pw.CloseWithError(writeErr)
	}()
	defer func() {
		// Unblock the writer if the request ended before the body was consumed,
		// then wait so every source file is closed before returning.
		pr.Close()
		<-done
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, pr)
	if err != nil {
		return nil, services.NewBatchError(services.ErrUploadFailed, b.Index, "build request", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/zip")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		pr.Close()
		<-done
		if writeErr != nil && !errors.Is(writeErr, io.ErrClosedPipe) {
			return nil, services.NewBatchError(services.ErrUploadFailed, b.Index, "read images", writeErr)
		}
		return nil, services.NewBatchError(services.ErrUploadFailed, b.Index, "http request", unwrapURLError(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, diagnosticLimit))
		detail := "status " + strconv.Itoa(resp.StatusCode)
		if text := strings.TrimSpace(string(snippet)); text != "" {
			detail += ": " + text
		}
		return nil, services.NewBatchError(services.ErrUploadFailed, b.Index, detail, nil)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.NewBatchError(services.ErrUploadFailed, b.Index, "read response", err)
	}
	pr.Close()
	<-done
	if writeErr != nil && !errors.Is(writeErr, io.ErrClosedPipe) {
		return nil, services.NewBatchError(services.ErrUploadFailed, b.Index, "read images", writeErr)
	}
	return payload, nil
}

func (c *Client) writeParts(writer *multipart.Writer, images []string) error {
	for _, path := range images {
		if err := writePart(writer, c.fieldName, path); err != nil {
			return err
		}
	}
	return writer.Close()
}

// writePart copies one file into a new form part. The file is closed before
// the next part is started.
func writePart(writer *multipart.Writer, field, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	part, err := writer.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return fmt.Errorf("create part for %s: %w", path, err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("copy %s: %w", path, err)
	}
	return nil
}

// Ping checks that the endpoint host answers HTTP at all. Any status code
// counts as reachable since the detection route only accepts POST.
func (c *Client) Ping(ctx context.Context) (int, error) {
	parsed, err := url.Parse(c.endpoint)
	if err != nil || parsed.Host == "" {
		return 0, services.Wrap(services.ErrConfiguration, "preflight", "parse endpoint", c.endpoint, err)
	}
	base := parsed.Scheme + "://" + parsed.Host + "/"

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, base, nil)
	if err != nil {
		return 0, services.Wrap(services.ErrConfiguration, "preflight", "build request", base, err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, services.Wrap(services.ErrUploadFailed, "preflight", "ping", base, unwrapURLError(err))
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

// unwrapURLError drops the *url.Error envelope, which repeats the method and
// endpoint already present in log context.
func unwrapURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		if urlErr.Timeout() && !errors.Is(urlErr.Err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %w", services.ErrTimeout, urlErr.Err)
		}
		return urlErr.Err
	}
	return err
}
