package form

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/tendant/direct-upload/pkg/directupload"
)

// Client posts files to S3 with an UploadAuthorization, as a browser would
type Client struct {
	httpClient    *http.Client
	retryAttempts int
	retryDelay    time.Duration
	progressFunc  ProgressFunc
}

// ProgressFunc is called during upload to report progress
// It receives the number of file bytes sent so far
type ProgressFunc func(bytesUploaded int64)

// ClientOption is a functional option for configuring a Client
type ClientOption func(*Client)

// NewClient creates a new form upload client
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Minute, // Long timeout for large uploads
		},
		retryAttempts: 3,
		retryDelay:    1 * time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}
	if c.retryAttempts < 1 {
		c.retryAttempts = 1
	}

	return c
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithRetry configures retry behavior
func WithRetry(attempts int, delay time.Duration) ClientOption {
	return func(c *Client) {
		c.retryAttempts = attempts
		c.retryDelay = delay
	}
}

// WithProgress sets a progress callback function
func WithProgress(fn ProgressFunc) ClientOption {
	return func(c *Client) {
		c.progressFunc = fn
	}
}

// StatusError reports a non-2xx answer from the upload endpoint
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upload failed with status: %s", e.Status)
}

// Upload posts data as filename under the authorization's directory.
// data is rewound before every attempt.
//
// Example:
//
//	client := form.NewClient()
//	err := client.Upload(ctx, auth, "photo.png", "image/png", file)
func (c *Client) Upload(ctx context.Context, auth *directupload.UploadAuthorization, filename, contentType string, data io.ReadSeeker) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	var lastErr error
	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay * time.Duration(attempt)):
			}
		}

		if _, err := data.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("failed to rewind upload data: %w", err)
		}

		err := c.post(ctx, auth, filename, contentType, data)
		if err == nil {
			return nil
		}
		lastErr = err

		// Don't retry on client errors (4xx)
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode >= 400 && statusErr.StatusCode < 500 {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return fmt.Errorf("upload failed after %d attempts: %w", c.retryAttempts, lastErr)
}

func (c *Client) post(ctx context.Context, auth *directupload.UploadAuthorization, filename, contentType string, data io.Reader) error {
	body, writer := io.Pipe()
	mw := multipart.NewWriter(writer)

	var reader io.Reader = data
	if c.progressFunc != nil {
		reader = &progressReader{reader: data, callback: c.progressFunc}
	}

	go func() {
		writer.CloseWithError(writeForm(mw, auth, filename, contentType, reader))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, auth.UploadURL, body)
	if err != nil {
		body.Close()
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		body.Close()
		return fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
}

func writeForm(mw *multipart.Writer, auth *directupload.UploadAuthorization, filename, contentType string, data io.Reader) error {
	for _, f := range Fields(auth, filename) {
		if err := mw.WriteField(f.Name, f.Value); err != nil {
			return err
		}
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, FieldFile, filename))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, data); err != nil {
		return err
	}
	return mw.Close()
}

// progressReader wraps an io.Reader to track upload progress
type progressReader struct {
	reader    io.Reader
	bytesRead int64
	callback  ProgressFunc
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	pr.bytesRead += int64(n)
	if pr.callback != nil && n > 0 {
		pr.callback(pr.bytesRead)
	}
	return n, err
}
