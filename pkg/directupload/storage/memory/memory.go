package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/tendant/direct-upload/pkg/directupload"
)

var _ directupload.ObjectStore = (*Backend)(nil)

type object struct {
	data        []byte
	contentType string
}

// Backend is an in-memory implementation of the directupload.ObjectStore interface
type Backend struct {
	mu      sync.RWMutex
	baseURL string
	objects map[string]object
}

// New creates a new in-memory storage backend. Download URLs are built on baseURL.
func New(baseURL string) *Backend {
	return &Backend{
		baseURL: strings.TrimRight(baseURL, "/"),
		objects: make(map[string]object),
	}
}

// CreateDirectory stores the zero-byte "directoryPath/" marker
func (b *Backend) CreateDirectory(ctx context.Context, directoryPath string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.objects[strings.TrimRight(directoryPath, "/")+"/"] = object{contentType: "application/x-directory"}
	return nil
}

// GetDownloadURL returns an unsigned URL for an existing object
func (b *Backend) GetDownloadURL(ctx context.Context, objectKey string, downloadFilename string) (string, error) {
	b.mu.RLock()
	_, exists := b.objects[objectKey]
	b.mu.RUnlock()
	if !exists {
		return "", directupload.ErrObjectNotFound
	}

	u := fmt.Sprintf("%s/%s", b.baseURL, (&url.URL{Path: objectKey}).EscapedPath())
	if downloadFilename != "" {
		u += "?" + url.Values{"filename": {downloadFilename}}.Encode()
	}
	return u, nil
}

// Upload stores content read from reader
func (b *Backend) Upload(ctx context.Context, objectKey string, contentType string, reader io.Reader) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.objects[objectKey] = object{data: data, contentType: contentType}
	return nil
}

// GetText returns an object's body as a string
func (b *Backend) GetText(ctx context.Context, objectKey string) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[objectKey]
	if !exists {
		return "", directupload.ErrObjectNotFound
	}
	return string(obj.data), nil
}

// GetObject returns a reader over a copy of the stored body
func (b *Backend) GetObject(ctx context.Context, objectKey string) (*directupload.Object, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[objectKey]
	if !exists {
		return nil, directupload.ErrObjectNotFound
	}
	data := append([]byte(nil), obj.data...)
	return &directupload.Object{
		Body:        io.NopCloser(bytes.NewReader(data)),
		ContentType: obj.contentType,
		Size:        int64(len(data)),
	}, nil
}

// ContentType returns the stored content type of an object
func (b *Backend) ContentType(objectKey string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[objectKey]
	return obj.contentType, exists
}
