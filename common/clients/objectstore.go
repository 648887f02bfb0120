package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/lyzr/medialedger/common/config"
)

// Logger interface for client logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// StoreObject is the descriptive metadata the store returns for a blob.
type StoreObject struct {
	Key        string `json:"key"`
	URL        string `json:"url"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Format     string `json:"format"`
	Bytes      int64  `json:"bytes"`
	ResourceID string `json:"resource_id"`
}

// ObjectStore is the boundary to the remote blob store. Every call is
// fallible and slow; callers must treat destroy/untag failures during
// cleanup as non-fatal.
type ObjectStore interface {
	Upload(ctx context.Context, key string, data []byte) (*StoreObject, error)
	// Destroy removes a blob. found=false means the store had no such key.
	Destroy(ctx context.Context, key string) (found bool, err error)
	Tag(ctx context.Context, key, label string) error
	Untag(ctx context.Context, key, label string) error
	// DeliveryURL derives the resolvable blob URL from a storage key.
	DeliveryURL(key string) string
}

// HTTPObjectStore talks to the store's HTTP API.
type HTTPObjectStore struct {
	baseURL     string
	deliveryURL string
	apiKey      string
	client      *http.Client
	logger      Logger
}

// NewHTTPObjectStore creates an object store client from config.
// The request timeout bounds every remote call, including destroys issued
// during reclamation.
func NewHTTPObjectStore(cfg config.StorageConfig, logger Logger) *HTTPObjectStore {
	return &HTTPObjectStore{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		deliveryURL: strings.TrimRight(cfg.DeliveryURL, "/"),
		apiKey:      cfg.APIKey,
		client:      &http.Client{Timeout: cfg.RequestTimeout},
		logger:      logger,
	}
}

// Upload sends the bytes as a multipart request and returns the store's
// descriptive metadata.
func (s *HTTPObjectStore) Upload(ctx context.Context, key string, data []byte) (*StoreObject, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("key", key); err != nil {
		return nil, fmt.Errorf("write key field: %w", err)
	}
	part, err := writer.CreateFormFile("file", key)
	if err != nil {
		return nil, fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("write file part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/objects", &body)
	if err != nil {
		return nil, fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	s.authorize(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("upload %s: store returned %d: %s", key, resp.StatusCode, msg)
	}

	var obj StoreObject
	if err := json.NewDecoder(resp.Body).Decode(&obj); err != nil {
		return nil, fmt.Errorf("decode upload response for %s: %w", key, err)
	}
	if obj.Key == "" {
		obj.Key = key
	}
	if obj.URL == "" {
		obj.URL = s.DeliveryURL(key)
	}

	s.logger.Debug("object store upload", "key", key, "bytes", obj.Bytes, "format", obj.Format)
	return &obj, nil
}

// Destroy removes a blob from the store.
func (s *HTTPObjectStore) Destroy(ctx context.Context, key string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.objectURL(key), nil)
	if err != nil {
		return false, fmt.Errorf("create destroy request: %w", err)
	}
	s.authorize(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("destroy %s: %w", key, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		s.logger.Debug("object store destroy", "key", key)
		return true, nil
	case http.StatusNotFound:
		s.logger.Debug("object store destroy: not found", "key", key)
		return false, nil
	default:
		return false, fmt.Errorf("destroy %s: store returned %d", key, resp.StatusCode)
	}
}

// Tag attaches a label to a blob.
func (s *HTTPObjectStore) Tag(ctx context.Context, key, label string) error {
	payload, err := json.Marshal(map[string]string{"label": label})
	if err != nil {
		return fmt.Errorf("marshal tag payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.objectURL(key)+"/tags", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create tag request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	s.authorize(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("tag %s with %s: %w", key, label, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("tag %s with %s: store returned %d", key, label, resp.StatusCode)
	}
	return nil
}

// Untag removes a label from a blob.
func (s *HTTPObjectStore) Untag(ctx context.Context, key, label string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.objectURL(key)+"/tags/"+url.PathEscape(label), nil)
	if err != nil {
		return fmt.Errorf("create untag request: %w", err)
	}
	s.authorize(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("untag %s from %s: %w", key, label, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("untag %s from %s: store returned %d", key, label, resp.StatusCode)
	}
	return nil
}

// DeliveryURL derives the public blob URL from a storage key.
func (s *HTTPObjectStore) DeliveryURL(key string) string {
	return s.deliveryURL + "/" + key
}

func (s *HTTPObjectStore) objectURL(key string) string {
	return s.baseURL + "/v1/objects/" + url.PathEscape(key)
}

func (s *HTTPObjectStore) authorize(req *http.Request) {
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
}
