package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Runetap54/edit-stream-manager-sub000/apperrors"
	"github.com/Runetap54/edit-stream-manager-sub000/internal/platform"
)

// Client drives the object storage service over its REST API. Two
// buckets are in play: the private bucket holding user uploads and
// archived renders, and the public bucket holding mirrored keyframes
// the provider fetches directly.
type Client struct {
	BaseURL       string
	ServiceKey    string
	PrivateBucket string
	PublicBucket  string
	HTTPClient    *http.Client
}

// NewClient builds a storage client from the environment.
func NewClient() *Client {
	return &Client{
		BaseURL:       platform.Env("STORAGE_URL", "http://localhost:54321/storage/v1"),
		ServiceKey:    platform.Env("STORAGE_SERVICE_KEY", ""),
		PrivateBucket: platform.Env("STORAGE_PRIVATE_BUCKET", "media"),
		PublicBucket:  platform.Env("STORAGE_PUBLIC_BUCKET", "media-public"),
		HTTPClient:    &http.Client{Timeout: 60 * time.Second},
	}
}

// ObjectInfo is one entry from a prefix listing.
type ObjectInfo struct {
	Name      string    `json:"name"`
	UpdatedAt time.Time `json:"updated_at"`
}

// List returns the objects under prefix in the private bucket.
func (c *Client) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	body, _ := json.Marshal(map[string]string{"prefix": prefix})
	endpoint := fmt.Sprintf("%s/object/list/%s", c.BaseURL, c.PrivateBucket)
	resp, err := c.do(ctx, http.MethodPost, endpoint, body, "application/json")
	if err != nil {
		return nil, err
	}
	var objects []ObjectInfo
	if err := json.Unmarshal(resp, &objects); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeServer, "decode storage listing", err)
	}
	return objects, nil
}

// Upload writes data to key in the private bucket.
func (c *Client) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	endpoint := fmt.Sprintf("%s/object/%s/%s", c.BaseURL, c.PrivateBucket, key)
	_, err := c.do(ctx, http.MethodPost, endpoint, data, contentType)
	return err
}

// Remove deletes the given keys from the private bucket.
func (c *Client) Remove(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	body, _ := json.Marshal(map[string][]string{"prefixes": keys})
	endpoint := fmt.Sprintf("%s/object/%s", c.BaseURL, c.PrivateBucket)
	_, err := c.do(ctx, http.MethodDelete, endpoint, body, "application/json")
	return err
}

// RemovePublic deletes the given keys from the public bucket.
func (c *Client) RemovePublic(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	body, _ := json.Marshal(map[string][]string{"prefixes": keys})
	endpoint := fmt.Sprintf("%s/object/%s", c.BaseURL, c.PublicBucket)
	_, err := c.do(ctx, http.MethodDelete, endpoint, body, "application/json")
	return err
}

// Copy duplicates srcKey from the private bucket to dstKey in the
// public bucket. Used by the mirror-once policy; a copy failure aborts
// the submission that needed it.
func (c *Client) Copy(ctx context.Context, srcKey, dstKey string) error {
	body, _ := json.Marshal(map[string]string{
		"bucketId":          c.PrivateBucket,
		"sourceKey":         srcKey,
		"destinationBucket": c.PublicBucket,
		"destinationKey":    dstKey,
	})
	endpoint := c.BaseURL + "/object/copy"
	_, err := c.do(ctx, http.MethodPost, endpoint, body, "application/json")
	return err
}

type signResponse struct {
	SignedURL string `json:"signedURL"`
}

// CreateSignedURL issues a time-limited read URL for key in the private
// bucket.
func (c *Client) CreateSignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	body, _ := json.Marshal(map[string]int{"expiresIn": int(ttl.Seconds())})
	endpoint := fmt.Sprintf("%s/object/sign/%s/%s", c.BaseURL, c.PrivateBucket, key)
	resp, err := c.do(ctx, http.MethodPost, endpoint, body, "application/json")
	if err != nil {
		return "", err
	}
	var sr signResponse
	if err := json.Unmarshal(resp, &sr); err != nil || sr.SignedURL == "" {
		return "", apperrors.Wrap(apperrors.CodeServer, "decode signed URL response", err)
	}
	return c.BaseURL + sr.SignedURL, nil
}

// PublicURL builds the plainly dereferenceable URL for a key in the
// public bucket.
func (c *Client) PublicURL(key string) string {
	return fmt.Sprintf("%s/object/public/%s/%s", c.BaseURL, c.PublicBucket, key)
}

// Download fetches an arbitrary URL (typically the provider's rendered
// asset). The caller archives the bytes with Upload.
func (c *Client) Download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeArchive, "build download request", err)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeArchive, "download rendered asset", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperrors.New(apperrors.CodeArchive, fmt.Sprintf("asset download returned status %d", resp.StatusCode))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeArchive, "read rendered asset", err)
	}
	return data, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte, contentType string) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeServer, "build storage request", err)
	}
	req.Header.Set("Content-Type", contentType)
	if c.ServiceKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.ServiceKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeServer, "storage request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeServer, "read storage response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperrors.New(apperrors.CodeServer, "storage service error").
			WithUpstream(&apperrors.Upstream{Endpoint: endpoint, Status: resp.StatusCode})
	}
	return respBody, nil
}
