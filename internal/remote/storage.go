package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Bucket addresses one object storage bucket.
type Bucket struct {
	client *Client
	name   string
}

// Storage returns a handle to the named bucket.
func (c *Client) Storage(bucket string) *Bucket {
	return &Bucket{client: c, name: bucket}
}

// Name returns the bucket id.
func (b *Bucket) Name() string {
	return b.name
}

// UploadResult is the storage service's reply to an upload.
type UploadResult struct {
	Key string `json:"Key"`
	ID  string `json:"Id,omitempty"`
}

func escapePath(p string) string {
	segments := strings.Split(strings.TrimLeft(p, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

// Upload stores body at path. Existing objects are not overwritten.
func (b *Bucket) Upload(ctx context.Context, path string, body io.Reader, contentType string) (*UploadResult, error) {
	if path == "" {
		return nil, fmt.Errorf("remote: empty object path")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	h := http.Header{}
	h.Set("Content-Type", contentType)
	h.Set("Cache-Control", "max-age=3600")
	h.Set("x-upsert", "false")

	var out UploadResult
	err := b.client.do(ctx, request{
		service:   "storage",
		operation: "upload",
		method:    http.MethodPost,
		path:      storagePrefix + "/object/" + url.PathEscape(b.name) + "/" + escapePath(path),
		header:    h,
		body:      body,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// PublicURL derives the public address of an object; it makes no network call.
func (b *Bucket) PublicURL(path string) string {
	return b.client.baseURL + storagePrefix + "/object/public/" + url.PathEscape(b.name) + "/" + escapePath(path)
}

// Remove deletes the given objects.
func (b *Bucket) Remove(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	body, err := jsonBody(map[string][]string{"prefixes": paths})
	if err != nil {
		return err
	}
	return b.client.do(ctx, request{
		service:   "storage",
		operation: "remove",
		method:    http.MethodDelete,
		path:      storagePrefix + "/object/" + url.PathEscape(b.name),
		header:    http.Header{"Content-Type": []string{"application/json"}},
		body:      body,
	}, nil)
}
