// Package client talks to a running zimaged over its JSON API.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wenc23/zimagetool/pkg/types"
)

const DefaultAddr = "127.0.0.1:5000"

// APIError is a non-2xx response decoded from the server's error payload.
type APIError struct {
	Status  int
	Kind    string
	Message string
	Hint    string
}

func (e *APIError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s (%s, %d): %s", e.Message, e.Kind, e.Status, e.Hint)
	}
	return fmt.Sprintf("%s (%s, %d)", e.Message, e.Kind, e.Status)
}

type Client struct {
	base *url.URL
	http *http.Client
}

// New accepts "host:port" or a full URL. An empty addr uses DefaultAddr.
func New(addr string) (*Client, error) {
	if addr == "" {
		addr = DefaultAddr
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("parse server address: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("server address %q has no host", addr)
	}
	return &Client{base: u, http: &http.Client{}}, nil
}

// WithHTTPClient replaces the underlying http.Client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.http = hc
	return c
}

func (c *Client) URL(path string) string {
	return c.base.JoinPath(path).String()
}

func (c *Client) request(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		bts, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(bts)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.URL(path), rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) (int, error) {
	resp, err := c.request(ctx, method, path, body)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s response: %w", path, err)
		}
	}
	return resp.StatusCode, nil
}

func decodeError(resp *http.Response) error {
	bts, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var er types.ErrorResponse
	if err := json.Unmarshal(bts, &er); err != nil || er.Message == "" {
		msg := strings.TrimSpace(string(bts))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Kind: "http_error", Message: msg}
	}
	return &APIError{Status: resp.StatusCode, Kind: er.Error, Message: er.Message, Hint: er.Hint}
}

func (c *Client) Status(ctx context.Context) (types.StatusResponse, error) {
	var out types.StatusResponse
	_, err := c.do(ctx, http.MethodGet, "/api/status", nil, &out)
	return out, err
}

func (c *Client) Config(ctx context.Context) (types.ConfigResponse, error) {
	var out types.ConfigResponse
	_, err := c.do(ctx, http.MethodGet, "/api/config", nil, &out)
	return out, err
}

func (c *Client) Models(ctx context.Context) (types.ModelsResponse, error) {
	var out types.ModelsResponse
	_, err := c.do(ctx, http.MethodGet, "/api/models", nil, &out)
	return out, err
}

// Load reports accepted=true when the server started an asynchronous load.
func (c *Client) Load(ctx context.Context, req types.LoadRequest) (types.LoadResponse, bool, error) {
	var out types.LoadResponse
	code, err := c.do(ctx, http.MethodPost, "/api/load-model", req, &out)
	return out, code == http.StatusAccepted, err
}

func (c *Client) Unload(ctx context.Context) (types.UnloadResponse, error) {
	var out types.UnloadResponse
	_, err := c.do(ctx, http.MethodPost, "/api/unload-model", nil, &out)
	return out, err
}

func (c *Client) Rewrite(ctx context.Context, req types.RewriteRequest) (types.RewriteResponse, error) {
	var out types.RewriteResponse
	_, err := c.do(ctx, http.MethodPost, "/api/optimize-prompt", req, &out)
	return out, err
}

func (c *Client) Generate(ctx context.Context, req types.GenerateRequest) (types.GenerateResponse, error) {
	var out types.GenerateResponse
	_, err := c.do(ctx, http.MethodPost, "/api/generate", req, &out)
	return out, err
}

func (c *Client) Progress(ctx context.Context, id string) (types.ProgressResponse, error) {
	var out types.ProgressResponse
	_, err := c.do(ctx, http.MethodGet, "/api/generate/progress/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (c *Client) Jobs(ctx context.Context) (types.JobsResponse, error) {
	var out types.JobsResponse
	_, err := c.do(ctx, http.MethodGet, "/api/jobs", nil, &out)
	return out, err
}

func (c *Client) Cancel(ctx context.Context, id string) (types.ProgressResponse, error) {
	var out types.ProgressResponse
	_, err := c.do(ctx, http.MethodPost, "/api/jobs/"+url.PathEscape(id)+"/cancel", nil, &out)
	return out, err
}

func (c *Client) Gallery(ctx context.Context) (types.GalleryResponse, error) {
	var out types.GalleryResponse
	_, err := c.do(ctx, http.MethodGet, "/api/gallery", nil, &out)
	return out, err
}

func (c *Client) Delete(ctx context.Context, folder string) (types.DeleteResponse, error) {
	var out types.DeleteResponse
	_, err := c.do(ctx, http.MethodPost, "/api/gallery/delete", types.DeleteRequest{FolderName: folder}, &out)
	return out, err
}

// ProgressFunc receives one job snapshot. Returning an error stops the stream.
type ProgressFunc func(types.ProgressResponse) error

// Events streams job snapshots until the job reaches a terminal state.
func (c *Client) Events(ctx context.Context, id string, fn ProgressFunc) error {
	resp, err := c.request(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id)+"/events", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var p types.ProgressResponse
		if err := json.Unmarshal(line, &p); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		if err := fn(p); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// Wait polls a job every interval until it succeeds or fails. fn, when
// non-nil, sees every snapshot whose progress or stage changed.
func (c *Client) Wait(ctx context.Context, id string, interval time.Duration, fn ProgressFunc) (types.ProgressResponse, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	var last types.ProgressResponse
	t := time.NewTicker(interval)
	defer t.Stop()
	for first := true; ; first = false {
		p, err := c.Progress(ctx, id)
		if err != nil {
			return last, err
		}
		if fn != nil && (first || p.Progress != last.Progress || p.Stage != last.Stage || p.Status != last.Status) {
			if err := fn(p); err != nil {
				return p, err
			}
		}
		last = p
		if Terminal(p.Status) {
			return p, nil
		}
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-t.C:
		}
	}
}

// Terminal reports whether a job status string is final.
func Terminal(status string) bool {
	return status == "succeeded" || status == "failed"
}
