package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when the store answers 404 for a record.
	ErrNotFound = errors.New("store: record not found")
	// ErrUnauthorized is returned for 401/403 answers.
	ErrUnauthorized = errors.New("store: unauthorized")
)

// StatusError carries a non-success HTTP answer from the store.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("store: %s %s returned %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// HTTPDoer defines http.Client interface subset.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// TokenSource yields the bearer token attached to every request. Empty means anonymous.
type TokenSource func() string

// ListQuery narrows a collection listing.
type ListQuery struct {
	Filter  string
	Sort    string
	PerPage int
	Expand  string
}

func (q ListQuery) values() url.Values {
	v := url.Values{}
	if q.Filter != "" {
		v.Set("filter", q.Filter)
	}
	if q.Sort != "" {
		v.Set("sort", q.Sort)
	}
	if q.PerPage > 0 {
		v.Set("perPage", strconv.Itoa(q.PerPage))
	}
	if q.Expand != "" {
		v.Set("expand", q.Expand)
	}
	return v
}

// File is a binary attachment uploaded with a record.
type File struct {
	Field       string
	Name        string
	ContentType string
	Data        []byte
}

// AuthResult is the answer of a password authentication.
type AuthResult struct {
	Token  string          `json:"token"`
	Record json.RawMessage `json:"record"`
}

// Client talks to the record store REST API.
type Client struct {
	baseURL string
	client  HTTPDoer
	token   TokenSource
}

// NewClient builds a client rooted at baseURL.
func NewClient(baseURL string, httpClient HTTPDoer, token TokenSource) *Client {
	if httpClient == nil {
		httpClient = NewDefaultHTTPClient(10 * time.Second)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpClient,
		token:   token,
	}
}

// NewDefaultHTTPClient returns *http.Client with timeout.
func NewDefaultHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// BaseURL returns the configured root without trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func recordsPath(collection string) string {
	return "/api/collections/" + url.PathEscape(collection) + "/records"
}

// List decodes the items of a filtered listing into out, which must point to a slice.
func (c *Client) List(ctx context.Context, collection string, q ListQuery, out interface{}) error {
	path := recordsPath(collection)
	if qs := q.values().Encode(); qs != "" {
		path += "?" + qs
	}
	var page struct {
		Items json.RawMessage `json:"items"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &page); err != nil {
		return err
	}
	if len(page.Items) == 0 || string(page.Items) == "null" {
		return json.Unmarshal([]byte("[]"), out)
	}
	if err := json.Unmarshal(page.Items, out); err != nil {
		return fmt.Errorf("store: decode %s items: %w", collection, err)
	}
	return nil
}

// First returns the first record of a listing, or ErrNotFound.
func (c *Client) First(ctx context.Context, collection string, q ListQuery, out interface{}) error {
	q.PerPage = 1
	var items []json.RawMessage
	if err := c.List(ctx, collection, q, &items); err != nil {
		return err
	}
	if len(items) == 0 {
		return ErrNotFound
	}
	if err := json.Unmarshal(items[0], out); err != nil {
		return fmt.Errorf("store: decode %s record: %w", collection, err)
	}
	return nil
}

// Get loads one record by id.
func (c *Client) Get(ctx context.Context, collection, id string, out interface{}) error {
	if strings.TrimSpace(id) == "" {
		return ErrNotFound
	}
	return c.doJSON(ctx, http.MethodGet, recordsPath(collection)+"/"+url.PathEscape(id), nil, out)
}

// Create inserts a record and decodes the stored version into out (optional).
func (c *Client) Create(ctx context.Context, collection string, body, out interface{}) error {
	return c.doJSON(ctx, http.MethodPost, recordsPath(collection), body, out)
}

// Update patches the given fields of a record and decodes the stored version into out (optional).
func (c *Client) Update(ctx context.Context, collection, id string, body, out interface{}) error {
	if strings.TrimSpace(id) == "" {
		return ErrNotFound
	}
	return c.doJSON(ctx, http.MethodPatch, recordsPath(collection)+"/"+url.PathEscape(id), body, out)
}

// CreateWithFile inserts a record as multipart form data carrying fields and one file.
func (c *Client) CreateWithFile(ctx context.Context, collection string, fields map[string]string, file File, out interface{}) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return fmt.Errorf("store: write field %s: %w", k, err)
		}
	}
	fw, err := mw.CreateFormFile(file.Field, file.Name)
	if err != nil {
		return fmt.Errorf("store: create form file: %w", err)
	}
	if _, err := fw.Write(file.Data); err != nil {
		return fmt.Errorf("store: write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("store: close multipart: %w", err)
	}

	headers := map[string]string{"Content-Type": mw.FormDataContentType()}
	status, body, err := c.Do(ctx, http.MethodPost, recordsPath(collection), buf.Bytes(), headers)
	if err != nil {
		return err
	}
	return decodeAnswer(http.MethodPost, recordsPath(collection), status, body, out)
}

// AuthWithPassword authenticates an identity against an auth collection.
func (c *Client) AuthWithPassword(ctx context.Context, collection, identity, password string) (*AuthResult, error) {
	path := "/api/collections/" + url.PathEscape(collection) + "/auth-with-password"
	payload := map[string]string{"identity": identity, "password": password}
	var result AuthResult
	if err := c.doJSON(ctx, http.MethodPost, path, payload, &result); err != nil {
		return nil, err
	}
	if result.Token == "" {
		return nil, ErrUnauthorized
	}
	return &result, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("store: encode body: %w", err)
		}
		payload = data
	}
	status, respBody, err := c.Do(ctx, method, path, payload, nil)
	if err != nil {
		return err
	}
	return decodeAnswer(method, path, status, respBody, out)
}

func decodeAnswer(method, path string, status int, body []byte, out interface{}) error {
	switch {
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %s %s", ErrUnauthorized, method, path)
	case status >= 300:
		return &StatusError{Method: method, Path: path, Status: status, Body: truncate(string(body), 256)}
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("store: decode %s %s: %w", method, path, err)
	}
	return nil
}

// Do executes HTTP request and returns status/body.
func (c *Client) Do(ctx context.Context, method, path string, body []byte, headers map[string]string) (int, []byte, error) {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("store: build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		if token := c.token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("store: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("store: read body: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
