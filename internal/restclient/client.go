// Package restclient implements the client for the remote membership data
// store, a PostgREST-style service exposing one JSON collection per entity
// plus a fuzzy building-matching RPC.
package restclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avergara/uniondb/pkg/normalize"
)

// ErrNotFound is returned by single-record lookups that match nothing.
var ErrNotFound = errors.New("record not found")

// Filters maps field names to encoded filter expressions (`eq.`, `in.(...)`).
type Filters map[string]string

// Eq encodes an equality filter on a string value.
func Eq(value string) string {
	return "eq." + value
}

// EqInt encodes an equality filter on a numeric id.
func EqInt(value int64) string {
	return "eq." + strconv.FormatInt(value, 10)
}

// In encodes a set-membership filter. String values are individually
// quote-escaped so commas and quotes inside a value survive the list syntax.
func In(values []string) string {
	escaped := make([]string, len(values))
	for i, v := range values {
		escaped[i] = normalize.EscapeFilterLiteral(v)
	}
	return "in.(" + strings.Join(escaped, ",") + ")"
}

// QueryOption tweaks a GetRecords call.
type QueryOption func(url.Values)

// WithOrder requests server-side ordering, e.g. "apellidos.asc".
func WithOrder(order string) QueryOption {
	return func(q url.Values) { q.Set("order", order) }
}

// WithLimit caps the number of returned records.
func WithLimit(limit int) QueryOption {
	return func(q url.Values) { q.Set("limit", strconv.Itoa(limit)) }
}

// Config carries the connection settings for the remote store.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client talks to the remote store over HTTP/JSON.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New creates a store client from config.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// GetRecords lists records of a collection matching the given filters.
func (c *Client) GetRecords(ctx context.Context, collection string, filters Filters, opts ...QueryOption) ([]map[string]any, error) {
	query := url.Values{}
	for field, expr := range filters {
		query.Set(field, expr)
	}
	for _, opt := range opts {
		opt(query)
	}

	endpoint := c.baseURL + "/" + collection
	if encoded := query.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var records []map[string]any
	if err := c.do(req, &records); err != nil {
		return nil, fmt.Errorf("get %s: %w", collection, err)
	}
	return records, nil
}

// CreateRecord inserts one record and returns the stored representation.
func (c *Client) CreateRecord(ctx context.Context, collection string, payload map[string]any) (map[string]any, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+collection, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")

	var created []map[string]any
	if err := c.do(req, &created); err != nil {
		return nil, fmt.Errorf("create %s: %w", collection, err)
	}
	if len(created) == 0 {
		return nil, fmt.Errorf("create %s: empty response", collection)
	}
	return created[0], nil
}

// UpdateRecord patches one record by id and returns the stored representation.
func (c *Client) UpdateRecord(ctx context.Context, collection string, id int64, payload map[string]any) (map[string]any, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/%s?id=%s", c.baseURL, collection, EqInt(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")

	var updated []map[string]any
	if err := c.do(req, &updated); err != nil {
		return nil, fmt.Errorf("update %s/%d: %w", collection, id, err)
	}
	if len(updated) == 0 {
		return nil, fmt.Errorf("update %s/%d: %w", collection, id, ErrNotFound)
	}
	return updated[0], nil
}

// DeleteRecord removes one record by id.
func (c *Client) DeleteRecord(ctx context.Context, collection string, id int64) error {
	endpoint := fmt.Sprintf("%s/%s?id=%s", c.baseURL, collection, EqInt(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}
	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("delete %s/%d: %w", collection, id, err)
	}
	return nil
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("store returned %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	if out == nil || len(payload) == 0 {
		return nil
	}
	return json.Unmarshal(payload, out)
}
