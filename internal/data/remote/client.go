// Package remote is an entity.Provider backed by the kennel HTTP API. It is
// used both as a full provider (--endpoint) and as the dictionary
// fallback of the label resolver.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/colonyops/kennel/internal/core/entity"
)

// DefaultTimeout bounds a single API call.
const DefaultTimeout = 10 * time.Second

// Client talks to a kennel server.
type Client struct {
	base *url.URL
	http *http.Client
}

var _ entity.Provider = (*Client)(nil)

// StatusError is a non-2xx API response.
type StatusError struct {
	Status int
	Code   string
	Msg    string
}

func (e *StatusError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("remote: status %d: %s", e.Status, e.Msg)
	}
	return fmt.Sprintf("remote: status %d (%s): %s", e.Status, e.Code, e.Msg)
}

// New creates a client for the server at baseURL. A zero timeout uses
// DefaultTimeout.
func New(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid remote url %q: %w", baseURL, err)
	}
	u.RawQuery, u.Fragment = "", ""
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid remote url %q: scheme must be http or https", baseURL)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{base: u, http: &http.Client{Timeout: timeout}}, nil
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.http = hc
	return c
}

// GetPage implements entity.Provider.
func (c *Client) GetPage(ctx context.Context, req entity.PageRequest) (entity.Page, error) {
	var page entity.Page
	if err := c.get(ctx, EntitiesPath(req.Collection), EncodePageRequest(req), &page); err != nil {
		return entity.Page{}, err
	}
	return page, nil
}

// FindByID implements entity.Provider.
func (c *Client) FindByID(ctx context.Context, collection, id string) (*entity.Record, error) {
	var rec entity.Record
	err := c.get(ctx, EntityPath(collection, id), nil, &rec)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// FindDictionaryValue implements entity.DictionarySource.
func (c *Client) FindDictionaryValue(ctx context.Context, table string, m entity.Matcher) (*entity.Record, error) {
	v := url.Values{}
	switch {
	case m.ID != "":
		v.Set(ParamID, m.ID)
	case m.Label != "":
		v.Set(ParamLabel, m.Label)
	default:
		return nil, nil
	}

	var rec entity.Record
	err := c.get(ctx, LookupPath(table), v, &rec)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Collections lists the collections the server exposes.
func (c *Client) Collections(ctx context.Context) ([]CollectionInfo, error) {
	var out []CollectionInfo
	if err := c.get(ctx, PathCollections, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Parse asks the server to parse an address query of a collection.
func (c *Client) Parse(ctx context.Context, collection string, address url.Values) (ParseResult, error) {
	var out ParseResult
	if err := c.get(ctx, QueryPath(collection), address, &out); err != nil {
		return ParseResult{}, err
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, dest any) error {
	target := c.base.String() + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("remote: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("remote: GET %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("remote: decode %s: %w", path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var eb ErrorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.Error != "" {
		return &StatusError{Status: resp.StatusCode, Code: eb.Code, Msg: eb.Error}
	}
	return &StatusError{Status: resp.StatusCode, Msg: strings.TrimSpace(string(body))}
}

func isNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == http.StatusNotFound
}
