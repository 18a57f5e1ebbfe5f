// Package integration holds the REST plumbing shared by the third-party API
// clients in its subpackages.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	areaserrors "github.com/tombee/areas/pkg/errors"
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 * 1024

// Client issues JSON requests against one API base URL.
type Client struct {
	service string
	baseURL string
	http    *http.Client
	header  http.Header
}

// NewClient creates a client. header is sent with every request.
func NewClient(service, baseURL string, hc *http.Client, header http.Header) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	if header == nil {
		header = http.Header{}
	}
	return &Client{
		service: service,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    hc,
		header:  header,
	}
}

// Service returns the service name used in errors.
func (c *Client) Service() string {
	return c.service
}

// Request describes one API call. At most one of JSON and Form is set.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header

	JSON any
	Form url.Values

	// Operation names the call in errors (e.g., "send message").
	Operation string
}

// Bearer returns an Authorization header carrying token.
func Bearer(token string) http.Header {
	return http.Header{"Authorization": []string{"Bearer " + token}}
}

// Do sends req and decodes a JSON response into out when out is non-nil.
// Non-2xx responses return an *errors.UpstreamError.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	u := c.baseURL + req.Path
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}

	var body io.Reader
	contentType := ""
	switch {
	case req.JSON != nil:
		b, err := json.Marshal(req.JSON)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", c.service, err)
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	case req.Form != nil:
		body = strings.NewReader(req.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", c.service, err)
	}
	for k, vs := range c.header {
		httpReq.Header[k] = vs
	}
	for k, vs := range req.Header {
		httpReq.Header[k] = vs
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s %s: %w", c.service, req.Operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &areaserrors.UpstreamError{
			Service:    c.service,
			Operation:  req.Operation,
			StatusCode: resp.StatusCode,
			Body:       string(b),
		}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", c.service, err)
	}
	return nil
}
