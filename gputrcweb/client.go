package gputrcweb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gputrc/gputrc/gputrcstore"
)

// HTTPClient models an http.Client.
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

var _ HTTPClient = (*http.Client)(nil)

// Client implements [gputrcstore.Selecter] by querying a remote zone server.
type Client struct {
	client HTTPClient
	uri    string
}

var _ gputrcstore.Selecter = (*Client)(nil)

// NewClient returns a client querying the zone server at the given URI.
func NewClient(client HTTPClient, remoteURI string) *Client {
	return &Client{
		client: client,
		uri:    remoteURI,
	}
}

// Select implements gputrcstore.Selecter.
func (c *Client) Select(ctx context.Context, req *gputrcstore.SelectRequest) (*gputrcstore.SelectResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode select request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "GET", c.uri, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create HTTP request: %w", err)
	}
	httpReq.Header.Set("content-type", "application/json; charset=utf-8")

	httpRes, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute HTTP request: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, httpRes.Body)
		httpRes.Body.Close()
	}()

	if httpRes.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP response %d %s", httpRes.StatusCode, http.StatusText(httpRes.StatusCode))
	}

	var res SelectData
	if err := json.NewDecoder(httpRes.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("decode select response: %w", err)
	}

	return &res.Response, nil
}
