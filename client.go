package kuvert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Client is a thin client for the kuvert HTTP API. The api key authenticates
// the send path, the bearer token the project and template endpoints.
type Client struct {
	host   string
	apiKey string
	token  string

	http *http.Client
}

func NewClient(host string, apiKey string) *Client {
	host = strings.TrimRight(host, "/")
	return &Client{
		host:   host,
		apiKey: apiKey,
		http:   http.DefaultClient,
	}
}

// WithToken returns a copy of the client carrying a bearer token for the
// project and template endpoints.
func (c *Client) WithToken(token string) *Client {
	cc := *c
	cc.token = token
	return &cc
}

func (c *Client) do(ctx context.Context, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewBuffer(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.host+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 300 {
		var e ErrorResponse
		if err := json.Unmarshal(respBytes, &e); err == nil && e.Error != "" {
			return fmt.Errorf("kuvert: %s (status %d)", e.Error, resp.StatusCode)
		}
		return fmt.Errorf("kuvert: unexpected status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(respBytes, out)
}

func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

func (c *Client) CreateProject(ctx context.Context, name string) (CreateProjectResponse, error) {
	var out CreateProjectResponse
	err := c.do(ctx, http.MethodPost, "/projects", CreateProjectRequest{Name: name}, &out)
	return out, err
}

func (c *Client) CreateTemplate(ctx context.Context, req CreateTemplateRequest) (CreateTemplateResponse, error) {
	var out CreateTemplateResponse
	err := c.do(ctx, http.MethodPost, "/templates", req, &out)
	return out, err
}

func (c *Client) Send(ctx context.Context, templateId string, data map[string]string) (SendAck, error) {
	var out SendAck
	err := c.do(ctx, http.MethodPost, "/send", SendRequest{Template: templateId, Data: data}, &out)
	return out, err
}

func (c *Client) Status(ctx context.Context, id string) (SendStatus, error) {
	var out SendStatus
	err := c.do(ctx, http.MethodGet, "/sends/"+id, nil, &out)
	return out, err
}
