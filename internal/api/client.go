package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/banshee-data/missionmap/internal/httputil"
)

// Client drives a running service over its JSON API.
type Client struct {
	BaseURL string
	HTTP    httputil.Doer
}

// NewClient returns a client for the service at baseURL.
func NewClient(baseURL string, doer httputil.Doer) *Client {
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: doer}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	return httputil.DoJSON(ctx, c.HTTP, method, c.BaseURL+path, body, out)
}

// Load asks the service to load a map from its data directory.
func (c *Client) Load(ctx context.Context, mapPath, metaPath string) (SessionView, error) {
	var v SessionView
	err := c.do(ctx, http.MethodPost, "/session/load", LoadRequest{MapPath: mapPath, MetaPath: metaPath}, &v)
	return v, err
}

func (c *Client) control(ctx context.Context, op string) (SessionView, error) {
	var v SessionView
	err := c.do(ctx, http.MethodPost, "/session/"+op, nil, &v)
	return v, err
}

func (c *Client) Start(ctx context.Context) (SessionView, error)  { return c.control(ctx, "start") }
func (c *Client) Pause(ctx context.Context) (SessionView, error)  { return c.control(ctx, "pause") }
func (c *Client) Resume(ctx context.Context) (SessionView, error) { return c.control(ctx, "resume") }
func (c *Client) Stop(ctx context.Context) (SessionView, error)   { return c.control(ctx, "stop") }

// Pose posts one pose.
func (c *Client) Pose(ctx context.Context, x, y, theta float64) (PoseResponse, error) {
	var resp PoseResponse
	err := c.do(ctx, http.MethodPost, "/session/pose", PoseRequest{X: &x, Y: &y, Theta: theta}, &resp)
	return resp, err
}

// Session returns the current session view.
func (c *Client) Session(ctx context.Context) (SessionView, error) {
	var v SessionView
	err := c.do(ctx, http.MethodGet, "/session", nil, &v)
	return v, err
}

// Export writes the session's artifacts on the service host.
func (c *Client) Export(ctx context.Context, label string) (ExportResponse, error) {
	var resp ExportResponse
	err := c.do(ctx, http.MethodPost, "/session/export", ExportRequest{Label: label}, &resp)
	return resp, err
}
