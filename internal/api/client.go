package api

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

	"github.com/cjeanneret/DualCap/internal/debug"
	"github.com/cjeanneret/DualCap/internal/logic/capture"
	"github.com/cjeanneret/DualCap/internal/model"
)

const (
	momentsPath = "/bereal"
	loginPath   = "/login"
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("feed api: status %d", e.Code)
	}
	return fmt.Sprintf("feed api: status %d: %s", e.Code, e.Body)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

// Client talks to the remote feed API. It never retries.
type Client struct {
	baseURL *url.URL
	creds   Credentials
	http    *http.Client
}

// NewClient builds a client for baseURL. timeout 0 means no client timeout.
func NewClient(baseURL string, creds Credentials, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api url must be http(s), got %q", baseURL)
	}
	return &Client{
		baseURL: u,
		creds:   creds,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// WithCredentials returns a copy of the client using creds.
func (c *Client) WithCredentials(creds Credentials) *Client {
	cp := *c
	cp.creds = creds
	return &cp
}

func (c *Client) endpoint(parts ...string) string {
	u := *c.baseURL
	u.Path = u.Path + momentsPath
	for _, p := range parts {
		u.Path += "/" + url.PathEscape(p)
	}
	return u.String()
}

func (c *Client) do(ctx context.Context, method, target string, body any, out any) error {
	if err := c.creds.check(time.Now()); err != nil {
		return err
	}
	return c.send(ctx, method, target, body, out)
}

func (c *Client) send(ctx context.Context, method, target string, body any, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.creds.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.creds.Token)
	}

	debug.Verbose("API: %s %s", method, target)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Login exchanges the feed password for an access token.
func (c *Client) Login(ctx context.Context, password string) (Credentials, error) {
	u := *c.baseURL
	u.Path = u.Path + loginPath
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.send(ctx, http.MethodPost, u.String(), map[string]string{"password": password}, &resp); err != nil {
		return Credentials{}, err
	}
	if resp.Token == "" {
		return Credentials{}, ErrNoToken
	}
	return Credentials{Token: resp.Token}, nil
}

// CreateMoment posts a new moment and returns the stored copy.
func (c *Client) CreateMoment(ctx context.Context, in model.MomentInput) (model.Moment, error) {
	var m model.Moment
	err := c.do(ctx, http.MethodPost, c.endpoint(), in, &m)
	return m, err
}

// ListMoments returns the feed.
func (c *Client) ListMoments(ctx context.Context) ([]model.Moment, error) {
	var ms []model.Moment
	if err := c.do(ctx, http.MethodGet, c.endpoint(), nil, &ms); err != nil {
		return nil, err
	}
	return ms, nil
}

// GetMoment returns one moment by id.
func (c *Client) GetMoment(ctx context.Context, id int64) (model.Moment, error) {
	var m model.Moment
	err := c.do(ctx, http.MethodGet, c.endpoint(strconv.FormatInt(id, 10)), nil, &m)
	return m, err
}

// Upload implements capture.Uploader.
func (c *Client) Upload(ctx context.Context, pair capture.Pair) (string, error) {
	m, err := c.CreateMoment(ctx, pair.Input())
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(m.ID, 10), nil
}
