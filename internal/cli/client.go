package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
	Session Session
}

func NewClient(baseURL string, s Session) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
		Session: s,
	}
}

// APIError is a non-2xx response. Message is the server's "error" field when
// it sent one.
type APIError struct {
	Status  int
	Message string
	Reasons []string
}

func (e *APIError) Error() string {
	if len(e.Reasons) > 0 {
		return fmt.Sprintf("%s (%s)", e.Message, strings.Join(e.Reasons, "; "))
	}
	return e.Message
}

func (c *Client) Market(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/market", nil, &out)
	return out, err
}

func (c *Client) SyncMarket(ctx context.Context, marketCap *int64) (map[string]any, error) {
	body := map[string]any{}
	if marketCap != nil {
		body["market_cap"] = *marketCap
	}
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/market/sync", body, &out)
	return out, err
}

func (c *Client) SendRespect(ctx context.Context, toUserID, postID string, amount int64) (map[string]any, error) {
	body := map[string]any{"to_user_id": toUserID, "amount": amount}
	if postID != "" {
		body["post_id"] = postID
	}
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/respects", body, &out)
	return out, err
}

func (c *Client) Shareholders(ctx context.Context, userID string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/shareholders/"+url.PathEscape(userID), nil, &out)
	return out, err
}

func (c *Client) Players(ctx context.Context, limit int) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/players?limit="+strconv.Itoa(limit), nil, &out)
	return out, err
}

func (c *Client) Crash(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/crash", nil, &out)
	return out, err
}

func (c *Client) SetCrash(ctx context.Context, active bool, multiplier *float64) (map[string]any, error) {
	body := map[string]any{"active": active}
	if multiplier != nil {
		body["multiplier"] = *multiplier
	}
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/crash", body, &out)
	return out, err
}

func (c *Client) CompanyRanking(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/companies", nil, &out)
	return out, err
}

func (c *Client) CreateCompany(ctx context.Context, name, description string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/companies", map[string]any{
		"name":        name,
		"description": description,
	}, &out)
	return out, err
}

func (c *Client) Company(ctx context.Context, id string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/companies/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (c *Client) JoinCompany(ctx context.Context, id string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/companies/"+url.PathEscape(id)+"/join", nil, &out)
	return out, err
}

func (c *Client) LeaveCompany(ctx context.Context) error {
	return c.jsonRequest(ctx, http.MethodPost, "/v1/companies/leave", nil, nil)
}

func (c *Client) Contribution(ctx context.Context, companyID string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/companies/"+url.PathEscape(companyID)+"/contribution", nil, &out)
	return out, err
}

func (c *Client) CompanyRequirements(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/companies/requirements", nil, &out)
	return out, err
}

func (c *Client) Posts(ctx context.Context, limit int) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/posts?limit="+strconv.Itoa(limit), nil, &out)
	return out, err
}

func (c *Client) CreatePost(ctx context.Context, content, sector, imageURL string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/posts", map[string]any{
		"content":   content,
		"sector":    sector,
		"image_url": imageURL,
	}, &out)
	return out, err
}

func (c *Client) Notifications(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/notifications", nil, &out)
	return out, err
}

func (c *Client) MarkAllRead(ctx context.Context) error {
	return c.jsonRequest(ctx, http.MethodPost, "/v1/notifications/read-all", nil, nil)
}

func (c *Client) jsonRequest(ctx context.Context, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Session.UserID != "" {
		req.Header.Set("X-User-ID", c.Session.UserID)
		req.Header.Set("X-User-Name", c.Session.UserName)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := &APIError{Status: resp.StatusCode}
		var envelope struct {
			Error   string   `json:"error"`
			Reasons []string `json:"reasons"`
		}
		if json.Unmarshal(raw, &envelope) == nil && envelope.Error != "" {
			apiErr.Message = envelope.Error
			apiErr.Reasons = envelope.Reasons
		} else {
			apiErr.Message = fmt.Sprintf("api status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
