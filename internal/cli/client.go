package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"runesmith/internal/auth"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (c *Client) Signup(ctx context.Context, username, email, password string) (auth.Session, error) {
	var out auth.Session
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/auth/signup", "", map[string]any{
		"username": username,
		"email":    email,
		"password": password,
	}, &out, "")
	return out, err
}

func (c *Client) Login(ctx context.Context, email, password string) (auth.Session, error) {
	var out auth.Session
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/auth/login", "", map[string]any{
		"email":    email,
		"password": password,
	}, &out, "")
	return out, err
}

func (c *Client) Logout(ctx context.Context, token string) error {
	return c.jsonRequest(ctx, http.MethodPost, "/v1/auth/logout", token, map[string]any{}, nil, "")
}

func (c *Client) Me(ctx context.Context, token string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/me", token, nil, &out, "")
	return out, err
}

func (c *Client) Compile(ctx context.Context, token, description string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/compile", token, map[string]any{
		"description": description,
	}, &out, "")
	return out, err
}

func (c *Client) SaveSkill(ctx context.Context, token string, skill map[string]any) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/skills", token, skill, &out, "")
	return out, err
}

func (c *Client) MySkills(ctx context.Context, token string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/skills/my", token, nil, &out, "")
	return out, err
}

func (c *Client) CreateListing(ctx context.Context, token, skillID string, price int64, currency, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/market/listings", token, map[string]any{
		"skill_id": skillID,
		"price":    price,
		"currency": currency,
	}, &out, idem)
	return out, err
}

func (c *Client) CancelListing(ctx context.Context, token string, listingID int64) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodDelete, fmt.Sprintf("/v1/market/listings/%d", listingID), token, nil, &out, "")
	return out, err
}

type BrowseOptions struct {
	WorldTier int
	Element   string
	SortBy    string
	Limit     int
	Offset    int
}

func (c *Client) Browse(ctx context.Context, token string, opts BrowseOptions) (map[string]any, error) {
	q := url.Values{}
	if opts.WorldTier > 0 {
		q.Set("world_tier", fmt.Sprint(opts.WorldTier))
	}
	if opts.Element != "" {
		q.Set("element", opts.Element)
	}
	if opts.SortBy != "" {
		q.Set("sort", opts.SortBy)
	}
	if opts.Limit > 0 {
		q.Set("limit", fmt.Sprint(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", fmt.Sprint(opts.Offset))
	}
	path := "/v1/market/browse"
	if encoded := q.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, path, token, nil, &out, "")
	return out, err
}

func (c *Client) MyListings(ctx context.Context, token string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/market/my-listings", token, nil, &out, "")
	return out, err
}

func (c *Client) Buy(ctx context.Context, token string, listingID int64, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/market/buy", token, map[string]any{
		"listing_id": listingID,
	}, &out, idem)
	return out, err
}

func (c *Client) Rate(ctx context.Context, token string, listingID int64, rating float64) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/market/rate", token, map[string]any{
		"listing_id": listingID,
		"rating":     rating,
	}, &out, "")
	return out, err
}

func (c *Client) jsonRequest(ctx context.Context, method, path, token string, in any, out any, idem string) error {
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
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if idem != "" {
		req.Header.Set("Idempotency-Key", idem)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("api status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
