package backendapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"building-monitor/internal/auth"
	masterdata "building-monitor/internal/masterdata/domain"
	reports "building-monitor/internal/reports/domain"
)

const maxFileSize = 5 << 20

// ErrNotFound is returned on HTTP 404.
var ErrNotFound = errors.New("backendapi: not found")

// StatusError is a non-2xx backend response.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backendapi: http %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("backendapi: http %d", e.Status)
}

// Client is a REST client for the building backend: report aggregations,
// reference data and stored files.
type Client struct {
	baseURL     string
	fileBaseURL string
	token       string
	client      *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the service token used when the request context carries none.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithFileBaseURL sets the base URL stored files are served from.
func WithFileBaseURL(base string) Option {
	return func(c *Client) {
		if base != "" {
			c.fileBaseURL = strings.TrimRight(base, "/")
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.client.Timeout = timeout
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// NewClient constructs a backend client.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("backendapi: empty base url")
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	c.fileBaseURL = c.baseURL
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FetchAggregation issues a single GET against a report aggregation
// endpoint and returns the raw payload.
func (c *Client) FetchAggregation(ctx context.Context, path string, q reports.Query) ([]byte, error) {
	params := url.Values{}
	params.Set("environment", q.EnvironmentID)
	params.Set("fromDate", q.From.Format(reports.QueryTimeLayout))
	params.Set("toDate", q.To.Format(reports.QueryTimeLayout))
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, path+"?"+params.Encode(), nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

type organizationEnvelope struct {
	Organization organizationPayload `json:"organization"`
}

type organizationPayload struct {
	ID      string          `json:"_id"`
	Name    string          `json:"name"`
	Address string          `json:"address"`
	City    json.RawMessage `json:"city"`
	Email   string          `json:"email"`
	Phone   string          `json:"phone"`
	Webpage string          `json:"webpage"`
	Logo    string          `json:"logo"`
}

type cityPayload struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}

// GetOrganization fetches the organization profile.
func (c *Client) GetOrganization(ctx context.Context) (masterdata.Organization, error) {
	var resp organizationEnvelope
	if err := c.doJSON(ctx, http.MethodGet, "/organization", nil, &resp); err != nil {
		if errors.Is(err, ErrNotFound) {
			return masterdata.Organization{}, masterdata.ErrNotFound
		}
		return masterdata.Organization{}, err
	}
	p := resp.Organization
	org := masterdata.Organization{
		ID:      p.ID,
		Name:    p.Name,
		Address: p.Address,
		Email:   p.Email,
		Phone:   p.Phone,
		Webpage: p.Webpage,
		Logo:    p.Logo,
	}
	org.CityID, org.CityName = decodeCity(p.City)
	return org, nil
}

// decodeCity accepts a city id or a populated city document.
func decodeCity(raw json.RawMessage) (id, name string) {
	if len(raw) == 0 {
		return "", ""
	}
	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return plain, ""
	}
	var city cityPayload
	if err := json.Unmarshal(raw, &city); err == nil {
		return city.ID, city.Name
	}
	return "", ""
}

// SaveOrganization updates the organization profile.
func (c *Client) SaveOrganization(ctx context.Context, org masterdata.Organization) error {
	if org.ID == "" {
		return errors.New("backendapi: empty organization id")
	}
	body := map[string]any{
		"name":    org.Name,
		"address": org.Address,
		"cityId":  org.CityID,
		"email":   org.Email,
		"phone":   org.Phone,
		"webpage": org.Webpage,
		"logo":    org.Logo,
	}
	return c.doJSON(ctx, http.MethodPut, "/organization/"+url.PathEscape(org.ID), body, nil)
}

type environmentsEnvelope struct {
	Environments []struct {
		ID   string `json:"_id"`
		Name string `json:"name"`
	} `json:"environments"`
}

// ListEnvironments fetches the selectable environments.
func (c *Client) ListEnvironments(ctx context.Context) ([]masterdata.Environment, error) {
	var resp environmentsEnvelope
	if err := c.doJSON(ctx, http.MethodGet, "/environments", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]masterdata.Environment, 0, len(resp.Environments))
	for _, e := range resp.Environments {
		out = append(out, masterdata.Environment{ID: e.ID, Name: e.Name})
	}
	return out, nil
}

// FetchFile downloads a stored file such as the organization logo.
func (c *Client) FetchFile(ctx context.Context, path string) ([]byte, error) {
	path = strings.TrimLeft(path, "/")
	if path == "" {
		return nil, errors.New("backendapi: empty file path")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.fileBaseURL+"/"+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode >= 300 {
		return nil, &StatusError{Status: resp.StatusCode}
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxFileSize))
}

type errorBody struct {
	Msg   string `json:"msg"`
	Error string `json:"error"`
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reqBody *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(payload)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	token := auth.TokenFromContext(ctx)
	if token == "" {
		token = c.token
	}
	if token != "" {
		req.Header.Set("x-token", token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode >= 300 {
		var eb errorBody
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&eb)
		msg := eb.Msg
		if msg == "" {
			msg = eb.Error
		}
		return &StatusError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
