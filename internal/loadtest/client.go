package loadtest

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

	service "github.com/okian/blindpair/internal/app"
	"github.com/okian/blindpair/internal/domain/model"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api %d %s: %s", e.Status, e.Code, e.Message)
}

// IsCode reports whether err is an APIError with the given code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// Client wraps http.Client for the blindpair API.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a client with a per-request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Health checks GET /healthz.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/healthz", nil, nil)
	return err
}

// CreateSession starts a session for participant in study.
func (c *Client) CreateSession(ctx context.Context, studyID, participantID string) (model.Session, error) {
	var sess model.Session
	body := map[string]string{"participant_id": participantID}
	_, err := c.do(ctx, http.MethodPost, "/v1/studies/"+url.PathEscape(studyID)+"/sessions", body, &sess)
	return sess, err
}

// Next fetches the next match. A nil match means the session is done.
func (c *Client) Next(ctx context.Context, sessionID string) (*service.Match, error) {
	var m service.Match
	status, err := c.do(ctx, http.MethodGet, "/v1/sessions/"+url.PathEscape(sessionID)+"/next", nil, &m)
	if err != nil || status == http.StatusNoContent {
		return nil, err
	}
	return &m, nil
}

// Vote submits v to its session.
func (c *Client) Vote(ctx context.Context, v service.Vote) (service.VoteReceipt, error) {
	var receipt service.VoteReceipt
	_, err := c.do(ctx, http.MethodPost, "/v1/sessions/"+url.PathEscape(v.SessionID)+"/votes", v, &receipt)
	return receipt, err
}

// Rankings fetches a category leaderboard.
func (c *Client) Rankings(ctx context.Context, categoryID string) ([]service.Ranking, error) {
	var out []service.Ranking
	_, err := c.do(ctx, http.MethodGet, "/v1/categories/"+url.PathEscape(categoryID)+"/rankings", nil, &out)
	return out, err
}

// do sends a JSON request and decodes a JSON answer into out when one is
// present.
func (c *Client) do(ctx context.Context, method, path string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		return resp.StatusCode, apiErr
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
