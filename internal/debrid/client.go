// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package debrid

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/debridauto/internal/buildinfo"
)

const (
	// requestTimeout bounds every remote call; a timeout is a per-item
	// failure, never a run abort.
	requestTimeout = 30 * time.Second

	maxResponseBytes int64 = 4 << 20
)

// APIError represents an error response from the debrid service. It preserves
// the HTTP status and the service's error code for classification.
type APIError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("debrid api error %d: %s (code %d)", e.StatusCode, e.Message, e.Code)
	}
	return fmt.Sprintf("debrid api error %d", e.StatusCode)
}

func (e *APIError) Is(target error) bool {
	_, ok := target.(*APIError)
	return ok
}

// IsAuth returns true when the service rejected the credentials. Auth errors
// abort the whole run; retrying other candidates cannot succeed.
func (e *APIError) IsAuth() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// IsRateLimited returns true if this error indicates rate limiting (HTTP 429).
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// Client talks to a Real-Debrid style REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// User describes the authenticated account, used as the service health and
// credential check before a run.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Type     string `json:"type"`
	Premium  int64  `json:"premium"`
}

// Torrent is an item already present in the account.
type Torrent struct {
	ID       string `json:"id"`
	Hash     string `json:"hash"`
	Filename string `json:"filename"`
	Bytes    int64  `json:"bytes"`
	Status   string `json:"status"`
}

// AddResult is the service's response to a magnet submission.
type AddResult struct {
	ID  string `json:"id"`
	URI string `json:"uri"`
}

// Magnet builds a magnet reference for a content identifier. The identifier
// must be a 32, 40 or 64 character hash.
func Magnet(hash string) (string, error) {
	hash = strings.TrimSpace(hash)
	switch len(hash) {
	case 32, 40, 64:
	default:
		return "", fmt.Errorf("invalid identifier length %d for %q", len(hash), hash)
	}
	return "magnet:?xt=urn:btih:" + hash, nil
}

// CheckAuth verifies the API token by fetching the account. It returns the
// account details or an *APIError; callers treat IsAuth failures as fatal.
func (c *Client) CheckAuth(ctx context.Context) (*User, error) {
	var user User
	if err := c.get(ctx, "/user", &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// AddMagnet submits a magnet reference for caching into the account.
func (c *Client) AddMagnet(ctx context.Context, magnet string) (*AddResult, error) {
	form := url.Values{}
	form.Set("magnet", magnet)

	var result AddResult
	if err := c.postForm(ctx, "/torrents/addMagnet", form, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SelectFiles marks files of a submitted torrent for caching. The service
// usually auto-selects; a failure here is logged by the caller, not fatal.
func (c *Client) SelectFiles(ctx context.Context, torrentID string) error {
	form := url.Values{}
	form.Set("files", "all")

	return c.postForm(ctx, "/torrents/selectFiles/"+url.PathEscape(torrentID), form, nil)
}

// Torrents lists the account's current content, used for the account-level
// duplicate check.
func (c *Client) Torrents(ctx context.Context) ([]Torrent, error) {
	var torrents []Torrent
	if err := c.get(ctx, "/torrents", &torrents); err != nil {
		return nil, err
	}
	return torrents, nil
}

// TorrentHashes returns the lowercased identifiers already in the account.
func (c *Client) TorrentHashes(ctx context.Context) (map[string]struct{}, error) {
	torrents, err := c.Torrents(ctx)
	if err != nil {
		return nil, err
	}

	hashes := make(map[string]struct{}, len(torrents))
	for _, t := range torrents {
		if t.Hash != "" {
			hashes[strings.ToLower(t.Hash)] = struct{}{}
		}
	}
	return hashes, nil
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	return c.do(ctx, http.MethodGet, endpoint, "", nil, out)
}

func (c *Client) postForm(ctx context.Context, endpoint string, form url.Values, out any) error {
	body := form.Encode()
	return c.do(ctx, http.MethodPost, endpoint, "application/x-www-form-urlencoded", strings.NewReader(body), out)
}

func (c *Client) do(ctx context.Context, method, endpoint, contentType string, body io.Reader, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("build request %s %s: %w", method, endpoint, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", buildinfo.UserAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response %s %s: %w", method, endpoint, err)
	}

	log.Trace().
		Str("method", method).
		Str("endpoint", endpoint).
		Int("status", resp.StatusCode).
		Msg("Debrid API call")

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return parseAPIError(resp.StatusCode, data)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response %s %s: %w", method, endpoint, err)
	}
	return nil
}

func parseAPIError(status int, data []byte) *APIError {
	apiErr := &APIError{StatusCode: status}

	var payload struct {
		Error     string `json:"error"`
		ErrorCode int    `json:"error_code"`
	}
	if err := json.Unmarshal(data, &payload); err == nil {
		apiErr.Message = payload.Error
		apiErr.Code = payload.ErrorCode
	} else if len(data) > 0 {
		apiErr.Message = strings.TrimSpace(string(data))
	}

	return apiErr
}
