// Package drive talks to the Drive v3 REST API: paginated folder listings
// and direct media downloads. The API key is injected at construction; its
// absence or rejection is a fatal configuration error, distinct from
// ordinary per-branch retrieval failures.
package drive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/sku-bundler/internal/config"
	"github.com/fpang/sku-bundler/internal/retry"
)

// ErrInvalidCredentials means the API key is missing or was rejected by the
// listing API. Never retried; aborts the whole crawl.
var ErrInvalidCredentials = errors.New("drive API key missing or rejected")

// ErrBadRoot means the root folder reference is structurally invalid or does
// not resolve to a folder. Aborts the whole crawl.
var ErrBadRoot = errors.New("invalid drive root reference")

// FolderMIMEType marks a child as a subfolder rather than a leaf file.
const FolderMIMEType = "application/vnd.google-apps.folder"

const (
	defaultTimeout = 30 * time.Second
	listPageSize   = 1000
)

// Child is one entry of a folder listing.
type Child struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MIMEType string `json:"mimeType"`
}

// IsFolder reports whether the child is a subfolder.
func (c Child) IsFolder() bool {
	return c.MIMEType == FolderMIMEType
}

type listResponse struct {
	Files         []Child `json:"files"`
	NextPageToken string  `json:"nextPageToken"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

// Client is a thin Drive v3 API client. Construct with NewClient.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	retry      retry.Policy
}

// NewClient validates the configuration and returns a client.
// A missing API key is reported immediately as ErrInvalidCredentials so the
// caller can surface an actionable message before any group is attempted.
func NewClient(cfg config.DriveConfig, httpClient *http.Client) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: set DRIVE_API_KEY", ErrInvalidCredentials)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		retry:      retry.Default,
	}, nil
}

// errRetryable marks transient listing failures (rate limiting, flaky 5xx).
type errRetryable struct{ err error }

func (e errRetryable) Error() string { return e.err.Error() }
func (e errRetryable) Unwrap() error { return e.err }

// ListChildren returns every child of the folder, following continuation
// tokens until the listing is exhausted. Rate-limited responses are retried
// with backoff; a rejected API key is fatal and never retried.
func (c *Client) ListChildren(ctx context.Context, folderID string) ([]Child, error) {
	var all []Child
	pageToken := ""

	for {
		var page listResponse
		err := c.retry.Do(ctx, func() error {
			p, err := c.listPage(ctx, folderID, pageToken)
			if err != nil {
				return err
			}
			page = p
			return nil
		}, func(err error) bool {
			var r errRetryable
			return errors.As(err, &r)
		})
		if err != nil {
			return nil, err
		}

		all = append(all, page.Files...)
		if page.NextPageToken == "" {
			return all, nil
		}
		pageToken = page.NextPageToken
	}
}

func (c *Client) listPage(ctx context.Context, folderID, pageToken string) (listResponse, error) {
	q := url.Values{
		"q":        {fmt.Sprintf("'%s' in parents and trashed = false", folderID)},
		"fields":   {"nextPageToken, files(id, name, mimeType)"},
		"pageSize": {fmt.Sprint(listPageSize)},
		"key":      {c.apiKey},
	}
	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}

	body, _, err := c.get(ctx, c.baseURL+"/files?"+q.Encode())
	if err != nil {
		return listResponse{}, err
	}

	var page listResponse
	if err := json.Unmarshal(body, &page); err != nil {
		return listResponse{}, fmt.Errorf("decode listing: %w", err)
	}
	return page, nil
}

// Download fetches a file's content via alt=media. Returns the payload and
// the response content type.
func (c *Client) Download(ctx context.Context, fileID string) ([]byte, string, error) {
	q := url.Values{
		"alt": {"media"},
		"key": {c.apiKey},
	}
	body, contentType, err := c.get(ctx, c.baseURL+"/files/"+url.PathEscape(fileID)+"?"+q.Encode())
	if err != nil {
		return nil, "", err
	}
	return body, contentType, nil
}

// get performs one request and maps error responses onto the error taxonomy:
// rejected key → ErrInvalidCredentials, 429 / rate-limit 403 / 5xx →
// retryable, everything else → plain error.
func (c *Client) get(ctx context.Context, requestURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		return nil, "", errRetryable{err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", errRetryable{fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, resp.Header.Get("Content-Type"), nil
	}

	if isCredentialRejection(resp.StatusCode, body) {
		log.Error().Int("status", resp.StatusCode).Msg("Drive API rejected the API key")
		return nil, "", ErrInvalidCredentials
	}

	apiErr := fmt.Errorf("drive API status %s: %s", resp.Status, truncate(body, 200))
	if resp.StatusCode == http.StatusTooManyRequests ||
		resp.StatusCode == http.StatusForbidden ||
		resp.StatusCode >= 500 {
		return nil, "", errRetryable{apiErr}
	}
	return nil, "", apiErr
}

// isCredentialRejection detects the API's invalid-key error shape. A 403 can
// also mean rate limiting, so the body is inspected rather than trusting the
// status alone.
func isCredentialRejection(status int, body []byte) bool {
	if status != http.StatusBadRequest && status != http.StatusUnauthorized && status != http.StatusForbidden {
		return false
	}
	var ae apiError
	if err := json.Unmarshal(body, &ae); err != nil {
		return false
	}
	for _, e := range ae.Error.Errors {
		if e.Reason == "keyInvalid" || e.Reason == "authError" {
			return true
		}
	}
	return strings.Contains(ae.Error.Message, "API key not valid")
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
