package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-semantic-release/asset-mirror/pkg/manifest"
)

type ErrorResponse struct {
	StatusCode int
	ErrorMsg   string `json:"error"`
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("unexpected status code: %d, error: %s", e.StatusCode, e.ErrorMsg)
}

// SyncReport is the result of a sync run as returned by the server.
type SyncReport struct {
	RunID     string    `json:"runId"`
	StartedAt time.Time `json:"startedAt"`
	Duration  string    `json:"duration"`
	Stats     struct {
		Assets    int `json:"assets"`
		NewAssets int `json:"newAssets"`
		Releases  int `json:"releases"`
	} `json:"stats"`
	FailedRepositories []string       `json:"failedRepositories"`
	Removed            []string       `json:"removed"`
	Manifest           manifest.Stats `json:"manifest"`
	Published          *struct {
		Uploaded int `json:"uploaded"`
		Skipped  int `json:"skipped"`
	} `json:"published"`
}

type Client struct {
	mirrorURL  string
	httpClient *http.Client
}

func New(mirrorURL string) *Client {
	return &Client{
		mirrorURL: mirrorURL,
		httpClient: &http.Client{
			// a sync downloads assets before it responds
			Timeout: 30 * time.Minute,
		},
	}
}

func setAuth(adminAccessToken string) func(r *http.Request) {
	return func(r *http.Request) {
		r.Header.Set("Authorization", adminAccessToken)
	}
}

func (c *Client) sendRequest(ctx context.Context, method, endpoint string, body io.Reader, modifyRequestFns ...func(r *http.Request)) (*http.Response, error) {
	apiEndpoint, err := url.JoinPath(c.mirrorURL, endpoint)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, apiEndpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json; charset=utf-8")
	for _, f := range modifyRequestFns {
		f(req)
	}
	return c.httpClient.Do(req)
}

func (c *Client) decodeResponse(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		errResp := ErrorResponse{StatusCode: resp.StatusCode}
		err := json.NewDecoder(resp.Body).Decode(&errResp)
		if err != nil {
			return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}
		return &errResp
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (c *Client) GetManifest(ctx context.Context) (*manifest.Manifest, error) {
	resp, err := c.sendRequest(ctx, http.MethodGet, "packages.json", nil)
	if err != nil {
		return nil, err
	}
	var m manifest.Manifest
	if err := c.decodeResponse(resp, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) GetRepositories(ctx context.Context) ([]string, error) {
	resp, err := c.sendRequest(ctx, http.MethodGet, "api/v1/repositories", nil)
	if err != nil {
		return nil, err
	}
	var names []string
	if err := c.decodeResponse(resp, &names); err != nil {
		return nil, err
	}
	return names, nil
}

func (c *Client) GetRepository(ctx context.Context, name string) (*manifest.Repository, error) {
	resp, err := c.sendRequest(ctx, http.MethodGet, "api/v1/repositories/"+url.PathEscape(name), nil)
	if err != nil {
		return nil, err
	}
	var repo manifest.Repository
	if err := c.decodeResponse(resp, &repo); err != nil {
		return nil, err
	}
	return &repo, nil
}

// TriggerSync runs a sync on the server and waits for its report.
func (c *Client) TriggerSync(ctx context.Context, adminAccessToken string) (*SyncReport, error) {
	resp, err := c.sendRequest(ctx, http.MethodPut, "api/v1/sync", nil, setAuth(adminAccessToken))
	if err != nil {
		return nil, err
	}
	var report SyncReport
	if err := c.decodeResponse(resp, &report); err != nil {
		return nil, err
	}
	return &report, nil
}
