package mdm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"classdeck-backend/internal/models"
)

const (
	protocolVersionHeader = "X-Server-Protocol-Version"
	protocolVersion       = "3"
	teacherTokenHeader    = "X-Teacher-Token"
)

// APIError is a non-2xx answer from the MDM.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mdm responded %d: %s", e.StatusCode, e.Body)
}

type Config struct {
	BaseURL           string
	NetworkID         string
	APIKey            string
	RequestsPerSecond int
	Timeout           time.Duration
}

// Client talks to the MDM's teacher and device endpoints. Every call is
// fire-and-accept: a 2xx means the command was queued, not applied.
type Client struct {
	baseURL    string
	networkID  string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		networkID:  cfg.NetworkID,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), rps),
	}
}

// ClearRestrictions stops any active restriction profile for the student.
// Clearing a student with nothing active succeeds.
func (c *Client) ClearRestrictions(ctx context.Context, studentID, authToken string) error {
	form := url.Values{}
	form.Set("student", studentID)
	form.Set("clearAfter", "1")
	return c.postForm(ctx, "/teacher/lessons/stop", form, authToken)
}

// LockIntoApp locks the student's device into a single app.
func (c *Client) LockIntoApp(ctx context.Context, studentID, bundleID, authToken string) error {
	form := url.Values{}
	form.Set("students", studentID)
	form.Set("apps", bundleID)
	form.Set("clearAfter", "1")
	return c.postForm(ctx, "/teacher/apply/applock", form, authToken)
}

func (c *Client) RestartDevice(ctx context.Context, udid string) error {
	return c.postForm(ctx, "/devices/"+url.PathEscape(udid)+"/restart", url.Values{}, "")
}

type appPayload struct {
	BundleID    string `json:"bundleId"`
	Name        string `json:"name"`
	Icon        string `json:"icon"`
	Vendor      string `json:"vendor"`
	Description string `json:"description"`
}

func (a appPayload) info() models.AppInfo {
	return models.NewAppInfo(a.BundleID, a.Name, a.Icon, a.Vendor, a.Description)
}

type appResponse struct {
	App appPayload `json:"app"`
}

type appListResponse struct {
	Apps []appPayload `json:"apps"`
}

// ListApps returns the app catalog installed for a school location.
func (c *Client) ListApps(ctx context.Context, locationID int) ([]models.AppInfo, error) {
	q := url.Values{}
	q.Set("location", strconv.Itoa(locationID))
	req, err := c.newRequest(ctx, http.MethodGet, "/apps?"+q.Encode(), nil, "")
	if err != nil {
		return nil, err
	}

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var parsed appListResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode app catalog for location %d: %w", locationID, err)
	}
	apps := make([]models.AppInfo, 0, len(parsed.Apps))
	for _, a := range parsed.Apps {
		if a.BundleID == "" {
			continue
		}
		apps = append(apps, a.info())
	}
	return apps, nil
}

// GetApp fetches display metadata for a bundle id.
func (c *Client) GetApp(ctx context.Context, bundleID string) (models.AppInfo, error) {
	q := url.Values{}
	q.Set("bundleId", bundleID)
	req, err := c.newRequest(ctx, http.MethodGet, "/apps?"+q.Encode(), nil, "")
	if err != nil {
		return models.AppInfo{}, err
	}

	body, err := c.do(req)
	if err != nil {
		return models.AppInfo{}, err
	}

	var parsed appResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return models.AppInfo{}, fmt.Errorf("failed to decode app %s: %w", bundleID, err)
	}
	if parsed.App.BundleID == "" {
		parsed.App.BundleID = bundleID
	}
	return parsed.App.info(), nil
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values, authToken string) error {
	req, err := c.newRequest(ctx, http.MethodPost, path, strings.NewReader(form.Encode()), authToken)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	_, err = c.do(req)
	return err
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader, authToken string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build mdm request: %w", err)
	}
	if c.networkID != "" {
		req.SetBasicAuth(c.networkID, c.apiKey)
	}
	req.Header.Set(protocolVersionHeader, protocolVersion)
	req.Header.Set("Accept", "application/json")
	if authToken != "" {
		req.Header.Set(teacherTokenHeader, authToken)
	}
	return req, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mdm request %s %s failed: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read mdm response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}
