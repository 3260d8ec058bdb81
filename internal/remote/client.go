package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config holds the control plane endpoint and credentials.
type Config struct {
	BaseURL     string
	APIKey      string
	DeviceToken string
	PCID        string
	UserID      string

	// ConnectTimeout bounds dialing, ReadTimeout bounds whole requests.
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// Client talks to the control plane's row store and pairing endpoints.
// All methods are safe for concurrent use.
type Client struct {
	cfg    Config
	http   *http.Client
	logger zerolog.Logger
}

// NewClient builds a Client. Zero timeouts get the defaults of 30 seconds.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: cfg.ConnectTimeout,
		}).DialContext,
		TLSHandshakeTimeout: cfg.ConnectTimeout,
		MaxIdleConns:        4,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Client{
		cfg: cfg,
		http: &http.Client{
			Transport: transport,
			Timeout:   cfg.ReadTimeout,
		},
		logger: logger.With().Str("component", "remote").Logger(),
	}
}

// Paired reports whether the client holds device credentials.
func (c *Client) Paired() bool {
	return c.cfg.DeviceToken != "" && c.cfg.PCID != ""
}

// PCID returns the device identifier used in row filters.
func (c *Client) PCID() string { return c.cfg.PCID }

// UserID returns the guardian account identifier stamped on outbound rows.
func (c *Client) UserID() string { return c.cfg.UserID }

// SetCredentials installs credentials obtained from pairing.
func (c *Client) SetCredentials(pcID, userID, deviceToken string) {
	c.cfg.PCID = pcID
	c.cfg.UserID = userID
	c.cfg.DeviceToken = deviceToken
}

func (c *Client) tableURL(table string, filters url.Values) string {
	u := c.cfg.BaseURL + "/rest/v1/" + table
	if len(filters) > 0 {
		u += "?" + filters.Encode()
	}
	return u
}

// do runs one request against the row store, encoding body as JSON when
// non-nil and decoding the response into out when non-nil.
func (c *Client) do(ctx context.Context, method, rawURL string, prefer string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("apikey", c.cfg.APIKey)
	if c.cfg.DeviceToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.DeviceToken)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Debug().
			Int("status", resp.StatusCode).
			Str("path", req.URL.Path).
			Msg("Request rejected")
		return fmt.Errorf("%s %s: status %d: %s", method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

// UpdatePC overwrites the device's row in the pcs table with the current
// snapshot.
func (c *Client) UpdatePC(ctx context.Context, row PCRow) error {
	filters := url.Values{"id": {"eq." + c.cfg.PCID}}
	return c.do(ctx, http.MethodPatch, c.tableURL("pcs", filters), "", row, nil)
}

// InsertSessions appends closed sessions to the usage_sessions table.
func (c *Client) InsertSessions(ctx context.Context, rows []SessionRow) error {
	if len(rows) == 0 {
		return nil
	}
	return c.do(ctx, http.MethodPost, c.tableURL("usage_sessions", nil), "", rows, nil)
}

// UpsertDailyUsage merges the day aggregate on (pc_id, date).
func (c *Client) UpsertDailyUsage(ctx context.Context, row DailyUsageRow) error {
	filters := url.Values{"on_conflict": {"pc_id,date"}}
	return c.do(ctx, http.MethodPost, c.tableURL("daily_usage", filters),
		"resolution=merge-duplicates", []DailyUsageRow{row}, nil)
}

// UpsertEvents pushes journal events, merging on (pc_id, timestamp, type) so
// a retried batch does not duplicate rows.
func (c *Client) UpsertEvents(ctx context.Context, rows []EventRow) error {
	if len(rows) == 0 {
		return nil
	}
	filters := url.Values{"on_conflict": {"pc_id,timestamp,type"}}
	return c.do(ctx, http.MethodPost, c.tableURL("events", filters),
		"resolution=merge-duplicates", rows, nil)
}

// UpsertAppUsage merges per-app aggregates on (pc_id, date, name).
func (c *Client) UpsertAppUsage(ctx context.Context, rows []AppUsageRow) error {
	if len(rows) == 0 {
		return nil
	}
	filters := url.Values{"on_conflict": {"pc_id,date,name"}}
	return c.do(ctx, http.MethodPost, c.tableURL("app_usage", filters),
		"resolution=merge-duplicates", rows, nil)
}

// UpsertSiteVisits merges per-domain aggregates on (pc_id, date, domain).
func (c *Client) UpsertSiteVisits(ctx context.Context, rows []SiteVisitRow) error {
	if len(rows) == 0 {
		return nil
	}
	filters := url.Values{"on_conflict": {"pc_id,date,domain"}}
	return c.do(ctx, http.MethodPost, c.tableURL("site_visits", filters),
		"resolution=merge-duplicates", rows, nil)
}

// PendingCommands lists queued commands for this device, oldest first.
func (c *Client) PendingCommands(ctx context.Context) ([]CommandRow, error) {
	filters := url.Values{
		"pc_id":  {"eq." + c.cfg.PCID},
		"status": {"eq." + CommandStatusPending},
		"order":  {"created_at.asc"},
	}
	var rows []CommandRow
	if err := c.do(ctx, http.MethodGet, c.tableURL("commands", filters), "", nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// SetCommandStatus marks a command executed or failed.
func (c *Client) SetCommandStatus(ctx context.Context, id, status string) error {
	filters := url.Values{"id": {"eq." + id}}
	body := map[string]any{
		"status":      status,
		"executed_at": time.Now().UTC().Format(time.RFC3339),
	}
	return c.do(ctx, http.MethodPatch, c.tableURL("commands", filters), "", body, nil)
}

// FetchSettings reads the device's pc_settings row. Returns nil when the
// guardian has not created one yet.
func (c *Client) FetchSettings(ctx context.Context) (*SettingsRow, error) {
	filters := url.Values{"pc_id": {"eq." + c.cfg.PCID}}
	var rows []SettingsRow
	if err := c.do(ctx, http.MethodGet, c.tableURL("pc_settings", filters), "", nil, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// BlockedApps lists app names the guardian wants blocked on this device.
func (c *Client) BlockedApps(ctx context.Context) ([]string, error) {
	filters := url.Values{"pc_id": {"eq." + c.cfg.PCID}}
	var rows []BlockedAppRow
	if err := c.do(ctx, http.MethodGet, c.tableURL("blocked_apps", filters), "", nil, &rows); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		names = append(names, r.Name)
	}
	return names, nil
}

// BlockedSites lists domains the guardian wants blocked on this device.
func (c *Client) BlockedSites(ctx context.Context) ([]string, error) {
	filters := url.Values{"pc_id": {"eq." + c.cfg.PCID}}
	var rows []BlockedSiteRow
	if err := c.do(ctx, http.MethodGet, c.tableURL("blocked_sites", filters), "", nil, &rows); err != nil {
		return nil, err
	}
	domains := make([]string, 0, len(rows))
	for _, r := range rows {
		domains = append(domains, r.Domain)
	}
	return domains, nil
}

// RequestPairingCode asks the control plane for a short-lived pairing code
// the guardian types into their dashboard.
func (c *Client) RequestPairingCode(ctx context.Context, hostname string) (string, error) {
	body := map[string]string{"hostname": hostname}
	var resp struct {
		Code string `json:"code"`
	}
	err := c.do(ctx, http.MethodPost, c.cfg.BaseURL+"/api/pairing/request", "", body, &resp)
	if err != nil {
		return "", err
	}
	if resp.Code == "" {
		return "", fmt.Errorf("pairing request returned no code")
	}
	return resp.Code, nil
}

// CheckPairing polls the pairing status of a previously requested code.
func (c *Client) CheckPairing(ctx context.Context, code string) (PairingCheck, error) {
	u := c.cfg.BaseURL + "/api/pairing/check?code=" + url.QueryEscape(code)
	var resp PairingCheck
	if err := c.do(ctx, http.MethodGet, u, "", nil, &resp); err != nil {
		return PairingCheck{}, err
	}
	return resp, nil
}
