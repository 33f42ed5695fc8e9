package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2/clientcredentials"
)

// RosterErrorKind classifies failures of the external roster service
type RosterErrorKind string

const (
	RosterNotFound    RosterErrorKind = "not_found"
	RosterAuthFailure RosterErrorKind = "auth_failure"
	RosterRateLimited RosterErrorKind = "rate_limited"
	RosterNetwork     RosterErrorKind = "network"
	RosterUnknown     RosterErrorKind = "unknown"
)

// RosterError wraps a roster service failure with its classification
type RosterError struct {
	Kind RosterErrorKind
	Op   string
	Err  error
}

func (e *RosterError) Error() string {
	return fmt.Sprintf("roster %s failed (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *RosterError) Unwrap() error {
	return e.Err
}

// ErrRosterOffline indicates the client is configured in mock/offline mode;
// the health probe treats this as "sheet unavailable" rather than a failure
var ErrRosterOffline = errors.New("roster client is in offline mode")

// RosterClient is the capability interface the sync engine consumes for
// reading and writing the external spreadsheet-backed roster
type RosterClient interface {
	// Ping performs a cheap handshake, distinct from a full read
	Ping(ctx context.Context) error

	// ReadAll returns every roster row, including the header row
	ReadAll(ctx context.Context) ([][]string, error)

	// Append adds a row at the end of the roster
	Append(ctx context.Context, row []string) error

	// Update replaces the row at the given zero-based index
	Update(ctx context.Context, rowIndex int, row []string) error
}

// RosterConfig holds the settings for the HTTP roster client
type RosterConfig struct {
	BaseURL      string
	SheetName    string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	Timeout      time.Duration
}

// SheetRosterClient talks to the spreadsheet roster service over JSON/HTTP
type SheetRosterClient struct {
	baseURL    string
	sheetName  string
	HTTPClient *http.Client
}

// NewSheetRosterClient creates a roster client. When a token URL is
// configured the client authenticates via OAuth2 client credentials.
func NewSheetRosterClient(config RosterConfig) *SheetRosterClient {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	httpClient := &http.Client{Timeout: timeout}
	if config.TokenURL != "" {
		cc := clientcredentials.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			TokenURL:     config.TokenURL,
			Scopes:       config.Scopes,
		}
		httpClient = cc.Client(context.Background())
		httpClient.Timeout = timeout
	}

	return &SheetRosterClient{
		baseURL:    config.BaseURL,
		sheetName:  config.SheetName,
		HTTPClient: httpClient,
	}
}

// rosterValues is the wire representation of sheet rows
type rosterValues struct {
	Values [][]string `json:"values"`
}

// Ping fetches the sheet metadata as a lightweight handshake
func (c *SheetRosterClient) Ping(ctx context.Context) error {
	url := fmt.Sprintf("%s/v1/sheets/%s", c.baseURL, c.sheetName)
	_, err := c.do(ctx, http.MethodGet, url, nil, "ping")
	return err
}

// ReadAll fetches every row of the roster sheet
func (c *SheetRosterClient) ReadAll(ctx context.Context) ([][]string, error) {
	url := fmt.Sprintf("%s/v1/sheets/%s/values", c.baseURL, c.sheetName)
	body, err := c.do(ctx, http.MethodGet, url, nil, "read")
	if err != nil {
		return nil, err
	}

	var values rosterValues
	if err := json.Unmarshal(body, &values); err != nil {
		return nil, &RosterError{Kind: RosterUnknown, Op: "read", Err: fmt.Errorf("failed to parse response: %w", err)}
	}
	return values.Values, nil
}

// Append adds a row at the end of the roster sheet
func (c *SheetRosterClient) Append(ctx context.Context, row []string) error {
	url := fmt.Sprintf("%s/v1/sheets/%s/values:append", c.baseURL, c.sheetName)
	payload := rosterValues{Values: [][]string{row}}
	_, err := c.do(ctx, http.MethodPost, url, payload, "append")
	return err
}

// Update replaces the row at the given zero-based index
func (c *SheetRosterClient) Update(ctx context.Context, rowIndex int, row []string) error {
	url := fmt.Sprintf("%s/v1/sheets/%s/rows/%d", c.baseURL, c.sheetName, rowIndex)
	payload := map[string]interface{}{"values": row}
	_, err := c.do(ctx, http.MethodPut, url, payload, "update")
	return err
}

// do sends one request and maps transport and status failures to RosterError
func (c *SheetRosterClient) do(ctx context.Context, method, url string, payload interface{}, op string) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, &RosterError{Kind: RosterUnknown, Op: op, Err: fmt.Errorf("failed to marshal request: %w", err)}
		}
		reqBody = bytes.NewBuffer(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, &RosterError{Kind: RosterUnknown, Op: op, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, &RosterError{Kind: RosterNetwork, Op: op, Err: err}
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			slog.Error("failed to close response body", "error", err)
		}
	}(resp.Body)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RosterError{Kind: RosterNetwork, Op: op, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		slog.Error("Roster service returned error", "op", op, "status", resp.StatusCode, "body", string(respBody))
		return nil, &RosterError{
			Kind: classifyStatus(resp.StatusCode),
			Op:   op,
			Err:  fmt.Errorf("roster service returned status %d: %s", resp.StatusCode, string(respBody)),
		}
	}

	return respBody, nil
}

// classifyStatus maps an HTTP status code to a roster error kind
func classifyStatus(code int) RosterErrorKind {
	switch {
	case code == http.StatusNotFound:
		return RosterNotFound
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return RosterAuthFailure
	case code == http.StatusTooManyRequests:
		return RosterRateLimited
	case code >= 500:
		return RosterNetwork
	default:
		return RosterUnknown
	}
}

// OfflineRosterClient is used when ROSTER_MODE=mock is configured; every
// operation reports the offline sentinel so runs degrade to database-only
type OfflineRosterClient struct{}

// NewOfflineRosterClient creates an offline roster client
func NewOfflineRosterClient() *OfflineRosterClient {
	return &OfflineRosterClient{}
}

func (c *OfflineRosterClient) Ping(ctx context.Context) error {
	return ErrRosterOffline
}

func (c *OfflineRosterClient) ReadAll(ctx context.Context) ([][]string, error) {
	return nil, ErrRosterOffline
}

func (c *OfflineRosterClient) Append(ctx context.Context, row []string) error {
	return ErrRosterOffline
}

func (c *OfflineRosterClient) Update(ctx context.Context, rowIndex int, row []string) error {
	return ErrRosterOffline
}
