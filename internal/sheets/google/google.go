package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	goauth "golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"fincontrol/internal/core"
	ports "fincontrol/internal/sheets"
)

const lastColumn = "H"

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string

	mu          sync.Mutex
	sheetID     int64
	sheetIDSet  bool
	headerReady bool
}

var _ ports.TransactionMirror = (*Client)(nil)

// NewFromEnv creates a Sheets client using environment variables.
// Required: GOOGLE_SPREADSHEET_ID.
// Optional: GOOGLE_SHEET_NAME (default "Transações").
// Credentials: a service account (GOOGLE_SERVICE_ACCOUNT_JSON,
// GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_APPLICATION_CREDENTIALS) or an OAuth
// client plus token (GOOGLE_OAUTH_CLIENT_JSON/FILE and GOOGLE_OAUTH_TOKEN_JSON/FILE).
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	return New(ctx, spreadsheetID, os.Getenv("GOOGLE_SHEET_NAME"))
}

func New(ctx context.Context, spreadsheetID, sheetName string) (*Client, error) {
	sheetName = strings.TrimSpace(sheetName)
	if sheetName == "" {
		sheetName = "Transações"
	}
	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, sheetName: sheetName}, nil
}

func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	opts := []goption.ClientOption{goption.WithScopes(gsheet.SpreadsheetsScope)}

	serviceAccount, err := readSecret("GOOGLE_SERVICE_ACCOUNT_JSON", "GOOGLE_SERVICE_ACCOUNT_FILE")
	if err != nil {
		return nil, err
	}
	if serviceAccount == nil {
		serviceAccount, err = readSecret("", "GOOGLE_APPLICATION_CREDENTIALS")
		if err != nil {
			return nil, err
		}
	}

	switch {
	case serviceAccount != nil:
		slog.InfoContext(ctx, "Using service account credentials", "credentials_size", len(serviceAccount))
		opts = append(opts, goption.WithCredentialsJSON(serviceAccount))
	default:
		ts, err := oauthTokenSource(ctx)
		if err != nil {
			return nil, err
		}
		slog.InfoContext(ctx, "Using OAuth user credentials")
		opts = append(opts, goption.WithTokenSource(ts))
	}

	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return svc, nil
}

// oauthTokenSource builds a refreshing token source from an installed-app
// client and a token saved by cmd/fincontrol-oauth.
func oauthTokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	clientJSON, err := readSecret("GOOGLE_OAUTH_CLIENT_JSON", "GOOGLE_OAUTH_CLIENT_FILE")
	if err != nil {
		return nil, err
	}
	tokenJSON, err := readSecret("GOOGLE_OAUTH_TOKEN_JSON", "GOOGLE_OAUTH_TOKEN_FILE")
	if err != nil {
		return nil, err
	}
	if clientJSON == nil || tokenJSON == nil {
		return nil, errors.New("missing credentials: set a service account or GOOGLE_OAUTH_CLIENT_* and GOOGLE_OAUTH_TOKEN_*")
	}

	cfg, err := goauth.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(tokenJSON, &tok); err != nil {
		return nil, fmt.Errorf("oauth token: %w", err)
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, newHTTPClientWithPooling())
	return cfg.TokenSource(ctx, &tok), nil
}

// readSecret returns the inline value of jsonKey, else the contents of the
// file named by fileKey, else nil.
func readSecret(jsonKey, fileKey string) ([]byte, error) {
	if jsonKey != "" {
		if v := strings.TrimSpace(os.Getenv(jsonKey)); v != "" {
			return []byte(v), nil
		}
	}
	if path := strings.TrimSpace(os.Getenv(fileKey)); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", fileKey, err)
		}
		return b, nil
	}
	return nil, nil
}

// newHTTPClientWithPooling is used for OAuth token refreshes.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: 60 * time.Second}
}

// Upsert removes the transaction's existing rows and appends fresh ones.
func (c *Client) Upsert(ctx context.Context, t core.Transaction) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	if err := c.ensureHeader(ctx); err != nil {
		return err
	}
	if err := c.deleteRows(ctx, t.ID); err != nil {
		return err
	}
	rows := ports.Rows(t)
	if len(rows) == 0 {
		return nil
	}
	rng := fmt.Sprintf("%s!A:%s", c.sheetName, lastColumn)
	_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, &gsheet.ValueRange{Values: rows}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append rows for transaction %d: %w", t.ID, err)
	}
	slog.InfoContext(ctx, "Transaction mirrored to sheet", "id", t.ID, "rows", len(rows), "sheet", c.sheetName)
	return nil
}

func (c *Client) Delete(ctx context.Context, id int64) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	return c.deleteRows(ctx, id)
}

func (c *Client) deleteRows(ctx context.Context, id int64) error {
	rng := fmt.Sprintf("%s!A:A", c.sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read %s: %w", rng, err)
	}
	rows := matchingRows(resp.Values, id)
	if len(rows) == 0 {
		return nil
	}
	sheetID, err := c.resolveSheetID(ctx)
	if err != nil {
		return err
	}
	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: deleteRequests(sheetID, rows)}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete rows of transaction %d: %w", id, err)
	}
	slog.InfoContext(ctx, "Removed transaction rows from sheet", "id", id, "rows", len(rows))
	return nil
}

func (c *Client) ensureHeader(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.headerReady {
		return nil
	}
	rng := fmt.Sprintf("%s!A1:%s1", c.sheetName, lastColumn)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if len(resp.Values) == 0 {
		_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: [][]interface{}{ports.Header}}).
			ValueInputOption("RAW").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	c.headerReady = true
	return nil
}

func (c *Client) resolveSheetID(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sheetIDSet {
		return c.sheetID, nil
	}
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields(googleapi.Field("sheets.properties")).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("read spreadsheet: %w", err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == c.sheetName {
			c.sheetID = sh.Properties.SheetId
			c.sheetIDSet = true
			return c.sheetID, nil
		}
	}
	return 0, fmt.Errorf("sheet %q not found", c.sheetName)
}
