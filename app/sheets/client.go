package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

var headerColumns = []string{"Date", "Food Name", "Recipe", "Photo URL"}

// Client wraps the Sheets v4 API for a single spreadsheet.
type Client struct {
	svc           *gsheets.Service
	spreadsheetID string
}

// NewClient authenticates with a service account credentials file and
// returns a client bound to the given spreadsheet.
func NewClient(ctx context.Context, credentialsFile, spreadsheetID string) (*Client, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read service account file: %w", err)
	}

	jwtConfig, err := google.JWTConfigFromJSON(data, gsheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse service account credentials: %w", err)
	}

	svc, err := gsheets.NewService(ctx, option.WithHTTPClient(jwtConfig.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("failed to create Sheets service: %w", err)
	}

	return &Client{svc: svc, spreadsheetID: spreadsheetID}, nil
}

// EnsureHeaders writes the header row if the first row is missing or
// differs from the expected columns.
func (c *Client) EnsureHeaders(ctx context.Context) error {
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, "A1:D1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to read header row: %w", err)
	}

	if headersMatch(resp.Values) {
		return nil
	}

	slog.Info("Setting up sheet headers", "spreadsheet", c.spreadsheetID)

	row := make([]interface{}, len(headerColumns))
	for i, col := range headerColumns {
		row[i] = col
	}

	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, "A1:D1", &gsheets.ValueRange{
		Values: [][]interface{}{row},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to write header row: %w", err)
	}

	return nil
}

// AppendEntry appends a single food record row.
func (c *Client) AppendEntry(ctx context.Context, entry Entry) error {
	return c.AppendEntries(ctx, []Entry{entry})
}

// AppendEntries appends multiple rows in one request.
func (c *Client) AppendEntries(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	values := make([][]interface{}, 0, len(entries))
	for _, entry := range entries {
		values = append(values, entry.row())
	}

	_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, "A1", &gsheets.ValueRange{
		Values: values,
	}).ValueInputOption("USER_ENTERED").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to append rows: %w", err)
	}

	return nil
}

// GetRecentEntries returns the last limit data rows, newest last. The
// header row is skipped.
func (c *Client) GetRecentEntries(ctx context.Context, limit int) ([]Entry, error) {
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, "A:D").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	if len(resp.Values) <= 1 {
		return nil, nil
	}

	rows := resp.Values[1:]
	if limit > 0 && len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}

	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, Entry{
			Date:     cellString(row, 0),
			FoodName: cellString(row, 1),
			Recipe:   cellString(row, 2),
			PhotoURL: cellString(row, 3),
		})
	}

	return entries, nil
}

func headersMatch(values [][]interface{}) bool {
	if len(values) == 0 || len(values[0]) != len(headerColumns) {
		return false
	}
	for i, col := range headerColumns {
		if cellString(values[0], i) != col {
			return false
		}
	}
	return true
}

func cellString(row []interface{}, i int) string {
	if i >= len(row) {
		return ""
	}
	s, _ := row[i].(string)
	return s
}
