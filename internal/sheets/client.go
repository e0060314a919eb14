package sheets

import (
	"context"
	"fmt"
	"os"
	"strings"

	"google.golang.org/api/option"
	sheetsv4 "google.golang.org/api/sheets/v4"
)

type Client struct {
	srv           *sheetsv4.Service
	spreadsheetID string
}

// New authenticates with a service account. credentials is either the JSON key
// itself or a path to the key file.
func New(ctx context.Context, credentials, spreadsheetID string) (*Client, error) {
	var cred option.ClientOption
	if strings.HasPrefix(strings.TrimSpace(credentials), "{") {
		cred = option.WithCredentialsJSON([]byte(credentials))
	} else {
		if _, err := os.Stat(credentials); err != nil {
			return nil, fmt.Errorf("service account json: %w", err)
		}
		cred = option.WithCredentialsFile(credentials)
	}
	return NewWithOptions(ctx, spreadsheetID, cred, option.WithScopes(sheetsv4.SpreadsheetsScope))
}

func NewWithOptions(ctx context.Context, spreadsheetID string, opts ...option.ClientOption) (*Client, error) {
	srv, err := sheetsv4.NewService(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{srv: srv, spreadsheetID: spreadsheetID}, nil
}

func (c *Client) SpreadsheetID() string { return c.spreadsheetID }
