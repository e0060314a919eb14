package sheets

import (
	"context"
	"fmt"
	"strings"

	sheetsv4 "google.golang.org/api/sheets/v4"
)

// a1 quotes a tab title for use in an A1 range.
func a1(sheet, cells string) string {
	return "'" + strings.ReplaceAll(sheet, "'", "''") + "'!" + cells
}

func (c *Client) sheetTitles(ctx context.Context) (map[string]bool, error) {
	resp, err := c.srv.Spreadsheets.Get(c.spreadsheetID).
		Fields("sheets.properties.title").
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	titles := map[string]bool{}
	for _, s := range resp.Sheets {
		if s.Properties != nil {
			titles[s.Properties.Title] = true
		}
	}
	return titles, nil
}

func (c *Client) ensureSheet(ctx context.Context, title string) error {
	titles, err := c.sheetTitles(ctx)
	if err != nil {
		return fmt.Errorf("list sheets: %w", err)
	}
	if titles[title] {
		return nil
	}
	req := &sheetsv4.BatchUpdateSpreadsheetRequest{
		Requests: []*sheetsv4.Request{{
			AddSheet: &sheetsv4.AddSheetRequest{
				Properties: &sheetsv4.SheetProperties{Title: title},
			},
		}},
	}
	if _, err := c.srv.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %q: %w", title, err)
	}
	return nil
}

func (c *Client) clear(ctx context.Context, sheet string) error {
	_, err := c.srv.Spreadsheets.Values.Clear(c.spreadsheetID, a1(sheet, "A:Z"), &sheetsv4.ClearValuesRequest{}).
		Context(ctx).
		Do()
	return err
}

func (c *Client) writeRows(ctx context.Context, sheet string, rows [][]string) error {
	values := make([][]interface{}, 0, len(rows))
	for _, row := range rows {
		cells := make([]interface{}, len(row))
		for i, v := range row {
			cells[i] = v
		}
		values = append(values, cells)
	}
	vr := &sheetsv4.ValueRange{Values: values}
	_, err := c.srv.Spreadsheets.Values.Update(c.spreadsheetID, a1(sheet, "A1"), vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}

// ExportRoster replaces the contents of the tab named sheetTitle with table,
// creating the tab on first use.
func (c *Client) ExportRoster(ctx context.Context, sheetTitle string, table [][]string) error {
	if err := c.ensureSheet(ctx, sheetTitle); err != nil {
		return err
	}
	if err := c.clear(ctx, sheetTitle); err != nil {
		return fmt.Errorf("clear %q: %w", sheetTitle, err)
	}
	if err := c.writeRows(ctx, sheetTitle, table); err != nil {
		return fmt.Errorf("write %q: %w", sheetTitle, err)
	}
	return nil
}
