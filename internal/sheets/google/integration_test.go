//go:build integration

package google

import (
	"context"
	"os"
	"testing"
	"time"

	"ricorrenti/internal/core"

	"github.com/shopspring/decimal"
)

// Integration tests require real Google Sheets credentials.
// Run with: go test -tags=integration ./internal/sheets/google

func TestIntegration_ExportTimeline(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	cfg := Config{
		SpreadsheetID:   os.Getenv("GOOGLE_SPREADSHEET_ID"),
		SheetName:       os.Getenv("GOOGLE_TIMELINE_SHEET"),
		CredentialsJSON: os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"),
		CredentialsFile: os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"),
	}
	if cfg.SpreadsheetID == "" {
		t.Skip("GOOGLE_SPREADSHEET_ID not set, skipping integration test")
	}
	if cfg.CredentialsJSON == "" && cfg.CredentialsFile == "" && os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "" {
		t.Skip("service account credentials not configured, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	points := []core.TimelinePoint{
		{Month: "2024-01", Label: "Jan 24", Total: decimal.RequireFromString("12.34")},
		{Month: "2024-02", Label: "Feb 24", Total: decimal.RequireFromString("56.78")},
	}
	if err := client.ExportTimeline(ctx, points, 2); err != nil {
		t.Fatalf("ExportTimeline() error = %v", err)
	}

	got, err := client.svc.Spreadsheets.Values.Get(client.spreadsheetID, client.sheetName+"!A1:C3").Context(ctx).Do()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(got.Values) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(got.Values))
	}
}
