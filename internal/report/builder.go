// Package report renders completed scan sessions into spreadsheet reports
// and stores them for download.
package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/isotools/drawscan/internal/scan"
)

const (
	sheetName       = "Scan Results"
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// ObjectStore persists rendered reports and issues time-limited download
// links for them.
type ObjectStore interface {
	Put(ctx context.Context, path, contentType string, data []byte) error
	SignedURL(path string, ttl time.Duration) (string, error)
}

// Builder implements scan.ReportBuilder using an Excel workbook per session.
type Builder struct {
	store  ObjectStore
	prefix string
	urlTTL time.Duration
	clock  scan.Clock
	logger *zap.Logger
}

// NewBuilder creates a report Builder.
func NewBuilder(store ObjectStore, prefix string, urlTTL time.Duration, clock scan.Clock, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		store:  store,
		prefix: strings.Trim(prefix, "/"),
		urlTTL: urlTTL,
		clock:  clock,
		logger: logger,
	}
}

// BuildReport renders the session's results into a workbook, uploads it, and
// returns a signed download handle. A session with no matches still produces
// a report holding only the header row.
func (b *Builder) BuildReport(ctx context.Context, sessionID string, results []scan.ItemResult) (scan.ReportHandle, error) {
	data, err := renderWorkbook(results)
	if err != nil {
		return scan.ReportHandle{}, fmt.Errorf("render report: %w", err)
	}

	path := b.objectPath(sessionID)
	if err := b.store.Put(ctx, path, xlsxContentType, data); err != nil {
		return scan.ReportHandle{}, fmt.Errorf("store report: %w", err)
	}

	url, err := b.store.SignedURL(path, b.urlTTL)
	if err != nil {
		return scan.ReportHandle{}, fmt.Errorf("sign report url: %w", err)
	}

	b.logger.Info("report stored",
		zap.String("session_id", sessionID),
		zap.String("path", path),
		zap.Int("result_rows", len(results)),
	)
	return scan.ReportHandle{
		DownloadURL: url,
		ExpiresAt:   b.clock.Now().Add(b.urlTTL),
	}, nil
}

func (b *Builder) objectPath(sessionID string) string {
	name := fmt.Sprintf("scan_%s_%s.xlsx", sessionID, b.clock.Now().UTC().Format("20060102-150405"))
	if b.prefix == "" {
		return name
	}
	return b.prefix + "/" + name
}

func renderWorkbook(results []scan.ItemResult) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck // in-memory workbook

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, fmt.Errorf("name sheet: %w", err)
	}

	headers := []string{"File Name", "Hole Codes Found", "Status", "PDF Link"}
	for col, header := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, fmt.Errorf("header cell: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			return nil, fmt.Errorf("write header: %w", err)
		}
	}

	for i, result := range results {
		row := i + 2
		values := []any{
			result.DocName,
			strings.Join(result.MatchedCodes, ", "),
			result.Status,
			result.DocLink,
		}
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return nil, fmt.Errorf("result cell: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return nil, fmt.Errorf("write result row %d: %w", row, err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}
