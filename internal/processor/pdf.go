// Package processor scans individual documents for target hole codes.
package processor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"go.uber.org/zap"

	"github.com/isotools/drawscan/internal/scan"
)

// PDFProcessor implements scan.Processor by extracting the text content of a
// PDF and matching target codes against it.
type PDFProcessor struct {
	source scan.DocumentSource
	conf   *model.Configuration
	logger *zap.Logger
}

// NewPDFProcessor creates a PDFProcessor that fetches documents from source.
func NewPDFProcessor(source scan.DocumentSource, logger *zap.Logger) *PDFProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &PDFProcessor{
		source: source,
		conf:   conf,
		logger: logger,
	}
}

// ProcessItem fetches the item's document, extracts its text, and records
// which of the target codes appear in it. A document with no matches is a
// successful result with StatusNoMatch.
func (p *PDFProcessor) ProcessItem(ctx context.Context, item scan.WorkItem) (scan.ItemResult, error) {
	data, err := p.source.FetchDocument(ctx, item.DocRef)
	if err != nil {
		return scan.ItemResult{}, fmt.Errorf("fetch document: %w", err)
	}

	text, err := p.extractText(data, item.DocName)
	if err != nil {
		return scan.ItemResult{}, fmt.Errorf("extract text: %w", err)
	}

	matches := MatchCodes(text, item.TargetCodes)
	result := scan.ItemResult{
		ItemID:       item.ItemID,
		SessionID:    item.SessionID,
		MatchedCodes: matches,
		Status:       StatusLabel(len(matches)),
		DocName:      item.DocName,
		DocLink:      item.DocLink,
	}
	p.logger.Debug("document scanned",
		zap.String("item_id", item.ItemID),
		zap.String("doc_name", item.DocName),
		zap.Int("matches", len(matches)),
	)
	return result, nil
}

// extractText dumps the PDF's page content into a scratch directory and
// concatenates whatever the extractor produced.
func (p *PDFProcessor) extractText(data []byte, docName string) (string, error) {
	dir, err := os.MkdirTemp("", "drawscan-extract-*")
	if err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir) //nolint:errcheck // scratch dir

	if err := api.ExtractContent(bytes.NewReader(data), dir, docName, nil, p.conf); err != nil {
		return "", fmt.Errorf("extract content: %w", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read scratch dir: %w", err)
	}

	var sb strings.Builder
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return "", fmt.Errorf("read extracted page %q: %w", entry.Name(), err)
		}
		sb.Write(content)
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

// MatchCodes returns the target codes present in text, case-insensitively,
// preserving the order of targets and dropping duplicates.
func MatchCodes(text string, targets []string) []string {
	upper := strings.ToUpper(text)
	seen := make(map[string]bool, len(targets))
	var matches []string
	for _, code := range targets {
		trimmed := strings.TrimSpace(code)
		if trimmed == "" {
			continue
		}
		key := strings.ToUpper(trimmed)
		if seen[key] {
			continue
		}
		if strings.Contains(upper, key) {
			seen[key] = true
			matches = append(matches, trimmed)
		}
	}
	return matches
}

// StatusLabel renders the per-item status text recorded with each result.
func StatusLabel(matchCount int) string {
	switch matchCount {
	case 0:
		return scan.StatusNoMatch
	case 1:
		return "1 Code"
	default:
		return fmt.Sprintf("%d Codes", matchCount)
	}
}
