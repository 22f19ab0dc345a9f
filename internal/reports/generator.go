// Package reports renders scheduled reports into files on disk.
package reports

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/aegisshield/chain-monitor/internal/clock"
	"github.com/aegisshield/chain-monitor/internal/metrics"
	"github.com/aegisshield/chain-monitor/internal/models"
	"github.com/aegisshield/chain-monitor/internal/stats"
)

// progressSteps is the generation progress ladder broadcast to clients.
var progressSteps = []int{20, 40, 60, 80, 100}

// Store is the subset of report persistence the generator needs.
type Store interface {
	Update(ctx context.Context, id uuid.UUID, fields map[string]interface{}) (*models.Report, error)
}

// SummarySource provides the aggregate data rendered into a report.
type SummarySource interface {
	Summary(ctx context.Context, since, until time.Time) (*stats.Summary, error)
}

// Broadcaster pushes report progress events to connected clients.
type Broadcaster interface {
	Broadcast(eventType string, data interface{})
}

// Generator renders reports in pdf, xlsx, csv, or json format.
type Generator struct {
	store       Store
	source      SummarySource
	broadcaster Broadcaster
	outputDir   string
	stepDelay   time.Duration
	clk         clock.Clock
	collector   *metrics.Collector
	logger      *zap.Logger
}

// NewGenerator creates a report generator
func NewGenerator(store Store, source SummarySource, broadcaster Broadcaster, outputDir string, stepDelay time.Duration, clk clock.Clock, collector *metrics.Collector, logger *zap.Logger) *Generator {
	return &Generator{
		store:       store,
		source:      source,
		broadcaster: broadcaster,
		outputDir:   outputDir,
		stepDelay:   stepDelay,
		clk:         clk,
		collector:   collector,
		logger:      logger.Named("reports"),
	}
}

// Generate renders a report, walking it through the generating progress
// ladder and ending in completed or failed state.
func (g *Generator) Generate(ctx context.Context, report *models.Report) error {
	id := report.ID
	g.logger.Info("generating report",
		zap.String("report_id", id.String()),
		zap.String("type", report.Type),
		zap.String("format", report.Format))

	if _, err := g.store.Update(ctx, id, map[string]interface{}{
		"status":   models.ReportStatusGenerating,
		"progress": 0,
	}); err != nil {
		return fmt.Errorf("failed to start report %s: %w", id, err)
	}

	until := g.clk.Now().UTC()
	since := until.Add(-24 * time.Hour)
	summary, err := g.source.Summary(ctx, since, until)
	if err != nil {
		return g.fail(ctx, report, fmt.Errorf("failed to build report summary: %w", err))
	}

	for _, step := range progressSteps[:len(progressSteps)-1] {
		if err := g.wait(ctx); err != nil {
			return err
		}
		updated, err := g.store.Update(ctx, id, map[string]interface{}{"progress": step})
		if err != nil {
			return g.fail(ctx, report, err)
		}
		g.broadcaster.Broadcast("report_update", updated)
	}

	filePath, err := g.render(report, summary)
	if err != nil {
		return g.fail(ctx, report, err)
	}

	now := g.clk.Now().UTC()
	updated, err := g.store.Update(ctx, id, map[string]interface{}{
		"status":       models.ReportStatusCompleted,
		"progress":     100,
		"file_path":    filePath,
		"completed_at": &now,
	})
	if err != nil {
		return g.fail(ctx, report, err)
	}
	g.broadcaster.Broadcast("report_update", updated)
	if g.collector != nil {
		g.collector.RecordReport(report.Format, "completed")
	}

	g.logger.Info("report completed", zap.String("report_id", id.String()), zap.String("file", filePath))
	return nil
}

func (g *Generator) fail(ctx context.Context, report *models.Report, cause error) error {
	id := report.ID
	g.logger.Error("report generation failed", zap.String("report_id", id.String()), zap.Error(cause))

	updated, err := g.store.Update(ctx, id, map[string]interface{}{
		"status": models.ReportStatusFailed,
	})
	if err != nil {
		g.logger.Error("failed to mark report failed", zap.String("report_id", id.String()), zap.Error(err))
	} else {
		g.broadcaster.Broadcast("report_update", updated)
	}
	if g.collector != nil {
		g.collector.RecordReport(report.Format, "failed")
	}
	return fmt.Errorf("report %s: %w", id, cause)
}

func (g *Generator) wait(ctx context.Context) error {
	if g.stepDelay <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-g.clk.After(g.stepDelay):
		return nil
	}
}

// render writes the report file and returns its path.
func (g *Generator) render(report *models.Report, summary *stats.Summary) (string, error) {
	if err := os.MkdirAll(g.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	name := fmt.Sprintf("%s_%s.%s", report.Type, report.ID.String(), report.Format)
	path := filepath.Join(g.outputDir, name)

	var err error
	switch report.Format {
	case "pdf":
		err = renderPDF(path, report, summary)
	case "xlsx":
		err = renderXLSX(path, report, summary)
	case "csv":
		err = renderCSV(path, summary)
	case "json":
		err = renderJSON(path, report, summary)
	default:
		err = fmt.Errorf("unsupported report format: %s", report.Format)
	}
	if err != nil {
		return "", err
	}
	return path, nil
}

// summaryRows flattens the summary into label/value pairs with stable
// ordering across formats.
func summaryRows(summary *stats.Summary) [][2]string {
	rows := [][2]string{
		{"Window Start", summary.Since.Format(time.RFC3339)},
		{"Window End", summary.Until.Format(time.RFC3339)},
		{"Transactions In Window", strconv.FormatInt(summary.TotalTransactions, 10)},
		{"Transactions Analyzed", strconv.FormatInt(summary.AnalyzedTransactions, 10)},
		{"Risk Score Mean", fmt.Sprintf("%.2f", summary.RiskDistribution.Mean)},
		{"Risk Score P90", fmt.Sprintf("%.2f", summary.RiskDistribution.P90)},
	}
	for _, key := range sortedKeys(summary.AlertsBySeverity) {
		rows = append(rows, [2]string{"Alerts " + key, strconv.FormatInt(summary.AlertsBySeverity[key], 10)})
	}
	for _, key := range sortedKeys(summary.WalletsByRiskLevel) {
		rows = append(rows, [2]string{"Wallets " + key, strconv.FormatInt(summary.WalletsByRiskLevel[key], 10)})
	}
	return rows
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func renderPDF(path string, report *models.Report, summary *stats.Summary) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(0, 10, report.Title)
	pdf.Ln(12)

	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Generated %s", time.Now().UTC().Format(time.RFC1123)))
	pdf.Ln(10)

	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(90, 8, "Metric", "1", 0, "L", false, 0, "")
	pdf.CellFormat(90, 8, "Value", "1", 1, "L", false, 0, "")

	pdf.SetFont("Arial", "", 10)
	for _, row := range summaryRows(summary) {
		pdf.CellFormat(90, 7, row[0], "1", 0, "L", false, 0, "")
		pdf.CellFormat(90, 7, row[1], "1", 1, "L", false, 0, "")
	}

	if err := pdf.OutputFileAndClose(path); err != nil {
		return fmt.Errorf("failed to write pdf report: %w", err)
	}
	return nil
}

func renderXLSX(path string, report *models.Report, summary *stats.Summary) error {
	file := excelize.NewFile()
	defer file.Close()

	sheet := "Summary"
	index, err := file.NewSheet(sheet)
	if err != nil {
		return fmt.Errorf("failed to write xlsx report: %w", err)
	}
	file.SetActiveSheet(index)
	file.DeleteSheet("Sheet1")

	file.SetCellValue(sheet, "A1", report.Title)
	file.SetCellValue(sheet, "A2", "Metric")
	file.SetCellValue(sheet, "B2", "Value")
	for i, row := range summaryRows(summary) {
		file.SetCellValue(sheet, fmt.Sprintf("A%d", i+3), row[0])
		file.SetCellValue(sheet, fmt.Sprintf("B%d", i+3), row[1])
	}

	if err := file.SaveAs(path); err != nil {
		return fmt.Errorf("failed to write xlsx report: %w", err)
	}
	return nil
}

func renderCSV(path string, summary *stats.Summary) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to write csv report: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"metric", "value"}); err != nil {
		return fmt.Errorf("failed to write csv report: %w", err)
	}
	for _, row := range summaryRows(summary) {
		if err := writer.Write([]string{row[0], row[1]}); err != nil {
			return fmt.Errorf("failed to write csv report: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to write csv report: %w", err)
	}
	return nil
}

func renderJSON(path string, report *models.Report, summary *stats.Summary) error {
	payload := map[string]interface{}{
		"title":        report.Title,
		"type":         report.Type,
		"generated_at": time.Now().UTC(),
		"summary":      summary,
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to write json report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write json report: %w", err)
	}
	return nil
}
