package extractor

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"order-sla-extractor/internal/types"
	"order-sla-extractor/sla"
)

// Document is the JSON export of one run
type Document struct {
	Summary types.RunSummary    `json:"summary"`
	Orders  []types.OrderRecord `json:"orders"`
	SLA     SLASection          `json:"sla"`
}

// SLASection groups the SLA report and its alerts in the export
type SLASection struct {
	Report sla.Report    `json:"report"`
	Alerts []types.Alert `json:"alerts"`
}

// Document builds the export document for the result
func (r *Result) Document() Document {
	alerts := r.Alerts
	if alerts == nil {
		alerts = []types.Alert{}
	}
	return Document{
		Summary: r.Summary,
		Orders:  r.Orders,
		SLA:     SLASection{Report: r.Report, Alerts: alerts},
	}
}

// ExportPath names an export file in dir after the run start time and id
func ExportPath(dir, prefix, runID string, at time.Time, ext string) string {
	short := runID
	if len(short) > 8 {
		short = short[:8]
	}
	return filepath.Join(dir, fmt.Sprintf("%s_%s_%s.%s", prefix, at.Format("20060102_150405"), short, ext))
}

// WriteJSON saves the document as indented JSON, creating parent directories
func WriteJSON(path string, doc Document) error {
	jsonData, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results to JSON: %w", err)
	}
	if err := writeToFile(path, jsonData); err != nil {
		return fmt.Errorf("failed to write results to file: %w", err)
	}
	return nil
}

// ReadJSON loads a document written by WriteJSON
func ReadJSON(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read export %s: %w", path, err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode export %s: %w", path, err)
	}
	return &doc, nil
}

var alertsHeader = []string{"type", "platform", "order_id", "kind", "deadline", "hours_left", "threshold", "message"}

// WriteAlertsCSV saves alerts as CSV with a header row
func WriteAlertsCSV(path string, alerts []types.Alert) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(alertsHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, a := range alerts {
		record := []string{
			string(a.Severity),
			a.Platform,
			a.OrderID,
			a.Kind,
			a.Deadline.Format(time.RFC3339),
			strconv.FormatFloat(a.HoursLeft, 'f', 2, 64),
			strconv.FormatFloat(a.Threshold, 'f', 1, 64),
			a.Message,
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("failed to write alert %s: %w", a.OrderID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}
	return f.Close()
}

// writeToFile writes data to a file, creating parent directories
func writeToFile(filename string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}
