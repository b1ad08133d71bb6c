package export

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestReport(t *testing.T) {
	r := fullResult()
	r.OCRResult = "123456789"

	data, err := Report("task-1", r)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	summary, err := f.GetRows(SummarySheet)
	if err != nil {
		t.Fatalf("summary rows: %v", err)
	}
	if len(summary) < 2 || summary[0][1] != "task-1" || summary[1][1] != "123456789" {
		t.Errorf("summary = %v", summary)
	}

	rows, err := f.GetRows(DetectionsSheet)
	if err != nil {
		t.Fatalf("detection rows: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want header + 3", len(rows))
	}
	if rows[0][0] != "Object" || rows[1][0] != "signature" || rows[3][0] != "account_number" {
		t.Errorf("rows = %v", rows)
	}
	if rows[1][2] != "signature_cropped.jpg" {
		t.Errorf("crop column = %v", rows[1])
	}
	if len(rows[2]) > 2 && rows[2][2] != "" {
		t.Errorf("amount has no crop, got %q", rows[2][2])
	}
}

func TestReportWithoutResult(t *testing.T) {
	if _, err := Report("x", nil); !errors.Is(err, ErrNoResult) {
		t.Fatalf("Report(nil) = %v", err)
	}
}

func TestDownloadReport(t *testing.T) {
	dir := t.TempDir()
	exp := NewExporter(DirSink{Dir: dir}, 0, testLogger())
	if err := exp.DownloadReport(context.Background(), "task-1", fullResult()); err != nil {
		t.Fatalf("DownloadReport: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "detections.xlsx")); err != nil {
		t.Fatalf("report not written: %v", err)
	}
}
