// Package export renders call logs as spreadsheets for agent owners.
package export

import (
	"fmt"
	"io"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/openclaw/clawjobs/internal/model"
)

// Sheet names in the exported workbook.
const (
	CallsSheet   = "Calls"
	SummarySheet = "Summary"
)

var callColumns = []struct {
	header string
	width  float64
}{
	{"timestamp", 22},
	{"method", 10},
	{"endpoint", 40},
	{"status", 10},
	{"response_time_ms", 18},
	{"api_key_id", 38},
	{"agent_id", 24},
	{"request_body", 60},
}

var summaryHeaders = []string{"endpoint", "method", "calls", "errors", "avg_response_ms", "max_response_ms"}

// EndpointSummary aggregates the calls made to one endpoint and method.
type EndpointSummary struct {
	Endpoint      string
	Method        string
	Calls         int
	Errors        int // status >= 400
	AvgResponseMS float64
	MaxResponseMS int64
}

// Summarize groups logs by endpoint and method, ordered by call count
// descending and then by endpoint.
func Summarize(logs []model.CallLog) []EndpointSummary {
	type key struct{ endpoint, method string }
	byKey := map[key]*EndpointSummary{}
	totals := map[key]int64{}

	for _, l := range logs {
		k := key{l.Endpoint, l.Method}
		s, ok := byKey[k]
		if !ok {
			s = &EndpointSummary{Endpoint: l.Endpoint, Method: l.Method}
			byKey[k] = s
		}
		s.Calls++
		if l.StatusCode >= 400 {
			s.Errors++
		}
		if l.ResponseTime > s.MaxResponseMS {
			s.MaxResponseMS = l.ResponseTime
		}
		totals[k] += l.ResponseTime
	}

	out := make([]EndpointSummary, 0, len(byKey))
	for k, s := range byKey {
		s.AvgResponseMS = float64(totals[k]) / float64(s.Calls)
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Calls != out[j].Calls {
			return out[i].Calls > out[j].Calls
		}
		if out[i].Endpoint != out[j].Endpoint {
			return out[i].Endpoint < out[j].Endpoint
		}
		return out[i].Method < out[j].Method
	})
	return out
}

// WriteCallLogs writes logs, in the order given, as an xlsx workbook with a
// Calls sheet and a per-endpoint Summary sheet.
func WriteCallLogs(w io.Writer, logs []model.CallLog) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), CallsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(SummarySheet); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"D9D9D9"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	errorStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Color: "C00000"},
	})
	if err != nil {
		return fmt.Errorf("error style: %w", err)
	}

	headers := make([]interface{}, len(callColumns))
	for i, col := range callColumns {
		headers[i] = col.header
		name, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(CallsSheet, name, name, col.width); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}
	if err := writeRow(f, CallsSheet, 1, headers); err != nil {
		return err
	}
	lastCol, _ := excelize.ColumnNumberToName(len(callColumns))
	if err := f.SetCellStyle(CallsSheet, "A1", lastCol+"1", headerStyle); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for i, l := range logs {
		row := i + 2
		values := []interface{}{
			l.Timestamp.UTC().Format("2006-01-02 15:04:05.000"),
			l.Method,
			l.Endpoint,
			l.StatusCode,
			l.ResponseTime,
			l.APIKeyID,
			l.AgentID,
			string(l.RequestBody),
		}
		if err := writeRow(f, CallsSheet, row, values); err != nil {
			return err
		}
		if l.StatusCode >= 400 {
			cell, _ := excelize.CoordinatesToCellName(4, row)
			if err := f.SetCellStyle(CallsSheet, cell, cell, errorStyle); err != nil {
				return fmt.Errorf("style status: %w", err)
			}
		}
	}
	if len(logs) > 0 {
		if err := f.SetPanes(CallsSheet, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
			ActivePane:  "bottomLeft",
		}); err != nil {
			return fmt.Errorf("freeze header: %w", err)
		}
	}

	summaryRow := make([]interface{}, len(summaryHeaders))
	for i, h := range summaryHeaders {
		summaryRow[i] = h
	}
	if err := writeRow(f, SummarySheet, 1, summaryRow); err != nil {
		return err
	}
	lastCol, _ = excelize.ColumnNumberToName(len(summaryHeaders))
	if err := f.SetCellStyle(SummarySheet, "A1", lastCol+"1", headerStyle); err != nil {
		return fmt.Errorf("style header: %w", err)
	}
	if err := f.SetColWidth(SummarySheet, "A", "A", 40); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	for i, s := range Summarize(logs) {
		if err := writeRow(f, SummarySheet, i+2, []interface{}{
			s.Endpoint, s.Method, s.Calls, s.Errors, s.AvgResponseMS, s.MaxResponseMS,
		}); err != nil {
			return err
		}
	}

	f.SetActiveSheet(0)
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}
