package analysis

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/quonset/squawkbox/pkg/atc"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Info
	}{
		{
			"airline callsign with clearance",
			"delta one twenty three DAL123 descend and maintain 3,000 feet heading 270 contact approach 119.3",
			Info{
				Callsigns:   []string{"DAL123"},
				Altitudes:   []int{3000},
				Headings:    []int{270},
				Frequencies: []string{"119.3"},
			},
		},
		{
			"november tail number",
			"N123AB cleared for the option runway 30L",
			Info{Callsigns: []string{"N123AB"}, Altitudes: []int{}, Headings: []int{}, Frequencies: []string{}},
		},
		{
			"lowercase callsign uppercased before matching",
			"ual456 climb via the sid",
			Info{Callsigns: []string{"UAL456"}, Altitudes: []int{}, Headings: []int{}, Frequencies: []string{}},
		},
		{
			"altitude without comma and ft unit",
			"maintain 10000 ft",
			Info{Callsigns: []string{}, Altitudes: []int{10000}, Headings: []int{}, Frequencies: []string{}},
		},
		{
			"nothing of interest",
			"say again for tower",
			Info{Callsigns: []string{}, Altitudes: []int{}, Headings: []int{}, Frequencies: []string{}},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Extract(tc.text)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("Extract(%q) = %+v, want %+v", tc.text, got, tc.want)
			}
		})
	}
}

func TestAnalyzeSegmentTimestamps(t *testing.T) {
	recordedAt := time.Date(2026, 8, 26, 14, 0, 0, 0, time.UTC)
	report := Analyze("DAL123 heading 090",
		[]atc.TranscriptSegment{
			{Start: 0, End: 2.5, Text: "DAL123"},
			{Start: 2.5, End: 4, Text: "heading 090"},
		}, recordedAt)

	if len(report.Segments) != 2 {
		t.Fatalf("got %d segments, want 2", len(report.Segments))
	}
	if !report.Segments[0].Timestamp.Equal(recordedAt) {
		t.Errorf("segment 0 timestamp = %v", report.Segments[0].Timestamp)
	}
	want := recordedAt.Add(2500 * time.Millisecond)
	if !report.Segments[1].Timestamp.Equal(want) {
		t.Errorf("segment 1 timestamp = %v, want %v", report.Segments[1].Timestamp, want)
	}
	if got := report.Segments[1].Headings; len(got) != 1 || got[0] != 90 {
		t.Errorf("segment 1 headings = %v", got)
	}
	if got := report.OverallInfo.Callsigns; len(got) != 1 || got[0] != "DAL123" {
		t.Errorf("overall callsigns = %v", got)
	}
}

func TestWriteReport(t *testing.T) {
	dir := t.TempDir()
	report := Analyze("UAL456 maintain 5,000 feet", nil, time.Now())

	path, err := WriteReport(dir, "transmission_20260826_140000_000_118p7", report)
	if err != nil {
		t.Fatalf("WriteReport: %v", err)
	}
	if filepath.Base(path) != "transmission_20260826_140000_000_118p7_analysis.json" {
		t.Errorf("path = %q", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var decoded Report
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode artifact: %v", err)
	}
	if !reflect.DeepEqual(decoded.OverallInfo, report.OverallInfo) {
		t.Errorf("round trip mismatch: %+v != %+v", decoded.OverallInfo, report.OverallInfo)
	}
}

func TestWriteSummary(t *testing.T) {
	dir := t.TempDir()
	rows := []SummaryRow{
		{File: "a_transcript.json", Callsigns: 2, Altitudes: 1, Headings: 0, Frequencies: 1},
		{File: "b_transcript.json", Callsigns: 0, Altitudes: 0, Headings: 1, Frequencies: 0},
	}
	path, err := WriteSummary(dir, rows)
	if err != nil {
		t.Fatalf("WriteSummary: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	if lines[0] != "file,callsigns,altitudes,headings,frequencies" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != "a_transcript.json,2,1,0,1" {
		t.Errorf("row 1 = %q", lines[1])
	}
}
