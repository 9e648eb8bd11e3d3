// Package analysis extracts structured ATC information from transcript
// text with regular expressions. It runs independently of the LLM
// correlator: the patterns are crude but free, and they feed the
// per-channel callsign statistics even when correlation is disabled.
package analysis

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/quonset/squawkbox/pkg/atc"
)

// Patterns heard in routine ATC phraseology. Callsigns cover airline
// trigraphs plus FAA N-numbers; altitudes accept the comma pilots
// never say but transcribers love to insert.
var (
	callsignRe  = regexp.MustCompile(`\b(?:[A-Z]{3}\d{1,4}|N\d{1,5}[A-Z]{0,2})\b`)
	altitudeRe  = regexp.MustCompile(`(\d{1,3},?\d{3})\s*(?:feet|ft)`)
	headingRe   = regexp.MustCompile(`heading\s+(\d{1,3})`)
	frequencyRe = regexp.MustCompile(`(\d{3}\.\d{1,3})`)
)

// Info is the extraction result for one piece of text.
type Info struct {
	Callsigns   []string `json:"callsigns"`
	Altitudes   []int    `json:"altitudes"`
	Headings    []int    `json:"headings"`
	Frequencies []string `json:"frequencies"`
}

// Extract pulls ATC information out of transcript text. Callsign
// matching runs over the uppercased text; the numeric patterns run on
// the original.
func Extract(text string) Info {
	info := Info{
		Callsigns:   callsignRe.FindAllString(strings.ToUpper(text), -1),
		Frequencies: []string{},
		Altitudes:   []int{},
		Headings:    []int{},
	}
	if info.Callsigns == nil {
		info.Callsigns = []string{}
	}
	for _, m := range altitudeRe.FindAllStringSubmatch(text, -1) {
		if v, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", "")); err == nil {
			info.Altitudes = append(info.Altitudes, v)
		}
	}
	for _, m := range headingRe.FindAllStringSubmatch(text, -1) {
		if v, err := strconv.Atoi(m[1]); err == nil {
			info.Headings = append(info.Headings, v)
		}
	}
	info.Frequencies = frequencyRe.FindAllString(text, -1)
	if info.Frequencies == nil {
		info.Frequencies = []string{}
	}
	return info
}

// SegmentAnalysis is the extraction for one timed transcript segment.
type SegmentAnalysis struct {
	Timestamp   time.Time `json:"timestamp"`
	Text        string    `json:"text"`
	Callsigns   []string  `json:"callsigns"`
	Altitudes   []int     `json:"altitudes"`
	Headings    []int     `json:"headings"`
	Frequencies []string  `json:"frequencies"`
}

// Report is the per-transcript analysis artifact.
type Report struct {
	FullText    string            `json:"full_text"`
	OverallInfo Info              `json:"overall_info"`
	Segments    []SegmentAnalysis `json:"segments"`
}

// Analyze builds the report for one transcript. recordedAt anchors the
// per-segment timestamps, which are offsets into the recording.
func Analyze(text string, segments []atc.TranscriptSegment, recordedAt time.Time) Report {
	report := Report{
		FullText:    text,
		OverallInfo: Extract(text),
		Segments:    make([]SegmentAnalysis, 0, len(segments)),
	}
	for _, seg := range segments {
		info := Extract(seg.Text)
		report.Segments = append(report.Segments, SegmentAnalysis{
			Timestamp:   recordedAt.Add(time.Duration(seg.Start * float64(time.Second))),
			Text:        seg.Text,
			Callsigns:   info.Callsigns,
			Altitudes:   info.Altitudes,
			Headings:    info.Headings,
			Frequencies: info.Frequencies,
		})
	}
	return report
}

// WriteReport saves the analysis JSON next to a transcript artifact:
// "<base>_transcript.json" becomes "<base>_analysis.json" under dir.
func WriteReport(dir, transcriptBase string, report Report) (string, error) {
	path := filepath.Join(dir, transcriptBase+"_analysis.json")
	data, err := json.MarshalIndent(report, "", "    ")
	if err != nil {
		return "", fmt.Errorf("analysis: marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("analysis: write report: %w", err)
	}
	return path, nil
}

// SummaryRow is one line of the batch summary table.
type SummaryRow struct {
	File        string
	Callsigns   int
	Altitudes   int
	Headings    int
	Frequencies int
}

// WriteSummary writes analysis_summary.csv under dir, one row per
// analyzed transcript.
func WriteSummary(dir string, rows []SummaryRow) (string, error) {
	path := filepath.Join(dir, "analysis_summary.csv")
	fh, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("analysis: create summary: %w", err)
	}
	defer fh.Close()

	w := csv.NewWriter(fh)
	if err := w.Write([]string{"file", "callsigns", "altitudes", "headings", "frequencies"}); err != nil {
		return "", fmt.Errorf("analysis: write summary header: %w", err)
	}
	for _, row := range rows {
		record := []string{
			row.File,
			strconv.Itoa(row.Callsigns),
			strconv.Itoa(row.Altitudes),
			strconv.Itoa(row.Headings),
			strconv.Itoa(row.Frequencies),
		}
		if err := w.Write(record); err != nil {
			return "", fmt.Errorf("analysis: write summary row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("analysis: flush summary: %w", err)
	}
	return path, nil
}
