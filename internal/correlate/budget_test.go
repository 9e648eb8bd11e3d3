package correlate

import (
	"strings"
	"testing"
	"unicode/utf8"

	"pgregory.net/rapid"

	"github.com/quonset/squawkbox/pkg/atc"
)

func testBudget() Budget {
	return Budget{
		ContextWindow:        12400,
		MaxResponse:          6400,
		CharsPerToken:        4.0,
		EstimateBuffer:       20,
		TokensPerCorrelation: 180,
		JSONOverhead:         200,
		MaxBatch:             10,
		ADSBRatio:            0.70,
	}
}

func TestEstimateTokensNeverUndershoots(t *testing.T) {
	b := testBudget()
	rapid.Check(t, func(t *rapid.T) {
		s := rapid.String().Draw(t, "s")
		got := b.EstimateTokens(s)
		// A real tokenizer on ASCII-ish text stays under len/4 plus a
		// little; the estimate must be at least ceil(len/ratio).
		floor := (len(s) + 3) / 4
		if got < floor+b.EstimateBuffer {
			t.Fatalf("EstimateTokens(%d chars) = %d, below floor %d", len(s), got, floor+b.EstimateBuffer)
		}
	})
}

func TestMaxTransmissions(t *testing.T) {
	b := testBudget()
	// floor((6400-200)/180) = 34, capped by MaxBatch.
	if got := b.MaxTransmissions(); got != 10 {
		t.Errorf("MaxTransmissions = %d, want 10", got)
	}

	b.MaxResponse = 1200
	// floor((1200-200)/180) = 5 < MaxBatch.
	if got := b.MaxTransmissions(); got != 5 {
		t.Errorf("MaxTransmissions = %d, want 5", got)
	}

	b.MaxResponse = 100
	if got := b.MaxTransmissions(); got != 0 {
		t.Errorf("MaxTransmissions = %d, want 0", got)
	}
}

func TestSplit(t *testing.T) {
	b := testBudget()
	contacts, txs := b.Split(1000)
	if contacts != 700 || txs != 300 {
		t.Errorf("Split(1000) = %d, %d; want 700, 300", contacts, txs)
	}
	contacts, txs = b.Split(-5)
	if contacts != 0 || txs != 0 {
		t.Errorf("Split(-5) = %d, %d; want 0, 0", contacts, txs)
	}
}

func TestFillNewestFirst(t *testing.T) {
	lines := []string{"aaaa", "bbbb", "cccc", "dddd"}
	cost := func(s string) int { return len(s) }

	// Budget for two lines: the two newest win, in original order.
	got := fillNewestFirst(lines, 8, -1, cost)
	if len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Errorf("picked = %v, want [2 3]", got)
	}

	// Count cap beats the budget.
	got = fillNewestFirst(lines, 1000, 1, cost)
	if len(got) != 1 || got[0] != 3 {
		t.Errorf("picked = %v, want [3]", got)
	}

	if got := fillNewestFirst(lines, 0, -1, cost); len(got) != 0 {
		t.Errorf("picked = %v, want none", got)
	}
}

func TestBuildPromptFallbacks(t *testing.T) {
	built := buildPrompt(testBudget(), 150, nil, nil)
	if !strings.Contains(built.Text, noContacts) {
		t.Error("prompt missing contact fallback")
	}
	if !strings.Contains(built.Text, noTransmissions) {
		t.Error("prompt missing transmission fallback")
	}
	if built.Contacts != 0 || len(built.Batch) != 0 {
		t.Errorf("counts = %d contacts, %d batch", built.Contacts, len(built.Batch))
	}
}

func TestBuildPromptPrefersNewestAndKeepsOrder(t *testing.T) {
	b := testBudget()
	// Shrink the window so only part of the input fits.
	b.ContextWindow = 9400
	b.MaxResponse = 6400

	txs := make([]atc.Transmission, 20)
	for i := range txs {
		txs[i] = atc.Transmission{
			ID:        int64(i),
			Channel:   "Tower",
			Frequency: "118.7",
			Text:      strings.Repeat("cleared to land runway three zero left ", 3),
		}
	}
	built := buildPrompt(b, 150, nil, txs)
	if len(built.Batch) == 0 || len(built.Batch) >= len(txs) {
		t.Fatalf("batch has %d of %d transmissions, want a strict subset", len(built.Batch), len(txs))
	}
	// Newest input transmissions survive, oldest are dropped.
	if built.Batch[len(built.Batch)-1].ID != 19 {
		t.Errorf("newest transmission missing, batch ends with ID %d", built.Batch[len(built.Batch)-1].ID)
	}
	for i := 1; i < len(built.Batch); i++ {
		if built.Batch[i].ID <= built.Batch[i-1].ID {
			t.Errorf("batch order not preserved: %d after %d", built.Batch[i].ID, built.Batch[i-1].ID)
		}
	}
	// Prompt indices are batch positions, starting at zero.
	if !strings.Contains(built.Text, "[0] [Tower 118.7MHz]") {
		t.Error("prompt does not re-index the batch from zero")
	}
}

func TestBuildPromptRespectsBatchCap(t *testing.T) {
	built := buildPrompt(testBudget(), 150, nil, testTransmissions(15))
	if len(built.Batch) != 10 {
		t.Errorf("batch = %d, want the 10-transmission cap", len(built.Batch))
	}
}

func TestPreviewTruncatesLongTranscripts(t *testing.T) {
	long := strings.Repeat("x", 400)
	got := preview(long, 150)
	if len(got) != 153 || !strings.HasSuffix(got, "...") {
		t.Errorf("preview length = %d", len(got))
	}
	if got := preview("short", 150); got != "short" {
		t.Errorf("preview(short) = %q", got)
	}
}

func TestPreviewKeepsRunesWhole(t *testing.T) {
	// "é" is two bytes; a limit landing inside it must back up to the
	// rune start instead of emitting a broken byte.
	got := preview(strings.Repeat("é", 10), 5)
	if !utf8.ValidString(got) {
		t.Fatalf("preview produced invalid UTF-8: %q", got)
	}
	if got != "éé..." {
		t.Errorf("preview = %q, want %q", got, "éé...")
	}
}
