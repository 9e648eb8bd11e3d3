package correlate

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/quonset/squawkbox/pkg/atc"
)

// systemPrompt describes the analyst task: the vocabulary heard on ATC
// frequencies, the matching policy, and the exact JSON the model must
// return.
const systemPrompt = `You are an aviation ATC analyst. Analyze the following ADS-B radar contacts and ATC radio transmissions to identify correlations.

CALLSIGN VOCABULARY:
- Airlines are spoken by telephony name, written as ICAO prefix + flight number:
  Delta=DAL, United=UAL, American=AAL, Southwest=SWA, SkyWest=SKW, Speedbird=BAW,
  FedEx=FDX, Cactus=AWE, Brickyard=RPA, Endeavor=EDV, Envoy=ENY, Sun Country=SCX
  (e.g. "Delta twenty-six seventeen" = DAL2617)
- Digits are spoken phonetically: "niner" = 9, "tree" = 3, "fife" = 5
- General aviation tail numbers start with N and use the phonetic alphabet
  ("November one two three alpha bravo" = N123AB); pilots often abbreviate to
  the last three characters ("three alpha bravo")

IMPORTANT TASKS:
1. Match each transmission to an aircraft in the ADS-B data if possible
2. Flag transmissions that reference aircraft NOT in ADS-B data (NON_TRANSPONDER)
3. Flag any military callsigns (MILITARY) - patterns: REACH, VIPER, EAGLE, HAMMER, KING, RESCUE, RCH
4. Handle partial callsigns (e.g., "Bravo 4" might match "N654B4")
5. Handle garbled/unclear transcriptions appropriately

MATCHING POLICY:
- Prefer exact callsign matches; accept phonetic and partial matches with reduced confidence
- Transcripts are imperfect: allow one or two character substitutions when the rest agrees
- Never invent an ICAO code that is not in the ADS-B contact list

CONFIDENCE SCALE:
- 0.9-1.0 exact callsign heard and present in ADS-B data
- 0.6-0.8 partial or phonetic match
- 0.3-0.5 plausible but ambiguous
- below 0.3 speculation; prefer NO_MATCH or UNCLEAR

ALERT RULES:
- MILITARY: any military-pattern callsign heard
- NON_TRANSPONDER: a transmission clearly references an aircraft absent from the ADS-B data
- UNKNOWN_TRAFFIC: traffic advisories about aircraft nobody can account for

Respond ONLY with valid JSON in this exact format:
{
  "correlations": [
    {
      "transmission_id": <index number>,
      "extracted_identifier": "<callsign or tail number heard>",
      "extraction_confidence": <float>,
      "matched_icao": "<ICAO or NO_MATCH or UNCLEAR>",
      "matched_callsign": "<callsign if matched>",
      "match_confidence": <float>,
      "reasoning": "<explanation>",
      "flags": ["<flag>"]
    }
  ],
  "alerts": [
    {
      "type": "<MILITARY|NON_TRANSPONDER|UNKNOWN_TRAFFIC>",
      "details": "<description>",
      "severity": "<HIGH|MEDIUM|LOW>",
      "confidence": <float>
    }
  ],
  "summary": "<brief overall assessment>"
}`

// analysisTemplate appends the live data below the system prompt.
const analysisTemplate = `

CURRENT ADS-B CONTACTS:
%s

RECENT ATC TRANSMISSIONS:
%s`

const (
	noContacts      = "(no ADS-B contacts)"
	noTransmissions = "(no recent transmissions)"
)

// formatContact renders one contact line for the prompt.
func formatContact(c atc.Contact) string {
	callsign := strings.TrimSpace(c.Callsign)
	if callsign == "" {
		callsign = "NO_CALLSIGN"
	}
	squawk := c.Squawk
	if squawk == "" {
		squawk = "----"
	}
	return fmt.Sprintf("ICAO:%s CALLSIGN:%-10s ALT:%5dft HDG:%03d° SPD:%3dkt SQUAWK:%s",
		strings.ToUpper(c.ICAO24), callsign, c.Altitude, c.Track, c.GroundSpeed, squawk)
}

// formatTransmission renders one transmission line. idx is the
// transmission_id the model echoes back.
func formatTransmission(idx int, tx atc.Transmission, previewChars int) string {
	return fmt.Sprintf("[%d] [%s %sMHz] %s", idx, tx.Channel, tx.Frequency, preview(tx.Text, previewChars))
}

// preview truncates long transcripts so one rambling readback cannot
// eat the whole transmission budget. The cut lands on a rune boundary
// so a multi-byte character is never split.
func preview(text string, limit int) string {
	text = strings.TrimSpace(text)
	if limit <= 0 || len(text) <= limit {
		return text
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}

// BuiltPrompt is a token-budgeted prompt plus the batch it describes.
type BuiltPrompt struct {
	// Text is the complete prompt.
	Text string

	// Contacts is how many contact lines were admitted.
	Contacts int

	// Batch holds the admitted transmissions in prompt order;
	// transmission_id values returned by the model index into it.
	Batch []atc.Transmission

	// Tokens is the estimated prompt size.
	Tokens int
}

// buildPrompt assembles the prompt under the budget. Newest items win
// when space runs out, but the final prompt preserves original order.
func buildPrompt(b Budget, previewChars int, contacts []atc.Contact, txs []atc.Transmission) BuiltPrompt {
	fixed := b.EstimateTokens(systemPrompt + fmt.Sprintf(analysisTemplate, noContacts, noTransmissions))
	contactBudget, txBudget := b.Split(b.MaxPromptTokens() - fixed)

	contactLines := make([]string, len(contacts))
	for i, c := range contacts {
		contactLines[i] = formatContact(c)
	}
	// Index placeholders are formatted with the final batch position
	// below; the per-line cost barely changes.
	txLines := make([]string, len(txs))
	for i, tx := range txs {
		txLines[i] = formatTransmission(i, tx, previewChars)
	}

	pickedContacts := fillNewestFirst(contactLines, contactBudget, -1, b.EstimateTokens)
	pickedTxs := fillNewestFirst(txLines, txBudget, b.MaxTransmissions(), b.EstimateTokens)

	contactBlock := noContacts
	if len(pickedContacts) > 0 {
		lines := make([]string, len(pickedContacts))
		for i, idx := range pickedContacts {
			lines[i] = contactLines[idx]
		}
		contactBlock = strings.Join(lines, "\n")
	}

	batch := make([]atc.Transmission, 0, len(pickedTxs))
	txBlock := noTransmissions
	if len(pickedTxs) > 0 {
		lines := make([]string, len(pickedTxs))
		for i, idx := range pickedTxs {
			batch = append(batch, txs[idx])
			lines[i] = formatTransmission(i, txs[idx], previewChars)
		}
		txBlock = strings.Join(lines, "\n")
	}

	text := systemPrompt + fmt.Sprintf(analysisTemplate, contactBlock, txBlock)
	return BuiltPrompt{
		Text:     text,
		Contacts: len(pickedContacts),
		Batch:    batch,
		Tokens:   b.EstimateTokens(text),
	}
}
