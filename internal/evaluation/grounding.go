// Package evaluation checks assistant replies against the data they were given.
package evaluation

import (
	"math"
	"strconv"
	"strings"

	"github.com/jdkato/prose/v2"
	"go.uber.org/zap"

	"github.com/pulseboard/backend/pkg/logger"
)

// GroundingReport lists the numeric figures found in a reply and those that
// appear in none of the sources.
type GroundingReport struct {
	Figures    []string `json:"figures"`
	Ungrounded []string `json:"ungrounded"`
}

func (r GroundingReport) Grounded() bool {
	return len(r.Ungrounded) == 0
}

// CheckGrounding extracts figures from reply and marks each one ungrounded
// when no source text contains the same value.
func CheckGrounding(reply string, sources ...string) GroundingReport {
	known := make(map[string]bool)
	for _, src := range sources {
		for _, f := range ExtractFigures(src) {
			known[f] = true
		}
	}

	report := GroundingReport{Figures: []string{}, Ungrounded: []string{}}
	seen := make(map[string]bool)
	for _, f := range ExtractFigures(reply) {
		if seen[f] {
			continue
		}
		seen[f] = true
		report.Figures = append(report.Figures, f)
		if !known[f] {
			report.Ungrounded = append(report.Ungrounded, f)
		}
	}
	return report
}

// ExtractFigures returns the normalized numeric values quoted in text, in order.
// Bare single-digit integers are skipped; they are list markers or counts far
// more often than data.
func ExtractFigures(text string) []string {
	tokens := tokenize(text)

	var figures []string
	for i, tok := range tokens {
		// The tokenizer may split "$" and "%" off the number.
		marked := (i > 0 && isUnit(tokens[i-1])) || (i+1 < len(tokens) && isUnit(tokens[i+1]))
		if f, ok := normalizeFigure(tok, marked); ok {
			figures = append(figures, f)
		}
	}
	return figures
}

func isUnit(tok string) bool {
	switch tok {
	case "$", "€", "£", "¥", "%":
		return true
	}
	return false
}

func tokenize(text string) []string {
	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithExtraction(false),
		prose.WithSegmentation(false),
	)
	if err != nil {
		logger.Debug("Tokenizer failed, falling back to whitespace split", zap.Error(err))
		return strings.Fields(text)
	}

	tokens := doc.Tokens()
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		out = append(out, tok.Text)
	}
	return out
}

func normalizeFigure(tok string, marked bool) (string, bool) {
	marked = marked || strings.ContainsAny(tok, "$€£¥%")

	s := strings.Trim(tok, "$€£¥%+-()[]{}\"',;:!?")
	s = strings.TrimRight(s, ".")
	formatted := strings.ContainsAny(s, ".,")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" || !strings.ContainsAny(s, "0123456789") {
		return "", false
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return "", false
	}

	if !marked && !formatted && v < 10 && v == math.Trunc(v) {
		return "", false
	}

	return strconv.FormatFloat(v, 'f', -1, 64), true
}
