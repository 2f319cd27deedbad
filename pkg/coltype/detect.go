package coltype

import (
	"strings"
	"unicode/utf8"
)

const (
	// MaxDetectionSamples caps the number of non-empty samples scored.
	MaxDetectionSamples = 100

	// ConfidenceThreshold is the minimum score a detected type needs to win
	// over the text fallback.
	ConfidenceThreshold = 0.8

	currencyBoost   = 0.2
	percentageBoost = 0.3
)

// Detection is the outcome of scoring a sample set.
type Detection struct {
	Type       Type             `json:"type"`
	Confidence float64          `json:"confidence"`
	Scores     map[Type]float64 `json:"scores"`
	Samples    int              `json:"samples"`
}

type candidate struct {
	t     Type
	match func(string) bool
}

// Candidates are scored in catalog order so that ties resolve deterministically.
var candidates = []candidate{
	{Email, func(s string) bool { return emailPattern.MatchString(s) }},
	{WholeNumber, func(s string) bool { return wholeNumberPattern.MatchString(s) }},
	{Number, func(s string) bool { return parses(strings.ReplaceAll(s, ",", "")) }},
	{Currency, func(s string) bool { return parses(strings.NewReplacer("$", "", ",", "").Replace(s)) }},
	{Percentage, func(s string) bool { return parses(strings.NewReplacer("%", "", ",", "").Replace(s)) }},
	{Boolean, func(s string) bool { _, ok := booleanValues[strings.ToLower(s)]; return ok }},
	{Date, func(s string) bool {
		if HasTimeOfDay(s) {
			return false
		}
		_, err := parseDate(s)
		return err == nil
	}},
	{DateAndTime, func(s string) bool {
		if !HasTimeOfDay(s) {
			return false
		}
		_, err := parseDate(s)
		return err == nil
	}},
}

func parses(s string) bool {
	return decimalLiteralPattern.MatchString(s)
}

// Detect infers the most likely logical type for a column from sampled values.
// Blank values are ignored and at most MaxDetectionSamples are considered.
func Detect(values []string) Detection {
	samples := make([]string, 0, min(len(values), MaxDetectionSamples))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		samples = append(samples, v)
		if len(samples) == MaxDetectionSamples {
			break
		}
	}

	scores := make(map[Type]float64, len(candidates))
	result := Detection{Scores: scores, Samples: len(samples)}
	if len(samples) == 0 {
		result.Type = SingleLineText
		return result
	}

	var hasDollar, hasPercent, hasLong bool
	for _, s := range samples {
		hasDollar = hasDollar || strings.Contains(s, "$")
		hasPercent = hasPercent || strings.Contains(s, "%")
		hasLong = hasLong || utf8.RuneCountInString(s) > DefaultTextLength
	}

	n := float64(len(samples))
	for _, c := range candidates {
		matched := 0
		for _, s := range samples {
			if c.match(s) {
				matched++
			}
		}
		score := float64(matched) / n

		switch c.t {
		case Currency:
			if hasDollar {
				score = min(score+currencyBoost, 1.0)
			}
		case Percentage:
			if hasPercent {
				score = min(score+percentageBoost, 1.0)
			} else {
				score /= 2
			}
		}
		scores[c.t] = score
	}

	best, bestScore := SingleLineText, -1.0
	for _, c := range candidates {
		if scores[c.t] > bestScore {
			best, bestScore = c.t, scores[c.t]
		}
	}

	if bestScore < ConfidenceThreshold {
		result.Confidence = bestScore
		if hasLong {
			result.Type = MultipleLinesText
		} else {
			result.Type = SingleLineText
		}
		return result
	}

	result.Type = best
	result.Confidence = bestScore
	return result
}
