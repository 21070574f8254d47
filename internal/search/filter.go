package search

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"foodlog/searchservice/internal/domain"
)

// FilterReason names the rule that rejected a record. Empty means accepted.
type FilterReason string

const (
	ReasonTooShort     FilterReason = "too_short"
	ReasonPlaceholder  FilterReason = "placeholder"
	ReasonProfanity    FilterReason = "profanity"
	ReasonJunkPattern  FilterReason = "junk_pattern"
	ReasonScriptRatio  FilterReason = "script_ratio"
	ReasonAlphaDensity FilterReason = "alpha_density"
	ReasonNutrition    FilterReason = "nutrition_sanity"
)

// FilterDecision is the outcome of running one record through the pipeline.
// On accept, Record carries the sanitized, lowercase-normalized copy.
type FilterDecision struct {
	Accepted bool
	Reason   FilterReason
	Record   domain.NutritionRecord
}

const (
	minNameLength      = 2
	minScriptRatio     = 0.5
	minAlphaDensity    = 0.5
	maxCaloriesServing = 1000
	maxMacroGrams      = 100
	// Tolerance band for the macro-derived calorie estimate (4P+4C+9F): the
	// estimate must fall within [0.3x, 2.5x] of the stated calories. Label
	// rounding and fiber make exact matches rare.
	calorieEstimateLow  = 0.3
	calorieEstimateHigh = 2.5
)

var placeholderTokens = map[string]struct{}{
	"unknown":   {},
	"n/a":       {},
	"none":      {},
	"test":      {},
	"undefined": {},
	"null":      {},
}

// Whole-word matching only: a blocklisted token embedded inside a longer
// benign word must not trigger.
var profanityPattern = regexp.MustCompile(`(?i)\b(?:fuck|shit|bitch|cunt|dick|cock|piss|whore|slut|penis|vagina)\b`)

var (
	urlPattern       = regexp.MustCompile(`(?i)(?:https?://|www\.|[a-z0-9-]+\.(?:com|net|org|ru|io|co)\b)`)
	junkSlangPattern = regexp.MustCompile(`(?i)\b(?:lol|lmao|rofl|wtf|idk|asdf|qwerty|xd|uwu)\b`)
)

type filterStep struct {
	name  FilterReason
	check func(domain.NutritionRecord) bool
}

// Ordered chain; the first failing rule short-circuits.
var filterSteps = []filterStep{
	{ReasonTooShort, func(r domain.NutritionRecord) bool {
		return len([]rune(r.Name)) < minNameLength
	}},
	{ReasonPlaceholder, func(r domain.NutritionRecord) bool {
		_, ok := placeholderTokens[strings.ToLower(r.Name)]
		return ok
	}},
	{ReasonProfanity, func(r domain.NutritionRecord) bool {
		return profanityPattern.MatchString(r.Name) || profanityPattern.MatchString(r.Brand)
	}},
	{ReasonJunkPattern, func(r domain.NutritionRecord) bool {
		return urlPattern.MatchString(r.Name) || junkSlangPattern.MatchString(r.Name)
	}},
	{ReasonScriptRatio, func(r domain.NutritionRecord) bool {
		return latinScriptRatio(r.Name) < minScriptRatio
	}},
	{ReasonAlphaDensity, func(r domain.NutritionRecord) bool {
		return alphaDensity(r.Name) < minAlphaDensity
	}},
	{ReasonNutrition, failsNutritionSanity},
}

// FilterRecord runs the sanitize + acceptance pipeline. It is a pure function:
// identical input always yields the identical decision.
func FilterRecord(record domain.NutritionRecord) FilterDecision {
	record.Name = sanitizeText(record.Name)
	record.Brand = sanitizeText(record.Brand)

	for _, step := range filterSteps {
		if step.check(record) {
			return FilterDecision{Accepted: false, Reason: step.name}
		}
	}

	record.Name = strings.ToLower(record.Name)
	record.Brand = strings.ToLower(record.Brand)
	return FilterDecision{Accepted: true, Record: record}
}

// sanitizeText strips emoji code points, collapses internal whitespace and
// trims. It normalizes to NFC first so composed and decomposed accents compare
// equal downstream.
func sanitizeText(raw string) string {
	value := norm.NFC.String(raw)
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if isEmojiRune(r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func isEmojiRune(r rune) bool {
	switch {
	case r >= 0x1F000 && r <= 0x1FAFF: // pictographs, emoticons, symbols
		return true
	case r >= 0x2600 && r <= 0x27BF: // misc symbols, dingbats
		return true
	case r == 0xFE0F || r == 0xFE0E: // variation selectors
		return true
	case r == 0x200D: // zero-width joiner
		return true
	case r >= 0x1F1E6 && r <= 0x1F1FF: // regional indicators
		return true
	default:
		return false
	}
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// latinScriptRatio returns the share of Latin letters among all letters.
// Accented Latin counts: marks are folded away before classifying. Digits and
// symbols are ignored here; the alpha density rule judges those. This is a
// coarse heuristic, not a language detector.
func latinScriptRatio(name string) float64 {
	folded, _, err := transform.String(stripMarks, name)
	if err != nil {
		folded = name
	}
	var latin, letters int
	for _, r := range folded {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.Is(unicode.Latin, r) {
			latin++
		}
	}
	if letters == 0 {
		return 1
	}
	return float64(latin) / float64(letters)
}

// alphaDensity distinguishes real names like "Coca-Cola" from symbol-heavy
// junk: share of letters among all characters of the sanitized name.
func alphaDensity(name string) float64 {
	var letters, total int
	for _, r := range name {
		total++
		if unicode.IsLetter(r) {
			letters++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(letters) / float64(total)
}

func failsNutritionSanity(r domain.NutritionRecord) bool {
	if r.Calories < 0 || r.Protein < 0 || r.Carbs < 0 || r.Fat < 0 {
		return true
	}
	// Zero everything is valid (e.g. water); inconsistent zero calories with
	// real macros is not.
	if r.Calories == 0 && r.Protein+r.Carbs+r.Fat > 5 {
		return true
	}
	if r.Calories > maxCaloriesServing {
		return true
	}
	if r.Protein > maxMacroGrams || r.Carbs > maxMacroGrams || r.Fat > maxMacroGrams {
		return true
	}
	estimate := r.Protein*4 + r.Carbs*4 + r.Fat*9
	if estimate > 0 && r.Calories > 0 {
		ratio := estimate / r.Calories
		if ratio < calorieEstimateLow || ratio > calorieEstimateHigh {
			return true
		}
	}
	return false
}
