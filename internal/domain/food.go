package domain

import (
	"strconv"
	"strings"
	"time"
)

// Source identifies the external nutrition database a record came from.
type Source string

const (
	SourceUSDAFDC       Source = "usdafdc"
	SourceOpenFoodFacts Source = "openfoodfacts"
	SourceEdamam        Source = "edamam"
)

type Unit string

const (
	UnitGrams       Unit = "g"
	UnitMilliliters Unit = "ml"
)

// NormalizeUnit maps a provider serving unit onto the two units the service
// exposes. Anything not recognizably volume is treated as grams.
func NormalizeUnit(raw string) Unit {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "ml", "l", "cl", "dl", "fl oz", "floz":
		return UnitMilliliters
	default:
		return UnitGrams
	}
}

// NutritionRecord is one normalized food entry. Calories are kcal per serving,
// macros are grams per serving. Name and brand are stored sanitized and
// lowercase once a record has passed the filter pipeline.
type NutritionRecord struct {
	Name        string  `json:"name"`
	Brand       string  `json:"brand,omitempty"`
	Calories    float64 `json:"calories"`
	Protein     float64 `json:"protein"`
	Carbs       float64 `json:"carbs"`
	Fat         float64 `json:"fat"`
	ServingSize string  `json:"servingSize,omitempty"`
	Unit        Unit    `json:"unit"`
	Source      Source  `json:"source"`
	// SourceID is the provider-native identifier, set only for providers that
	// expose stable numeric IDs. Nil means identity falls back to ContentKey.
	SourceID *int64 `json:"sourceId,omitempty"`
}

// ContentKey derives the cross-source identity string used for deduplication
// and selection history: lowercase name|brand|calories|protein|carbs|fat.
func (r NutritionRecord) ContentKey() string {
	return strings.Join([]string{
		strings.ToLower(strings.TrimSpace(r.Name)),
		strings.ToLower(strings.TrimSpace(r.Brand)),
		formatMacro(r.Calories),
		formatMacro(r.Protein),
		formatMacro(r.Carbs),
		formatMacro(r.Fat),
	}, "|")
}

func formatMacro(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

type ProviderInfo struct {
	Name    string `json:"name"`
	Label   string `json:"label"`
	Kind    string `json:"kind"`
	Enabled bool   `json:"enabled"`
}

// ProviderStatus reports one provider's contribution to a search pass.
// Count is the raw (pre-filter) record count.
type ProviderStatus struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Count int    `json:"count"`
	Error string `json:"error,omitempty"`
}

type ProviderDiagnostics struct {
	Name                string     `json:"name"`
	Label               string     `json:"label"`
	Kind                string     `json:"kind"`
	Enabled             bool       `json:"enabled"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	BlockedUntil        *time.Time `json:"blockedUntil,omitempty"`
	LastError           string     `json:"lastError,omitempty"`
	LastSuccessAt       *time.Time `json:"lastSuccessAt,omitempty"`
	LastFailureAt       *time.Time `json:"lastFailureAt,omitempty"`
	LastLatencyMS       int64      `json:"lastLatencyMs,omitempty"`
	LastTimeout         bool       `json:"lastTimeout,omitempty"`
	LastQuery           string     `json:"lastQuery,omitempty"`
	TotalRequests       int64      `json:"totalRequests,omitempty"`
	TotalFailures       int64      `json:"totalFailures,omitempty"`
	TimeoutCount        int64      `json:"timeoutCount,omitempty"`
}

// SearchPage is the aggregated response for one page fetch across providers.
type SearchPage struct {
	Query     string            `json:"query"`
	Items     []NutritionRecord `json:"items"`
	Providers []ProviderStatus  `json:"providers"`
	Page      int               `json:"page"`
	PageSize  int               `json:"pageSize"`
	HasMore   bool              `json:"hasMore"`
	ElapsedMS int64             `json:"elapsedMs"`
	Final     bool              `json:"final"`
	Error     string            `json:"error,omitempty"`
}

// HistoryEntry is one ranked selection-history record.
type HistoryEntry struct {
	Record       NutritionRecord `json:"record"`
	Hits         int             `json:"hits"`
	LastSelected time.Time       `json:"lastSelected"`
}
