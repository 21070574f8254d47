package edamam

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"foodlog/searchservice/internal/domain"
)

const providerName = "edamam"

// Provider queries the Edamam food database parser endpoint. The API has no
// numeric page cursor, so only the first page of a session hits the network;
// later pages report empty.
type Provider struct {
	endpoint  string
	appID     string
	appKey    string
	client    *http.Client
	userAgent string
}

func New(endpoint, appID, appKey string, client *http.Client, userAgent string) *Provider {
	if client == nil {
		client = http.DefaultClient
	}
	return &Provider{
		endpoint:  strings.TrimRight(endpoint, "/"),
		appID:     appID,
		appKey:    appKey,
		client:    client,
		userAgent: userAgent,
	}
}

func (p *Provider) Name() string { return providerName }

func (p *Provider) Info() domain.ProviderInfo {
	return domain.ProviderInfo{
		Name:    providerName,
		Label:   "Edamam Food Database",
		Kind:    "commercial",
		Enabled: p.appID != "" && p.appKey != "",
	}
}

type parserResponse struct {
	Hints []hint `json:"hints"`
}

type hint struct {
	Food foodEntry `json:"food"`
}

type foodEntry struct {
	FoodID    string    `json:"foodId"`
	Label     string    `json:"label"`
	Brand     string    `json:"brand"`
	Nutrients nutrients `json:"nutrients"`
}

// Nutrient codes per Edamam: ENERC_KCAL energy, PROCNT protein, CHOCDF
// carbohydrate, FAT total fat. All per 100 g.
type nutrients struct {
	Energy  float64 `json:"ENERC_KCAL"`
	Protein float64 `json:"PROCNT"`
	Carbs   float64 `json:"CHOCDF"`
	Fat     float64 `json:"FAT"`
}

func (p *Provider) Search(ctx context.Context, query string, pageSize, page int) ([]domain.NutritionRecord, error) {
	if p.appID == "" || p.appKey == "" {
		return nil, fmt.Errorf("edamam: missing credentials")
	}
	if page > 1 {
		return nil, nil
	}

	params := url.Values{}
	params.Set("app_id", p.appID)
	params.Set("app_key", p.appKey)
	params.Set("ingr", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("edamam: build request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("edamam: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("edamam: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload parserResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("edamam: decode: %w", err)
	}

	limit := len(payload.Hints)
	if pageSize > 0 && limit > pageSize {
		limit = pageSize
	}
	records := make([]domain.NutritionRecord, 0, limit)
	for _, h := range payload.Hints[:limit] {
		records = append(records, domain.NutritionRecord{
			Name:        h.Food.Label,
			Brand:       h.Food.Brand,
			Calories:    h.Food.Nutrients.Energy,
			Protein:     h.Food.Nutrients.Protein,
			Carbs:       h.Food.Nutrients.Carbs,
			Fat:         h.Food.Nutrients.Fat,
			ServingSize: "100 g",
			Unit:        domain.UnitGrams,
			Source:      domain.SourceEdamam,
		})
	}
	return records, nil
}
