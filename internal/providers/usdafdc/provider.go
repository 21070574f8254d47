package usdafdc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"foodlog/searchservice/internal/domain"
)

const providerName = "usdafdc"

// Provider queries the USDA FoodData Central search API. Results are mostly
// generic and branded US foods with lab-grade nutrient data and stable
// numeric IDs.
type Provider struct {
	endpoint  string
	apiKey    string
	client    *http.Client
	userAgent string
}

func New(endpoint, apiKey string, client *http.Client, userAgent string) *Provider {
	if client == nil {
		client = http.DefaultClient
	}
	return &Provider{
		endpoint:  strings.TrimRight(endpoint, "/"),
		apiKey:    apiKey,
		client:    client,
		userAgent: userAgent,
	}
}

func (p *Provider) Name() string { return providerName }

func (p *Provider) Info() domain.ProviderInfo {
	return domain.ProviderInfo{
		Name:    providerName,
		Label:   "USDA FoodData Central",
		Kind:    "government",
		Enabled: p.apiKey != "",
	}
}

type searchResponse struct {
	TotalHits int    `json:"totalHits"`
	Foods     []food `json:"foods"`
}

type food struct {
	FdcID           int64      `json:"fdcId"`
	Description     string     `json:"description"`
	BrandOwner      string     `json:"brandOwner"`
	BrandName       string     `json:"brandName"`
	ServingSize     float64    `json:"servingSize"`
	ServingSizeUnit string     `json:"servingSizeUnit"`
	FoodNutrients   []nutrient `json:"foodNutrients"`
}

type nutrient struct {
	NutrientNumber string  `json:"nutrientNumber"`
	UnitName       string  `json:"unitName"`
	Value          float64 `json:"value"`
}

// Nutrient numbers from the FDC dictionary: 208 energy (kcal), 203 protein,
// 205 carbohydrate by difference, 204 total fat.
const (
	numEnergy  = "208"
	numProtein = "203"
	numCarbs   = "205"
	numFat     = "204"
)

func (p *Provider) Search(ctx context.Context, query string, pageSize, page int) ([]domain.NutritionRecord, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("usdafdc: missing api key")
	}

	params := url.Values{}
	params.Set("api_key", p.apiKey)
	params.Set("query", query)
	params.Set("pageSize", strconv.Itoa(pageSize))
	params.Set("pageNumber", strconv.Itoa(page))
	params.Set("dataType", "Branded,Foundation,SR Legacy")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("usdafdc: build request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("usdafdc: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("usdafdc: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("usdafdc: decode: %w", err)
	}

	records := make([]domain.NutritionRecord, 0, len(payload.Foods))
	for _, item := range payload.Foods {
		records = append(records, mapFood(item))
	}
	return records, nil
}

func mapFood(item food) domain.NutritionRecord {
	id := item.FdcID
	record := domain.NutritionRecord{
		Name:     item.Description,
		Brand:    firstNonEmpty(item.BrandName, item.BrandOwner),
		Source:   domain.SourceUSDAFDC,
		SourceID: &id,
		Unit:     domain.NormalizeUnit(item.ServingSizeUnit),
	}
	if item.ServingSize > 0 {
		record.ServingSize = strconv.FormatFloat(item.ServingSize, 'f', -1, 64) + " " + string(record.Unit)
	}
	for _, n := range item.FoodNutrients {
		switch n.NutrientNumber {
		case numEnergy:
			if strings.EqualFold(n.UnitName, "kcal") {
				record.Calories = n.Value
			}
		case numProtein:
			record.Protein = n.Value
		case numCarbs:
			record.Carbs = n.Value
		case numFat:
			record.Fat = n.Value
		}
	}
	return record
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
