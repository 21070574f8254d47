package openfoodfacts

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

const providerName = "openfoodfacts"

// Provider queries the Open Food Facts community database. Coverage of
// packaged European products is excellent; data quality varies, which is what
// the downstream filter pipeline is for. It also resolves barcodes.
type Provider struct {
	searchEndpoint  string
	productEndpoint string
	client          *http.Client
	userAgent       string
}

func New(searchEndpoint, productEndpoint string, client *http.Client, userAgent string) *Provider {
	if client == nil {
		client = http.DefaultClient
	}
	return &Provider{
		searchEndpoint:  strings.TrimRight(searchEndpoint, "/"),
		productEndpoint: strings.TrimRight(productEndpoint, "/"),
		client:          client,
		userAgent:       userAgent,
	}
}

func (p *Provider) Name() string { return providerName }

func (p *Provider) Info() domain.ProviderInfo {
	return domain.ProviderInfo{
		Name:    providerName,
		Label:   "Open Food Facts",
		Kind:    "community",
		Enabled: true,
	}
}

type searchResponse struct {
	Count    int       `json:"count"`
	Products []product `json:"products"`
}

type productResponse struct {
	Status  int     `json:"status"`
	Product product `json:"product"`
}

type product struct {
	Code        string     `json:"code"`
	ProductName string     `json:"product_name"`
	Brands      string     `json:"brands"`
	ServingSize string     `json:"serving_size"`
	Nutriments  nutriments `json:"nutriments"`
}

// Nutriment values arrive as numbers or strings depending on how the product
// was entered, so every field decodes through interface{}.
type nutriments struct {
	EnergyKcal100g interface{} `json:"energy-kcal_100g"`
	Proteins100g   interface{} `json:"proteins_100g"`
	Carbs100g      interface{} `json:"carbohydrates_100g"`
	Fat100g        interface{} `json:"fat_100g"`
}

func (p *Provider) Search(ctx context.Context, query string, pageSize, page int) ([]domain.NutritionRecord, error) {
	params := url.Values{}
	params.Set("search_terms", query)
	params.Set("search_simple", "1")
	params.Set("action", "process")
	params.Set("json", "1")
	params.Set("page_size", strconv.Itoa(pageSize))
	params.Set("page", strconv.Itoa(page))
	params.Set("fields", "code,product_name,brands,serving_size,nutriments")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.searchEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("openfoodfacts: build request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openfoodfacts: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("openfoodfacts: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("openfoodfacts: decode: %w", err)
	}

	records := make([]domain.NutritionRecord, 0, len(payload.Products))
	for _, item := range payload.Products {
		records = append(records, mapProduct(item))
	}
	return records, nil
}

// LookupBarcode resolves one product by its barcode.
func (p *Provider) LookupBarcode(ctx context.Context, code string) (*domain.NutritionRecord, error) {
	endpoint := p.productEndpoint + "/" + url.PathEscape(code) + ".json"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("openfoodfacts: build request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openfoodfacts: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("openfoodfacts: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload productResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("openfoodfacts: decode: %w", err)
	}
	if payload.Status != 1 {
		return nil, nil
	}
	record := mapProduct(payload.Product)
	return &record, nil
}

func mapProduct(item product) domain.NutritionRecord {
	record := domain.NutritionRecord{
		Name:        item.ProductName,
		Brand:       firstBrand(item.Brands),
		Source:      domain.SourceOpenFoodFacts,
		ServingSize: strings.TrimSpace(item.ServingSize),
		Unit:        domain.NormalizeUnit(servingUnit(item.ServingSize)),
		Calories:    toFloat(item.Nutriments.EnergyKcal100g),
		Protein:     toFloat(item.Nutriments.Proteins100g),
		Carbs:       toFloat(item.Nutriments.Carbs100g),
		Fat:         toFloat(item.Nutriments.Fat100g),
	}
	if id, err := strconv.ParseInt(strings.TrimSpace(item.Code), 10, 64); err == nil {
		record.SourceID = &id
	}
	if record.ServingSize == "" {
		record.ServingSize = "100 " + string(record.Unit)
	}
	return record
}

// firstBrand takes the first entry of the comma-separated brands field.
func firstBrand(brands string) string {
	if i := strings.IndexByte(brands, ','); i >= 0 {
		brands = brands[:i]
	}
	return strings.TrimSpace(brands)
}

// servingUnit pulls the trailing unit token out of strings like "330 ml".
func servingUnit(servingSize string) string {
	fields := strings.Fields(servingSize)
	if len(fields) == 0 {
		return ""
	}
	return strings.TrimFunc(fields[len(fields)-1], func(r rune) bool {
		return r >= '0' && r <= '9' || r == '.' || r == ','
	})
}

func toFloat(value interface{}) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		return parsed
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}
