package edamam

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"foodlog/searchservice/internal/domain"
)

const parserPayload = `{
	"text": "yogurt",
	"hints": [
		{
			"food": {
				"foodId": "food_a1gb9ubb72c7snbuxr3weagwv0dd",
				"label": "Greek Yogurt",
				"brand": "Fage",
				"nutrients": {"ENERC_KCAL": 97, "PROCNT": 9, "CHOCDF": 3.8, "FAT": 5}
			}
		},
		{
			"food": {
				"foodId": "food_bpumdjzb5rtqaeabb0kbgbcgr4t9",
				"label": "Yogurt",
				"nutrients": {"ENERC_KCAL": 61}
			}
		}
	]
}`

func TestSearchMapsHints(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("app_id") != "id" || q.Get("app_key") != "key" {
			t.Error("credentials missing from request")
		}
		if q.Get("ingr") != "yogurt" {
			t.Errorf("unexpected ingr %q", q.Get("ingr"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(parserPayload))
	}))
	defer server.Close()

	p := New(server.URL, "id", "key", server.Client(), "test-agent")
	records, err := p.Search(context.Background(), "yogurt", 25, 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	first := records[0]
	if first.Name != "Greek Yogurt" || first.Brand != "Fage" {
		t.Fatalf("unexpected identity: %+v", first)
	}
	if first.Calories != 97 || first.Protein != 9 || first.Carbs != 3.8 || first.Fat != 5 {
		t.Fatalf("unexpected macros: %+v", first)
	}
	if first.Source != domain.SourceEdamam || first.SourceID != nil {
		t.Fatalf("unexpected provenance: %+v", first)
	}
	if first.ServingSize != "100 g" || first.Unit != domain.UnitGrams {
		t.Fatalf("unexpected serving: %q %q", first.ServingSize, first.Unit)
	}
}

func TestSearchTruncatesToPageSize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(parserPayload))
	}))
	defer server.Close()

	p := New(server.URL, "id", "key", server.Client(), "test-agent")
	records, err := p.Search(context.Background(), "yogurt", 1, 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected pageSize truncation to 1, got %d", len(records))
	}
}

func TestSearchLaterPagesAreEmpty(t *testing.T) {
	var called bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.Write([]byte(parserPayload))
	}))
	defer server.Close()

	p := New(server.URL, "id", "key", server.Client(), "test-agent")
	records, err := p.Search(context.Background(), "yogurt", 25, 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if records != nil {
		t.Fatalf("expected no records for page 2, got %v", records)
	}
	if called {
		t.Fatal("page 2 must not hit the network")
	}
}

func TestSearchMissingCredentials(t *testing.T) {
	p := New("http://unused", "", "", nil, "test-agent")
	if _, err := p.Search(context.Background(), "yogurt", 25, 1); err == nil {
		t.Fatal("expected error without credentials")
	}
}
