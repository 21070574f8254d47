package domain

import "testing"

func TestContentKey(t *testing.T) {
	r := NutritionRecord{Name: " Pear ", Brand: "Dole", Calories: 57, Protein: 0.4, Carbs: 15, Fat: 0.1}
	want := "pear|dole|57|0.4|15|0.1"
	if got := r.ContentKey(); got != want {
		t.Fatalf("ContentKey() = %q, want %q", got, want)
	}
}

func TestContentKeyIgnoresSourceFields(t *testing.T) {
	id := int64(42)
	a := NutritionRecord{Name: "pear", Calories: 57, Source: SourceUSDAFDC, SourceID: &id}
	b := NutritionRecord{Name: "pear", Calories: 57, Source: SourceOpenFoodFacts}
	if a.ContentKey() != b.ContentKey() {
		t.Fatal("records differing only in provenance must share a content key")
	}
}

func TestNormalizeUnit(t *testing.T) {
	tests := []struct {
		in   string
		want Unit
	}{
		{"g", UnitGrams},
		{"G", UnitGrams},
		{"ml", UnitMilliliters},
		{" ML ", UnitMilliliters},
		{"fl oz", UnitMilliliters},
		{"oz", UnitGrams},
		{"", UnitGrams},
		{"serving", UnitGrams},
	}
	for _, tc := range tests {
		if got := NormalizeUnit(tc.in); got != tc.want {
			t.Errorf("NormalizeUnit(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
