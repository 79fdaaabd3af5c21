package webhook

import (
	"reflect"
	"testing"
)

func TestExtractLeadMapsPortalLabels(t *testing.T) {
	fields := map[string]string{
		"Full Name":          "Priya Sharma",
		"Mobile No":          "98765 43210",
		"email":              "priya@example.com",
		"utm_source":         "magicbricks",
		"Project":            "Green Acres Phase 2",
		"bhk":                "3BHK",
		"Preferred Location": "Whitefield, HSR Layout",
		"Budget":             "50L - 80L",
		"possession":         "3-6 months",
		"remarks":            "wants a corner unit",
		"visit_date":         "2026-09-01",
		"visit_time":         "11:00",
	}

	got := ExtractLead(fields)

	if got.Name != "Priya Sharma" {
		t.Errorf("Name = %q", got.Name)
	}
	if got.Phone != "98765 43210" {
		t.Errorf("Phone = %q", got.Phone)
	}
	if got.Email != "priya@example.com" {
		t.Errorf("Email = %q", got.Email)
	}
	if got.Source != "magicbricks" {
		t.Errorf("Source = %q", got.Source)
	}
	if got.PropertyName != "Green Acres Phase 2" {
		t.Errorf("PropertyName = %q", got.PropertyName)
	}
	if got.PropertyType != "3BHK" {
		t.Errorf("PropertyType = %q", got.PropertyType)
	}
	if want := []string{"Whitefield", "HSR Layout"}; !reflect.DeepEqual(got.Locations, want) {
		t.Errorf("Locations = %v, want %v", got.Locations, want)
	}
	if got.BudgetMin == nil || *got.BudgetMin != 5_000_000 {
		t.Errorf("BudgetMin = %v, want 5000000", got.BudgetMin)
	}
	if got.BudgetMax == nil || *got.BudgetMax != 8_000_000 {
		t.Errorf("BudgetMax = %v, want 8000000", got.BudgetMax)
	}
	if got.Timeline != "3-6 months" {
		t.Errorf("Timeline = %q", got.Timeline)
	}
	if got.Message != "wants a corner unit" {
		t.Errorf("Message = %q", got.Message)
	}
	if got.VisitDate != "2026-09-01" || got.VisitTime != "11:00" {
		t.Errorf("visit = %q %q", got.VisitDate, got.VisitTime)
	}
}

func TestExtractLeadAssemblesSplitName(t *testing.T) {
	got := ExtractLead(map[string]string{
		"first_name": "Rahul",
		"last_name":  "Verma",
		"contact_no": "9876543210",
	})
	if got.Name != "Rahul Verma" {
		t.Errorf("Name = %q, want %q", got.Name, "Rahul Verma")
	}
}

func TestExtractLeadPrefersExplicitFullName(t *testing.T) {
	got := ExtractLead(map[string]string{
		"name":       "Anita Desai",
		"first_name": "A",
	})
	if got.Name != "Anita Desai" {
		t.Errorf("Name = %q, want %q", got.Name, "Anita Desai")
	}
}

func TestExtractLeadRejectsMalformedEmail(t *testing.T) {
	got := ExtractLead(map[string]string{"email": "not-an-email"})
	if got.Email != "" {
		t.Errorf("Email = %q, want empty", got.Email)
	}
}

func TestExtractLeadSeparatesAltPhone(t *testing.T) {
	got := ExtractLead(map[string]string{
		"phone":           "9876543210",
		"alternate_phone": "9123456780",
	})
	if got.Phone != "9876543210" || got.AltPhone != "9123456780" {
		t.Errorf("Phone = %q, AltPhone = %q", got.Phone, got.AltPhone)
	}
}

func TestExtractLeadExplicitBoundsWinOverRange(t *testing.T) {
	got := ExtractLead(map[string]string{
		"budget_min": "6000000",
		"budget_max": "9000000",
		"budget":     "50L - 80L",
	})
	if got.BudgetMin == nil || *got.BudgetMin != 6_000_000 {
		t.Errorf("BudgetMin = %v", got.BudgetMin)
	}
	if got.BudgetMax == nil || *got.BudgetMax != 9_000_000 {
		t.Errorf("BudgetMax = %v", got.BudgetMax)
	}
}

func TestExtractedLeadIncomplete(t *testing.T) {
	tests := []struct {
		name string
		lead ExtractedLead
		want bool
	}{
		{"name and phone", ExtractedLead{Name: "A", Phone: "9876543210"}, false},
		{"name and email", ExtractedLead{Name: "A", Email: "a@b.co"}, false},
		{"no name", ExtractedLead{Phone: "9876543210"}, true},
		{"no contact", ExtractedLead{Name: "A"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.lead.IsIncomplete(); got != tt.want {
				t.Errorf("IsIncomplete() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"7500000", 7_500_000, true},
		{"75,00,000", 7_500_000, true},
		{"75 lakh", 7_500_000, true},
		{"75L", 7_500_000, true},
		{"1.2cr", 12_000_000, true},
		{"2 crores", 20_000_000, true},
		{"₹50 lacs", 5_000_000, true},
		{"rs 500k", 500_000, true},
		{"flexible", 0, false},
		{"", 0, false},
		{"-500", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := parseAmount(tt.in)
			if ok != tt.ok || got != tt.want {
				t.Errorf("parseAmount(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestParseBudgetSingleFigureBecomesUpperBound(t *testing.T) {
	low, high := parseBudget("75 lakh")
	if low != nil {
		t.Errorf("low = %v, want nil", *low)
	}
	if high == nil || *high != 7_500_000 {
		t.Errorf("high = %v, want 7500000", high)
	}
}

func TestParseBudgetReordersInvertedRange(t *testing.T) {
	low, high := parseBudget("80L - 50L")
	if low == nil || *low != 5_000_000 {
		t.Errorf("low = %v, want 5000000", low)
	}
	if high == nil || *high != 8_000_000 {
		t.Errorf("high = %v, want 8000000", high)
	}
}
