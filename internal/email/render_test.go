package email

import (
	"strings"
	"testing"
)

func TestRenderLeadWelcome(t *testing.T) {
	subject, body, err := RenderLeadWelcome(LeadWelcomeData{
		LeadName:   "Priya Sharma",
		AgencyName: "Sunrise Realty",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(subject, "Sunrise Realty") {
		t.Errorf("subject %q should mention the agency", subject)
	}
	if !strings.Contains(body, "Priya Sharma") {
		t.Errorf("body should greet the lead by name")
	}
	if !strings.Contains(body, "<html") {
		t.Errorf("body should be a full html document")
	}
}

func TestRenderLeadAssignedIncludesCTA(t *testing.T) {
	subject, body, err := RenderLeadAssigned(LeadAssignedData{
		AgentName:  "Ravi Kumar",
		LeadNumber: "LEAD-2025-00042",
		LeadName:   "Priya Sharma",
		Source:     "website",
		LeadURL:    "https://app.example.com/leads/abc",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(subject, "LEAD-2025-00042") {
		t.Errorf("subject %q should carry the lead number", subject)
	}
	if !strings.Contains(body, "https://app.example.com/leads/abc") {
		t.Errorf("body should link to the lead")
	}
	if !strings.Contains(body, "Open lead") {
		t.Errorf("body should render the CTA button")
	}
}

func TestRenderVisitConfirmation(t *testing.T) {
	subject, body, err := RenderVisitConfirmation(VisitConfirmationData{
		LeadName:     "Priya Sharma",
		PropertyName: "Green Acres Phase 2",
		VisitDate:    "Monday, 2 March 2026",
		VisitTime:    "4:30 PM",
		AgencyName:   "Sunrise Realty",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(subject, "Monday, 2 March 2026") {
		t.Errorf("subject %q should carry the visit date", subject)
	}
	for _, want := range []string{"Green Acres Phase 2", "4:30 PM", "Sunrise Realty"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}
}

func TestRenderEscapesHTMLInNames(t *testing.T) {
	_, body, err := RenderLeadWelcome(LeadWelcomeData{
		LeadName:   `<script>alert("x")</script>`,
		AgencyName: "Sunrise Realty",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(body, "<script>") {
		t.Error("template must escape user-supplied names")
	}
}
