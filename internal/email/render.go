package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

type baseEmailData struct {
	Title      string
	Heading    string
	Subheading string
	CTALabel   string
	CTAURL     string
}

// LeadWelcomeData fills the enquiry acknowledgement sent to a new lead.
type LeadWelcomeData struct {
	LeadName   string
	AgencyName string
}

// LeadAssignedData fills the hand-off email sent to an agent.
type LeadAssignedData struct {
	AgentName  string
	LeadNumber string
	LeadName   string
	Source     string
	LeadURL    string
}

// VisitConfirmationData fills the site-visit confirmation sent to the lead.
type VisitConfirmationData struct {
	LeadName     string
	PropertyName string
	VisitDate    string
	VisitTime    string
	AgencyName   string
}

type leadWelcomeEmail struct {
	baseEmailData
	LeadWelcomeData
}

type leadAssignedEmail struct {
	baseEmailData
	LeadAssignedData
}

type visitConfirmationEmail struct {
	baseEmailData
	VisitConfirmationData
}

// RenderLeadWelcome produces the subject and HTML body for the enquiry
// acknowledgement.
func RenderLeadWelcome(d LeadWelcomeData) (string, string, error) {
	subject := fmt.Sprintf(subjectLeadWelcomeFmt, d.AgencyName)
	body, err := renderEmailTemplate("lead_welcome.html", leadWelcomeEmail{
		baseEmailData: baseEmailData{
			Title:   "Enquiry received",
			Heading: "Thank you for your enquiry",
		},
		LeadWelcomeData: d,
	})
	return subject, body, err
}

// RenderLeadAssigned produces the subject and HTML body for the agent
// hand-off email.
func RenderLeadAssigned(d LeadAssignedData) (string, string, error) {
	subject := fmt.Sprintf(subjectLeadAssignedFmt, d.LeadNumber)
	body, err := renderEmailTemplate("lead_assigned.html", leadAssignedEmail{
		baseEmailData: baseEmailData{
			Title:    "New lead assigned",
			Heading:  "New lead assigned",
			CTALabel: "Open lead",
			CTAURL:   d.LeadURL,
		},
		LeadAssignedData: d,
	})
	return subject, body, err
}

// RenderVisitConfirmation produces the subject and HTML body for the
// site-visit confirmation.
func RenderVisitConfirmation(d VisitConfirmationData) (string, string, error) {
	subject := fmt.Sprintf(subjectVisitConfirmationFmt, d.VisitDate)
	body, err := renderEmailTemplate("visit_confirmation.html", visitConfirmationEmail{
		baseEmailData: baseEmailData{
			Title:   "Site visit confirmed",
			Heading: "Site visit confirmed",
		},
		VisitConfirmationData: d,
	})
	return subject, body, err
}

func renderEmailTemplate(name string, data any) (string, error) {
	templates := []string{"templates/base.html", "templates/" + name}
	tmpl, err := template.New("base.html").ParseFS(templateFS, templates...)
	if err != nil {
		return "", fmt.Errorf("parse email template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "email", data); err != nil {
		return "", fmt.Errorf("execute email template %s: %w", name, err)
	}
	return buf.String(), nil
}
