package notification

import (
	"fmt"
	"time"
)

// In-app titles. Bodies stay short: the row links to the resource and the
// UI shows the rest there.
const (
	titleLeadAssigned   = "New lead assigned"
	titleVisitScheduled = "Site visit scheduled"
	titleHotVisit       = "Hot visit feedback"
	titleReminderDue    = "Reminder due"
)

func bodyLeadAssigned(leadNumber, leadName string) string {
	return fmt.Sprintf("Lead %s (%s) has been assigned to you.", leadNumber, leadName)
}

func bodyVisitScheduled(leadName, propertyName, visitDate, visitTime string) string {
	return fmt.Sprintf("Visit with %s at %s on %s, %s.", leadName, propertyName, visitDate, visitTime)
}

func bodyHotVisit(leadName string) string {
	return fmt.Sprintf("%s showed high interest during the site visit. Follow up while it is warm.", leadName)
}

func bodyReminderDue(leadName, message string) string {
	if message == "" {
		return fmt.Sprintf("You have a reminder on lead %s.", leadName)
	}
	return fmt.Sprintf("%s (lead %s)", message, leadName)
}

// SMS bodies go out through the gateway as-is; keep them inside a single
// 160-character segment where the names allow it.
func smsLeadWelcome(leadName, agencyName string) string {
	return fmt.Sprintf("Hi %s, thank you for your enquiry with %s. Our team will contact you shortly.", leadName, agencyName)
}

func smsVisitConfirmation(leadName, propertyName, visitDate, visitTime string) string {
	return fmt.Sprintf("Hi %s, your site visit at %s on %s, %s is confirmed.", leadName, propertyName, visitDate, visitTime)
}

// formatVisitTime renders the visit moment in the agency's timezone for
// lead-facing messages. Unknown zone names fall back to UTC.
func formatVisitTime(t time.Time, tz string) (string, string) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return local.Format("Monday, 2 January 2006"), local.Format("3:04 PM")
}
