package email

const (
	subjectLeadWelcomeFmt       = "Thank you for your enquiry with %s"
	subjectLeadAssignedFmt      = "New lead %s assigned to you"
	subjectVisitConfirmationFmt = "Your site visit on %s is confirmed"
)
