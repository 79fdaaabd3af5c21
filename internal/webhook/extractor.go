package webhook

import (
	"regexp"
	"strconv"
	"strings"
)

// ExtractedLead holds the fields recovered from raw submission data via
// best-effort label matching.
type ExtractedLead struct {
	Name         string
	Phone        string
	AltPhone     string
	Email        string
	Source       string
	PropertyName string
	PropertyType string
	Locations    []string
	BudgetMin    *float64
	BudgetMax    *float64
	Timeline     string
	Message      string
	VisitDate    string
	VisitTime    string
}

// IsIncomplete reports whether the submission is missing a name or every
// contact method. Such leads are still captured but flagged for review.
func (e ExtractedLead) IsIncomplete() bool {
	hasContact := e.Phone != "" || e.Email != ""
	return e.Name == "" || !hasContact
}

// ExtractLead maps a flat key-value submission onto lead fields. Portals and
// website form builders all label their fields differently, so matching is
// fuzzy: labels are compared with separators stripped, and values win on a
// first-match basis.
func ExtractLead(data map[string]string) ExtractedLead {
	var result ExtractedLead
	var firstName, lastName string

	for key, value := range data {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		label := strings.ToLower(strings.TrimSpace(key))

		switch {
		case matchesAny(label, firstNamePatterns):
			firstName = value
		case matchesAny(label, lastNamePatterns):
			lastName = value
		case matchesAny(label, namePatterns):
			result.Name = value
		case matchesAny(label, emailPatterns):
			if emailRegex.MatchString(value) {
				result.Email = strings.ToLower(value)
			}
		case matchesAny(label, altPhonePatterns):
			result.AltPhone = value
		case matchesAny(label, phonePatterns):
			result.Phone = value
		case matchesAny(label, sourcePatterns):
			result.Source = value
		case matchesAny(label, propertyPatterns):
			result.PropertyName = value
		case matchesAny(label, propertyTypePatterns):
			result.PropertyType = value
		case matchesAny(label, locationPatterns):
			result.Locations = append(result.Locations, splitList(value)...)
		case matchesAny(label, budgetMinPatterns):
			if v, ok := parseAmount(value); ok {
				result.BudgetMin = &v
			}
		case matchesAny(label, budgetMaxPatterns):
			if v, ok := parseAmount(value); ok {
				result.BudgetMax = &v
			}
		case matchesAny(label, budgetPatterns):
			low, high := parseBudget(value)
			if result.BudgetMin == nil {
				result.BudgetMin = low
			}
			if result.BudgetMax == nil {
				result.BudgetMax = high
			}
		case matchesAny(label, timelinePatterns):
			result.Timeline = value
		case matchesAny(label, visitDatePatterns):
			result.VisitDate = value
		case matchesAny(label, visitTimePatterns):
			result.VisitTime = value
		case matchesAny(label, messagePatterns):
			result.Message = value
		}
	}

	if result.Name == "" {
		result.Name = strings.TrimSpace(firstName + " " + lastName)
	}
	return result
}

// Field label patterns, in the variants listing portals and form builders
// actually send. Specific patterns (first/last name, alt phone, budget
// bounds) are matched before their generic counterparts.
var (
	firstNamePatterns = []string{"first_name", "firstname", "fname", "given_name"}
	lastNamePatterns  = []string{"last_name", "lastname", "lname", "surname", "family_name"}
	namePatterns      = []string{"name", "full_name", "fullname", "customer_name", "client_name", "contact_name", "your_name", "lead_name"}
	emailPatterns     = []string{"email", "e-mail", "email_address", "emailaddress", "mail", "email_id"}
	altPhonePatterns  = []string{"alt_phone", "altphone", "alternate_phone", "alternate_number", "secondary_phone", "secondary_number", "whatsapp"}
	phonePatterns     = []string{"phone", "mobile", "mobile_no", "mobile_number", "contact", "contact_no", "contact_number", "phone_number", "phonenumber", "tel", "telephone"}
	sourcePatterns    = []string{"source", "lead_source", "utm_source", "platform", "portal", "channel"}
	propertyPatterns  = []string{"property", "property_name", "project", "project_name", "listing", "listing_name", "interested_in"}

	propertyTypePatterns = []string{"property_type", "propertytype", "bhk", "configuration", "unit_type", "category", "flat_type"}
	locationPatterns     = []string{"location", "locality", "area", "city", "preferred_location", "preferred_locations", "sector", "neighbourhood"}
	budgetMinPatterns    = []string{"budget_min", "min_budget", "price_min", "min_price"}
	budgetMaxPatterns    = []string{"budget_max", "max_budget", "price_max", "max_price"}
	budgetPatterns       = []string{"budget", "price", "price_range", "budget_range"}
	timelinePatterns     = []string{"timeline", "timeframe", "time_frame", "purchase_timeline", "possession", "urgency", "buying_in"}
	visitDatePatterns    = []string{"visit_date", "site_visit_date", "preferred_visit_date", "visit_on", "sitevisit_date"}
	visitTimePatterns    = []string{"visit_time", "site_visit_time", "preferred_visit_time", "sitevisit_time"}
	messagePatterns      = []string{"message", "comments", "comment", "remarks", "requirement", "requirements", "description", "notes", "query", "enquiry", "inquiry", "details"}
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

var labelNormalizer = strings.NewReplacer("-", "", "_", "", " ", "", ".", "")

// matchesAny compares a label to the patterns with separators stripped, so
// "Contact-No", "contact no" and "contact_no" all land in the same bucket.
func matchesAny(label string, patterns []string) bool {
	normalized := labelNormalizer.Replace(label)
	for _, p := range patterns {
		if normalized == labelNormalizer.Replace(p) {
			return true
		}
	}
	return false
}

// splitList breaks a comma- or slash-separated value into trimmed entries.
func splitList(value string) []string {
	parts := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == '/' || r == ';'
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// parseBudget handles a single figure ("75 lakh") or a range
// ("50L - 80L", "1 to 1.5 cr"). A lone figure becomes the upper bound, which
// is what the scoring bands read.
func parseBudget(value string) (low, high *float64) {
	parts := splitRange(value)
	switch len(parts) {
	case 1:
		if v, ok := parseAmount(parts[0]); ok {
			high = &v
		}
	case 2:
		lo, okLo := parseAmount(parts[0])
		hi, okHi := parseAmount(parts[1])
		if okLo && okHi && lo > hi {
			lo, hi = hi, lo
		}
		if okLo {
			low = &lo
		}
		if okHi {
			high = &hi
		}
	}
	return low, high
}

func splitRange(value string) []string {
	lower := strings.ToLower(value)
	for _, sep := range []string{" to ", "-", "–"} {
		if strings.Contains(lower, sep) {
			parts := strings.SplitN(lower, sep, 2)
			return []string{strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])}
		}
	}
	return []string{strings.TrimSpace(lower)}
}

// Amount multipliers for Indian market shorthand.
var amountSuffixes = []struct {
	suffix     string
	multiplier float64
}{
	{"crores", 1e7}, {"crore", 1e7}, {"cr", 1e7},
	{"lakhs", 1e5}, {"lakh", 1e5}, {"lacs", 1e5}, {"lac", 1e5}, {"l", 1e5},
	{"k", 1e3},
}

// parseAmount reads "7500000", "75,00,000", "75 lakh", "1.2cr" and the like.
func parseAmount(value string) (float64, bool) {
	cleaned := strings.ToLower(strings.TrimSpace(value))
	cleaned = strings.TrimPrefix(cleaned, "₹")
	cleaned = strings.TrimPrefix(cleaned, "rs.")
	cleaned = strings.TrimPrefix(cleaned, "rs")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return 0, false
	}

	multiplier := 1.0
	for _, s := range amountSuffixes {
		if strings.HasSuffix(cleaned, s.suffix) {
			multiplier = s.multiplier
			cleaned = strings.TrimSpace(strings.TrimSuffix(cleaned, s.suffix))
			break
		}
	}

	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v * multiplier, true
}
