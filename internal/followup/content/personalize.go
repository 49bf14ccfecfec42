package content

import (
	"regexp"
	"strings"

	"nurture_backend/internal/followup/domain"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// Personalization returns the placeholder values known for a lead.
func Personalization(lead domain.LeadContext) map[string]string {
	values := map[string]string{
		"lead.name":   lead.Name,
		"lead.email":  lead.Email,
		"lead.phone":  lead.Phone,
		"lead.source": lead.Source,
	}
	if first, _, _ := strings.Cut(strings.TrimSpace(lead.Name), " "); first != "" {
		values["lead.first_name"] = first
	}
	if lead.Listing != nil {
		values["listing.title"] = lead.Listing.Title
		values["listing.address"] = lead.Listing.Address
		if lead.Listing.Price != nil {
			values["listing.price"] = formatPrice(*lead.Listing.Price)
		}
	}
	return values
}

// Render replaces {{key}} placeholders with values. Unknown keys render empty.
func Render(template string, values map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		key := placeholderPattern.FindStringSubmatch(match)[1]
		return values[key]
	})
}

// requiredValues resolves the requested personalization fields to the
// non-empty values that must appear in the output.
func requiredValues(fields []string, values map[string]string) []string {
	seen := map[string]bool{}
	var out []string
	for _, field := range fields {
		v := strings.TrimSpace(values[strings.TrimSpace(field)])
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// QualityScore is the fraction of required values present in text.
func QualityScore(text string, required []string) float64 {
	if len(required) == 0 {
		return 1.0
	}
	lower := strings.ToLower(text)
	found := 0
	for _, v := range required {
		if strings.Contains(lower, strings.ToLower(v)) {
			found++
		}
	}
	return float64(found) / float64(len(required))
}

// EstimateTokens approximates the token count of text as ceil(bytes/4).
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// splitSubject separates a leading "Subject:" line from an email body.
func splitSubject(text string) (string, string) {
	trimmed := strings.TrimSpace(text)
	first, rest, _ := strings.Cut(trimmed, "\n")
	if len(first) < len("subject:") || !strings.EqualFold(first[:len("subject:")], "subject:") {
		return "", trimmed
	}
	return strings.TrimSpace(first[len("subject:"):]), strings.TrimSpace(rest)
}
