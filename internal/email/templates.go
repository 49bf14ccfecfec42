package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

var followupTemplate = template.Must(template.New("followup.html").ParseFS(templateFS, "templates/followup.html"))

type followupEmailData struct {
	Title      string
	Greeting   string
	Paragraphs []string
	SignOff    string
}

// RenderFollowup wraps generated plain text in the follow-up HTML layout.
// Blank lines separate paragraphs; the text is escaped by html/template.
func RenderFollowup(subject, recipientName, body, signOff string) (string, error) {
	data := followupEmailData{
		Title:      subject,
		Paragraphs: splitParagraphs(body),
		SignOff:    signOff,
	}
	if strings.TrimSpace(recipientName) != "" && !startsWithGreeting(body) {
		data.Greeting = "Hi " + strings.TrimSpace(recipientName) + ","
	}

	var buf bytes.Buffer
	if err := followupTemplate.ExecuteTemplate(&buf, "email", data); err != nil {
		return "", fmt.Errorf("execute followup template: %w", err)
	}
	return buf.String(), nil
}

func splitParagraphs(body string) []string {
	normalized := strings.ReplaceAll(body, "\r\n", "\n")
	chunks := strings.Split(normalized, "\n\n")
	out := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		trimmed := strings.TrimSpace(chunk)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func startsWithGreeting(body string) bool {
	lower := strings.ToLower(strings.TrimSpace(body))
	for _, prefix := range []string{"hi ", "hello", "dear ", "hey "} {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}
