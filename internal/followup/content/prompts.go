package content

import (
	"fmt"
	"sort"
	"strings"

	"nurture_backend/internal/followup/domain"
)

const systemPrompt = `You are the writing assistant of a residential real estate agent.
You write short, warm, professional follow-up messages to prospective buyers and sellers.

## Rules
- Write as the agent, in the first person, addressed to the lead by first name when known.
- Never invent facts about a property, price or market. Only use the facts you are given.
- Never promise availability, discounts or outcomes.
- Keep a helpful tone; one clear call to action per message.
- Output only the message text. No explanations, no markdown headings.`

var instructions = map[domain.ContentType]string{
	domain.ContentEmail: `Write the body of a follow-up email.
The body has 2 to 4 short paragraphs and ends with a friendly sign-off line without a name.`,
	domain.ContentSMS: `Write a text message of at most %d characters.
Plain text only, no links unless given, no emoji, no greeting line breaks.`,
	domain.ContentCallScript: `Write a phone call script for the agent.
Use short bullet lines: opener, two or three discovery questions, one suggested next step, and a voicemail version of at most two sentences.`,
	domain.ContentSocialPost: `Write a short, friendly direct message suitable for a social network.
At most three sentences, conversational, no hashtags.`,
	domain.ContentPropertyUpdate: `Write a property update message about the listing below.
Mention what is new or noteworthy, why it might suit the lead, and invite them to reply or book a viewing.`,
}

const subjectInstruction = `Start the first line with "Subject: " followed by a subject of at most 70 characters, then a blank line, then the body.`

type promptInput struct {
	contentType     domain.ContentType
	lead            domain.LeadContext
	override        string
	draft           string
	subject         string
	requiredValues  []string
	personalization map[string]string
	smsMaxLength    int
}

func buildPrompt(in promptInput) string {
	var b strings.Builder

	instruction := strings.TrimSpace(in.override)
	if instruction == "" {
		instruction = instructions[in.contentType]
		if in.contentType == domain.ContentSMS {
			instruction = fmt.Sprintf(instruction, in.smsMaxLength)
		}
	}
	if in.contentType == domain.ContentEmail && in.subject == "" {
		instruction += "\n" + subjectInstruction
	}
	b.WriteString("## Task\n")
	b.WriteString(instruction)
	b.WriteString("\n\n")

	b.WriteString("## Lead\n")
	writeFact(&b, "Name", in.lead.Name)
	writeFact(&b, "Source", in.lead.Source)
	writeFact(&b, "Notes", in.lead.Notes)

	if in.lead.Listing != nil {
		b.WriteString("\n## Listing\n")
		writeFact(&b, "Title", in.lead.Listing.Title)
		writeFact(&b, "Address", in.lead.Listing.Address)
		if in.lead.Listing.Price != nil {
			writeFact(&b, "Price", formatPrice(*in.lead.Listing.Price))
		}
	}

	if extra := extraFacts(in.personalization); len(extra) > 0 {
		b.WriteString("\n## Additional details\n")
		for _, line := range extra {
			b.WriteString(line)
		}
	}

	if in.subject != "" && in.contentType == domain.ContentEmail {
		b.WriteString("\n## Subject (fixed, do not write one)\n")
		b.WriteString(in.subject)
		b.WriteString("\n")
	}

	if strings.TrimSpace(in.draft) != "" {
		b.WriteString("\n## Draft to adapt\n")
		b.WriteString(strings.TrimSpace(in.draft))
		b.WriteString("\n")
	}

	if len(in.requiredValues) > 0 {
		b.WriteString("\n## Must include verbatim\n")
		for _, v := range in.requiredValues {
			b.WriteString("- ")
			b.WriteString(v)
			b.WriteString("\n")
		}
	}

	return b.String()
}

func writeFact(b *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	b.WriteString("- ")
	b.WriteString(label)
	b.WriteString(": ")
	b.WriteString(strings.TrimSpace(value))
	b.WriteString("\n")
}

// extraFacts lists caller-supplied values that are not lead or listing fields.
func extraFacts(values map[string]string) []string {
	var out []string
	for key, value := range values {
		if strings.HasPrefix(key, "lead.") || strings.HasPrefix(key, "listing.") || strings.TrimSpace(value) == "" {
			continue
		}
		out = append(out, "- "+key+": "+strings.TrimSpace(value)+"\n")
	}
	sort.Strings(out)
	return out
}

func formatPrice(p float64) string {
	return fmt.Sprintf("%.0f", p)
}
