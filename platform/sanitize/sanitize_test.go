package sanitize

import (
	"testing"
	"unicode/utf8"
)

func TestTextStripsTagsAndCollapsesSpaces(t *testing.T) {
	got := Text("<p>Hi   <b>Dana</b>,\tsee you soon</p>")
	if got != "Hi Dana, see you soon" {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestStripHTMLRemovesEncodedTags(t *testing.T) {
	if got := StripHTML("&lt;script&gt;alert(1)&lt;/script&gt;ok"); got != "alert(1)ok" {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestTruncateRespectsRuneBoundaries(t *testing.T) {
	input := "Café open house on Saturday 🏡 come by"
	got := Truncate(input, 30)
	if utf8.RuneCountInString(got) > 30 {
		t.Fatalf("expected at most 30 runes, got %d", utf8.RuneCountInString(got))
	}
	if !utf8.ValidString(got) {
		t.Fatalf("truncated string is not valid utf-8: %q", got)
	}
	if Truncate("short", 30) != "short" {
		t.Fatal("expected short input to be unchanged")
	}
}
