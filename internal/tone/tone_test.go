package tone

import (
	"strings"
	"testing"
)

func TestValidateTagsFiltersUnknown(t *testing.T) {
	got := ValidateTags([]string{"concise", "sarcastic", "Formal", " casual "})
	want := []string{"concise", "formal"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestValidateTagsDeduplicates(t *testing.T) {
	got := ValidateTags([]string{"concise", "concise", "CONCISE"})
	if len(got) != 1 {
		t.Errorf("expected 1 tag, got %v", got)
	}
}

func TestValidateTagsMutualExclusion(t *testing.T) {
	got := ValidateTags([]string{"detailed", "concise"})
	if len(got) != 1 || got[0] != "detailed" {
		t.Errorf("expected first-listed tag to win, got %v", got)
	}
	got = ValidateTags([]string{"no_emojis", "emojis_ok", "casual"})
	if len(got) != 2 || got[0] != "no_emojis" || got[1] != "casual" {
		t.Errorf("expected [no_emojis casual], got %v", got)
	}
}

func TestBuildToneGuide(t *testing.T) {
	if guide := BuildToneGuide(nil); guide != "" {
		t.Errorf("expected empty guide for no tags, got %q", guide)
	}
	guide := BuildToneGuide([]string{"concise", "direct_coach"})
	if !strings.Contains(guide, "concise") {
		t.Errorf("expected concise rule in guide, got %q", guide)
	}
	if !strings.Contains(guide, "direct coach") {
		t.Errorf("expected stance rule in guide, got %q", guide)
	}
	// Stance always present, defaulting to neutral.
	guide = BuildToneGuide([]string{"concise"})
	if !strings.Contains(guide, "neutral, professional") {
		t.Errorf("expected default stance, got %q", guide)
	}
}
