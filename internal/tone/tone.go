// Package tone provides a fixed whitelist of communication style tags,
// validation with mutual-exclusion enforcement, and prompt-guide
// construction. Users pick tags explicitly; the dialogue layer injects
// the resulting guide into persona system prompts.
package tone

import (
	"strings"
)

// AllTags is the hard-coded set of safe style tags.
var AllTags = map[string]bool{
	// Style
	"concise":       true,
	"detailed":      true,
	"formal":        true,
	"casual":        true,
	"no_emojis":     true,
	"emojis_ok":     true,
	"bullet_points": true,
	// Stance
	"warm_supportive":      true,
	"neutral_professional": true,
	"direct_coach":         true,
	"gentle_coach":         true,
}

// mutuallyExclusivePairs defines tags where at most one may be active.
var mutuallyExclusivePairs = [][2]string{
	{"concise", "detailed"},
	{"formal", "casual"},
	{"no_emojis", "emojis_ok"},
	{"direct_coach", "gentle_coach"},
}

// ValidateTags normalizes and filters a tag list: unknown tags are
// dropped, duplicates collapsed, and mutually exclusive conflicts
// resolved in favor of the tag that appeared first.
func ValidateTags(tags []string) []string {
	var cleaned []string
	seen := map[string]bool{}
	for _, t := range tags {
		t = strings.TrimSpace(strings.ToLower(t))
		if AllTags[t] && !seen[t] {
			cleaned = append(cleaned, t)
			seen[t] = true
		}
	}
	for _, pair := range mutuallyExclusivePairs {
		if !seen[pair[0]] || !seen[pair[1]] {
			continue
		}
		// Earlier position wins; drop the other tag.
		loser := pair[1]
		for _, t := range cleaned {
			if t == pair[0] {
				break
			}
			if t == pair[1] {
				loser = pair[0]
				break
			}
		}
		seen[loser] = false
		kept := cleaned[:0]
		for _, t := range cleaned {
			if t != loser {
				kept = append(kept, t)
			}
		}
		cleaned = kept
	}
	return cleaned
}

// BuildToneGuide produces a compact instruction snippet for injection
// into system prompts. It returns an empty string when there are no
// active tags.
func BuildToneGuide(tags []string) string {
	if len(tags) == 0 {
		return ""
	}

	set := make(map[string]bool, len(tags))
	for _, t := range tags {
		set[t] = true
	}

	var b strings.Builder
	b.WriteString("\n<TONE POLICY>\nAdapt your responses to the user's communication style:\n")

	if set["concise"] {
		b.WriteString("- Be concise: short sentences, minimal filler.\n")
	}
	if set["detailed"] {
		b.WriteString("- Be detailed: provide slightly more explanation, but avoid rambling.\n")
	}
	if set["formal"] {
		b.WriteString("- Use formal diction and professional register.\n")
	}
	if set["casual"] {
		b.WriteString("- Use casual, friendly language.\n")
	}
	if set["no_emojis"] {
		b.WriteString("- Do NOT use emojis.\n")
	} else if set["emojis_ok"] {
		b.WriteString("- Emojis are welcome where appropriate.\n")
	}
	if set["bullet_points"] {
		b.WriteString("- Prefer bullet points when listing items.\n")
	}

	hasStance := false
	if set["warm_supportive"] {
		b.WriteString("- Adopt a warm, supportive stance. Encourage the user.\n")
		hasStance = true
	}
	if set["neutral_professional"] {
		b.WriteString("- Keep a neutral, professional stance.\n")
		hasStance = true
	}
	if set["direct_coach"] {
		b.WriteString("- Be a direct coach: clear, action-oriented feedback.\n")
		hasStance = true
	}
	if set["gentle_coach"] {
		b.WriteString("- Be a gentle coach: patient, encouraging guidance.\n")
		hasStance = true
	}
	if !hasStance {
		b.WriteString("- Keep a neutral, professional stance.\n")
	}

	b.WriteString("- NEVER mirror hostility, sarcasm, insults, or unsafe language.\n")
	b.WriteString("</TONE POLICY>\n")

	return b.String()
}
