package crisis

import (
	"strings"

	"github.com/havenkids/haven/backend/internal/model/chat"
)

// SafeReply is the fixed response returned whenever a crisis phrase is
// detected. It is decided before any model call and must never be altered by
// downstream failures.
const SafeReply = "Thank you for telling me that. What you're feeling really matters, " +
	"and you deserve support from a caring adult right away. Please talk to a parent, " +
	"a teacher, or another grown-up you trust about this. If you're in the United States " +
	"you can also call or text 988 at any time to talk with someone who can help. " +
	"You are not alone, and you are not in trouble for feeling this way."

// highRiskPhrases is intentionally broad. A false positive costs one generic
// supportive reply; a false negative is unacceptable.
var highRiskPhrases = []string{
	// suicidality
	"kill myself",
	"killing myself",
	"want to die",
	"wanna die",
	"end my life",
	"ending my life",
	"suicide",
	"suicidal",
	"better off dead",
	"better off without me",
	"don't want to be alive",
	"dont want to be alive",
	"no reason to live",
	// self-harm
	"hurt myself",
	"hurting myself",
	"harm myself",
	"self harm",
	"self-harm",
	"cut myself",
	"cutting myself",
	// abuse disclosure
	"touches me",
	"touched me in",
	"hits me",
	"beats me",
	"hurts me at home",
	"afraid to go home",
	"scared to go home",
}

// Detect reports whether text contains any high-risk phrase. Matching is a
// case-insensitive substring scan; no model call is involved.
func Detect(text string) bool {
	normalized := strings.ToLower(text)
	for _, phrase := range highRiskPhrases {
		if strings.Contains(normalized, phrase) {
			return true
		}
	}
	return false
}

// Mood is the fallback score stored alongside a safety reply on paths that
// carry no analyzer, such as the realtime relay.
func Mood() chat.MoodScore {
	return chat.MoodScore{
		Happiness:      2,
		Anxiety:        8,
		Sadness:        7,
		Stress:         8,
		Confidence:     3,
		Insight:        "High-risk language detected; safety resources were shared.",
		CrisisDetected: true,
	}
}
