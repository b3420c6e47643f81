package prompt

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/havenkids/haven/backend/internal/embedding"
	"github.com/havenkids/haven/backend/internal/model/child"
	"github.com/havenkids/haven/backend/internal/model/memory"
	"github.com/havenkids/haven/backend/internal/vector"
)

// retrievalK bounds how many memory records and documents feed one prompt.
const retrievalK = 3

// Fallback strings keep every fragment present even when its source fails.
const (
	memoryFallback   = "No earlier conversations to draw on yet."
	documentFallback = "No reference material has been uploaded for this child."
)

// Composer assembles the bounded instruction block sent to the completion
// provider: therapeutic directive, age-banded profile, retrieved memories,
// retrieved documents, and situational guidance. Each source is fetched and
// rendered independently; a failed source degrades to its fallback string
// and never aborts composition.
type Composer struct {
	profiles child.Store
	index    vector.Index
	embedder embedding.Embedder
	logger   *zap.Logger
}

// NewComposer wires the composer's read-only sources.
func NewComposer(profiles child.Store, index vector.Index, embedder embedding.Embedder, logger *zap.Logger) *Composer {
	return &Composer{
		profiles: profiles,
		index:    index,
		embedder: embedder,
		logger:   logger,
	}
}

// fragment is one independently fallible prompt source. Rendering happens
// after all fetches so the join order is deterministic regardless of fetch
// timing.
type fragment struct {
	name    string
	render  func() string
	present bool
}

// Compose builds the full instruction block for one inbound message.
func (c *Composer) Compose(ctx context.Context, childID, message string) string {
	profile := c.loadProfile(ctx, childID)

	memories, documents := c.retrieve(ctx, childID, message)

	fragments := []fragment{
		{name: "directive", present: true, render: func() string { return therapeuticDirective }},
		{name: "profile", present: true, render: func() string { return RenderProfile(profile) }},
		{name: "memories", present: true, render: func() string {
			return renderMatches("What you remember from earlier sessions", memories, memoryFallback)
		}},
		{name: "documents", present: true, render: func() string {
			return renderMatches("Reference material shared by the family", documents, documentFallback)
		}},
	}
	if situational := situationalDirectives(message); situational != "" {
		fragments = append(fragments, fragment{name: "situational", present: true, render: func() string { return situational }})
	}

	parts := make([]string, 0, len(fragments))
	for _, frag := range fragments {
		if !frag.present {
			continue
		}
		parts = append(parts, frag.render())
	}
	return strings.Join(parts, "\n\n")
}

// ProfileContext renders only the profile fragment, used where a client
// needs the child context for display rather than a full prompt.
func (c *Composer) ProfileContext(ctx context.Context, childID string) string {
	return RenderProfile(c.loadProfile(ctx, childID))
}

func (c *Composer) loadProfile(ctx context.Context, childID string) child.Profile {
	profile, found, err := c.profiles.FindByID(ctx, childID)
	if err != nil {
		c.logger.Warn("profile lookup failed, using generic profile",
			zap.String("child_id", childID), zap.Error(err))
		return child.DefaultProfile(childID)
	}
	if !found {
		return child.DefaultProfile(childID)
	}
	return profile
}

// retrieve embeds the message once and runs both vector queries in parallel.
// An embedding failure degrades both retrievals at once.
func (c *Composer) retrieve(ctx context.Context, childID, message string) ([]memory.Match, []memory.Match) {
	queryVec, err := c.embedder.Embed(ctx, message)
	if err != nil {
		c.logger.Warn("message embedding failed, retrieval degraded",
			zap.String("child_id", childID), zap.Error(err))
		return nil, nil
	}

	var memories, documents []memory.Match
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		matches, err := c.index.Query(gctx, queryVec, vector.Filter{ChildID: childID, Kind: memory.KindMemory}, retrievalK)
		if err != nil {
			c.logger.Warn("memory retrieval failed", zap.String("child_id", childID), zap.Error(err))
			return nil
		}
		memories = matches
		return nil
	})
	g.Go(func() error {
		matches, err := c.index.Query(gctx, queryVec, vector.Filter{ChildID: childID, Kind: memory.KindDocument}, retrievalK)
		if err != nil {
			c.logger.Warn("document retrieval failed", zap.String("child_id", childID), zap.Error(err))
			return nil
		}
		documents = matches
		return nil
	})
	_ = g.Wait()

	return memories, documents
}

// RenderProfile renders the profile fragment, selecting the age band that
// drives vocabulary and approach. Exported for the realtime
// get_child_context event.
func RenderProfile(p child.Profile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "About the child you are talking with:\n")
	fmt.Fprintf(&b, "- Name: %s\n- Age: %d\n", p.Name, p.Age)
	if len(p.Concerns) > 0 {
		fmt.Fprintf(&b, "- Current concerns: %s\n", strings.Join(p.Concerns, ", "))
	}
	if len(p.Triggers) > 0 {
		fmt.Fprintf(&b, "- Known triggers to avoid: %s\n", strings.Join(p.Triggers, ", "))
	}
	if len(p.Goals) > 0 {
		fmt.Fprintf(&b, "- Goals the family is working toward: %s\n", strings.Join(p.Goals, ", "))
	}
	if len(p.Interests) > 0 {
		fmt.Fprintf(&b, "- Interests: %s\n", strings.Join(p.Interests, ", "))
	}
	if p.FamilyContext != "" {
		fmt.Fprintf(&b, "- Family context: %s\n", p.FamilyContext)
	}
	b.WriteString("\n")
	b.WriteString(ageBandDirective(p.Age))
	return b.String()
}

func ageBandDirective(age int) string {
	switch {
	case age <= 8:
		return "This child is 8 or younger. Use very simple words and short sentences. " +
			"Lean on play, imagination, and concrete examples. One idea at a time. " +
			"Offer lots of warmth and reassurance, and never use abstract concepts."
	case age <= 12:
		return "This child is between 9 and 12. Use clear, friendly language with some " +
			"room for bigger ideas. Relate things to school, friends, and hobbies. " +
			"Encourage them to name feelings and notice patterns, without lecturing."
	default:
		return "This teen is 13 or older. Talk with them as a capable young person, not " +
			"a small child. Respect their independence, avoid being preachy, and make " +
			"space for nuance and ambivalence. Validate before advising."
	}
}

func renderMatches(heading string, matches []memory.Match, fallback string) string {
	if len(matches) == 0 {
		return heading + ":\n" + fallback
	}

	var b strings.Builder
	b.WriteString(heading + ":\n")
	for i, match := range matches {
		fmt.Fprintf(&b, "%d. %s\n", i+1, strings.TrimSpace(match.Record.Excerpt))
	}
	return strings.TrimRight(b.String(), "\n")
}

// situationalGroups maps message keywords to a targeted directive appended
// to the prompt. Empty result means the fragment is absent.
var situationalGroups = []struct {
	keywords  []string
	directive string
}{
	{
		keywords: []string{"anxious", "anxiety", "worried", "worry", "panic", "nervous", "scared"},
		directive: "The child sounds anxious right now. Gently offer a grounding technique, " +
			"like slow breathing or naming five things they can see, before exploring the worry.",
	},
	{
		keywords: []string{"sleep", "nightmare", "can't sleep", "cant sleep", "bedtime", "tired"},
		directive: "Sleep seems to be on their mind. Keep the tone calm and settling, and " +
			"suggest a simple wind-down idea suited to their age.",
	},
	{
		keywords: []string{"school", "teacher", "homework", "test", "grade", "class"},
		directive: "School came up. Ask what part of the school day feels hardest or best, " +
			"and connect any advice to something concrete in their routine.",
	},
	{
		keywords: []string{"friend", "friends", "lonely", "alone", "bully", "bullied", "left out"},
		directive: "Friendship or belonging is in play. Validate how much peers matter, " +
			"and help them think of one small, low-risk social step.",
	},
	{
		keywords: []string{"mom", "dad", "parents", "fight", "fighting", "divorce", "argue"},
		directive: "Family tension may be involved. Stay neutral about family members, " +
			"reassure the child that grown-up problems are not their fault, and focus on their feelings.",
	},
}

func situationalDirectives(message string) string {
	normalized := strings.ToLower(message)
	var directives []string
	for _, group := range situationalGroups {
		for _, keyword := range group.keywords {
			if strings.Contains(normalized, keyword) {
				directives = append(directives, group.directive)
				break
			}
		}
	}
	if len(directives) == 0 {
		return ""
	}
	return "Guidance for this moment:\n" + strings.Join(directives, "\n")
}

const therapeuticDirective = "You are a warm, patient companion for children, built to support " +
	"emotional wellbeing. You listen first, reflect feelings back in simple words, and help the " +
	"child feel seen and safe. You never diagnose, never give medical advice, and never discuss " +
	"content inappropriate for children. If the child mentions wanting to hurt themselves or " +
	"someone hurting them, you encourage them to talk to a trusted adult right away. Keep replies " +
	"concise, kind, and focused on the child's own words."
