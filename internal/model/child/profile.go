package child

import "context"

// Profile holds the structured facts the engine reads about a child. The
// engine never writes profiles; they are maintained elsewhere.
type Profile struct {
	ID            string   `json:"id"`
	FamilyID      string   `json:"familyId"`
	Name          string   `json:"name"`
	Age           int      `json:"age"`
	Concerns      []string `json:"concerns,omitempty"`
	Triggers      []string `json:"triggers,omitempty"`
	Goals         []string `json:"goals,omitempty"`
	Interests     []string `json:"interests,omitempty"`
	FamilyContext string   `json:"familyContext,omitempty"`
}

// Store exposes read-only profile retrieval. A missing profile is not an
// error; callers receive DefaultProfile instead.
type Store interface {
	FindByID(ctx context.Context, id string) (Profile, bool, error)
}

// DefaultProfile is the generic profile used when no record exists for the
// id. Age 10 lands in the middle age band.
func DefaultProfile(id string) Profile {
	return Profile{
		ID:   id,
		Name: "friend",
		Age:  10,
	}
}
