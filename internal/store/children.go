package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/havenkids/haven/backend/internal/model/child"
)

// ChildStore reads child profiles and family billing identity from sqlite.
// The engine never writes either table.
type ChildStore struct {
	db *DB
}

// NewChildStore returns a read-only profile store over db.
func NewChildStore(db *DB) *ChildStore {
	return &ChildStore{db: db}
}

// FindByID loads a profile. A missing row is reported through the boolean,
// never as an error.
func (s *ChildStore) FindByID(ctx context.Context, id string) (child.Profile, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, family_id, name, age, concerns, triggers, goals, interests, family_context
		FROM children WHERE id = ?`, id)

	var p child.Profile
	var concerns, triggers, goals, interests, familyContext sql.NullString
	err := row.Scan(&p.ID, &p.FamilyID, &p.Name, &p.Age, &concerns, &triggers, &goals, &interests, &familyContext)
	if errors.Is(err, sql.ErrNoRows) {
		return child.Profile{}, false, nil
	}
	if err != nil {
		return child.Profile{}, false, fmt.Errorf("load child profile: %w", err)
	}

	p.Concerns = decodeStringList(concerns)
	p.Triggers = decodeStringList(triggers)
	p.Goals = decodeStringList(goals)
	p.Interests = decodeStringList(interests)
	p.FamilyContext = familyContext.String
	return p, true, nil
}

// FamilyCustomerID resolves the billing customer attached to a family.
// An empty id means the family has no billing identity yet.
func (s *ChildStore) FamilyCustomerID(ctx context.Context, familyID string) (string, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT stripe_customer_id FROM families WHERE id = ?`, familyID)

	var customerID sql.NullString
	err := row.Scan(&customerID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load family: %w", err)
	}
	return customerID.String, nil
}

// ChildFamilyID returns the owning family of a child, if the child exists.
func (s *ChildStore) ChildFamilyID(ctx context.Context, childID string) (string, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT family_id FROM children WHERE id = ?`, childID)

	var familyID string
	err := row.Scan(&familyID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load child: %w", err)
	}
	return familyID, true, nil
}

// InsertFamily writes a family row. Profile ingestion belongs to the account
// service; this entry point exists for provisioning tools and fixtures.
func (s *ChildStore) InsertFamily(ctx context.Context, id, stripeCustomerID string, createdAt int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO families (id, stripe_customer_id, created_at) VALUES (?, ?, ?)`,
		id, stripeCustomerID, createdAt)
	if err != nil {
		return fmt.Errorf("insert family: %w", err)
	}
	return nil
}

// InsertChild writes a child profile row. See InsertFamily.
func (s *ChildStore) InsertChild(ctx context.Context, p child.Profile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO children
			(id, family_id, name, age, concerns, triggers, goals, interests, family_context)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.FamilyID, p.Name, p.Age,
		encodeStringList(p.Concerns), encodeStringList(p.Triggers),
		encodeStringList(p.Goals), encodeStringList(p.Interests), p.FamilyContext)
	if err != nil {
		return fmt.Errorf("insert child: %w", err)
	}
	return nil
}

func decodeStringList(raw sql.NullString) []string {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw.String), &out); err != nil {
		return nil
	}
	return out
}

func encodeStringList(items []string) string {
	if len(items) == 0 {
		return ""
	}
	data, err := json.Marshal(items)
	if err != nil {
		return ""
	}
	return string(data)
}
