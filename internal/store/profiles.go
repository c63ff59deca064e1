package store

import (
	"context"

	"rental-service/internal/models"
)

const profileColumns = "id, email, full_name, phone, avatar_url, role, created_at, updated_at"

// EnsureProfile inserts a profile for the subject if none exists yet
func (s *Store) EnsureProfile(ctx context.Context, id, email string) error {
	ts := now()
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO profiles (id, email, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`),
		id, email, models.RoleUser, ts, ts)
	return err
}

// GetProfile retrieves a profile by ID
func (s *Store) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	var p models.Profile
	err := s.db.GetContext(ctx, &p, s.db.Rebind("SELECT "+profileColumns+" FROM profiles WHERE id = ?"), id)
	if err != nil {
		return nil, notFound(err, "profile", id)
	}
	return &p, nil
}

// UpdateProfile updates the editable profile fields
func (s *Store) UpdateProfile(ctx context.Context, p *models.Profile) error {
	p.UpdatedAt = now()
	ok, err := affected(s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE profiles SET full_name = ?, phone = ?, avatar_url = ?, updated_at = ?
		WHERE id = ?`),
		p.FullName, p.Phone, p.AvatarURL, p.UpdatedAt, p.ID))
	if err != nil {
		return err
	}
	if !ok {
		return notFound(errNoRows, "profile", p.ID)
	}
	return nil
}

// SetProfileRole changes a profile's role
func (s *Store) SetProfileRole(ctx context.Context, id, role string) error {
	ok, err := affected(s.db.ExecContext(ctx,
		s.db.Rebind("UPDATE profiles SET role = ?, updated_at = ? WHERE id = ?"),
		role, now(), id))
	if err != nil {
		return err
	}
	if !ok {
		return notFound(errNoRows, "profile", id)
	}
	return nil
}
