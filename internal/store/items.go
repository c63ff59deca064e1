package store

import (
	"context"
	"strings"

	"rental-service/internal/models"
)

const (
	categoryColumns = "id, name, slug, created_at"
	itemColumns     = "id, owner_id, category_id, title, description, price_per_day, location, image_url, status, created_at, updated_at"
)

// ItemFilter narrows SearchItems. Zero values are ignored.
type ItemFilter struct {
	Query      string
	CategoryID string
	Location   string
	MinPrice   int64
	MaxPrice   int64
	Limit      int
	Offset     int
}

// CreateCategory inserts a category
func (s *Store) CreateCategory(ctx context.Context, c *models.Category) error {
	c.CreatedAt = now()
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO categories (id, name, slug, created_at) VALUES (?, ?, ?, ?)`),
		c.ID, c.Name, c.Slug, c.CreatedAt)
	if isUniqueViolation(err) {
		return models.ErrConflict
	}
	return err
}

// GetCategory retrieves a category by ID
func (s *Store) GetCategory(ctx context.Context, id string) (*models.Category, error) {
	var c models.Category
	err := s.db.GetContext(ctx, &c, s.db.Rebind("SELECT "+categoryColumns+" FROM categories WHERE id = ?"), id)
	if err != nil {
		return nil, notFound(err, "category", id)
	}
	return &c, nil
}

// ListCategories returns all categories by name
func (s *Store) ListCategories(ctx context.Context) ([]models.Category, error) {
	categories := []models.Category{}
	err := s.db.SelectContext(ctx, &categories, "SELECT "+categoryColumns+" FROM categories ORDER BY name")
	return categories, err
}

// CreateItem inserts a listing
func (s *Store) CreateItem(ctx context.Context, item *models.Item) error {
	ts := now()
	item.CreatedAt, item.UpdatedAt = ts, ts
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO items (id, owner_id, category_id, title, description, price_per_day, location, image_url, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		item.ID, item.OwnerID, item.CategoryID, item.Title, item.Description, item.PricePerDay,
		item.Location, item.ImageURL, item.Status, item.CreatedAt, item.UpdatedAt)
	return err
}

// GetItem retrieves an item by ID
func (s *Store) GetItem(ctx context.Context, id string) (*models.Item, error) {
	var item models.Item
	err := s.db.GetContext(ctx, &item, s.db.Rebind("SELECT "+itemColumns+" FROM items WHERE id = ?"), id)
	if err != nil {
		return nil, notFound(err, "item", id)
	}
	return &item, nil
}

// UpdateItem writes every mutable item field
func (s *Store) UpdateItem(ctx context.Context, item *models.Item) error {
	item.UpdatedAt = now()
	ok, err := affected(s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE items SET category_id = ?, title = ?, description = ?, price_per_day = ?, location = ?,
			image_url = ?, status = ?, updated_at = ?
		WHERE id = ?`),
		item.CategoryID, item.Title, item.Description, item.PricePerDay, item.Location,
		item.ImageURL, item.Status, item.UpdatedAt, item.ID))
	if err != nil {
		return err
	}
	if !ok {
		return notFound(errNoRows, "item", item.ID)
	}
	return nil
}

// ListItemsByOwner returns an owner's items, newest first
func (s *Store) ListItemsByOwner(ctx context.Context, ownerID string) ([]models.Item, error) {
	items := []models.Item{}
	err := s.db.SelectContext(ctx, &items, s.db.Rebind(
		"SELECT "+itemColumns+" FROM items WHERE owner_id = ? ORDER BY created_at DESC"), ownerID)
	return items, err
}

// CountActiveItemsByOwner counts an owner's non-archived items
func (s *Store) CountActiveItemsByOwner(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, s.db.Rebind(
		"SELECT COUNT(*) FROM items WHERE owner_id = ? AND status <> ?"), ownerID, models.ItemStatusArchived)
	return n, err
}

// SearchItems returns one page of available items plus the total match count
func (s *Store) SearchItems(ctx context.Context, f ItemFilter) ([]models.Item, int, error) {
	where := []string{"status = ?"}
	args := []interface{}{models.ItemStatusAvailable}

	if q := strings.TrimSpace(f.Query); q != "" {
		pattern := "%" + strings.ToLower(q) + "%"
		where = append(where, "(LOWER(title) LIKE ? OR LOWER(description) LIKE ?)")
		args = append(args, pattern, pattern)
	}
	if f.CategoryID != "" {
		where = append(where, "category_id = ?")
		args = append(args, f.CategoryID)
	}
	if loc := strings.TrimSpace(f.Location); loc != "" {
		where = append(where, "LOWER(location) LIKE ?")
		args = append(args, "%"+strings.ToLower(loc)+"%")
	}
	if f.MinPrice > 0 {
		where = append(where, "price_per_day >= ?")
		args = append(args, f.MinPrice)
	}
	if f.MaxPrice > 0 {
		where = append(where, "price_per_day <= ?")
		args = append(args, f.MaxPrice)
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := s.db.GetContext(ctx, &total, s.db.Rebind("SELECT COUNT(*) FROM items WHERE "+cond), args...); err != nil {
		return nil, 0, err
	}

	items := []models.Item{}
	query := "SELECT " + itemColumns + " FROM items WHERE " + cond + " ORDER BY created_at DESC, id LIMIT ? OFFSET ?"
	err := s.db.SelectContext(ctx, &items, s.db.Rebind(query), append(args, f.Limit, f.Offset)...)
	return items, total, err
}
