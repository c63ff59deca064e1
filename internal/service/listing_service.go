package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"

	"rental-service/internal/models"
	"rental-service/internal/objectstore"
	"rental-service/internal/redisclient"
	"rental-service/internal/store"
	"rental-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	itemCacheTTL    = 60 * time.Second
	maxImageBytes   = 5 << 20
	defaultPageSize = 20
	maxPageSize     = 100
	mediaURLPrefix  = "/media/"
)

// ListingService manages categories and rentable items
type ListingService struct {
	store            *store.Store
	redis            *redisclient.Client
	media            objectstore.Store
	freeListingLimit int
	logger           *zap.Logger
}

// NewListingService creates a new listing service
func NewListingService(store *store.Store, redis *redisclient.Client, media objectstore.Store, freeListingLimit int) *ListingService {
	return &ListingService{
		store:            store,
		redis:            redis,
		media:            media,
		freeListingLimit: freeListingLimit,
		logger:           util.GetLogger(),
	}
}

// CreateCategoryRequest names a new category
type CreateCategoryRequest struct {
	Name string `json:"name" binding:"required,min=2,max=60"`
}

// CreateItemRequest describes a new listing
type CreateItemRequest struct {
	CategoryID  *string `json:"category_id" binding:"omitempty,uuid"`
	Title       string  `json:"title" binding:"required,min=3,max=120"`
	Description string  `json:"description" binding:"max=4000"`
	PricePerDay int64   `json:"price_per_day" binding:"required,gt=0"`
	Location    string  `json:"location" binding:"max=120"`
}

// UpdateItemRequest patches a listing; nil fields are left unchanged
type UpdateItemRequest struct {
	CategoryID  *string `json:"category_id" binding:"omitempty,uuid"`
	Title       *string `json:"title" binding:"omitempty,min=3,max=120"`
	Description *string `json:"description" binding:"omitempty,max=4000"`
	PricePerDay *int64  `json:"price_per_day" binding:"omitempty,gt=0"`
	Location    *string `json:"location" binding:"omitempty,max=120"`
	Status      *string `json:"status" binding:"omitempty,oneof=available unavailable"`
}

// SearchQuery filters item search
type SearchQuery struct {
	Q          string `form:"q"`
	CategoryID string `form:"category_id"`
	Location   string `form:"location"`
	MinPrice   int64  `form:"min_price" binding:"omitempty,gte=0"`
	MaxPrice   int64  `form:"max_price" binding:"omitempty,gte=0"`
	Page       int    `form:"page" binding:"omitempty,gte=1"`
	PageSize   int    `form:"page_size" binding:"omitempty,gte=1"`
}

// SearchResult is one page of search results
type SearchResult struct {
	Items    []models.Item `json:"items"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
}

// Slugify lowercases name and joins its alphanumeric runs with dashes
func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// ListCategories returns all categories
func (s *ListingService) ListCategories(ctx context.Context) ([]models.Category, error) {
	return s.store.ListCategories(ctx)
}

// CreateCategory adds a category; the slug is derived from the name
func (s *ListingService) CreateCategory(ctx context.Context, name string) (*models.Category, error) {
	name = strings.TrimSpace(name)
	slug := Slugify(name)
	if slug == "" {
		return nil, fmt.Errorf("category name %q has no letters or digits: %w", name, models.ErrInvalidInput)
	}

	c := &models.Category{ID: uuid.New().String(), Name: name, Slug: slug}
	if err := s.store.CreateCategory(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create category: %w", err)
	}
	return c, nil
}

// CreateItem lists a new item. Owners without an active subscription are
// limited to freeListingLimit non-archived items.
func (s *ListingService) CreateItem(ctx context.Context, ownerID string, req *CreateItemRequest) (*models.Item, error) {
	ctx, span := util.StartSpan(ctx, "ListingService.CreateItem", "owner_id", ownerID)
	defer span.End()

	if strings.TrimSpace(req.Title) == "" || req.PricePerDay <= 0 {
		return nil, fmt.Errorf("title and a positive price are required: %w", models.ErrInvalidInput)
	}
	if err := s.checkCategory(ctx, req.CategoryID); err != nil {
		return nil, err
	}

	if err := s.checkListingLimit(ctx, ownerID); err != nil {
		return nil, util.RecordError(span, err)
	}

	item := &models.Item{
		ID:          uuid.New().String(),
		OwnerID:     ownerID,
		CategoryID:  req.CategoryID,
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		PricePerDay: req.PricePerDay,
		Location:    strings.TrimSpace(req.Location),
		Status:      models.ItemStatusAvailable,
	}
	if err := s.store.CreateItem(ctx, item); err != nil {
		return nil, util.RecordError(span, fmt.Errorf("failed to create item: %w", err))
	}

	util.ListingsCreatedTotal.Inc()
	s.logger.Info("Item listed", zap.String("item_id", item.ID), zap.String("owner_id", ownerID))
	return item, nil
}

func (s *ListingService) checkCategory(ctx context.Context, categoryID *string) error {
	if categoryID == nil || *categoryID == "" {
		return nil
	}
	if _, err := s.store.GetCategory(ctx, *categoryID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("category %s does not exist: %w", *categoryID, models.ErrInvalidInput)
		}
		return err
	}
	return nil
}

func (s *ListingService) checkListingLimit(ctx context.Context, ownerID string) error {
	sub, err := s.store.GetActiveSubscription(ctx, ownerID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to check subscription: %w", err)
	}
	if sub != nil {
		return nil
	}

	n, err := s.store.CountActiveItemsByOwner(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("failed to count listings: %w", err)
	}
	if n >= s.freeListingLimit {
		return fmt.Errorf("free plan allows %d listings, subscribe to list more: %w", s.freeListingLimit, models.ErrForbidden)
	}
	return nil
}

func itemCacheKey(id string) string {
	return "item:" + id
}

// GetItem returns an item, served from redis for up to a minute
func (s *ListingService) GetItem(ctx context.Context, id string) (*models.Item, error) {
	ctx, span := util.StartSpan(ctx, "ListingService.GetItem", "item_id", id)
	defer span.End()

	var cached models.Item
	hit, err := s.redis.GetJSON(ctx, itemCacheKey(id), &cached)
	if err != nil {
		s.logger.Warn("Item cache read failed", zap.Error(err))
	}
	if hit {
		util.CacheLookupsTotal.WithLabelValues("item", "hit").Inc()
		return &cached, nil
	}
	util.CacheLookupsTotal.WithLabelValues("item", "miss").Inc()

	item, err := s.store.GetItem(ctx, id)
	if err != nil {
		return nil, util.RecordError(span, err)
	}

	if err := s.redis.SetJSON(ctx, itemCacheKey(id), item, itemCacheTTL); err != nil {
		s.logger.Warn("Item cache write failed", zap.Error(err))
	}
	return item, nil
}

func (s *ListingService) invalidate(ctx context.Context, id string) {
	if err := s.redis.Delete(ctx, itemCacheKey(id)); err != nil {
		s.logger.Warn("Item cache invalidation failed", zap.String("item_id", id), zap.Error(err))
	}
}

// ownedItem loads an item from the database and checks ownership
func (s *ListingService) ownedItem(ctx context.Context, ownerID, id string) (*models.Item, error) {
	item, err := s.store.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.OwnerID != ownerID {
		return nil, fmt.Errorf("item %s belongs to another user: %w", id, models.ErrForbidden)
	}
	if item.Status == models.ItemStatusArchived {
		return nil, fmt.Errorf("item %s is archived: %w", id, models.ErrConflict)
	}
	return item, nil
}

// UpdateItem applies a patch to the owner's item
func (s *ListingService) UpdateItem(ctx context.Context, ownerID, id string, req *UpdateItemRequest) (*models.Item, error) {
	ctx, span := util.StartSpan(ctx, "ListingService.UpdateItem", "item_id", id)
	defer span.End()

	item, err := s.ownedItem(ctx, ownerID, id)
	if err != nil {
		return nil, util.RecordError(span, err)
	}

	if req.CategoryID != nil {
		if err := s.checkCategory(ctx, req.CategoryID); err != nil {
			return nil, err
		}
		item.CategoryID = req.CategoryID
		if *req.CategoryID == "" {
			item.CategoryID = nil
		}
	}
	if req.Title != nil {
		item.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		item.Description = strings.TrimSpace(*req.Description)
	}
	if req.PricePerDay != nil {
		if *req.PricePerDay <= 0 {
			return nil, fmt.Errorf("price_per_day must be positive: %w", models.ErrInvalidInput)
		}
		item.PricePerDay = *req.PricePerDay
	}
	if req.Location != nil {
		item.Location = strings.TrimSpace(*req.Location)
	}
	if req.Status != nil {
		if *req.Status != models.ItemStatusAvailable && *req.Status != models.ItemStatusUnavailable {
			return nil, fmt.Errorf("status %q: %w", *req.Status, models.ErrInvalidInput)
		}
		item.Status = *req.Status
	}
	if item.Title == "" {
		return nil, fmt.Errorf("title is required: %w", models.ErrInvalidInput)
	}

	if err := s.store.UpdateItem(ctx, item); err != nil {
		return nil, util.RecordError(span, fmt.Errorf("failed to update item: %w", err))
	}
	s.invalidate(ctx, id)
	return item, nil
}

// ArchiveItem hides the owner's item from search and frees a listing slot
func (s *ListingService) ArchiveItem(ctx context.Context, ownerID, id string) error {
	ctx, span := util.StartSpan(ctx, "ListingService.ArchiveItem", "item_id", id)
	defer span.End()

	item, err := s.ownedItem(ctx, ownerID, id)
	if err != nil {
		return util.RecordError(span, err)
	}

	item.Status = models.ItemStatusArchived
	if err := s.store.UpdateItem(ctx, item); err != nil {
		return util.RecordError(span, fmt.Errorf("failed to archive item: %w", err))
	}
	s.invalidate(ctx, id)
	s.logger.Info("Item archived", zap.String("item_id", id))
	return nil
}

// SearchItems returns one page of available items, newest first
func (s *ListingService) SearchItems(ctx context.Context, q *SearchQuery) (*SearchResult, error) {
	ctx, span := util.StartSpan(ctx, "ListingService.SearchItems")
	defer span.End()

	page, size := q.Page, q.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	if q.MinPrice > 0 && q.MaxPrice > 0 && q.MinPrice > q.MaxPrice {
		return nil, fmt.Errorf("min_price exceeds max_price: %w", models.ErrInvalidInput)
	}

	items, total, err := s.store.SearchItems(ctx, store.ItemFilter{
		Query:      q.Q,
		CategoryID: q.CategoryID,
		Location:   q.Location,
		MinPrice:   q.MinPrice,
		MaxPrice:   q.MaxPrice,
		Limit:      size,
		Offset:     (page - 1) * size,
	})
	if err != nil {
		return nil, util.RecordError(span, fmt.Errorf("failed to search items: %w", err))
	}

	return &SearchResult{Items: items, Total: total, Page: page, PageSize: size}, nil
}

// ListOwnerItems returns every item of the owner including archived ones
func (s *ListingService) ListOwnerItems(ctx context.Context, ownerID string) ([]models.Item, error) {
	return s.store.ListItemsByOwner(ctx, ownerID)
}

// UploadItemImage stores an image for the owner's item and points
// image_url at it. The previous image, if any, is removed.
func (s *ListingService) UploadItemImage(ctx context.Context, ownerID, id string, r io.Reader, mimeType string) (*models.Item, error) {
	ctx, span := util.StartSpan(ctx, "ListingService.UploadItemImage", "item_id", id)
	defer span.End()

	if _, ok := objectstore.ImageExtensions[mimeType]; !ok {
		return nil, fmt.Errorf("unsupported image type %q: %w", mimeType, models.ErrInvalidInput)
	}

	item, err := s.ownedItem(ctx, ownerID, id)
	if err != nil {
		return nil, util.RecordError(span, err)
	}

	data, err := io.ReadAll(io.LimitReader(r, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("image is empty: %w", models.ErrInvalidInput)
	}
	if len(data) > maxImageBytes {
		return nil, fmt.Errorf("image exceeds %d bytes: %w", maxImageBytes, models.ErrInvalidInput)
	}

	key, err := s.media.Put(ctx, item.ID, mimeType, bytes.NewReader(data))
	if err != nil {
		return nil, util.RecordError(span, fmt.Errorf("failed to store image: %w", err))
	}

	previous := item.ImageURL
	item.ImageURL = mediaURLPrefix + key
	if err := s.store.UpdateItem(ctx, item); err != nil {
		if derr := s.media.Delete(ctx, key); derr != nil {
			s.logger.Warn("Failed to remove orphaned image", zap.String("key", key), zap.Error(derr))
		}
		return nil, util.RecordError(span, fmt.Errorf("failed to update item: %w", err))
	}
	s.invalidate(ctx, id)

	if strings.HasPrefix(previous, mediaURLPrefix) {
		if err := s.media.Delete(ctx, strings.TrimPrefix(previous, mediaURLPrefix)); err != nil {
			s.logger.Warn("Failed to remove previous image", zap.String("url", previous), zap.Error(err))
		}
	}
	return item, nil
}

// OpenMedia streams a stored object by key
func (s *ListingService) OpenMedia(ctx context.Context, key string) (io.ReadCloser, string, error) {
	return s.media.Open(ctx, key)
}
