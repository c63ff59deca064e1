package api

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"rental-service/internal/service"

	"github.com/gin-gonic/gin"
)

// maxUploadBytes bounds the multipart request carrying an image
const maxUploadBytes = 6 << 20

func (h *Handler) listCategories(c *gin.Context) {
	categories, err := h.svc.Listings.ListCategories(c.Request.Context())
	if err != nil {
		h.respondError(c, "Failed to list categories", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

func (h *Handler) createCategory(c *gin.Context) {
	var req service.CreateCategoryRequest
	if !bindJSON(c, &req) {
		return
	}

	category, err := h.svc.Listings.CreateCategory(c.Request.Context(), req.Name)
	if err != nil {
		h.respondError(c, "Failed to create category", err)
		return
	}
	c.JSON(http.StatusCreated, category)
}

func (h *Handler) searchItems(c *gin.Context) {
	var q service.SearchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid query",
			"details": err.Error(),
		})
		return
	}

	result, err := h.svc.Listings.SearchItems(c.Request.Context(), &q)
	if err != nil {
		h.respondError(c, "Failed to search items", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) getItem(c *gin.Context) {
	item, err := h.svc.Listings.GetItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "Item not found", err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *Handler) createItem(c *gin.Context) {
	var req service.CreateItemRequest
	if !bindJSON(c, &req) {
		return
	}

	item, err := h.svc.Listings.CreateItem(c.Request.Context(), currentUser(c), &req)
	if err != nil {
		h.respondError(c, "Failed to create item", err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (h *Handler) updateItem(c *gin.Context) {
	var req service.UpdateItemRequest
	if !bindJSON(c, &req) {
		return
	}

	item, err := h.svc.Listings.UpdateItem(c.Request.Context(), currentUser(c), c.Param("id"), &req)
	if err != nil {
		h.respondError(c, "Failed to update item", err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *Handler) archiveItem(c *gin.Context) {
	if err := h.svc.Listings.ArchiveItem(c.Request.Context(), currentUser(c), c.Param("id")); err != nil {
		h.respondError(c, "Failed to delete item", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listMyItems(c *gin.Context) {
	items, err := h.svc.Listings.ListOwnerItems(c.Request.Context(), currentUser(c))
	if err != nil {
		h.respondError(c, "Failed to list items", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// uploadItemImage takes the multipart field "image". The content type is
// sniffed from the bytes, not taken from the client.
func (h *Handler) uploadItemImage(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)

	fh, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid upload",
			"details": err.Error(),
		})
		return
	}
	f, err := fh.Open()
	if err != nil {
		h.respondError(c, "Failed to read upload", err)
		return
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		h.respondError(c, "Failed to read upload", err)
		return
	}
	head = head[:n]
	mimeType := http.DetectContentType(head)

	item, err := h.svc.Listings.UploadItemImage(c.Request.Context(), currentUser(c), c.Param("id"),
		io.MultiReader(bytes.NewReader(head), f), mimeType)
	if err != nil {
		h.respondError(c, "Failed to upload image", err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *Handler) serveMedia(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	rc, mimeType, err := h.svc.Listings.OpenMedia(c.Request.Context(), key)
	if err != nil {
		h.respondError(c, "Media not found", err)
		return
	}
	defer rc.Close()

	c.DataFromReader(http.StatusOK, -1, mimeType, rc, map[string]string{
		"Cache-Control": "public, max-age=86400",
	})
}

func (h *Handler) getProfile(c *gin.Context) {
	profile, err := h.svc.Profiles.GetProfile(c.Request.Context(), currentUser(c))
	if err != nil {
		h.respondError(c, "Failed to load profile", err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *Handler) updateProfile(c *gin.Context) {
	var req service.UpdateProfileRequest
	if !bindJSON(c, &req) {
		return
	}

	profile, err := h.svc.Profiles.UpdateProfile(c.Request.Context(), currentUser(c), &req)
	if err != nil {
		h.respondError(c, "Failed to update profile", err)
		return
	}
	c.JSON(http.StatusOK, profile)
}
