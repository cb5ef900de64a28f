package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pevans/folio/content"
	"github.com/pevans/folio/feed"
	"github.com/pevans/folio/session"
	"github.com/pevans/folio/store"
)

// ListCollectionsResponse represents the response for GET
// /api/v1/collections.
type ListCollectionsResponse struct {
	Collections []feed.Collection `json:"collections"`
	Total       int               `json:"total"`
}

// CreateRecordRequest represents the request for POST
// /api/v1/collections/{path}/records.
type CreateRecordRequest struct {
	Title    string `json:"title" binding:"required"`
	Text     string `json:"text" binding:"required"`
	ImageURL string `json:"imageUrl" binding:"required"`
	Source   string `json:"source" binding:"required"`
	Date     string `json:"date,omitempty"` // Default: now
	ForAdmin bool   `json:"forAdmin"`
}

// FeedResponse represents the response for GET
// /api/v1/collections/{path}/feed.
type FeedResponse struct {
	Collection string      `json:"collection"`
	Items      []feed.Card `json:"items"`
	Total      int         `json:"total"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
	HasMore    bool        `json:"has_more"`
	Order      feed.Order  `json:"sort"`
}

// HandleListCollections handles GET /api/v1/collections.
func (s *Server) HandleListCollections(c *gin.Context) {
	collections := make([]feed.Collection, 0, len(s.order))
	for _, path := range s.order {
		collections = append(collections, s.collections[path])
	}
	c.JSON(http.StatusOK, ListCollectionsResponse{
		Collections: collections,
		Total:       len(collections),
	})
}

// HandleListRecords handles GET /api/v1/collections/{path}/records.
func (s *Server) HandleListRecords(c *gin.Context) {
	coll := collectionFrom(c)

	items, err := s.store.List(c.Request.Context(), coll.Path, c.DefaultQuery("orderBy", store.OrderByDate))
	if err != nil {
		s.handleError(c, err)
		return
	}
	items = visibleTo(roleFrom(c), items)

	c.JSON(http.StatusOK, store.ListResponse{
		Items: items,
		Total: len(items),
	})
}

// HandleGetRecord handles GET /api/v1/collections/{path}/records/{id}.
func (s *Server) HandleGetRecord(c *gin.Context) {
	coll := collectionFrom(c)

	item, err := s.store.Get(c.Request.Context(), coll.Path, c.Param("id"))
	if err == nil && item.ForAdmin && !roleFrom(c).IsAdmin() {
		err = store.ErrNotFound
	}
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, item)
}

// HandleCreateRecord handles POST /api/v1/collections/{path}/records.
func (s *Server) HandleCreateRecord(c *gin.Context) {
	coll := collectionFrom(c)

	var req CreateRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("validation_error", err.Error()))
		return
	}

	if req.Date == "" {
		req.Date = content.FormatDate(time.Now())
	} else if content.ParseDate(req.Date).IsZero() {
		c.JSON(http.StatusBadRequest, errorResponse("validation_error", "Invalid date: must be ISO 8601 format"))
		return
	}

	id, err := s.store.Create(c.Request.Context(), coll.Path, content.Record{
		Title:    req.Title,
		Text:     req.Text,
		ImageURL: req.ImageURL,
		Source:   req.Source,
		Date:     req.Date,
		ForAdmin: req.ForAdmin,
	})
	if err != nil {
		s.handleError(c, err)
		return
	}

	s.logger.Info("Created record",
		zap.String("request_id", c.GetString(ctxRequestID)),
		zap.String("collection", coll.Path),
		zap.String("id", id))
	c.JSON(http.StatusCreated, store.CreateResponse{ID: id})
}

// HandleUpdateRecord handles PATCH /api/v1/collections/{path}/records/{id}.
func (s *Server) HandleUpdateRecord(c *gin.Context) {
	coll := collectionFrom(c)
	id := c.Param("id")

	var patch content.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("bad_request", err.Error()))
		return
	}

	if patch.Date != nil && content.ParseDate(*patch.Date).IsZero() {
		c.JSON(http.StatusBadRequest, errorResponse("validation_error", "Invalid date: must be ISO 8601 format"))
		return
	}

	if err := s.store.Update(c.Request.Context(), coll.Path, id, patch); err != nil {
		s.handleError(c, err)
		return
	}

	// Return updated record
	item, err := s.store.Get(c.Request.Context(), coll.Path, id)
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, item)
}

// HandleDeleteRecord handles DELETE /api/v1/collections/{path}/records/{id}.
func (s *Server) HandleDeleteRecord(c *gin.Context) {
	coll := collectionFrom(c)

	if err := s.store.Delete(c.Request.Context(), coll.Path, c.Param("id")); err != nil {
		s.handleError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// HandleFeed handles GET /api/v1/collections/{path}/feed. It returns what
// the caller's role may see, rendered for display.
func (s *Server) HandleFeed(c *gin.Context) {
	coll := collectionFrom(c)
	role := roleFrom(c)

	order, err := feed.ParseOrder(c.Query("sort"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid_parameter", err.Error()))
		return
	}
	if !coll.Sortable {
		order = feed.Desc
	}

	page := 1
	if pageParam := c.Query("page"); pageParam != "" {
		page, err = strconv.Atoi(pageParam)
		if err != nil || page < 1 {
			c.JSON(http.StatusBadRequest, errorResponse("invalid_parameter", "Invalid page parameter"))
			return
		}
	}

	showAdmin := false
	if showParam := c.Query("show_admin"); showParam != "" {
		showAdmin, err = strconv.ParseBool(showParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse("invalid_parameter", "Invalid show_admin parameter"))
			return
		}
	}

	items, err := s.store.List(c.Request.Context(), coll.Path, store.OrderByDate)
	if err != nil {
		s.handleError(c, err)
		return
	}

	res := feed.Derive(items, feed.Query{
		Role:             role,
		HideAdminContent: !showAdmin,
		Search:           c.Query("q"),
		Order:            order,
		Page:             page,
		PageSize:         coll.PageSize,
		Location:         s.location,
	})

	c.JSON(http.StatusOK, FeedResponse{
		Collection: coll.Title,
		Items:      feed.BuildCards(res.Items, coll.Styles, role, s.location),
		Total:      res.Total,
		Page:       page,
		PageSize:   coll.PageSize,
		HasMore:    res.HasMore(),
		Order:      order,
	})
}

// visibleTo drops admin-only items for everyone but admins. The result is
// never nil.
func visibleTo(role session.Role, items []content.Item) []content.Item {
	out := make([]content.Item, 0, len(items))
	for _, item := range items {
		if item.ForAdmin && !role.IsAdmin() {
			continue
		}
		out = append(out, item)
	}
	return out
}
