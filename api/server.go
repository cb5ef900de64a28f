// Package api serves collections over HTTP: REST for reads and admin writes,
// a websocket for live snapshots, and a derived feed endpoint.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pevans/folio/feed"
	"github.com/pevans/folio/session"
	"github.com/pevans/folio/store"
)

const (
	requestIDHeader = "X-Request-ID"

	ctxRequestID  = "request_id"
	ctxClaims     = "claims"
	ctxCollection = "collection"
)

// Options configures a Server.
type Options struct {
	Collections []feed.Collection
	// Tokens verifies bearer tokens. Without it every write is refused.
	Tokens   *session.Tokens
	Logger   *zap.Logger
	Location *time.Location
}

// Server exposes a store over HTTP.
type Server struct {
	store       store.Store
	tokens      *session.Tokens
	collections map[string]feed.Collection
	order       []string
	logger      *zap.Logger
	location    *time.Location
	upgrader    websocket.Upgrader

	// baseCtx bounds every websocket subscription.
	baseCtx context.Context
	stop    context.CancelFunc
}

// NewServer creates a server for st.
func NewServer(st store.Store, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}

	s := &Server{
		store:       st,
		tokens:      opts.Tokens,
		collections: make(map[string]feed.Collection, len(opts.Collections)),
		logger:      opts.Logger,
		location:    opts.Location,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	s.baseCtx, s.stop = context.WithCancel(context.Background())
	for _, c := range opts.Collections {
		if _, ok := s.collections[c.Path]; !ok {
			s.order = append(s.order, c.Path)
		}
		s.collections[c.Path] = c
	}
	return s
}

// Close ends every open subscription.
func (s *Server) Close() {
	s.stop()
}

// SetupRouter configures the Gin router with the collection routes.
func (s *Server) SetupRouter() *gin.Engine {
	router := gin.Default()

	// Add CORS middleware
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	})
	router.Use(s.requestID, s.authenticate)

	api := router.Group("/api/v1")
	api.GET("/collections", s.HandleListCollections)

	coll := api.Group("/collections/:path", s.collection)
	coll.GET("/records", s.HandleListRecords)
	coll.GET("/records/:id", s.HandleGetRecord)
	coll.POST("/records", s.requireAdmin, s.HandleCreateRecord)
	coll.PATCH("/records/:id", s.requireAdmin, s.HandleUpdateRecord)
	coll.DELETE("/records/:id", s.requireAdmin, s.HandleDeleteRecord)
	coll.GET("/subscribe", s.HandleSubscribe)
	coll.GET("/feed", s.HandleFeed)

	return router
}

// errorResponse creates a standardized error response.
func errorResponse(code, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

// handleError maps domain errors to HTTP responses.
func (s *Server) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse("not_found", "Record not found"))
	case errors.Is(err, store.ErrInvalidPath):
		c.JSON(http.StatusBadRequest, errorResponse("validation_error", err.Error()))
	default:
		s.logger.Error("Request failed",
			zap.String("request_id", c.GetString(ctxRequestID)),
			zap.String("collection", c.Param("path")),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse("internal_error", "Failed to process request"))
	}
}

func (s *Server) requestID(c *gin.Context) {
	id := c.GetHeader(requestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	c.Set(ctxRequestID, id)
	c.Header(requestIDHeader, id)
	c.Next()
}

// authenticate records the claims of a valid bearer token. Requests without
// one continue anonymously.
func (s *Server) authenticate(c *gin.Context) {
	header := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || s.tokens == nil {
		c.Next()
		return
	}

	claims, err := s.tokens.Parse(strings.TrimSpace(token))
	if err != nil {
		s.logger.Debug("Ignoring invalid token",
			zap.String("request_id", c.GetString(ctxRequestID)),
			zap.Error(err))
		c.Next()
		return
	}
	c.Set(ctxClaims, claims)
	c.Next()
}

func claimsFrom(c *gin.Context) *session.Claims {
	v, ok := c.Get(ctxClaims)
	if !ok {
		return nil
	}
	claims, _ := v.(*session.Claims)
	return claims
}

func roleFrom(c *gin.Context) session.Role {
	if claims := claimsFrom(c); claims != nil {
		return claims.Role
	}
	return session.RoleNone
}

func (s *Server) requireAdmin(c *gin.Context) {
	claims := claimsFrom(c)
	if claims == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "A valid bearer token is required"))
		return
	}
	if !claims.Role.IsAdmin() {
		c.AbortWithStatusJSON(http.StatusForbidden, errorResponse("forbidden", "You don't have permission!"))
		return
	}
	c.Next()
}

// collection resolves :path to a configured collection.
func (s *Server) collection(c *gin.Context) {
	coll, ok := s.collections[c.Param("path")]
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, errorResponse("unknown_collection", "Collection not found"))
		return
	}
	c.Set(ctxCollection, coll)
	c.Next()
}

func collectionFrom(c *gin.Context) feed.Collection {
	return c.MustGet(ctxCollection).(feed.Collection)
}
