package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/parteiportal/backend/internal/address"
	"github.com/parteiportal/backend/internal/antrag"
	"github.com/parteiportal/backend/internal/apperror"
	"github.com/parteiportal/backend/internal/auth"
	"github.com/parteiportal/backend/internal/faq"
	"github.com/parteiportal/backend/internal/groups"
	"github.com/parteiportal/backend/internal/newsletter"
	"github.com/parteiportal/backend/internal/statusreport"
	"github.com/parteiportal/backend/internal/storage"
	"github.com/parteiportal/backend/internal/users"
)

const sessionClaimsContextKey = "portal_session_claims"

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingSessionIssuer    = errors.New("session issuer dependency required")
	errMissingUserService      = errors.New("user service dependency required")

	msgNotAuthenticated = "Nicht angemeldet."
	msgForbidden        = "Keine Berechtigung für diese Aktion."
	msgInvalidRequest   = "Die Anfrage ist ungültig."
	msgInternal         = "Ein unerwarteter Fehler ist aufgetreten."
)

// Dependencies wires the portal services into the HTTP layer.
type Dependencies struct {
	SessionValidator *auth.SessionValidator
	SessionIssuer    *auth.SessionIssuer
	Users            *users.Service
	Groups           *groups.Service
	StatusReports    *statusreport.Service
	Faq              *faq.Service
	Antraege         *antrag.Service
	Addresses        *address.Service
	Newsletters      *newsletter.Service
	Uploads          *storage.Service
	Generator        newsletter.ContentGenerator
	Progress         *ProgressDispatcher
	RedirectHosts    []string
	CookieSecure     bool
	Logger           *zap.Logger
}

// NewHTTPHandler builds the portal's JSON API surface.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.SessionValidator == nil {
		return nil, errMissingSessionValidator
	}
	if deps.SessionIssuer == nil {
		return nil, errMissingSessionIssuer
	}
	if deps.Users == nil {
		return nil, errMissingUserService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	handler := &httpHandler{
		validator:     deps.SessionValidator,
		issuer:        deps.SessionIssuer,
		users:         deps.Users,
		groups:        deps.Groups,
		statusReports: deps.StatusReports,
		faq:           deps.Faq,
		antraege:      deps.Antraege,
		addresses:     deps.Addresses,
		newsletters:   deps.Newsletters,
		uploads:       deps.Uploads,
		generator:     deps.Generator,
		progress:      deps.Progress,
		redirectHosts: deps.RedirectHosts,
		cookieSecure:  deps.CookieSecure,
		logger:        logger,
	}

	api := router.Group("/api")

	api.POST("/auth/login", handler.handleLogin)
	api.POST("/auth/logout", handler.handleLogout)
	api.GET("/auth/me", handler.requireSession, handler.handleMe)

	// Tracking endpoints are reachable without a session: they are hit by
	// mail clients, not by the portal frontend.
	api.GET("/newsletter/track/open", handler.handleTrackOpen)
	api.GET("/newsletter/track/click", handler.handleTrackClick)

	admin := api.Group("/admin", handler.requireSession, handler.requireRole(auth.RoleAdmin))
	admin.GET("/faq", handler.handleListFaq)
	admin.POST("/faq", handler.handleCreateFaq)
	admin.PATCH("/faq/:id", handler.handleUpdateFaq)
	admin.POST("/faq/:id/activate", handler.handleActivateFaq)
	admin.POST("/faq/:id/archive", handler.handleArchiveFaq)
	admin.DELETE("/faq/:id", handler.handleDeleteFaq)

	admin.GET("/groups", handler.handleListGroups)
	admin.POST("/groups", handler.handleCreateGroup)
	admin.GET("/groups/:id", handler.handleGetGroup)
	admin.PATCH("/groups/:id", handler.handleUpdateGroup)
	admin.POST("/groups/:id/activate", handler.handleActivateGroup)
	admin.POST("/groups/:id/archive", handler.handleArchiveGroup)
	admin.GET("/groups/:id/members", handler.handleListGroupMembers)
	admin.POST("/groups/:id/members", handler.handleAddGroupMember)
	admin.DELETE("/groups/:id/members/:userId", handler.handleRemoveGroupMember)
	admin.GET("/groups/:id/responsible", handler.handleListResponsiblePersons)
	admin.POST("/groups/:id/responsible", handler.handleAddResponsiblePerson)
	admin.DELETE("/groups/:id/responsible/:personId", handler.handleRemoveResponsiblePerson)

	admin.GET("/antraege", handler.handleListAntraege)
	admin.POST("/antraege/:id/decide", handler.handleDecideAntrag)

	admin.GET("/addresses", handler.handleListAddresses)
	admin.POST("/addresses", handler.handleCreateAddress)
	admin.GET("/addresses/:id", handler.handleGetAddress)
	admin.PATCH("/addresses/:id", handler.handleUpdateAddress)
	admin.DELETE("/addresses/:id", handler.handleDeleteAddress)

	admin.POST("/uploads", handler.handleUpload)

	portal := api.Group("/portal", handler.requireSession, handler.requireRole(auth.RoleMitglied))
	portal.GET("/groups", handler.handleListActiveGroups)
	portal.GET("/antraege", handler.handleListOwnAntraege)
	portal.POST("/antraege", handler.handleCreateAntrag)
	portal.PATCH("/antraege/:id", handler.handleUpdateAntrag)

	reports := api.Group("/status-reports", handler.requireSession)
	reports.POST("", handler.requireRole(auth.RoleMitglied), handler.handleSubmitStatusReport)
	reports.GET("", handler.requireRole(auth.RoleAdmin), handler.handleListStatusReports)
	reports.POST("/:id/decide", handler.requireRole(auth.RoleAdmin), handler.handleDecideStatusReport)

	letters := api.Group("/newsletter", handler.requireSession, handler.requireRole(auth.RoleAdmin))
	letters.GET("", handler.handleListNewsletters)
	letters.POST("", handler.handleCreateNewsletter)
	letters.GET("/:id", handler.handleGetNewsletter)
	letters.PATCH("/:id", handler.handleUpdateNewsletter)
	letters.DELETE("/:id", handler.handleDeleteNewsletter)
	letters.POST("/:id/send-chunk", handler.handleSendNewsletterChunk)
	letters.GET("/:id/progress", handler.handleNewsletterProgress)
	letters.POST("/assist", handler.handleAssistNewsletter)

	return router, nil
}

type httpHandler struct {
	validator     *auth.SessionValidator
	issuer        *auth.SessionIssuer
	users         *users.Service
	groups        *groups.Service
	statusReports *statusreport.Service
	faq           *faq.Service
	antraege      *antrag.Service
	addresses     *address.Service
	newsletters   *newsletter.Service
	uploads       *storage.Service
	generator     newsletter.ContentGenerator
	progress      *ProgressDispatcher
	redirectHosts []string
	cookieSecure  bool
	logger        *zap.Logger
}

func (h *httpHandler) requireSession(c *gin.Context) {
	claims, err := h.validator.ValidateRequest(c.Request)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": msgNotAuthenticated})
		return
	}
	c.Set(sessionClaimsContextKey, claims)
	c.Next()
}

func (h *httpHandler) requireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := h.sessionClaims(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": msgNotAuthenticated})
			return
		}
		if !claims.HasRole(role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": msgForbidden})
			return
		}
		c.Next()
	}
}

func (h *httpHandler) sessionClaims(c *gin.Context) (auth.SessionClaims, bool) {
	value, exists := c.Get(sessionClaimsContextKey)
	if !exists {
		return auth.SessionClaims{}, false
	}
	claims, ok := value.(auth.SessionClaims)
	return claims, ok
}

func (h *httpHandler) respondError(c *gin.Context, err error) {
	if serviceErr, ok := apperror.AsServiceError(err); ok {
		status := statusForKind(serviceErr.Kind())
		if status >= http.StatusInternalServerError {
			h.logger.Error("request failed", zap.String("code", serviceErr.Code()), zap.Error(err))
		} else {
			h.logger.Warn("request rejected", zap.String("code", serviceErr.Code()))
		}
		c.JSON(status, gin.H{"error": serviceErr.Code(), "message": serviceErr.Message()})
		return
	}
	h.logger.Error("unexpected error", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": msgInternal})
}

func (h *httpHandler) respondBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "invalid_request",
		"message": msgInvalidRequest,
		"details": err.Error(),
	})
}

func statusForKind(kind apperror.Kind) int {
	switch kind {
	case apperror.KindInvalid:
		return http.StatusBadRequest
	case apperror.KindUnauthorized:
		return http.StatusUnauthorized
	case apperror.KindForbidden:
		return http.StatusForbidden
	case apperror.KindNotFound:
		return http.StatusNotFound
	case apperror.KindConflict:
		return http.StatusConflict
	case apperror.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
