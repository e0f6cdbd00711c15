package api

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"html/template"
	"io/fs"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"coralbricks/internal/auth"
	"coralbricks/internal/content"
	"coralbricks/internal/models"
	"coralbricks/internal/service/account"
	"coralbricks/internal/service/contact"
	"coralbricks/internal/worker"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

const visitorCookieName = "cb_visitor"

// ChatManager owns the transient demo transcripts.
type ChatManager interface {
	Open(ownerID int64, visitorID string) (models.Session, []models.Message, error)
	Transcript(ownerID int64, sessionID string) ([]models.Message, error)
	Send(ctx context.Context, req worker.SendRequest) (models.Message, models.Message, error)
	Close(ownerID int64, sessionID string) error
	CloseOwner(ownerID int64)
}

// ContactSubmitter delivers the contact form.
type ContactSubmitter interface {
	Submit(ctx context.Context, form contact.Form) (*models.ContactSubmission, error)
}

// Options carries the handler's collaborators.
type Options struct {
	Site           *content.Site
	Accounts       *account.Service
	Auth           *auth.Service
	Chat           ChatManager
	Contact        ContactSubmitter
	AllowedOrigins []string
}

// Handler wires HTTP routes to the site services.
type Handler struct {
	site      *content.Site
	accounts  *account.Service
	auth      *auth.Service
	chat      ChatManager
	contact   ContactSubmitter
	origins   []string
	templates *template.Template
}

// NewHandler constructs a Handler and parses the page templates.
func NewHandler(opts Options) (*Handler, error) {
	if opts.Site == nil || opts.Accounts == nil || opts.Auth == nil || opts.Chat == nil || opts.Contact == nil {
		return nil, errors.New("api: site, accounts, auth, chat and contact are required")
	}
	tmpl, err := template.New("site").ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Handler{
		site:      opts.Site,
		accounts:  opts.Accounts,
		auth:      opts.Auth,
		chat:      opts.Chat,
		contact:   opts.Contact,
		origins:   opts.AllowedOrigins,
		templates: tmpl,
	}, nil
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.SetHTMLTemplate(h.templates)
	static, _ := fs.Sub(staticFS, "static")
	router.StaticFS("/static", http.FS(static))
	router.GET("/healthz", h.healthz)
	router.NoRoute(append(h.pageMiddleware(), h.notFound)...)

	pages := router.Group("/")
	pages.Use(h.pageMiddleware()...)
	pages.GET("/", func(c *gin.Context) { c.Redirect(http.StatusFound, "/agents") })
	pages.GET("/about", h.aboutPage)
	pages.GET("/agents", h.agentsPage)
	pages.GET("/services", h.servicesPage)
	pages.GET("/contact", h.contactPage)
	pages.GET("/privacy-policy", h.privacyPage)
	pages.GET("/terms-of-service", h.termsPage)
	pages.GET("/login", h.loginPage)
	pages.GET("/register", h.registerPage)

	pageCSRF := h.auth.PageCSRFMiddleware(h.csrfRejected)
	pages.POST("/contact", pageCSRF, h.submitContactPage)
	pages.POST("/login", pageCSRF, h.loginSubmit)
	pages.POST("/register", pageCSRF, h.registerSubmit)
	pages.POST("/logout", pageCSRF, h.logoutSubmit)

	demo := pages.Group("/demo")
	demo.Use(h.auth.PageMiddleware("/login"))
	demo.GET("", h.demoPage)
	demo.POST("", pageCSRF, h.demoSend)

	api := router.Group("/api")
	if len(h.origins) > 0 {
		api.Use(cors.New(cors.Config{
			AllowOrigins:     h.origins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", h.auth.CSRFHeaderName()},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	api.POST("/users/register", h.registerUser)
	api.POST("/users/login", h.loginUser)
	api.POST("/contact", h.submitContact)
	api.GET("/agents", h.listAgents)

	authed := api.Group("")
	authed.Use(h.auth.Middleware(), h.auth.CSRFMiddleware(), h.visitor())
	authed.GET("/users/me", h.currentUser)
	authed.POST("/users/logout", h.logoutUser)
	authed.DELETE("/users/me", h.deleteUser)
	authed.POST("/chat/sessions", h.openChat)
	authed.GET("/chat/sessions/:session_id/messages", h.chatMessages)
	authed.POST("/chat/messages", h.sendChat)
	authed.DELETE("/chat/sessions/:session_id", h.closeChat)
}

func (h *Handler) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) authorizedUserID(c *gin.Context) (int64, bool) {
	userID, ok := auth.UserIDFromContext(c)
	if !ok || userID <= 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
		return 0, false
	}
	return userID, true
}

// User interface
type registerRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

type userResponse struct {
	ID          int64     `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

func toUserResponse(u *models.User) userResponse {
	return userResponse{ID: u.ID, Email: u.Email, DisplayName: u.Name(), CreatedAt: u.CreatedAt}
}

func (h *Handler) registerUser(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.accounts.Register(c.Request.Context(), req.Email, req.DisplayName, req.Password)
	if err != nil {
		status := registerErrorStatus(err)
		msg := err.Error()
		if status == http.StatusInternalServerError {
			log.Printf("[account] register failed: %v", err)
			msg = "registration failed"
		}
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusCreated, toUserResponse(user))
}

func registerErrorStatus(err error) int {
	switch {
	case errors.Is(err, account.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, account.ErrInvalidEmail), errors.Is(err, account.ErrWeakPassword),
		errors.Is(err, account.ErrPasswordTooLong):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) loginUser(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.accounts.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		status := http.StatusUnauthorized
		if !errors.Is(err, account.ErrInvalidCredentials) {
			status = http.StatusInternalServerError
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	authToken, csrfToken, err := h.startSession(c, user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":       toUserResponse(user),
		"auth_token": authToken,
		"csrf_token": csrfToken,
	})
}

func (h *Handler) currentUser(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	user, err := h.accounts.Get(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toUserResponse(user))
}

func (h *Handler) logoutUser(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	h.endSession(c, userID)
	c.Status(http.StatusNoContent)
}

func (h *Handler) deleteUser(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	if err := h.auth.RevokeUserTokens(c.Request.Context(), userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.chat.CloseOwner(userID)
	if err := h.accounts.Delete(c.Request.Context(), userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.clearAuthCookies(c)
	c.Status(http.StatusNoContent)
}

// Catalog interface
type agentResponse struct {
	content.Agent
	URL string `json:"url"`
}

func (h *Handler) listAgents(c *gin.Context) {
	items := make([]agentResponse, 0, len(h.site.Agents.Items))
	for _, a := range h.site.Agents.Items {
		items = append(items, agentResponse{Agent: a, URL: a.URL()})
	}
	c.JSON(http.StatusOK, gin.H{"agents": items})
}

// Contact interface
func (h *Handler) submitContact(c *gin.Context) {
	var form contact.Form
	if err := c.ShouldBind(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if _, err := h.contact.Submit(c.Request.Context(), form); err != nil {
		var verr *contact.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid fields", "fields": verr.Fields})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": h.site.Contact.Failure})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": h.site.Contact.Success})
}

// startSession issues the auth and CSRF cookies for userID.
func (h *Handler) startSession(c *gin.Context, userID int64) (string, string, error) {
	authToken, err := h.auth.IssueToken(c.Request.Context(), userID)
	if err != nil {
		return "", "", err
	}
	csrfToken, err := h.auth.NewCSRFToken()
	if err != nil {
		return "", "", err
	}
	h.setAuthCookies(c, authToken, csrfToken)
	c.Set(csrfContextKey, csrfToken)
	return authToken, csrfToken, nil
}

// endSession revokes the current token and drops the user's transcripts.
func (h *Handler) endSession(c *gin.Context, userID int64) {
	h.chat.CloseOwner(userID)
	if authToken, ok := auth.AuthTokenFromContext(c); ok {
		_ = h.auth.RevokeToken(c.Request.Context(), authToken)
	}
	h.clearAuthCookies(c)
}

func (h *Handler) setAuthCookies(c *gin.Context, authToken, csrfToken string) {
	ttl := int(h.auth.TokenTTL().Seconds())
	if ttl <= 0 {
		ttl = 3600
	}
	secure := gin.Mode() == gin.ReleaseMode
	setCookie(c, &http.Cookie{
		Name:     h.auth.AuthCookieName(),
		Value:    authToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	h.setCSRFCookie(c, csrfToken, ttl)
}

func (h *Handler) setCSRFCookie(c *gin.Context, csrfToken string, ttl int) {
	setCookie(c, &http.Cookie{
		Name:     h.auth.CSRFCookieName(),
		Value:    csrfToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   gin.Mode() == gin.ReleaseMode,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearAuthCookies(c *gin.Context) {
	setCookie(c, &http.Cookie{
		Name:     h.auth.AuthCookieName(),
		Value:    "",
		MaxAge:   -1,
		Path:     "/",
		Secure:   gin.Mode() == gin.ReleaseMode,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func setCookie(c *gin.Context, ck *http.Cookie) {
	if ck == nil {
		return
	}
	http.SetCookie(c.Writer, ck)
}

const visitorContextKey = "visitor_id"

// visitor assigns a long-lived anonymous id used as the agent's user_id.
func (h *Handler) visitor() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(visitorCookieName)
		if err != nil || uuid.Validate(id) != nil {
			id = uuid.NewString()
			setCookie(c, &http.Cookie{
				Name:     visitorCookieName,
				Value:    id,
				MaxAge:   int((365 * 24 * time.Hour).Seconds()),
				Path:     "/",
				Secure:   gin.Mode() == gin.ReleaseMode,
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}
		c.Set(visitorContextKey, id)
		c.Next()
	}
}

func visitorID(c *gin.Context) string {
	return c.GetString(visitorContextKey)
}

// safeNext keeps post-login redirects on this site.
func safeNext(next, fallback string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return fallback
	}
	return next
}
