package api

import (
	"errors"
	"html/template"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"coralbricks/internal/auth"
	"coralbricks/internal/content"
	"coralbricks/internal/models"
	"coralbricks/internal/service/account"
	"coralbricks/internal/service/contact"
	"coralbricks/internal/worker"
)

const csrfContextKey = "csrf_token"

// pageData feeds every template; page-specific fields stay zero elsewhere.
type pageData struct {
	Title     string
	Path      string
	Brand     string
	Site      *content.Site
	User      *models.User
	CSRFToken string
	Year      int

	Flash  string
	Error  string
	Errors map[string]string
	Form   contact.Form
	Next   string
	Body   template.HTML

	Session     models.Session
	Messages    []messageView
	FlowDiagram string
}

// pageMiddleware loads the optional user, the visitor id and a CSRF token.
func (h *Handler) pageMiddleware() []gin.HandlerFunc {
	return []gin.HandlerFunc{h.auth.Optional(), h.visitor(), h.csrfCookie()}
}

func (h *Handler) csrfCookie() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(h.auth.CSRFCookieName())
		if err != nil || token == "" {
			token, err = h.auth.NewCSRFToken()
			if err != nil {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			h.setCSRFCookie(c, token, int(h.auth.TokenTTL().Seconds()))
		}
		c.Set(csrfContextKey, token)
		c.Next()
	}
}

func (h *Handler) newPage(c *gin.Context, title string) pageData {
	path := c.Request.URL.Path
	brand := h.site.Brand
	if path == "/demo" {
		brand = h.site.BuilderBrand
	}
	data := pageData{
		Title:     title,
		Path:      path,
		Brand:     brand,
		Site:      h.site,
		CSRFToken: c.GetString(csrfContextKey),
		Year:      time.Now().Year(),
	}
	if userID, ok := auth.UserIDFromContext(c); ok {
		if user, err := h.accounts.Get(c.Request.Context(), userID); err == nil {
			data.User = user
		}
	}
	return data
}

func (h *Handler) render(c *gin.Context, status int, name string, data pageData) {
	c.HTML(status, name, data)
}

const csrfExpiredMessage = "Your session expired. Please submit the form again."

// csrfRejected answers a form post whose CSRF token did not match. Forms are
// shown again with the visitor's input and the current token.
func (h *Handler) csrfRejected(c *gin.Context) {
	switch c.Request.URL.Path {
	case "/contact":
		data := h.newPage(c, "Contact")
		_ = c.ShouldBind(&data.Form)
		data.Error = csrfExpiredMessage
		h.render(c, http.StatusForbidden, "contact.html", data)
	case "/login", "/register":
		name, title := "login.html", "Sign In"
		if c.Request.URL.Path == "/register" {
			name, title = "register.html", "Create Account"
		}
		data := h.newPage(c, title)
		data.Next = safeNext(c.PostForm("next"), "")
		data.Form.Email = c.PostForm("email")
		data.Form.Name = c.PostForm("display_name")
		data.Error = csrfExpiredMessage
		h.render(c, http.StatusForbidden, name, data)
	case "/demo":
		c.Redirect(http.StatusSeeOther, "/demo")
	default:
		c.Redirect(http.StatusSeeOther, "/agents")
	}
}

func (h *Handler) notFound(c *gin.Context) {
	if strings.HasPrefix(c.Request.URL.Path, "/api/") {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	h.render(c, http.StatusNotFound, "notfound.html", h.newPage(c, "Not Found"))
}

func (h *Handler) aboutPage(c *gin.Context) {
	h.render(c, http.StatusOK, "about.html", h.newPage(c, "About"))
}

func (h *Handler) agentsPage(c *gin.Context) {
	h.render(c, http.StatusOK, "agents.html", h.newPage(c, "Agents"))
}

func (h *Handler) servicesPage(c *gin.Context) {
	h.render(c, http.StatusOK, "services.html", h.newPage(c, "Services"))
}

func (h *Handler) privacyPage(c *gin.Context) {
	data := h.newPage(c, "Privacy Policy")
	data.Body = h.site.Privacy
	h.render(c, http.StatusOK, "legal.html", data)
}

func (h *Handler) termsPage(c *gin.Context) {
	data := h.newPage(c, "Terms of Service")
	data.Body = h.site.Terms
	h.render(c, http.StatusOK, "legal.html", data)
}

func (h *Handler) contactPage(c *gin.Context) {
	h.render(c, http.StatusOK, "contact.html", h.newPage(c, "Contact"))
}

func (h *Handler) submitContactPage(c *gin.Context) {
	data := h.newPage(c, "Contact")
	var form contact.Form
	if err := c.ShouldBind(&form); err != nil {
		data.Error = h.site.Contact.Failure
		h.render(c, http.StatusBadRequest, "contact.html", data)
		return
	}
	if _, err := h.contact.Submit(c.Request.Context(), form); err != nil {
		data.Form = form
		var verr *contact.ValidationError
		if errors.As(err, &verr) {
			data.Errors = verr.Fields
			h.render(c, http.StatusBadRequest, "contact.html", data)
			return
		}
		data.Error = h.site.Contact.Failure
		h.render(c, http.StatusBadGateway, "contact.html", data)
		return
	}
	data.Flash = h.site.Contact.Success
	h.render(c, http.StatusOK, "contact.html", data)
}

func (h *Handler) loginPage(c *gin.Context) {
	if _, ok := auth.UserIDFromContext(c); ok {
		c.Redirect(http.StatusFound, safeNext(c.Query("next"), "/demo"))
		return
	}
	data := h.newPage(c, "Sign In")
	data.Next = safeNext(c.Query("next"), "")
	h.render(c, http.StatusOK, "login.html", data)
}

func (h *Handler) loginSubmit(c *gin.Context) {
	next := safeNext(c.PostForm("next"), "/demo")
	email := c.PostForm("email")
	user, err := h.accounts.Login(c.Request.Context(), email, c.PostForm("password"))
	if err != nil {
		data := h.newPage(c, "Sign In")
		data.Next = safeNext(c.PostForm("next"), "")
		data.Form.Email = email
		status := http.StatusUnauthorized
		data.Error = "Invalid email or password."
		if !errors.Is(err, account.ErrInvalidCredentials) {
			status = http.StatusInternalServerError
			data.Error = "Sign in is unavailable right now. Please try again."
		}
		h.render(c, status, "login.html", data)
		return
	}
	if _, _, err := h.startSession(c, user.ID); err != nil {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	c.Redirect(http.StatusSeeOther, next)
}

func (h *Handler) registerPage(c *gin.Context) {
	data := h.newPage(c, "Create Account")
	data.Next = safeNext(c.Query("next"), "")
	h.render(c, http.StatusOK, "register.html", data)
}

func (h *Handler) registerSubmit(c *gin.Context) {
	next := safeNext(c.PostForm("next"), "/demo")
	email, name := c.PostForm("email"), c.PostForm("display_name")
	user, err := h.accounts.Register(c.Request.Context(), email, name, c.PostForm("password"))
	if err != nil {
		data := h.newPage(c, "Create Account")
		data.Next = safeNext(c.PostForm("next"), "")
		data.Form.Email = email
		data.Form.Name = name
		status := registerErrorStatus(err)
		data.Error = err.Error()
		if status == http.StatusInternalServerError {
			log.Printf("[account] register failed: %v", err)
			data.Error = "Registration is unavailable right now. Please try again."
		}
		h.render(c, status, "register.html", data)
		return
	}
	if _, _, err := h.startSession(c, user.ID); err != nil {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	c.Redirect(http.StatusSeeOther, next)
}

func (h *Handler) logoutSubmit(c *gin.Context) {
	if userID, ok := auth.UserIDFromContext(c); ok {
		h.endSession(c, userID)
	} else {
		h.clearAuthCookies(c)
	}
	c.Redirect(http.StatusSeeOther, "/agents")
}

// demoPage opens a fresh transcript on every load.
func (h *Handler) demoPage(c *gin.Context) {
	userID, _ := auth.UserIDFromContext(c)
	data := h.newPage(c, "Create")
	session, msgs, err := h.chat.Open(userID, visitorID(c))
	if err != nil {
		status, msg := chatErrorStatus(err)
		data.Error = msg
		h.render(c, status, "demo.html", data)
		return
	}
	data.Session = session
	data.Messages = newMessageViews(msgs)
	h.render(c, http.StatusOK, "demo.html", data)
}

// demoSend is the no-script path of the chat form.
func (h *Handler) demoSend(c *gin.Context) {
	userID, _ := auth.UserIDFromContext(c)
	var req sendRequest
	if err := c.ShouldBind(&req); err != nil {
		c.Redirect(http.StatusSeeOther, "/demo")
		return
	}
	data := h.newPage(c, "Create")
	status := http.StatusOK
	_, _, err := h.chat.Send(c.Request.Context(), worker.SendRequest{
		OwnerID:   userID,
		SessionID: req.SessionID,
		Text:      req.Message,
	})
	if errors.Is(err, worker.ErrSessionNotFound) {
		c.Redirect(http.StatusSeeOther, "/demo")
		return
	}
	if err != nil {
		status, data.Error = chatErrorStatus(err)
	}

	msgs, err := h.chat.Transcript(userID, req.SessionID)
	if err != nil {
		c.Redirect(http.StatusSeeOther, "/demo")
		return
	}
	data.Session = models.Session{ID: req.SessionID, OwnerID: userID}
	data.Messages = newMessageViews(msgs)
	if diagram := latestDiagram(msgs); diagram != nil {
		data.FlowDiagram = string(diagram)
	}
	h.render(c, status, "demo.html", data)
}
