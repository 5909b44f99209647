package handler

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"

	"github.com/inkpost/inkpost/internal/auth"
	"github.com/inkpost/inkpost/internal/middleware"
	"github.com/inkpost/inkpost/internal/model"
	"github.com/inkpost/inkpost/internal/render"
	"github.com/inkpost/inkpost/internal/store"
)

// AuthHandler handles registration, login, and logout.
type AuthHandler struct {
	queries         *store.Queries
	renderer        *render.Renderer
	sessionManager  *scs.SessionManager
	loginProtection *middleware.LoginProtection
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(db *sql.DB, renderer *render.Renderer, sm *scs.SessionManager, lp *middleware.LoginProtection) *AuthHandler {
	return &AuthHandler{
		queries:         store.New(db),
		renderer:        renderer,
		sessionManager:  sm,
		loginProtection: lp,
	}
}

// RegisterForm renders the registration page.
func (h *AuthHandler) RegisterForm(w http.ResponseWriter, r *http.Request) {
	h.renderRegister(w, r, &RegisterForm{}, nil)
}

// Register handles the registration form submission. The first account
// ever created gets the admin role; a duplicate email redirects to login
// with a flash instead of creating a second row.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		flashError(w, r, h.renderer, RouteRegister, "Invalid form data")
		return
	}

	form := &RegisterForm{
		Name:     r.FormValue("name"),
		Email:    r.FormValue("email"),
		Password: r.FormValue("password"),
	}
	if errs := form.Validate(); len(errs) > 0 {
		h.renderRegister(w, r, form, errs)
		return
	}

	if _, err := h.queries.GetUserByEmail(r.Context(), form.Email); err == nil {
		flashError(w, r, h.renderer, RouteLogin, "You've already signed up with that email, log in instead!")
		return
	} else if !errors.Is(err, sql.ErrNoRows) {
		logAndInternalError(w, "database error during registration", "error", err)
		return
	}

	passwordHash, err := auth.HashPassword(form.Password)
	if err != nil {
		logAndInternalError(w, "password hashing error", "error", err)
		return
	}

	// The first registrant becomes the administrator.
	count, err := h.queries.CountUsers(r.Context())
	if err != nil {
		logAndInternalError(w, "database error during registration", "error", err)
		return
	}
	role := model.RoleMember
	if count == 0 {
		role = model.RoleAdmin
	}

	user, err := h.createRegistrant(r.Context(), form, passwordHash, role)
	if err != nil {
		if store.IsUniqueViolation(err) {
			// Lost a race with a concurrent registration for the same email.
			flashError(w, r, h.renderer, RouteLogin, "You've already signed up with that email, log in instead!")
			return
		}
		logAndInternalError(w, "failed to create user", "error", err)
		return
	}

	// Log the new user straight in.
	if err := h.sessionManager.RenewToken(r.Context()); err != nil {
		logAndInternalError(w, "session renewal error", "error", err)
		return
	}
	h.sessionManager.Put(r.Context(), SessionKeyUserID, user.ID)

	slog.Info("user registered", "user_id", user.ID, "email", user.Email, "role", user.Role)
	http.Redirect(w, r, RouteRoot, http.StatusSeeOther)
}

// createRegistrant inserts the new account. The schema allows only one
// admin row, so losing a race to be the first registrant surfaces as a
// unique violation on users.role; the account is retried as a member.
func (h *AuthHandler) createRegistrant(ctx context.Context, form *RegisterForm, passwordHash, role string) (model.User, error) {
	now := time.Now()
	params := store.CreateUserParams{
		Email:        form.Email,
		PasswordHash: passwordHash,
		Role:         role,
		Name:         form.Name,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	user, err := h.queries.CreateUser(ctx, params)
	if err != nil && role == model.RoleAdmin && store.IsUniqueViolationOn(err, "users.role") {
		params.Role = model.RoleMember
		user, err = h.queries.CreateUser(ctx, params)
	}
	return user, err
}

// LoginForm renders the login page. Already-authenticated users are sent home.
func (h *AuthHandler) LoginForm(w http.ResponseWriter, r *http.Request) {
	if middleware.GetUser(r) != nil {
		http.Redirect(w, r, RouteRoot, http.StatusSeeOther)
		return
	}
	h.renderLogin(w, r, &LoginForm{}, nil)
}

// Login handles the login form submission. The "no such account" and
// "wrong password" cases produce distinct user-visible messages.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		flashError(w, r, h.renderer, RouteLogin, "Invalid form data")
		return
	}

	form := &LoginForm{
		Email:    r.FormValue("email"),
		Password: r.FormValue("password"),
	}
	if errs := form.Validate(); len(errs) > 0 {
		h.renderLogin(w, r, form, errs)
		return
	}

	if h.loginProtection != nil {
		if locked, remaining := h.loginProtection.IsAccountLocked(form.Email); locked {
			slog.Warn("login attempt on locked account", "email", form.Email)
			flashError(w, r, h.renderer, RouteLogin,
				"Too many failed attempts, try again in "+remaining.Round(time.Second).String())
			return
		}
	}

	user, err := h.queries.GetUserByEmail(r.Context(), form.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			slog.Debug("login attempt for non-existent user", "email", form.Email)
			if h.loginProtection != nil {
				h.loginProtection.RecordFailedAttempt(form.Email)
			}
			flashError(w, r, h.renderer, RouteLogin, "That email does not exist, please try again.")
			return
		}
		logAndInternalError(w, "database error during login", "error", err)
		return
	}

	valid, err := auth.CheckPassword(form.Password, user.PasswordHash)
	if err != nil {
		logAndInternalError(w, "password check error", "error", err)
		return
	}
	if !valid {
		slog.Debug("invalid password attempt", "email", form.Email)
		if h.loginProtection != nil {
			h.loginProtection.RecordFailedAttempt(form.Email)
		}
		flashError(w, r, h.renderer, RouteLogin, "Password is incorrect.")
		return
	}

	if h.loginProtection != nil {
		h.loginProtection.RecordSuccessfulLogin(form.Email)
	}

	// Re-hash if the stored hash uses outdated parameters.
	if auth.NeedsRehash(user.PasswordHash) {
		if newHash, err := auth.HashPassword(form.Password); err == nil {
			if err := h.queries.UpdateUserPassword(r.Context(), store.UpdateUserPasswordParams{
				ID:           user.ID,
				PasswordHash: newHash,
				UpdatedAt:    time.Now(),
			}); err != nil {
				slog.Error("failed to re-hash password", "error", err, "user_id", user.ID)
			}
		}
	}

	// Regenerate session ID to prevent session fixation.
	if err := h.sessionManager.RenewToken(r.Context()); err != nil {
		logAndInternalError(w, "session renewal error", "error", err)
		return
	}
	h.sessionManager.Put(r.Context(), SessionKeyUserID, user.ID)

	slog.Info("user logged in", "user_id", user.ID, "email", user.Email)
	http.Redirect(w, r, RouteRoot, http.StatusSeeOther)
}

// Logout destroys the session and redirects home.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID := h.sessionManager.GetInt64(r.Context(), SessionKeyUserID)

	if err := h.sessionManager.Destroy(r.Context()); err != nil {
		slog.Error("session destroy error", "error", err)
	}

	slog.Info("user logged out", "user_id", userID)
	http.Redirect(w, r, RouteRoot, http.StatusSeeOther)
}

func (h *AuthHandler) renderRegister(w http.ResponseWriter, r *http.Request, form *RegisterForm, errs map[string]string) {
	err := h.renderer.Render(w, r, "register", render.TemplateData{
		Title:       "Register",
		CurrentUser: middleware.GetUser(r),
		Form:        form,
		Errors:      errs,
	})
	if err != nil {
		logAndInternalError(w, "render error", "error", err, "template", "register")
	}
}

func (h *AuthHandler) renderLogin(w http.ResponseWriter, r *http.Request, form *LoginForm, errs map[string]string) {
	err := h.renderer.Render(w, r, "login", render.TemplateData{
		Title:       "Log In",
		CurrentUser: middleware.GetUser(r),
		Form:        form,
		Errors:      errs,
	})
	if err != nil {
		logAndInternalError(w, "render error", "error", err, "template", "login")
	}
}
