package handler

import (
	"net/mail"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// htmlSanitizer strips dangerous markup from user-supplied rich text.
// UGCPolicy allows the safe formatting tags a comment box or post editor
// produces.
var htmlSanitizer = bluemonday.UGCPolicy()

// textOnly is used to decide whether rich text has any visible content.
var textOnly = bluemonday.StrictPolicy()

// SanitizeHTML returns s with all disallowed markup removed.
func SanitizeHTML(s string) string {
	return htmlSanitizer.Sanitize(s)
}

// RegisterForm carries the registration form fields.
type RegisterForm struct {
	Name     string
	Email    string
	Password string
}

// Validate returns field-level error messages, keyed by form field name.
// An empty map means the form is valid.
func (f *RegisterForm) Validate() map[string]string {
	errs := make(map[string]string)

	if strings.TrimSpace(f.Name) == "" {
		errs["name"] = "Name is required"
	}
	if strings.TrimSpace(f.Email) == "" {
		errs["email"] = "Email is required"
	} else if _, err := mail.ParseAddress(f.Email); err != nil {
		errs["email"] = "Enter a valid email address"
	}
	if f.Password == "" {
		errs["password"] = "Password is required"
	}

	return errs
}

// LoginForm carries the login form fields.
type LoginForm struct {
	Email    string
	Password string
}

// Validate returns field-level error messages for the login form.
func (f *LoginForm) Validate() map[string]string {
	errs := make(map[string]string)

	if strings.TrimSpace(f.Email) == "" {
		errs["email"] = "Email is required"
	}
	if f.Password == "" {
		errs["password"] = "Password is required"
	}

	return errs
}

// PostForm carries the post authoring form fields, used by both the
// create and edit operations.
type PostForm struct {
	Title    string
	Subtitle string
	ImageURL string
	Body     string
}

// Validate returns field-level error messages for the post form.
func (f *PostForm) Validate() map[string]string {
	errs := make(map[string]string)

	if strings.TrimSpace(f.Title) == "" {
		errs["title"] = "Title is required"
	}
	if strings.TrimSpace(f.Subtitle) == "" {
		errs["subtitle"] = "Subtitle is required"
	}
	if strings.TrimSpace(f.ImageURL) == "" {
		errs["image_url"] = "Cover image URL is required"
	} else if !isValidURL(f.ImageURL) {
		errs["image_url"] = "Enter a valid http(s) URL"
	}
	if !hasVisibleContent(f.Body) {
		errs["body"] = "Body is required"
	}

	return errs
}

// CommentForm carries the comment form field.
type CommentForm struct {
	Text string
}

// Validate returns field-level error messages for the comment form.
func (f *CommentForm) Validate() map[string]string {
	errs := make(map[string]string)

	if !hasVisibleContent(f.Text) {
		errs["text"] = "Comment text is required"
	}

	return errs
}

// hasVisibleContent reports whether rich text still contains visible
// characters once all markup is stripped.
func hasVisibleContent(s string) bool {
	return strings.TrimSpace(textOnly.Sanitize(s)) != ""
}

// isValidURL reports whether s parses as an absolute http or https URL.
func isValidURL(s string) bool {
	u, err := url.ParseRequestURI(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
