package handler

import (
	"bytes"
	"database/sql"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/yuin/goldmark"

	"github.com/inkpost/inkpost/internal/middleware"
	"github.com/inkpost/inkpost/internal/model"
	"github.com/inkpost/inkpost/internal/render"
	"github.com/inkpost/inkpost/internal/store"
)

// BlogHandler serves the public blog pages: the post listing, individual
// posts with their comment threads, and the static markdown pages.
type BlogHandler struct {
	queries  *store.Queries
	renderer *render.Renderer

	// Markdown pages rendered once at startup.
	aboutHTML   template.HTML
	contactHTML template.HTML
}

// NewBlogHandler creates a new BlogHandler. contentFS must contain
// about.md and contact.md under content/.
func NewBlogHandler(db *sql.DB, renderer *render.Renderer, contentFS fs.FS) (*BlogHandler, error) {
	about, err := renderMarkdown(contentFS, "content/about.md")
	if err != nil {
		return nil, err
	}
	contact, err := renderMarkdown(contentFS, "content/contact.md")
	if err != nil {
		return nil, err
	}

	return &BlogHandler{
		queries:     store.New(db),
		renderer:    renderer,
		aboutHTML:   about,
		contactHTML: contact,
	}, nil
}

// renderMarkdown converts an embedded markdown file to HTML.
func renderMarkdown(contentFS fs.FS, path string) (template.HTML, error) {
	src, err := fs.ReadFile(contentFS, path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}

	var buf bytes.Buffer
	if err := goldmark.Convert(src, &buf); err != nil {
		return "", fmt.Errorf("converting %s: %w", path, err)
	}
	return template.HTML(buf.String()), nil
}

// PostPageData is the view model for the post page.
type PostPageData struct {
	Post     model.Post
	Author   model.User
	Comments []store.ListCommentsForPostRow
}

// Home lists all posts.
// GET /
func (h *BlogHandler) Home(w http.ResponseWriter, r *http.Request) {
	posts, err := h.queries.ListPosts(r.Context())
	if err != nil {
		logAndInternalError(w, "failed to list posts", "error", err)
		return
	}

	err = h.renderer.Render(w, r, "index", render.TemplateData{
		Title:       "Home",
		CurrentUser: middleware.GetUser(r),
		Data:        posts,
	})
	if err != nil {
		logAndInternalError(w, "render error", "error", err, "template", "index")
	}
}

// ShowPost renders a single post with its comments and the comment form.
// GET /post/{id}
func (h *BlogHandler) ShowPost(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamID(w, r)
	if !ok {
		return
	}
	h.renderPost(w, r, id, &CommentForm{}, nil)
}

// AddComment handles a comment submission on a post's page. An
// unauthenticated submission is redirected to login with a flash message.
// POST /post/{id}
func (h *BlogHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamID(w, r)
	if !ok {
		return
	}

	// The post must exist before anything else.
	post, ok := requireEntityWithError(w, "post", id,
		func(id int64) (model.Post, error) { return h.queries.GetPostByID(r.Context(), id) })
	if !ok {
		return
	}

	user := middleware.GetUser(r)
	if user == nil {
		flashError(w, r, h.renderer, RouteLogin, "You need to login or register to comment.")
		return
	}

	if err := r.ParseForm(); err != nil {
		flashError(w, r, h.renderer, fmt.Sprintf("/post/%d", post.ID), "Invalid form data")
		return
	}

	form := &CommentForm{Text: r.FormValue("text")}
	if errs := form.Validate(); len(errs) > 0 {
		h.renderPost(w, r, post.ID, form, errs)
		return
	}

	_, err := h.queries.CreateComment(r.Context(), store.CreateCommentParams{
		Text:      SanitizeHTML(form.Text),
		AuthorID:  user.ID,
		PostID:    post.ID,
		CreatedAt: time.Now(),
	})
	if err != nil {
		logAndInternalError(w, "failed to create comment", "error", err, "post_id", post.ID)
		return
	}

	slog.Info("comment created", "post_id", post.ID, "user_id", user.ID)
	http.Redirect(w, r, fmt.Sprintf("/post/%d", post.ID), http.StatusSeeOther)
}

// About renders the about page.
// GET /about
func (h *BlogHandler) About(w http.ResponseWriter, r *http.Request) {
	h.renderStatic(w, r, "About", h.aboutHTML)
}

// Contact renders the contact page.
// GET /contact
func (h *BlogHandler) Contact(w http.ResponseWriter, r *http.Request) {
	h.renderStatic(w, r, "Contact", h.contactHTML)
}

func (h *BlogHandler) renderStatic(w http.ResponseWriter, r *http.Request, title string, content template.HTML) {
	err := h.renderer.Render(w, r, "page", render.TemplateData{
		Title:       title,
		CurrentUser: middleware.GetUser(r),
		Data:        content,
	})
	if err != nil {
		logAndInternalError(w, "render error", "error", err, "template", "page")
	}
}

// renderPost loads a post with its author and comments and renders the
// post page. A missing post is a 404.
func (h *BlogHandler) renderPost(w http.ResponseWriter, r *http.Request, id int64, form *CommentForm, errs map[string]string) {
	post, ok := requireEntityWithError(w, "post", id,
		func(id int64) (model.Post, error) { return h.queries.GetPostByID(r.Context(), id) })
	if !ok {
		return
	}

	author, err := h.queries.GetUserByID(r.Context(), post.AuthorID)
	if err != nil {
		logAndInternalError(w, "failed to load post author", "error", err, "post_id", post.ID)
		return
	}

	comments, err := h.queries.ListCommentsForPost(r.Context(), post.ID)
	if err != nil {
		logAndInternalError(w, "failed to list comments", "error", err, "post_id", post.ID)
		return
	}

	err = h.renderer.Render(w, r, "post", render.TemplateData{
		Title:       post.Title,
		CurrentUser: middleware.GetUser(r),
		Data: PostPageData{
			Post:     post,
			Author:   author,
			Comments: comments,
		},
		Form:   form,
		Errors: errs,
	})
	if err != nil {
		logAndInternalError(w, "render error", "error", err, "template", "post")
	}
}
