package handler

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/inkpost/inkpost/internal/middleware"
	"github.com/inkpost/inkpost/internal/model"
	"github.com/inkpost/inkpost/internal/render"
	"github.com/inkpost/inkpost/internal/store"
)

// postDateFormat is the human-readable publication date stamped on a post
// when it is created. The date never changes on edit.
const postDateFormat = "January 2, 2006"

// PostsHandler handles the admin-only post mutations: create, edit, delete.
// The routes are guarded by middleware.RequireAdmin; edit mode is derived
// from the presence of the {id} route parameter, never from shared state.
type PostsHandler struct {
	queries  *store.Queries
	renderer *render.Renderer
}

// NewPostsHandler creates a new PostsHandler.
func NewPostsHandler(db *sql.DB, renderer *render.Renderer) *PostsHandler {
	return &PostsHandler{
		queries:  store.New(db),
		renderer: renderer,
	}
}

// makePostData is the view model for the shared create/edit form.
type makePostData struct {
	IsEdit bool
	PostID int64
}

// NewForm renders the empty post creation form.
// GET /new-post
func (h *PostsHandler) NewForm(w http.ResponseWriter, r *http.Request) {
	h.renderForm(w, r, &PostForm{}, nil, makePostData{})
}

// Create handles the post creation form submission. The publication date
// is stamped from the server clock; a duplicate title re-renders the form
// with a field error.
// POST /new-post
func (h *PostsHandler) Create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		flashError(w, r, h.renderer, RouteNewPost, "Invalid form data")
		return
	}

	form := postFormFromRequest(r)
	if errs := form.Validate(); len(errs) > 0 {
		h.renderForm(w, r, form, errs, makePostData{})
		return
	}

	user := middleware.GetUser(r)
	now := time.Now()
	post, err := h.queries.CreatePost(r.Context(), store.CreatePostParams{
		Title:     form.Title,
		Subtitle:  form.Subtitle,
		Date:      now.Format(postDateFormat),
		Body:      SanitizeHTML(form.Body),
		ImageURL:  form.ImageURL,
		AuthorID:  user.ID,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		if store.IsUniqueViolation(err) {
			h.renderForm(w, r, form,
				map[string]string{"title": "A post with that title already exists"}, makePostData{})
			return
		}
		logAndInternalError(w, "failed to create post", "error", err)
		return
	}

	slog.Info("post created", "post_id", post.ID, "user_id", user.ID, "title", post.Title)
	flashSuccess(w, r, h.renderer, RouteRoot, "Post published")
}

// EditForm renders the post form pre-populated with the target post.
// GET /edit-post/{id}
func (h *PostsHandler) EditForm(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamID(w, r)
	if !ok {
		return
	}

	post, ok := requireEntityWithError(w, "post", id,
		func(id int64) (model.Post, error) { return h.queries.GetPostByID(r.Context(), id) })
	if !ok {
		return
	}

	form := &PostForm{
		Title:    post.Title,
		Subtitle: post.Subtitle,
		ImageURL: post.ImageURL,
		Body:     post.Body,
	}
	h.renderForm(w, r, form, nil, makePostData{IsEdit: true, PostID: post.ID})
}

// Update handles the edit form submission. All fields except the date and
// author are replaced in place; the post keeps its id.
// POST /edit-post/{id}
func (h *PostsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamID(w, r)
	if !ok {
		return
	}

	post, ok := requireEntityWithError(w, "post", id,
		func(id int64) (model.Post, error) { return h.queries.GetPostByID(r.Context(), id) })
	if !ok {
		return
	}

	if err := r.ParseForm(); err != nil {
		flashError(w, r, h.renderer, fmt.Sprintf("/edit-post/%d", post.ID), "Invalid form data")
		return
	}

	form := postFormFromRequest(r)
	editData := makePostData{IsEdit: true, PostID: post.ID}
	if errs := form.Validate(); len(errs) > 0 {
		h.renderForm(w, r, form, errs, editData)
		return
	}

	updated, err := h.queries.UpdatePost(r.Context(), store.UpdatePostParams{
		ID:        post.ID,
		Title:     form.Title,
		Subtitle:  form.Subtitle,
		Body:      SanitizeHTML(form.Body),
		ImageURL:  form.ImageURL,
		UpdatedAt: time.Now(),
	})
	if err != nil {
		if store.IsUniqueViolation(err) {
			h.renderForm(w, r, form,
				map[string]string{"title": "A post with that title already exists"}, editData)
			return
		}
		logAndInternalError(w, "failed to update post", "error", err, "post_id", post.ID)
		return
	}

	slog.Info("post updated", "post_id", updated.ID, "user_id", middleware.GetUserID(r))
	http.Redirect(w, r, fmt.Sprintf("/post/%d", updated.ID), http.StatusSeeOther)
}

// Delete removes a post. Its comments go with it via the cascading
// foreign key.
// GET /delete/{id}
func (h *PostsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamID(w, r)
	if !ok {
		return
	}

	post, ok := requireEntityWithError(w, "post", id,
		func(id int64) (model.Post, error) { return h.queries.GetPostByID(r.Context(), id) })
	if !ok {
		return
	}

	if err := h.queries.DeletePost(r.Context(), post.ID); err != nil {
		logAndInternalError(w, "failed to delete post", "error", err, "post_id", post.ID)
		return
	}

	slog.Info("post deleted", "post_id", post.ID, "user_id", middleware.GetUserID(r), "title", post.Title)
	flashSuccess(w, r, h.renderer, RouteRoot, "Post deleted")
}

func postFormFromRequest(r *http.Request) *PostForm {
	return &PostForm{
		Title:    r.FormValue("title"),
		Subtitle: r.FormValue("subtitle"),
		ImageURL: r.FormValue("image_url"),
		Body:     r.FormValue("body"),
	}
}

func (h *PostsHandler) renderForm(w http.ResponseWriter, r *http.Request, form *PostForm, errs map[string]string, data makePostData) {
	title := "New Post"
	if data.IsEdit {
		title = "Edit Post"
	}

	err := h.renderer.Render(w, r, "make-post", render.TemplateData{
		Title:       title,
		CurrentUser: middleware.GetUser(r),
		Data:        data,
		Form:        form,
		Errors:      errs,
	})
	if err != nil {
		logAndInternalError(w, "render error", "error", err, "template", "make-post")
	}
}
