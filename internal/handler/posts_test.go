package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/inkpost/inkpost/internal/store"
)

// registerAdmin registers the first account, which gets the admin role,
// and returns a logged-in client for it.
func registerAdmin(t *testing.T, app *testApp) *http.Client {
	t.Helper()

	client := app.newClient(t)
	resp := app.register(t, client, "Admin", "admin@example.com", "secret123")
	wantRedirect(t, resp, RouteRoot)
	resp.Body.Close()
	return client
}

// registerMember registers a non-admin account and returns its client.
// Must be called after registerAdmin.
func registerMember(t *testing.T, app *testApp, name, email string) *http.Client {
	t.Helper()

	client := app.newClient(t)
	resp := app.register(t, client, name, email, "secret123")
	wantRedirect(t, resp, RouteRoot)
	resp.Body.Close()
	return client
}

func TestCreatePost(t *testing.T) {
	app := newTestApp(t)
	admin := registerAdmin(t, app)

	resp := app.postForm(t, admin, RouteNewPost, url.Values{
		"title":     {"First Post"},
		"subtitle":  {"The very first one"},
		"image_url": {"https://example.com/cover.jpg"},
		"body":      {`<p>Hello</p><script>alert("x")</script>`},
	})
	wantRedirect(t, resp, RouteRoot)
	resp.Body.Close()

	queries := store.New(app.db)
	posts, err := queries.ListPosts(context.Background())
	if err != nil {
		t.Fatalf("ListPosts: %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("post count = %d, want 1", len(posts))
	}

	post := posts[0]
	if post.Title != "First Post" {
		t.Errorf("Title = %q, want %q", post.Title, "First Post")
	}
	if strings.Contains(post.Body, "<script>") {
		t.Errorf("body stored unsanitized: %q", post.Body)
	}
	if !strings.Contains(post.Body, "<p>Hello</p>") {
		t.Errorf("safe markup stripped: %q", post.Body)
	}
	if post.Date == "" {
		t.Error("publication date not stamped")
	}

	// The new post shows up on the home page.
	body := readBody(t, app.get(t, admin, RouteRoot))
	if !strings.Contains(body, "First Post") {
		t.Error("created post not listed on home page")
	}
}

func TestCreatePostDuplicateTitle(t *testing.T) {
	app := newTestApp(t)
	admin := registerAdmin(t, app)

	app.createPost(t, admin, "First Post").Body.Close()

	resp := app.createPost(t, admin, "First Post")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	body := readBody(t, resp)
	if !strings.Contains(body, "A post with that title already exists") {
		t.Error("duplicate title error not shown")
	}

	queries := store.New(app.db)
	posts, err := queries.ListPosts(context.Background())
	if err != nil {
		t.Fatalf("ListPosts: %v", err)
	}
	if len(posts) != 1 {
		t.Errorf("post count = %d, want 1", len(posts))
	}
}

func TestPostRoutesForbiddenForNonAdmin(t *testing.T) {
	app := newTestApp(t)
	registerAdmin(t, app)
	member := registerMember(t, app, "Bob", "bob@example.com")
	anonymous := app.newClient(t)

	clients := map[string]*http.Client{
		"anonymous": anonymous,
		"member":    member,
	}

	for name, client := range clients {
		t.Run(name, func(t *testing.T) {
			resp := app.get(t, client, RouteNewPost)
			if resp.StatusCode != http.StatusForbidden {
				t.Errorf("GET /new-post status = %d, want %d", resp.StatusCode, http.StatusForbidden)
			}
			resp.Body.Close()

			resp = app.createPost(t, client, "Sneaky Post")
			if resp.StatusCode != http.StatusForbidden {
				t.Errorf("POST /new-post status = %d, want %d", resp.StatusCode, http.StatusForbidden)
			}
			resp.Body.Close()
		})
	}

	queries := store.New(app.db)
	posts, err := queries.ListPosts(context.Background())
	if err != nil {
		t.Fatalf("ListPosts: %v", err)
	}
	if len(posts) != 0 {
		t.Errorf("post count = %d, want 0 after forbidden attempts", len(posts))
	}
}

func TestUpdatePostPreservesIdentity(t *testing.T) {
	app := newTestApp(t)
	admin := registerAdmin(t, app)
	app.createPost(t, admin, "Original Title").Body.Close()

	queries := store.New(app.db)
	posts, err := queries.ListPosts(context.Background())
	if err != nil {
		t.Fatalf("ListPosts: %v", err)
	}
	original := posts[0]

	editPath := fmt.Sprintf("/edit-post/%d", original.ID)
	resp := app.postForm(t, admin, editPath, url.Values{
		"title":     {"Revised Title"},
		"subtitle":  {"New subtitle"},
		"image_url": {"https://example.com/new.jpg"},
		"body":      {"<p>Revised body</p>"},
	})
	wantRedirect(t, resp, fmt.Sprintf("/post/%d", original.ID))
	resp.Body.Close()

	updated, err := queries.GetPostByID(context.Background(), original.ID)
	if err != nil {
		t.Fatalf("GetPostByID: %v", err)
	}
	if updated.Title != "Revised Title" {
		t.Errorf("Title = %q, want %q", updated.Title, "Revised Title")
	}
	if updated.Date != original.Date {
		t.Errorf("Date changed from %q to %q on edit", original.Date, updated.Date)
	}
	if updated.AuthorID != original.AuthorID {
		t.Errorf("AuthorID changed from %d to %d on edit", original.AuthorID, updated.AuthorID)
	}

	// Submitting the same content again changes nothing further.
	resp = app.postForm(t, admin, editPath, url.Values{
		"title":     {"Revised Title"},
		"subtitle":  {"New subtitle"},
		"image_url": {"https://example.com/new.jpg"},
		"body":      {"<p>Revised body</p>"},
	})
	wantRedirect(t, resp, fmt.Sprintf("/post/%d", original.ID))
	resp.Body.Close()

	again, err := queries.GetPostByID(context.Background(), original.ID)
	if err != nil {
		t.Fatalf("GetPostByID: %v", err)
	}
	if again.Title != updated.Title || again.Body != updated.Body || again.Date != updated.Date {
		t.Error("repeated identical edit changed post content")
	}
}

func TestEditFormPrefillsPost(t *testing.T) {
	app := newTestApp(t)
	admin := registerAdmin(t, app)
	app.createPost(t, admin, "Prefill Me").Body.Close()

	queries := store.New(app.db)
	posts, err := queries.ListPosts(context.Background())
	if err != nil {
		t.Fatalf("ListPosts: %v", err)
	}

	body := readBody(t, app.get(t, admin, fmt.Sprintf("/edit-post/%d", posts[0].ID)))
	if !strings.Contains(body, "Prefill Me") {
		t.Error("edit form not pre-populated with post title")
	}
	if !strings.Contains(body, "Edit Post") {
		t.Error("edit form not rendered in edit mode")
	}
}

func TestDeletePostCascadesComments(t *testing.T) {
	app := newTestApp(t)
	admin := registerAdmin(t, app)
	app.createPost(t, admin, "Doomed Post").Body.Close()

	queries := store.New(app.db)
	posts, err := queries.ListPosts(context.Background())
	if err != nil {
		t.Fatalf("ListPosts: %v", err)
	}
	postID := posts[0].ID

	postPath := fmt.Sprintf("/post/%d", postID)
	resp := app.postForm(t, admin, postPath, url.Values{"text": {"<p>Shame to lose this</p>"}})
	wantRedirect(t, resp, postPath)
	resp.Body.Close()

	count, err := queries.CountCommentsForPost(context.Background(), postID)
	if err != nil {
		t.Fatalf("CountCommentsForPost: %v", err)
	}
	if count != 1 {
		t.Fatalf("comment count = %d, want 1", count)
	}

	resp = app.get(t, admin, fmt.Sprintf("/delete/%d", postID))
	wantRedirect(t, resp, RouteRoot)
	resp.Body.Close()

	posts, err = queries.ListPosts(context.Background())
	if err != nil {
		t.Fatalf("ListPosts: %v", err)
	}
	if len(posts) != 0 {
		t.Errorf("post count = %d, want 0 after delete", len(posts))
	}

	count, err = queries.CountCommentsForPost(context.Background(), postID)
	if err != nil {
		t.Fatalf("CountCommentsForPost: %v", err)
	}
	if count != 0 {
		t.Errorf("comment count = %d, want 0 after post delete", count)
	}
}

func TestEditAndDeleteMissingPostNotFound(t *testing.T) {
	app := newTestApp(t)
	admin := registerAdmin(t, app)

	for _, path := range []string{"/edit-post/999", "/delete/999", "/edit-post/abc"} {
		resp := app.get(t, admin, path)
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want %d", path, resp.StatusCode, http.StatusNotFound)
		}
		resp.Body.Close()
	}
}
