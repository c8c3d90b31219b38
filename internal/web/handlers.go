package web

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"Quill/internal/core/auth"
	"Quill/internal/core/content"
)

// maxUploadBytes bounds post image uploads.
const maxUploadBytes = 10 << 20

// Handlers provides the HTTP handlers for the Quill web shell. Every
// handler reads store snapshots and dispatches store operations; none of
// them hold state of their own.
type Handlers struct {
	templates *Templates
	auth      *auth.Store
	content   *content.Store
	flash     *Flash
	logger    *slog.Logger
}

// NewHandlers creates a Handlers instance with the provided dependencies.
func NewHandlers(templates *Templates, authStore *auth.Store, contentStore *content.Store, flash *Flash, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		templates: templates,
		auth:      authStore,
		content:   contentStore,
		flash:     flash,
		logger:    logger,
	}
}

// Routes mounts all shell routes on a chi router.
func (h *Handlers) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/", h.FeedHandler)
	r.Get("/login", h.LoginPageHandler)
	r.Post("/login", h.LoginHandler)
	r.Get("/signup", h.SignupPageHandler)
	r.Post("/signup", h.SignupHandler)
	r.Post("/logout", h.LogoutHandler)
	r.Get("/profile", h.ProfileHandler)

	r.Route("/posts", func(r chi.Router) {
		r.Get("/new", h.NewPostPageHandler)
		r.Post("/", h.CreatePostHandler)
		r.Get("/{slug}", h.PostDetailHandler)
		r.Get("/{slug}/edit", h.EditPostPageHandler)
		r.Post("/{id}/update", h.UpdatePostHandler)
		r.Post("/{id}/delete", h.DeletePostHandler)
		r.Post("/{id}/like", h.ToggleLikeHandler)
	})

	return r
}

// pageContext is the shared chrome every page renders: identity, the
// store's last error, and any flash message.
type pageContext struct {
	User          *auth.User
	Authenticated bool
	Flash         string
	Error         string
}

func (h *Handlers) context(w http.ResponseWriter, r *http.Request, storeError string) pageContext {
	snap := h.auth.Snapshot()
	return pageContext{
		User:          snap.User,
		Authenticated: snap.Authenticated,
		Flash:         h.flash.Pop(w, r),
		Error:         storeError,
	}
}

func (h *Handlers) render(w http.ResponseWriter, name string, data any) {
	if err := h.templates.Render(w, name, data); err != nil {
		h.logger.Error("failed to render template", "template", name, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// requireUser resolves the signed-in user or redirects to login.
func (h *Handlers) requireUser(w http.ResponseWriter, r *http.Request) (*auth.User, bool) {
	user, ok := h.auth.CurrentUser()
	if !ok {
		h.flash.Set(w, r, "Please log in first.")
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return nil, false
	}
	return user, true
}

// FeedPageData holds data for the feed page.
type FeedPageData struct {
	pageContext
	Posts []content.Post
}

// FeedHandler handles GET / and renders the post feed.
func (h *Handlers) FeedHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	if _, err := h.content.FetchAll(r.Context()); err != nil {
		h.logger.Warn("feed refresh failed", "error", err)
	}
	snap := h.content.Snapshot()
	h.render(w, "feed.html", FeedPageData{
		pageContext: h.context(w, r, snap.Error),
		Posts:       snap.Posts,
	})
}

// PostPageData holds data for the post detail page.
type PostPageData struct {
	pageContext
	Post *content.Post
	// Liked reports whether the signed-in user likes this post.
	Liked   bool
	IsOwner bool
}

// PostDetailHandler handles GET /posts/{slug}.
// An unknown slug renders the not-found page, not an error.
func (h *Handlers) PostDetailHandler(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	post, err := h.content.FetchBySlug(r.Context(), slug)
	if err != nil {
		snap := h.content.Snapshot()
		h.render(w, "post.html", PostPageData{pageContext: h.context(w, r, snap.Error)})
		return
	}
	if post == nil {
		w.WriteHeader(http.StatusNotFound)
		h.render(w, "post.html", PostPageData{pageContext: h.context(w, r, "")})
		return
	}

	data := PostPageData{
		pageContext: h.context(w, r, ""),
		Post:        post,
	}
	if user, ok := h.auth.CurrentUser(); ok {
		data.Liked = post.LikedByUser(user.ID)
		data.IsOwner = post.AuthorID == user.ID
	}
	h.render(w, "post.html", data)
}

// PostFormData holds data for the create/edit form.
type PostFormData struct {
	pageContext
	// Post is nil for the create form.
	Post *content.Post
}

// NewPostPageHandler handles GET /posts/new.
func (h *Handlers) NewPostPageHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireUser(w, r); !ok {
		return
	}
	h.render(w, "post_form.html", PostFormData{pageContext: h.context(w, r, "")})
}

// CreatePostHandler handles POST /posts.
func (h *Handlers) CreatePostHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireUser(w, r); !ok {
		return
	}

	input := content.CreateInput{}
	image, err := readImageForm(r, &input.Title, &input.Content)
	if err != nil {
		h.flash.Set(w, r, "Could not read the submitted form.")
		http.Redirect(w, r, "/posts/new", http.StatusSeeOther)
		return
	}
	input.Image = image

	post, err := h.content.Create(r.Context(), input)
	if err != nil {
		h.flash.Set(w, r, h.content.Snapshot().Error)
		http.Redirect(w, r, "/posts/new", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/posts/"+post.Slug, http.StatusSeeOther)
}

// EditPostPageHandler handles GET /posts/{slug}/edit.
func (h *Handlers) EditPostPageHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	slug := chi.URLParam(r, "slug")
	post, err := h.content.FetchBySlug(r.Context(), slug)
	if err != nil || post == nil {
		h.flash.Set(w, r, "Post not found.")
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	if post.AuthorID != user.ID {
		h.flash.Set(w, r, "Only the author can edit this post.")
		http.Redirect(w, r, "/posts/"+post.Slug, http.StatusSeeOther)
		return
	}

	h.render(w, "post_form.html", PostFormData{
		pageContext: h.context(w, r, ""),
		Post:        post,
	})
}

// UpdatePostHandler handles POST /posts/{id}/update.
func (h *Handlers) UpdatePostHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	input := content.UpdateInput{ID: chi.URLParam(r, "id")}
	image, err := readImageForm(r, &input.Title, &input.Content)
	if err != nil {
		h.flash.Set(w, r, "Could not read the submitted form.")
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	if image != nil {
		input.Image = image
	} else if existing := r.FormValue("imageUrl"); existing != "" {
		input.Image = content.ImageUnchanged{URL: existing}
	}

	if existing := h.findPost(input.ID); existing != nil && existing.AuthorID != user.ID {
		h.flash.Set(w, r, "Only the author can edit this post.")
		http.Redirect(w, r, "/posts/"+existing.Slug, http.StatusSeeOther)
		return
	}

	post, err := h.content.Update(r.Context(), input)
	if err != nil {
		h.flash.Set(w, r, h.content.Snapshot().Error)
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/posts/"+post.Slug, http.StatusSeeOther)
}

// DeletePostHandler handles POST /posts/{id}/delete.
func (h *Handlers) DeletePostHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	if existing := h.findPost(id); existing != nil && existing.AuthorID != user.ID {
		h.flash.Set(w, r, "Only the author can delete this post.")
		http.Redirect(w, r, "/posts/"+existing.Slug, http.StatusSeeOther)
		return
	}

	if err := h.content.Delete(r.Context(), id); err != nil {
		h.flash.Set(w, r, h.content.Snapshot().Error)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// ToggleLikeHandler handles POST /posts/{id}/like.
func (h *Handlers) ToggleLikeHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	post, err := h.content.ToggleLike(r.Context(), content.ToggleLikeInput{
		PostID:  id,
		UserID:  user.ID,
		IsLiked: r.FormValue("liked") == "true",
	})
	if err != nil {
		h.flash.Set(w, r, h.content.Snapshot().Error)
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/posts/"+post.Slug, http.StatusSeeOther)
}

// AuthPageData holds data for the login and signup pages.
type AuthPageData struct {
	pageContext
}

// LoginPageHandler handles GET /login.
func (h *Handlers) LoginPageHandler(w http.ResponseWriter, r *http.Request) {
	h.render(w, "login.html", AuthPageData{pageContext: h.context(w, r, "")})
}

// LoginHandler handles POST /login.
func (h *Handlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	email := r.FormValue("email")
	password := r.FormValue("password")

	if err := h.auth.Login(r.Context(), email, password); err != nil {
		h.render(w, "login.html", AuthPageData{
			pageContext: h.context(w, r, h.auth.Snapshot().Error),
		})
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// SignupPageHandler handles GET /signup.
func (h *Handlers) SignupPageHandler(w http.ResponseWriter, r *http.Request) {
	h.render(w, "signup.html", AuthPageData{pageContext: h.context(w, r, "")})
}

// SignupHandler handles POST /signup.
// A partial signup (account created, session failed) redirects to login
// so the user retries there instead of signing up twice.
func (h *Handlers) SignupHandler(w http.ResponseWriter, r *http.Request) {
	email := r.FormValue("email")
	password := r.FormValue("password")
	name := r.FormValue("name")

	err := h.auth.Signup(r.Context(), email, password, name)
	if errors.Is(err, auth.ErrPartialSignup) {
		h.flash.Set(w, r, "Your account was created but sign-in failed. Please log in.")
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	if err != nil {
		h.render(w, "signup.html", AuthPageData{
			pageContext: h.context(w, r, h.auth.Snapshot().Error),
		})
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// LogoutHandler handles POST /logout. Local identity is gone afterwards
// whatever the remote teardown said.
func (h *Handlers) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r.Context()); err != nil {
		h.logger.Warn("remote session teardown failed", "error", err)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// ProfilePageData holds data for the profile page.
type ProfilePageData struct {
	pageContext
	Posts []content.Post
}

// ProfileHandler handles GET /profile and lists the user's own posts.
func (h *Handlers) ProfileHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	if _, err := h.content.FetchAll(r.Context()); err != nil {
		h.logger.Warn("profile refresh failed", "error", err)
	}
	snap := h.content.Snapshot()
	var own []content.Post
	for _, post := range snap.Posts {
		if post.AuthorID == user.ID {
			own = append(own, post)
		}
	}
	h.render(w, "profile.html", ProfilePageData{
		pageContext: h.context(w, r, snap.Error),
		Posts:       own,
	})
}

// findPost looks a post up in the local collection, checking the current
// post as well. Nil when the store has not seen the ID.
func (h *Handlers) findPost(id string) *content.Post {
	snap := h.content.Snapshot()
	for i := range snap.Posts {
		if snap.Posts[i].ID == id {
			return &snap.Posts[i]
		}
	}
	if snap.Current != nil && snap.Current.ID == id {
		return snap.Current
	}
	return nil
}

// readImageForm parses the multipart post form, filling title/content and
// returning the uploaded image asset, if one was attached.
func readImageForm(r *http.Request, title, body *string) (*content.ImageAsset, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, err
	}
	*title = r.FormValue("title")
	*body = r.FormValue("content")

	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	return content.NewImageAsset(header.Filename, header.Header.Get("Content-Type"), data), nil
}
