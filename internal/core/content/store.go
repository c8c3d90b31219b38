// Package content holds the client-side mirror of the remote post
// collection: the feed, the currently viewed post, and per-post like
// state. Operations talk to the remote service and reconcile local state
// from the authoritative responses.
package content

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"Quill/internal/appwrite"
	"Quill/internal/core/phase"
)

// Operation names used for phase tracking.
const (
	OpFetchAll    = "fetchAll"
	OpFetchBySlug = "fetchBySlug"
	OpCreate      = "create"
	OpUpdate      = "update"
	OpDelete      = "delete"
	OpToggleLike  = "toggleLike"
)

// likeToggleAttempts bounds the refetch-retry loop when the revision
// precondition keeps failing under concurrent toggles.
const likeToggleAttempts = 2

// Store mirrors the remote post collection. The collection and the
// current post are mutated only by fulfillment of its operations; two
// racing mutations resolve last-write-wins on the full record, except
// like toggles, which retry on a stale revision instead of overwriting.
type Store struct {
	api        RemoteAPI
	identity   Identity
	collection string
	bucket     string
	logger     *slog.Logger

	mu      sync.Mutex
	posts   []Post
	current *Post
	ops     *phase.Tracker
}

// Snapshot is the read surface the presentation shell renders from.
type Snapshot struct {
	Posts   []Post
	Current *Post
	Loading bool
	Error   string
}

// NewStore creates a content store over the given collection and file
// bucket. logger may be nil.
func NewStore(api RemoteAPI, identity Identity, collection, bucket string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		api:        api,
		identity:   identity,
		collection: collection,
		bucket:     bucket,
		logger:     logger,
		ops:        phase.NewTracker(),
	}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	posts := make([]Post, len(s.posts))
	for i, p := range s.posts {
		posts[i] = p.clone()
	}
	var current *Post
	if s.current != nil {
		c := s.current.clone()
		current = &c
	}
	return Snapshot{
		Posts:   posts,
		Current: current,
		Loading: s.ops.Busy(),
		Error:   s.ops.LastError(),
	}
}

// Op returns the phase result for one named operation.
func (s *Store) Op(name string) phase.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ops.Op(name)
}

// FetchAll lists every post and replaces the whole collection with the
// result. Full-refresh semantics, not an incremental merge.
func (s *Store) FetchAll(ctx context.Context) ([]Post, error) {
	s.begin(OpFetchAll)

	docs, err := s.api.ListDocuments(ctx, s.collection)
	if err != nil {
		s.reject(OpFetchAll, "error fetching posts")
		return nil, err
	}

	posts := make([]Post, 0, len(docs))
	for i := range docs {
		post := postFromDocument(&docs[i])
		if post.AuthorName == "" {
			post.AuthorName = fallbackAuthor
		}
		posts = append(posts, post)
	}

	s.mu.Lock()
	s.posts = posts
	s.ops.Fulfill(OpFetchAll)
	s.mu.Unlock()
	return posts, nil
}

// FetchBySlug looks a post up by its slug and sets it as the current
// post. Zero matches is an absent result, not an error: the current post
// becomes nil and the operation fulfills.
func (s *Store) FetchBySlug(ctx context.Context, slug string) (*Post, error) {
	s.begin(OpFetchBySlug)

	docs, err := s.api.ListDocuments(ctx, s.collection, appwrite.Equal("slug", slug))
	if err != nil {
		s.reject(OpFetchBySlug, "error fetching post")
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(docs) == 0 {
		s.current = nil
		s.ops.Fulfill(OpFetchBySlug)
		return nil, nil
	}
	post := postFromDocument(&docs[0])
	if post.AuthorName == "" {
		post.AuthorName = fallbackAuthor
	}
	s.current = &post
	s.ops.Fulfill(OpFetchBySlug)
	copied := post.clone()
	return &copied, nil
}

// CreateInput carries the author-supplied fields for a new post.
// Image is optional; when present it is uploaded before the post is
// written, and an upload failure aborts the whole operation.
type CreateInput struct {
	Title   string
	Content string
	Image   *ImageAsset
}

// Create derives the slug from the title, uploads any pending image,
// stamps authorship from the identity captured at call time, and appends
// the created post to the collection.
func (s *Store) Create(ctx context.Context, in CreateInput) (*Post, error) {
	slug := Slugify(in.Title)
	if slug == "" {
		s.reject(OpCreate, ErrEmptyTitle.Error())
		return nil, ErrEmptyTitle
	}

	user, ok := s.identity.CurrentUser()
	if !ok {
		s.reject(OpCreate, ErrNotAuthenticated.Error())
		return nil, ErrNotAuthenticated
	}

	s.begin(OpCreate)

	imageURL := ""
	if in.Image != nil {
		url, err := s.uploadImage(ctx, in.Image)
		if err != nil {
			s.reject(OpCreate, ErrImageUpload.Error())
			return nil, err
		}
		imageURL = url
	}

	authorName := user.Name
	if authorName == "" {
		authorName = "Anonymous"
	}

	doc, err := s.api.CreateDocument(ctx, s.collection, map[string]any{
		"title":      in.Title,
		"content":    in.Content,
		"slug":       slug,
		"imageUrl":   imageURL,
		"authorId":   user.ID,
		"authorName": authorName,
		"likedBy":    []string{},
	})
	if err != nil {
		s.reject(OpCreate, "error creating post")
		return nil, err
	}

	post := postFromDocument(doc)
	s.mu.Lock()
	s.posts = append(s.posts, post)
	s.ops.Fulfill(OpCreate)
	s.mu.Unlock()

	copied := post.clone()
	return &copied, nil
}

// UpdateInput carries the editable fields of an existing post. Image
// distinguishes "keep the existing remote URL" from "upload this fresh
// asset" by variant; nil leaves the image field out of the patch.
type UpdateInput struct {
	ID      string
	Title   string
	Content string
	Image   ImageInput
}

// Update persists field changes remotely, then replaces both the
// collection entry and the current post with the authoritative record.
// The slug is never touched: it was derived once at creation.
func (s *Store) Update(ctx context.Context, in UpdateInput) (*Post, error) {
	if in.ID == "" {
		s.reject(OpUpdate, ErrPostNotFound.Error())
		return nil, ErrPostNotFound
	}

	s.begin(OpUpdate)

	data := map[string]any{
		"title":   in.Title,
		"content": in.Content,
	}
	switch img := in.Image.(type) {
	case *ImageAsset:
		url, err := s.uploadImage(ctx, img)
		if err != nil {
			s.reject(OpUpdate, ErrImageUpload.Error())
			return nil, err
		}
		data["imageUrl"] = url
	case ImageUnchanged:
		data["imageUrl"] = img.URL
	}

	doc, err := s.api.UpdateDocument(ctx, s.collection, in.ID, data, "")
	if err != nil {
		if errors.Is(err, appwrite.ErrNotFound) {
			s.reject(OpUpdate, ErrPostNotFound.Error())
			return nil, ErrPostNotFound
		}
		s.reject(OpUpdate, "error updating post")
		return nil, err
	}

	post := postFromDocument(doc)
	s.replaceLocal(post, OpUpdate)
	copied := post.clone()
	return &copied, nil
}

// Delete removes the post remotely, then drops it from the collection.
// A deleted current post is cleared: the remote resource no longer exists.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.begin(OpDelete)

	if err := s.api.DeleteDocument(ctx, s.collection, id); err != nil {
		s.reject(OpDelete, "error deleting post")
		return err
	}

	s.mu.Lock()
	s.posts = slices.DeleteFunc(s.posts, func(p Post) bool { return p.ID == id })
	if s.current != nil && s.current.ID == id {
		s.current = nil
	}
	s.ops.Fulfill(OpDelete)
	s.mu.Unlock()
	return nil
}

// ToggleLikeInput identifies the post, the acting user, and whether that
// user currently likes the post (true means the toggle removes the like).
type ToggleLikeInput struct {
	PostID  string
	UserID  string
	IsLiked bool
}

// ToggleLike reads the post, computes the new likedBy set, and writes it
// back conditioned on the revision it read. A stale revision means
// another toggle landed first: the post is refetched and the intent
// reapplied, bounded by likeToggleAttempts.
func (s *Store) ToggleLike(ctx context.Context, in ToggleLikeInput) (*Post, error) {
	if in.PostID == "" || in.UserID == "" {
		s.reject(OpToggleLike, ErrInvalidToggle.Error())
		return nil, ErrInvalidToggle
	}

	s.begin(OpToggleLike)

	for attempt := 0; attempt < likeToggleAttempts; attempt++ {
		doc, err := s.api.GetDocument(ctx, s.collection, in.PostID)
		if err != nil {
			if errors.Is(err, appwrite.ErrNotFound) {
				s.reject(OpToggleLike, ErrPostNotFound.Error())
				return nil, ErrPostNotFound
			}
			s.reject(OpToggleLike, "error toggling like")
			return nil, err
		}

		post := postFromDocument(doc)
		likedBy := toggleSet(post.LikedBy, in.UserID, in.IsLiked)

		updated, err := s.api.UpdateDocument(ctx, s.collection, in.PostID, map[string]any{
			"likedBy": likedBy,
		}, doc.Revision)
		if errors.Is(err, appwrite.ErrConflict) {
			s.logger.Debug("stale revision on like toggle, refetching",
				"post", in.PostID, "attempt", attempt+1)
			continue
		}
		if err != nil {
			s.reject(OpToggleLike, "error toggling like")
			return nil, err
		}

		result := postFromDocument(updated)
		s.replaceLocal(result, OpToggleLike)
		copied := result.clone()
		return &copied, nil
	}

	s.reject(OpToggleLike, ErrLikeConflict.Error())
	return nil, ErrLikeConflict
}

// uploadImage promotes a pending local asset to a remote view URL.
func (s *Store) uploadImage(ctx context.Context, asset *ImageAsset) (string, error) {
	fileID, err := s.api.UploadFile(ctx, s.bucket, asset.ID, asset.Filename, asset.MIME, asset.Data)
	if err != nil {
		s.logger.Warn("image upload failed", "file", asset.Filename, "error", err)
		return "", err
	}
	return s.api.FileViewURL(s.bucket, fileID), nil
}

// replaceLocal installs an authoritative record into both the collection
// entry and the current post. Updating only one of the two copies is the
// stale-current-post defect this store exists to prevent.
func (s *Store) replaceLocal(post Post, op string) {
	s.mu.Lock()
	for i := range s.posts {
		if s.posts[i].ID == post.ID {
			s.posts[i] = post
		}
	}
	if s.current != nil && s.current.ID == post.ID {
		c := post.clone()
		s.current = &c
	}
	s.ops.Fulfill(op)
	s.mu.Unlock()
}

// toggleSet removes the user when isLiked, otherwise adds them once.
func toggleSet(likedBy []string, userID string, isLiked bool) []string {
	if isLiked {
		return slices.DeleteFunc(slices.Clone(likedBy), func(id string) bool { return id == userID })
	}
	if slices.Contains(likedBy, userID) {
		return slices.Clone(likedBy)
	}
	return append(slices.Clone(likedBy), userID)
}

func (s *Store) begin(op string) {
	s.mu.Lock()
	s.ops.Begin(op)
	s.mu.Unlock()
}

func (s *Store) reject(op, msg string) {
	s.mu.Lock()
	s.ops.Reject(op, msg)
	s.mu.Unlock()
	s.logger.Warn("content operation failed", "operation", op, "error", msg)
}
