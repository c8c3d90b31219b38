package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Quill/internal/appwrite"
	"Quill/internal/core/auth"
)

// fakeRemote is an in-memory stand-in for the remote service: documents
// with revision tokens, conditional updates, and file storage.
type fakeRemote struct {
	mu      sync.Mutex
	docs    map[string]*appwrite.Document
	order   []string
	nextID  int
	nextRev int

	files      map[string][]byte
	failUpload bool
	// conflictsLeft simulates a concurrent writer: while positive, every
	// conditional update bumps the stored revision and fails.
	conflictsLeft int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		docs:  make(map[string]*appwrite.Document),
		files: make(map[string][]byte),
	}
}

func (f *fakeRemote) bumpRevision() string {
	f.nextRev++
	return strconv.Itoa(f.nextRev)
}

func cloneDoc(doc *appwrite.Document) *appwrite.Document {
	copied := *doc
	copied.Data = make(map[string]any, len(doc.Data))
	for k, v := range doc.Data {
		if s, ok := v.([]string); ok {
			copied.Data[k] = append([]string(nil), s...)
			continue
		}
		copied.Data[k] = v
	}
	return &copied
}

// queryMatches interprets the equal() wire form against a document.
func queryMatches(doc *appwrite.Document, q appwrite.Query) bool {
	s := q.String()
	open := strings.Index(s, "(")
	if open < 0 || s[:open] != "equal" {
		return true
	}
	args := s[open+1 : len(s)-1]
	comma := strings.Index(args, ",")
	var attr string
	if err := json.Unmarshal([]byte(args[:comma]), &attr); err != nil {
		return false
	}
	var vals []any
	if err := json.Unmarshal([]byte(args[comma+1:]), &vals); err != nil || len(vals) == 0 {
		return false
	}
	return doc.Data[attr] == vals[0]
}

func (f *fakeRemote) ListDocuments(ctx context.Context, collection string, queries ...appwrite.Query) ([]appwrite.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []appwrite.Document
	for _, id := range f.order {
		doc := f.docs[id]
		matched := true
		for _, q := range queries {
			if !queryMatches(doc, q) {
				matched = false
				break
			}
		}
		if matched {
			out = append(out, *cloneDoc(doc))
		}
	}
	return out, nil
}

func (f *fakeRemote) GetDocument(ctx context.Context, collection, id string) (*appwrite.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil, fmt.Errorf("getDocument: %w", appwrite.ErrNotFound)
	}
	return cloneDoc(doc), nil
}

func (f *fakeRemote) CreateDocument(ctx context.Context, collection string, data map[string]any) (*appwrite.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	doc := &appwrite.Document{
		ID:        fmt.Sprintf("p%d", f.nextID),
		CreatedAt: time.Now(),
		Revision:  f.bumpRevision(),
		Data:      data,
	}
	f.docs[doc.ID] = cloneDoc(doc)
	f.order = append(f.order, doc.ID)
	return cloneDoc(doc), nil
}

func (f *fakeRemote) UpdateDocument(ctx context.Context, collection, id string, data map[string]any, ifRevision string) (*appwrite.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil, fmt.Errorf("updateDocument: %w", appwrite.ErrNotFound)
	}
	if f.conflictsLeft > 0 && ifRevision != "" {
		f.conflictsLeft--
		doc.Revision = f.bumpRevision()
		return nil, fmt.Errorf("updateDocument: %w", appwrite.ErrConflict)
	}
	if ifRevision != "" && ifRevision != doc.Revision {
		return nil, fmt.Errorf("updateDocument: %w", appwrite.ErrConflict)
	}
	for k, v := range data {
		doc.Data[k] = v
	}
	doc.Revision = f.bumpRevision()
	doc.UpdatedAt = time.Now()
	return cloneDoc(doc), nil
}

func (f *fakeRemote) DeleteDocument(ctx context.Context, collection, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[id]; !ok {
		return fmt.Errorf("deleteDocument: %w", appwrite.ErrNotFound)
	}
	delete(f.docs, id)
	for i, existing := range f.order {
		if existing == id {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeRemote) UploadFile(ctx context.Context, bucket, fileID, filename, mimeType string, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpload {
		return "", errors.New("storage unavailable")
	}
	f.files[fileID] = data
	return fileID, nil
}

func (f *fakeRemote) FileViewURL(bucket, fileID string) string {
	return "https://files.test/" + bucket + "/" + fileID + "/view"
}

// fixedIdentity resolves a constant signed-in user, or nobody.
type fixedIdentity struct {
	user *auth.User
}

func (f fixedIdentity) CurrentUser() (*auth.User, bool) {
	if f.user == nil {
		return nil, false
	}
	copied := *f.user
	return &copied, true
}

func ada() *auth.User {
	return &auth.User{ID: "u1", Name: "Ada", Email: "ada@example.com"}
}

func newTestStore(remote *fakeRemote, user *auth.User) *Store {
	return NewStore(remote, fixedIdentity{user: user}, "posts", "post-images", nil)
}

func mustCreate(t *testing.T, store *Store, title, body string) *Post {
	t.Helper()
	post, err := store.Create(context.Background(), CreateInput{Title: title, Content: body})
	require.NoError(t, err)
	return post
}

func TestFetchAllReplacesCollection(t *testing.T) {
	remote := newFakeRemote()
	store := newTestStore(remote, ada())
	mustCreate(t, store, "First", "one")
	mustCreate(t, store, "Second", "two")

	// A stale local entry disappears on refresh: full replace, not merge.
	require.NoError(t, remote.DeleteDocument(context.Background(), "posts", "p1"))

	posts, err := store.FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "Second", posts[0].Title)

	snap := store.Snapshot()
	assert.Len(t, snap.Posts, 1)
	assert.False(t, snap.Loading)
	assert.Empty(t, snap.Error)
}

func TestFetchAllFallsBackOnMissingAuthorName(t *testing.T) {
	remote := newFakeRemote()
	_, err := remote.CreateDocument(context.Background(), "posts", map[string]any{
		"title": "Orphan", "slug": "orphan", "likedBy": []string{},
	})
	require.NoError(t, err)
	store := newTestStore(remote, ada())

	posts, err := store.FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "Unknown", posts[0].AuthorName)
}

func TestFetchBySlugAbsentIsNotAnError(t *testing.T) {
	store := newTestStore(newFakeRemote(), ada())

	post, err := store.FetchBySlug(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, post)

	snap := store.Snapshot()
	assert.Nil(t, snap.Current)
	assert.Empty(t, snap.Error)
}

func TestCreateDerivesSlugAndAppends(t *testing.T) {
	store := newTestStore(newFakeRemote(), ada())

	post, err := store.Create(context.Background(), CreateInput{Title: "My First Post!", Content: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "my-first-post", post.Slug)
	assert.Equal(t, "u1", post.AuthorID)
	assert.Equal(t, "Ada", post.AuthorName)
	assert.Empty(t, post.ImageURL)
	assert.Empty(t, post.LikedBy)

	mustCreate(t, store, "Another", "x")
	snap := store.Snapshot()
	require.Len(t, snap.Posts, 2)
	assert.Equal(t, "my-first-post", snap.Posts[0].Slug, "creation appends, never reorders")
}

func TestCreateWithImageUploadsFirst(t *testing.T) {
	remote := newFakeRemote()
	store := newTestStore(remote, ada())

	post, err := store.Create(context.Background(), CreateInput{
		Title:   "Picture Post",
		Content: "look",
		Image:   NewImageAsset("cat.png", "image/png", []byte{1, 2}),
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(post.ImageURL, "https://files.test/post-images/"),
		"imageUrl must be a remote view URL, never a local reference")
	assert.Len(t, remote.files, 1)
}

func TestCreateAbortsWhenUploadFails(t *testing.T) {
	remote := newFakeRemote()
	remote.failUpload = true
	store := newTestStore(remote, ada())

	_, err := store.Create(context.Background(), CreateInput{
		Title: "Doomed", Content: "x", Image: NewImageAsset("cat.png", "image/png", []byte{1}),
	})
	require.Error(t, err)
	assert.Empty(t, remote.docs, "no post may be written with a dangling image")
	assert.Equal(t, ErrImageUpload.Error(), store.Snapshot().Error)
}

func TestCreateRequiresTitle(t *testing.T) {
	store := newTestStore(newFakeRemote(), ada())

	_, err := store.Create(context.Background(), CreateInput{Title: "!!!", Content: "x"})
	assert.ErrorIs(t, err, ErrEmptyTitle)
}

func TestCreateRequiresIdentity(t *testing.T) {
	store := newTestStore(newFakeRemote(), nil)

	_, err := store.Create(context.Background(), CreateInput{Title: "Hello", Content: "x"})
	assert.ErrorIs(t, err, ErrNotAuthenticated, "missing identity is its own failure, not a generic one")
}

func TestCreateAnonymousAuthorName(t *testing.T) {
	store := newTestStore(newFakeRemote(), &auth.User{ID: "u9"})

	post := mustCreate(t, store, "Nameless", "x")
	assert.Equal(t, "Anonymous", post.AuthorName)
}

func TestCreateThenFetchBySlug(t *testing.T) {
	store := newTestStore(newFakeRemote(), ada())
	created := mustCreate(t, store, "Round Trip", "body text")

	found, err := store.FetchBySlug(context.Background(), "round-trip")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, created.ID, found.ID)
	assert.Equal(t, "Round Trip", found.Title)
	assert.Equal(t, "body text", found.Content)

	snap := store.Snapshot()
	require.NotNil(t, snap.Current)
	assert.Equal(t, created.ID, snap.Current.ID)
}

func TestUpdateKeepsExistingImageURL(t *testing.T) {
	remote := newFakeRemote()
	store := newTestStore(remote, ada())
	created, err := store.Create(context.Background(), CreateInput{
		Title: "Pic", Content: "x", Image: NewImageAsset("a.png", "image/png", []byte{1}),
	})
	require.NoError(t, err)

	updated, err := store.Update(context.Background(), UpdateInput{
		ID:      created.ID,
		Title:   "Pic v2",
		Content: "y",
		Image:   ImageUnchanged{URL: created.ImageURL},
	})
	require.NoError(t, err)
	assert.Equal(t, created.ImageURL, updated.ImageURL)
	assert.Len(t, remote.files, 1, "no second upload for an unchanged image")
}

func TestUpdateWithNewAssetReplacesImageURL(t *testing.T) {
	store := newTestStore(newFakeRemote(), ada())
	created, err := store.Create(context.Background(), CreateInput{
		Title: "Pic", Content: "x", Image: NewImageAsset("a.png", "image/png", []byte{1}),
	})
	require.NoError(t, err)

	updated, err := store.Update(context.Background(), UpdateInput{
		ID:      created.ID,
		Title:   "Pic",
		Content: "x",
		Image:   NewImageAsset("b.png", "image/png", []byte{2}),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, updated.ImageURL)
	assert.NotEqual(t, created.ImageURL, updated.ImageURL)
}

func TestUpdateReplacesBothCopies(t *testing.T) {
	store := newTestStore(newFakeRemote(), ada())
	created := mustCreate(t, store, "Original", "x")
	_, err := store.FetchBySlug(context.Background(), created.Slug)
	require.NoError(t, err)

	_, err = store.Update(context.Background(), UpdateInput{ID: created.ID, Title: "Edited", Content: "y"})
	require.NoError(t, err)

	snap := store.Snapshot()
	require.Len(t, snap.Posts, 1)
	assert.Equal(t, "Edited", snap.Posts[0].Title)
	require.NotNil(t, snap.Current)
	assert.Equal(t, "Edited", snap.Current.Title, "collection entry and current post must agree")
	assert.Equal(t, created.Slug, snap.Current.Slug, "slug is immutable after creation")
}

func TestUpdateMissingPost(t *testing.T) {
	store := newTestStore(newFakeRemote(), ada())

	_, err := store.Update(context.Background(), UpdateInput{ID: "ghost", Title: "t", Content: "c"})
	assert.ErrorIs(t, err, ErrPostNotFound)
}

func TestDeleteRemovesAndClearsCurrent(t *testing.T) {
	store := newTestStore(newFakeRemote(), ada())
	created := mustCreate(t, store, "Short Lived", "x")
	_, err := store.FetchBySlug(context.Background(), created.Slug)
	require.NoError(t, err)

	require.NoError(t, store.Delete(context.Background(), created.ID))

	snap := store.Snapshot()
	assert.Empty(t, snap.Posts)
	assert.Nil(t, snap.Current, "the remote resource is gone, so is the current post")

	// The former slug now resolves to absent, not to an error.
	post, err := store.FetchBySlug(context.Background(), created.Slug)
	require.NoError(t, err)
	assert.Nil(t, post)
}

func TestToggleLikeRoundTrip(t *testing.T) {
	store := newTestStore(newFakeRemote(), ada())
	created := mustCreate(t, store, "Likeable", "x")

	liked, err := store.ToggleLike(context.Background(), ToggleLikeInput{
		PostID: created.ID, UserID: "u1", IsLiked: false,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, liked.LikedBy)

	unliked, err := store.ToggleLike(context.Background(), ToggleLikeInput{
		PostID: created.ID, UserID: "u1", IsLiked: true,
	})
	require.NoError(t, err)
	assert.Empty(t, unliked.LikedBy, "like then unlike restores the original set")
}

func TestToggleLikeUpdatesBothCopies(t *testing.T) {
	store := newTestStore(newFakeRemote(), ada())
	created := mustCreate(t, store, "Likeable", "x")
	_, err := store.FetchBySlug(context.Background(), created.Slug)
	require.NoError(t, err)

	_, err = store.ToggleLike(context.Background(), ToggleLikeInput{
		PostID: created.ID, UserID: "u2", IsLiked: false,
	})
	require.NoError(t, err)

	snap := store.Snapshot()
	assert.Equal(t, []string{"u2"}, snap.Posts[0].LikedBy)
	require.NotNil(t, snap.Current)
	assert.Equal(t, []string{"u2"}, snap.Current.LikedBy)
}

func TestToggleLikeRetriesOnStaleRevision(t *testing.T) {
	remote := newFakeRemote()
	store := newTestStore(remote, ada())
	created := mustCreate(t, store, "Contested", "x")

	remote.conflictsLeft = 1

	post, err := store.ToggleLike(context.Background(), ToggleLikeInput{
		PostID: created.ID, UserID: "u1", IsLiked: false,
	})
	require.NoError(t, err, "one stale revision is absorbed by a refetch")
	assert.Equal(t, []string{"u1"}, post.LikedBy)
}

func TestToggleLikeGivesUpAfterRepeatedConflicts(t *testing.T) {
	remote := newFakeRemote()
	store := newTestStore(remote, ada())
	created := mustCreate(t, store, "Hot", "x")

	remote.conflictsLeft = 10

	_, err := store.ToggleLike(context.Background(), ToggleLikeInput{
		PostID: created.ID, UserID: "u1", IsLiked: false,
	})
	assert.ErrorIs(t, err, ErrLikeConflict)
	assert.Equal(t, ErrLikeConflict.Error(), store.Snapshot().Error)
}

func TestToggleLikeMissingPost(t *testing.T) {
	store := newTestStore(newFakeRemote(), ada())

	_, err := store.ToggleLike(context.Background(), ToggleLikeInput{
		PostID: "ghost", UserID: "u1",
	})
	assert.ErrorIs(t, err, ErrPostNotFound)
}

func TestToggleLikeValidatesIDs(t *testing.T) {
	store := newTestStore(newFakeRemote(), ada())

	_, err := store.ToggleLike(context.Background(), ToggleLikeInput{PostID: "", UserID: "u1"})
	assert.ErrorIs(t, err, ErrInvalidToggle)
}

func TestSnapshotIsACopy(t *testing.T) {
	store := newTestStore(newFakeRemote(), ada())
	created := mustCreate(t, store, "Guarded", "x")
	_, err := store.ToggleLike(context.Background(), ToggleLikeInput{
		PostID: created.ID, UserID: "u1", IsLiked: false,
	})
	require.NoError(t, err)

	snap := store.Snapshot()
	snap.Posts[0].LikedBy[0] = "tampered"
	snap.Posts[0].Title = "tampered"

	fresh := store.Snapshot()
	assert.Equal(t, "Guarded", fresh.Posts[0].Title)
	assert.Equal(t, []string{"u1"}, fresh.Posts[0].LikedBy)
}

func TestErrorIsOverwrittenByNextOutcome(t *testing.T) {
	store := newTestStore(newFakeRemote(), ada())

	_, err := store.Create(context.Background(), CreateInput{Title: "!!!"})
	require.Error(t, err)
	assert.Equal(t, ErrEmptyTitle.Error(), store.Snapshot().Error)

	mustCreate(t, store, "Fine Now", "x")
	assert.Empty(t, store.Snapshot().Error, "the next successful call clears the error")
}
