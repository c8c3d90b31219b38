package content

import (
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"Quill/internal/appwrite"
)

// Post is a published entry mirrored from the remote collection.
type Post struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
	// Slug is derived from the title exactly once, at creation, and is
	// immutable thereafter. It is the public lookup key.
	Slug       string    `json:"slug"`
	ImageURL   string    `json:"imageUrl"`
	AuthorID   string    `json:"authorId"`
	AuthorName string    `json:"authorName"`
	CreatedAt  time.Time `json:"createdAt"`
	// LikedBy is the set of user IDs that liked the post, kept in the
	// order the service returns.
	LikedBy []string `json:"likedBy"`
	// Revision is the opaque version token of the remote record backing
	// this post, used as the precondition for like toggles.
	Revision string `json:"-"`
}

// LikedByUser reports whether the given user has liked the post.
func (p *Post) LikedByUser(userID string) bool {
	return slices.Contains(p.LikedBy, userID)
}

func (p Post) clone() Post {
	p.LikedBy = slices.Clone(p.LikedBy)
	return p
}

// fallbackAuthor labels posts whose author name is missing from the
// remote record.
const fallbackAuthor = "Unknown"

var nonSlugChars = regexp.MustCompile(`[^\w-]+`)

// Slugify derives a URL slug from a title: lowercase, spaces to hyphens,
// everything outside [A-Za-z0-9_-] stripped. Deterministic and idempotent.
func Slugify(title string) string {
	s := strings.ToLower(title)
	s = strings.ReplaceAll(s, " ", "-")
	return nonSlugChars.ReplaceAllString(s, "")
}

// ImageInput is the tagged variant an update supplies for the post image:
// either keep the existing remote URL or upload a fresh local asset.
// A nil ImageInput leaves the image field untouched.
type ImageInput interface {
	isImageInput()
}

// ImageUnchanged keeps the post's existing remote image URL.
type ImageUnchanged struct {
	URL string
}

func (ImageUnchanged) isImageInput() {}

// ImageAsset is a locally held binary image not yet persisted. It is
// promoted to a remote URL only on successful upload.
type ImageAsset struct {
	// ID is the client-generated file ID the asset is stored under.
	ID       string
	Filename string
	MIME     string
	Data     []byte
}

func (*ImageAsset) isImageInput() {}

// NewImageAsset wraps local image bytes as a pending upload with a fresh
// file ID.
func NewImageAsset(filename, mimeType string, data []byte) *ImageAsset {
	return &ImageAsset{
		ID:       uuid.NewString(),
		Filename: filename,
		MIME:     mimeType,
		Data:     data,
	}
}

// postFromDocument maps a remote document onto the Post domain type.
// Unknown or mistyped attributes decay to zero values.
func postFromDocument(doc *appwrite.Document) Post {
	return Post{
		ID:         doc.ID,
		Title:      stringField(doc.Data, "title"),
		Content:    stringField(doc.Data, "content"),
		Slug:       stringField(doc.Data, "slug"),
		ImageURL:   stringField(doc.Data, "imageUrl"),
		AuthorID:   stringField(doc.Data, "authorId"),
		AuthorName: stringField(doc.Data, "authorName"),
		CreatedAt:  doc.CreatedAt,
		LikedBy:    stringsField(doc.Data, "likedBy"),
		Revision:   doc.Revision,
	}
}

func stringField(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}

// stringsField decodes a string-array attribute. JSON decoding yields
// []any; documents built locally may carry []string directly.
func stringsField(data map[string]any, key string) []string {
	switch v := data[key].(type) {
	case []string:
		return slices.Clone(v)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return []string{}
	}
}
