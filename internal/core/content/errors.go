package content

import "errors"

var (
	// ErrEmptyTitle indicates the title produced an empty slug.
	// Checked locally, never reaches the remote call.
	ErrEmptyTitle = errors.New("title is required")

	// ErrNotAuthenticated indicates the operation needs a signed-in user
	// to stamp authorship and none was held.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrPostNotFound indicates the targeted post no longer exists remotely.
	ErrPostNotFound = errors.New("post not found")

	// ErrImageUpload indicates the pending image could not be stored.
	// The owning operation aborts; a post is never written with a
	// dangling local file reference.
	ErrImageUpload = errors.New("error uploading image")

	// ErrInvalidToggle indicates a like toggle with a missing post or user ID.
	ErrInvalidToggle = errors.New("post ID and user ID are required")

	// ErrLikeConflict indicates the post kept changing under the like
	// toggle and the retry budget ran out.
	ErrLikeConflict = errors.New("post changed while toggling like, please retry")
)
