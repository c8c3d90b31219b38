package content

import (
	"context"

	"Quill/internal/appwrite"
	"Quill/internal/core/auth"
)

// RemoteAPI is the slice of the remote client the content store depends
// on: document CRUD plus file storage. appwrite.Client satisfies it.
type RemoteAPI interface {
	ListDocuments(ctx context.Context, collection string, queries ...appwrite.Query) ([]appwrite.Document, error)
	GetDocument(ctx context.Context, collection, id string) (*appwrite.Document, error)
	CreateDocument(ctx context.Context, collection string, data map[string]any) (*appwrite.Document, error)
	UpdateDocument(ctx context.Context, collection, id string, data map[string]any, ifRevision string) (*appwrite.Document, error)
	DeleteDocument(ctx context.Context, collection, id string) error
	UploadFile(ctx context.Context, bucket, fileID, filename, mimeType string, data []byte) (string, error)
	FileViewURL(bucket, fileID string) string
}

// Identity resolves the signed-in user at call time. The auth store
// implements it; the lookup is local state, never a network call.
type Identity interface {
	CurrentUser() (*auth.User, bool)
}
