// Package appwrite provides a thin client for the hosted backend service
// that owns all durable state: accounts and sessions, post documents, and
// uploaded image files. It does no business logic beyond request shaping;
// the stores in internal/core decide what to call and how to reconcile
// the responses.
package appwrite

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Client is the remote service boundary the stores depend on.
// All calls are synchronous request/response; the service never pushes
// updates, so staleness between refreshes is expected.
type Client interface {
	// CreateAccount registers a new account. It does not establish a session.
	CreateAccount(ctx context.Context, email, password, name string) (*Account, error)

	// CreateSession authenticates with email/password credentials.
	// On success the client holds the session secret and sends it on
	// every subsequent call until DestroySession.
	CreateSession(ctx context.Context, email, password string) (*Session, error)

	// DestroySession deletes the remote session named by scope
	// ("current" for the session this client holds). The locally held
	// secret is cleared even when the remote call fails.
	DestroySession(ctx context.Context, scope string) error

	// CurrentUser returns the account the held session belongs to.
	// Fails with ErrNotAuthenticated when no valid session exists.
	CurrentUser(ctx context.Context) (*Account, error)

	// ListDocuments lists documents in a collection, optionally filtered.
	// Order is whatever the service returns.
	ListDocuments(ctx context.Context, collection string, queries ...Query) ([]Document, error)

	// GetDocument retrieves a single document by ID.
	GetDocument(ctx context.Context, collection, id string) (*Document, error)

	// CreateDocument creates a document with a service-generated ID.
	CreateDocument(ctx context.Context, collection string, data map[string]any) (*Document, error)

	// UpdateDocument patches the given attributes and returns the
	// authoritative record. If ifRevision is non-empty the service
	// rejects the write with ErrConflict when the stored revision no
	// longer matches, enabling read-modify-write without lost updates.
	UpdateDocument(ctx context.Context, collection, id string, data map[string]any, ifRevision string) (*Document, error)

	// DeleteDocument removes a document by ID.
	DeleteDocument(ctx context.Context, collection, id string) error

	// UploadFile stores binary data in a bucket under the given file ID
	// and returns the stored file's ID.
	UploadFile(ctx context.Context, bucket, fileID, filename, mimeType string, data []byte) (string, error)

	// FileViewURL returns the public view URL for a stored file.
	// No network call is made.
	FileViewURL(bucket, fileID string) string
}

// Account is an identity record owned by the remote service.
type Account struct {
	ID        string
	Name      string
	Email     string
	CreatedAt time.Time
}

// Session is the opaque handle returned by CreateSession. The secret is
// what authenticates subsequent calls.
type Session struct {
	ID     string
	UserID string
	Secret string
}

// Document is a record in a remote collection. System fields are split
// out of the raw object; everything else lands in Data.
type Document struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time
	// Revision is an opaque version token, replaced by the service on
	// every write. Used as the precondition for conditional updates.
	Revision string
	Data     map[string]any
}

// httpClient implements Client against the service's JSON/REST API.
type httpClient struct {
	endpoint string
	project  string
	database string
	http     *http.Client
	logger   *slog.Logger

	mu      sync.Mutex
	session string // session secret, empty when unauthenticated
}

// Ensure httpClient implements Client.
var _ Client = (*httpClient)(nil)

// New creates a client for the given service endpoint, project and database.
// httpc may be nil, in which case a client with a 30s timeout is used.
func New(endpoint, projectID, databaseID string, httpc *http.Client, logger *slog.Logger) (Client, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if strings.TrimSpace(projectID) == "" {
		return nil, fmt.Errorf("project ID is required")
	}
	if strings.TrimSpace(databaseID) == "" {
		return nil, fmt.Errorf("database ID is required")
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("invalid endpoint URL: %w", err)
	}
	if httpc == nil {
		httpc = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &httpClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		project:  projectID,
		database: databaseID,
		http:     httpc,
		logger:   logger,
	}, nil
}

// serviceError is the error body the service returns on failures.
type serviceError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

// wrapStatus maps an HTTP status to our typed errors so stores can use
// errors.Is() on the result.
func wrapStatus(operation string, status int, message string) error {
	switch status {
	case http.StatusBadRequest:
		return fmt.Errorf("%s: %w: %s", operation, ErrBadRequest, message)
	case http.StatusUnauthorized:
		return fmt.Errorf("%s: %w: %s", operation, ErrNotAuthenticated, message)
	case http.StatusForbidden:
		return fmt.Errorf("%s: %w: %s", operation, ErrForbidden, message)
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w: %s", operation, ErrNotFound, message)
	case http.StatusConflict:
		return fmt.Errorf("%s: %w: %s", operation, ErrConflict, message)
	}
	return fmt.Errorf("%s failed: %s (status %d)", operation, message, status)
}

func (c *httpClient) sessionSecret() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *httpClient) setSessionSecret(secret string) {
	c.mu.Lock()
	c.session = secret
	c.mu.Unlock()
}

// do executes one JSON request/response round trip. out may be nil for
// calls whose response body is irrelevant.
func (c *httpClient) do(ctx context.Context, operation, method, path string, query url.Values, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: failed to encode request: %w", operation, err)
		}
		reader = bytes.NewReader(encoded)
	}

	target := c.endpoint + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("%s: failed to build request: %w", operation, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.decorate(req)

	return c.roundTrip(operation, req, out)
}

// decorate adds the project and session headers every call carries.
func (c *httpClient) decorate(req *http.Request) {
	req.Header.Set("X-Appwrite-Project", c.project)
	if secret := c.sessionSecret(); secret != "" {
		req.Header.Set("X-Appwrite-Session", secret)
	}
}

// roundTrip sends the request and decodes either the success body into out
// or the error body into a typed error.
func (c *httpClient) roundTrip(operation string, req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: request failed: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var svcErr serviceError
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		if err := json.Unmarshal(raw, &svcErr); err != nil || svcErr.Message == "" {
			svcErr.Message = strings.TrimSpace(string(raw))
		}
		c.logger.Debug("remote call failed",
			"operation", operation,
			"status", resp.StatusCode,
			"type", svcErr.Type)
		return wrapStatus(operation, resp.StatusCode, svcErr.Message)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", operation, err)
	}
	return nil
}

// rawAccount is the wire form of an account object.
type rawAccount struct {
	ID        string `json:"$id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	CreatedAt string `json:"$createdAt"`
}

func (r rawAccount) account() *Account {
	return &Account{
		ID:        r.ID,
		Name:      r.Name,
		Email:     r.Email,
		CreatedAt: parseTime(r.CreatedAt),
	}
}

// parseTime parses the service's RFC3339 timestamps, returning the zero
// time for missing or malformed values.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (c *httpClient) CreateAccount(ctx context.Context, email, password, name string) (*Account, error) {
	payload := map[string]any{
		"userId":   "unique()",
		"email":    email,
		"password": password,
		"name":     name,
	}
	var raw rawAccount
	if err := c.do(ctx, "createAccount", http.MethodPost, "/account", nil, payload, &raw); err != nil {
		return nil, err
	}
	return raw.account(), nil
}

func (c *httpClient) CreateSession(ctx context.Context, email, password string) (*Session, error) {
	payload := map[string]any{
		"email":    email,
		"password": password,
	}
	var raw struct {
		ID     string `json:"$id"`
		UserID string `json:"userId"`
		Secret string `json:"secret"`
	}
	if err := c.do(ctx, "createSession", http.MethodPost, "/account/sessions/email", nil, payload, &raw); err != nil {
		return nil, err
	}
	c.setSessionSecret(raw.Secret)
	return &Session{ID: raw.ID, UserID: raw.UserID, Secret: raw.Secret}, nil
}

func (c *httpClient) DestroySession(ctx context.Context, scope string) error {
	err := c.do(ctx, "destroySession", http.MethodDelete, "/account/sessions/"+url.PathEscape(scope), nil, nil, nil)
	// The held secret is useless once teardown was attempted: either the
	// session is gone remotely, or it was already invalid.
	c.setSessionSecret("")
	return err
}

func (c *httpClient) CurrentUser(ctx context.Context) (*Account, error) {
	var raw rawAccount
	if err := c.do(ctx, "currentUser", http.MethodGet, "/account", nil, nil, &raw); err != nil {
		return nil, err
	}
	return raw.account(), nil
}

func (c *httpClient) collectionPath(collection string) string {
	return "/databases/" + url.PathEscape(c.database) + "/collections/" + url.PathEscape(collection) + "/documents"
}

func (c *httpClient) ListDocuments(ctx context.Context, collection string, queries ...Query) ([]Document, error) {
	values := url.Values{}
	for _, q := range queries {
		values.Add("queries[]", q.String())
	}
	var raw struct {
		Total     int              `json:"total"`
		Documents []map[string]any `json:"documents"`
	}
	if err := c.do(ctx, "listDocuments", http.MethodGet, c.collectionPath(collection), values, nil, &raw); err != nil {
		return nil, err
	}
	docs := make([]Document, 0, len(raw.Documents))
	for _, obj := range raw.Documents {
		docs = append(docs, decodeDocument(obj))
	}
	return docs, nil
}

func (c *httpClient) GetDocument(ctx context.Context, collection, id string) (*Document, error) {
	var obj map[string]any
	if err := c.do(ctx, "getDocument", http.MethodGet, c.collectionPath(collection)+"/"+url.PathEscape(id), nil, nil, &obj); err != nil {
		return nil, err
	}
	doc := decodeDocument(obj)
	return &doc, nil
}

func (c *httpClient) CreateDocument(ctx context.Context, collection string, data map[string]any) (*Document, error) {
	payload := map[string]any{
		"documentId": "unique()",
		"data":       data,
	}
	var obj map[string]any
	if err := c.do(ctx, "createDocument", http.MethodPost, c.collectionPath(collection), nil, payload, &obj); err != nil {
		return nil, err
	}
	doc := decodeDocument(obj)
	return &doc, nil
}

func (c *httpClient) UpdateDocument(ctx context.Context, collection, id string, data map[string]any, ifRevision string) (*Document, error) {
	path := c.collectionPath(collection) + "/" + url.PathEscape(id)
	payload := map[string]any{"data": data}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("updateDocument: failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.endpoint+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("updateDocument: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if ifRevision != "" {
		req.Header.Set("If-Match", ifRevision)
	}
	c.decorate(req)

	var obj map[string]any
	if err := c.roundTrip("updateDocument", req, &obj); err != nil {
		return nil, err
	}
	doc := decodeDocument(obj)
	return &doc, nil
}

func (c *httpClient) DeleteDocument(ctx context.Context, collection, id string) error {
	return c.do(ctx, "deleteDocument", http.MethodDelete, c.collectionPath(collection)+"/"+url.PathEscape(id), nil, nil, nil)
}

func (c *httpClient) UploadFile(ctx context.Context, bucket, fileID, filename, mimeType string, data []byte) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("fileId", fileID); err != nil {
		return "", fmt.Errorf("uploadFile: %w", err)
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("uploadFile: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("uploadFile: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("uploadFile: %w", err)
	}

	path := "/storage/buckets/" + url.PathEscape(bucket) + "/files"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, &buf)
	if err != nil {
		return "", fmt.Errorf("uploadFile: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if mimeType != "" {
		req.Header.Set("X-File-Type", mimeType)
	}
	c.decorate(req)

	var raw struct {
		ID string `json:"$id"`
	}
	if err := c.roundTrip("uploadFile", req, &raw); err != nil {
		return "", err
	}
	return raw.ID, nil
}

func (c *httpClient) FileViewURL(bucket, fileID string) string {
	return c.endpoint + "/storage/buckets/" + url.PathEscape(bucket) + "/files/" + url.PathEscape(fileID) + "/view?project=" + url.QueryEscape(c.project)
}

// decodeDocument splits the service's flat document object into system
// fields and user attributes. Keys prefixed with "$" are reserved by the
// service and never appear in Data.
func decodeDocument(obj map[string]any) Document {
	doc := Document{Data: make(map[string]any, len(obj))}
	for key, value := range obj {
		switch key {
		case "$id":
			doc.ID, _ = value.(string)
		case "$createdAt":
			s, _ := value.(string)
			doc.CreatedAt = parseTime(s)
		case "$updatedAt":
			s, _ := value.(string)
			doc.UpdatedAt = parseTime(s)
		case "$revision":
			doc.Revision, _ = value.(string)
		default:
			if !strings.HasPrefix(key, "$") {
				doc.Data[key] = value
			}
		}
	}
	return doc
}
