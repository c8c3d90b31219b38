package web

import (
	"fmt"
	"net/http"

	"github.com/gorilla/sessions"
)

// MinCookieSecretLength is the minimum length for the flash cookie secret.
const MinCookieSecretLength = 32

// Flash carries one-shot messages across redirects in a signed cookie.
type Flash struct {
	store *sessions.CookieStore
	name  string
}

// NewFlash creates a flash helper backed by a cookie store. The secret
// signs the cookie and must be at least MinCookieSecretLength bytes.
func NewFlash(secret string) (*Flash, error) {
	if len(secret) < MinCookieSecretLength {
		return nil, fmt.Errorf("cookie secret must be at least %d bytes", MinCookieSecretLength)
	}
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   300,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	return &Flash{store: store, name: "quill_flash"}, nil
}

// Set queues a message for the next page render.
func (f *Flash) Set(w http.ResponseWriter, r *http.Request, msg string) {
	session, _ := f.store.Get(r, f.name)
	session.AddFlash(msg)
	_ = session.Save(r, w)
}

// Pop returns and clears the queued message, if any.
func (f *Flash) Pop(w http.ResponseWriter, r *http.Request) string {
	session, err := f.store.Get(r, f.name)
	if err != nil {
		return ""
	}
	flashes := session.Flashes()
	if len(flashes) == 0 {
		return ""
	}
	_ = session.Save(r, w)
	msg, _ := flashes[0].(string)
	return msg
}
