package auth

import "errors"

var (
	// ErrEmptyCredentials indicates login was attempted with a blank
	// email or password. Checked locally, never reaches the remote call.
	ErrEmptyCredentials = errors.New("email and password are required")

	// ErrPartialSignup indicates the account was created remotely but the
	// follow-up session step failed. The account exists; the caller
	// should prompt a login retry, not a second signup.
	ErrPartialSignup = errors.New("account created but sign-in failed")
)
