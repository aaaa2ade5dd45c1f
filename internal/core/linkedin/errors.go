package linkedin

import "github.com/rotisserie/eris"

var (
	// ErrCredentialsMissing means no LinkedIn email/password is configured.
	ErrCredentialsMissing = eris.New("linkedin credentials not configured")
	// ErrAuthFailed means the login form was submitted but LinkedIn refused it
	// or asked for a challenge.
	ErrAuthFailed = eris.New("linkedin authentication failed")
	// ErrNotAuthenticated means a scrape was redirected to a login wall.
	ErrNotAuthenticated = eris.New("linkedin session not authenticated")
	// ErrPostNotFound means the page holds no post.
	ErrPostNotFound = eris.New("linkedin post not found")
	// ErrParseFailed means a post was found but its author could not be read.
	ErrParseFailed = eris.New("linkedin post could not be parsed")
)
