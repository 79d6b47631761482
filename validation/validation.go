// Package validation holds the syntactic checks shared by the
// authorization coordinator and the admin registration component: email
// and URL shape, identifier format, redirect-URI membership, and PKCE
// challenge method.
package validation

import (
	"net/url"
	"regexp"

	"github.com/auth-agent/Auth-Agent/cryptoutil"
	"github.com/auth-agent/Auth-Agent/storage"
)

var (
	emailRe      = regexp.MustCompile(`^\S+@\S+\.\S+$`)
	identifierRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// MinIdentifierLength is the minimum length for an agent_id or client_id.
const MinIdentifierLength = 3

// IsValidEmail reports whether email matches <nonspace>@<nonspace-with-dot>.
func IsValidEmail(email string) bool {
	return emailRe.MatchString(email)
}

// IsValidURL reports whether s parses as an absolute URL.
func IsValidURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.IsAbs()
}

// IsValidIdentifier reports whether id is at least MinIdentifierLength
// characters drawn from [A-Za-z0-9_-].
func IsValidIdentifier(id string) bool {
	return len(id) >= MinIdentifierLength && identifierRe.MatchString(id)
}

// IsS256 reports whether method is the only PKCE method OAuth 2.1 allows.
func IsS256(method string) bool {
	return method == cryptoutil.MethodS256
}

// RedirectURIAllowed reports whether uri is registered exactly for client.
// No prefix, path, or trailing-slash normalization is performed.
func RedirectURIAllowed(client storage.Client, uri string) bool {
	return client.HasRedirectURI(uri)
}
