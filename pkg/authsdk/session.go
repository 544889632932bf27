package authsdk

import (
	"github.com/aussiebroadwan/consoleauth/pkg/authz"
	"github.com/aussiebroadwan/consoleauth/pkg/tokenstore"
)

// Session is a read-only view of the stored credential. Its authorization
// answers are display hints; the backend decides for real.
type Session struct {
	AccessToken string
	Profile     tokenstore.UserProfile
}

// Session returns the current credential or ErrNoCredential.
func (c *SDKClient) Session() (*Session, error) {
	cred, ok := c.Store.Read()
	if !ok {
		return nil, ErrNoCredential
	}
	return &Session{AccessToken: cred.AccessToken, Profile: cred.Profile}, nil
}

// Subject is the profile as seen by authz.
func (s *Session) Subject() authz.Subject {
	return SubjectOf(s.Profile)
}

// Allows evaluates p against the cached profile.
func (s *Session) Allows(e authz.Evaluator, p authz.Policy) bool {
	return e.Allows(p, s.Subject())
}

// IsAdmin reports whether the cached profile passes authz.Admin.
func (s *Session) IsAdmin(e authz.Evaluator) bool {
	return s.Allows(e, authz.Admin)
}

// SubjectOf converts a stored profile for policy evaluation.
func SubjectOf(p tokenstore.UserProfile) authz.Subject {
	return authz.Subject{Role: p.Role, Authorities: p.Authorities}
}
