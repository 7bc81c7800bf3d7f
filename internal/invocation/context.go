// Package invocation models who triggered the current gitmirror run. The
// enclosing gateway exports the remote identity in the environment before
// invoking us; everything below cmd/ receives it as an explicit value and
// never consults the environment itself.
package invocation

import "os"

const (
	// EnvRemoteUser carries the identity of a remotely authenticated
	// caller. When unset the invocation is server-local and trusted.
	EnvRemoteUser = "GL_USER"
	// EnvSessionID carries the opaque transfer-session token used to tag
	// persisted status lines.
	EnvSessionID = "GL_TID"

	// DefaultSessionID is used when the triggering context did not hand
	// down a session token.
	DefaultSessionID = "0"
)

// Context describes the trust context of one gitmirror invocation.
type Context struct {
	userID string
	remote bool
}

// Local returns the trust context of a server-initiated invocation. It
// bypasses authorization and may run server-side-only commands.
func Local() Context {
	return Context{}
}

// RemoteUser returns the trust context of an invocation triggered on behalf
// of a remotely authenticated caller.
func RemoteUser(userID string) Context {
	return Context{userID: userID, remote: true}
}

// IsRemote reports whether the invocation carries a remote identity.
func (c Context) IsRemote() bool { return c.remote }

// UserID returns the remote caller's identity, or the empty string for a
// local invocation.
func (c Context) UserID() string { return c.userID }

// FromEnv derives the trust context from the gateway-provided environment.
func FromEnv() Context {
	if user := os.Getenv(EnvRemoteUser); user != "" {
		return RemoteUser(user)
	}

	return Local()
}

// SessionID returns the gateway-provided transfer-session token, or
// DefaultSessionID if there is none.
func SessionID() string {
	if tid := os.Getenv(EnvSessionID); tid != "" {
		return tid
	}

	return DefaultSessionID
}
