package server

import (
	"net/http"

	errors2 "github.com/reviewos/kit/util/errors"
)

// AnonymousUser is the identity of unauthenticated readers
const AnonymousUser = "anonymous"

// authenticate verifies the request's basic auth credentials against
// the configured user table
func authenticate(r *http.Request, users map[string]string) (string, error) {
	username, password, ok := r.BasicAuth()
	if !ok {
		return "", errors2.Wrap(errors2.ErrUnauthorized, "authentication required")
	}
	if pw, found := users[username]; !found || pw != password {
		return "", errors2.Wrap(errors2.ErrUnauthorized, "invalid credentials")
	}
	return username, nil
}

// isWriteOperation checks whether the request reaches receive-pack
func isWriteOperation(r *http.Request, op string) bool {
	return op == "git-receive-pack" || getService(r) == "receive-pack"
}

// handleAuth resolves the caller's identity. Reads may proceed without
// credentials when anonymous reads are enabled; writes always need a
// known user. On failure the response is already written.
func (sv *Server) handleAuth(w http.ResponseWriter, r *http.Request, op string) (string, error) {

	username, err := authenticate(r, sv.cfg.Remote.Users)
	if err == nil {
		return username, nil
	}

	if !isWriteOperation(r, op) && sv.cfg.Policy.AnonymousRead {
		return AnonymousUser, nil
	}

	w.Header().Set("WWW-Authenticate", "Basic")
	w.WriteHeader(http.StatusUnauthorized)
	return "", err
}
