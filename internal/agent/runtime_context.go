package agent

import (
	"context"

	"github.com/haasonsaas/chatagent/pkg/models"
)

type sessionKey struct{}

// WithSession binds session to ctx. Everything that receives the derived context,
// including tool handlers, resolves it through CurrentSession. Bindings live in the
// context value chain, so concurrent turns never see each other's session.
func WithSession(ctx context.Context, session *models.Session) context.Context {
	if session == nil {
		return ctx
	}
	return context.WithValue(ctx, sessionKey{}, session)
}

// CurrentSession returns the session bound by the nearest WithSession.
func CurrentSession(ctx context.Context) (*models.Session, error) {
	session, ok := ctx.Value(sessionKey{}).(*models.Session)
	if !ok || session == nil {
		return nil, ErrNoActiveSession
	}
	return session, nil
}

// SessionFromContext is CurrentSession for callers that treat absence as nil.
func SessionFromContext(ctx context.Context) *models.Session {
	session, _ := CurrentSession(ctx)
	return session
}
