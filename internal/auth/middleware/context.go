package auth

import "context"

// The authenticated principal's id rides the request context from
// JWTMiddleware down to the handlers. Unexported key type keeps other
// packages from colliding with it.
type subjectKey struct{}

func WithSubject(ctx context.Context, sub string) context.Context {
	return context.WithValue(ctx, subjectKey{}, sub)
}

// SubjectFromContext returns the authenticated user id, or "" on an
// unauthenticated request.
func SubjectFromContext(ctx context.Context) string {
	s, _ := ctx.Value(subjectKey{}).(string)
	return s
}
