// Package middleware provides shared context helpers for the Product Helper
// control plane.
//
// This package lives in pkg/ (not internal/) so that embedders wiring their
// own handlers around pkg/server can read the project scope and the
// authenticated identity set by the built-in middleware.
package middleware

import "context"

type contextKey string

const projectKey contextKey = "project"

// SetProjectID stores the project scope in the context. Called by the
// key-auth middleware once the path project has been validated.
func SetProjectID(ctx context.Context, projectID int64) context.Context {
	return context.WithValue(ctx, projectKey, projectID)
}

// GetProjectID extracts the project scope from the context.
// ok is false when no project has been set on this request.
func GetProjectID(ctx context.Context) (int64, bool) {
	v, ok := ctx.Value(projectKey).(int64)
	return v, ok
}
