package app

import (
	"context"
	"strings"
)

// RevisionInfo carries caller-supplied provenance for the next revision.
type RevisionInfo struct {
	Authors     string
	Title       string
	Description string
}

// WithRevisionInfo attaches normalized revision provenance to context.
func WithRevisionInfo(ctx context.Context, info RevisionInfo) context.Context {
	info = normalizeRevisionInfo(info)
	return context.WithValue(ctx, revisionInfoContextKey{}, info)
}

// RevisionInfoFromContext returns normalized revision provenance when present.
func RevisionInfoFromContext(ctx context.Context) (RevisionInfo, bool) {
	raw := ctx.Value(revisionInfoContextKey{})
	info, ok := raw.(RevisionInfo)
	if !ok {
		return RevisionInfo{}, false
	}
	info = normalizeRevisionInfo(info)
	if info.Authors == "" && info.Title == "" && info.Description == "" {
		return RevisionInfo{}, false
	}
	return info, true
}

// revisionInfoContextKey stores context keys for revision provenance values.
type revisionInfoContextKey struct{}

// normalizeRevisionInfo trims provenance fields.
func normalizeRevisionInfo(info RevisionInfo) RevisionInfo {
	info.Authors = strings.TrimSpace(info.Authors)
	info.Title = strings.TrimSpace(info.Title)
	info.Description = strings.TrimSpace(info.Description)
	return info
}
