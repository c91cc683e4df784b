// Package renderer is the interactive-page boundary used only for
// multi-version disambiguation. A session wraps the server-side state the
// publisher keeps between navigating to a version-selector page and
// activating one version on it.
//
// Sessions are single-use: resolving a section's versions opens one
// isolated session per version and never reuses a session across
// versions.
package renderer

import "context"

// Descriptor identifies one version on a selector page and carries the
// parameters needed to reconstruct its activation (typically hidden form
// fields plus the row's own target value).
type Descriptor struct {
	Label   string
	Ordinal int
	Params  map[string]string
}

// Session is one isolated interactive session. Callers must Close on every
// exit path.
type Session interface {
	// Navigate loads the selector page, establishing server-side state.
	Navigate(ctx context.Context, url string) error
	// Activate selects one version and returns the rendered content page.
	Activate(ctx context.Context, d Descriptor) ([]byte, error)
	Close() error
}

// Renderer opens sessions.
type Renderer interface {
	Open(ctx context.Context) (Session, error)
}
