package engine

import (
	"context"
	"fmt"
	"time"

	goversion "github.com/hashicorp/go-version"
)

// ScriptContext bundles the helpers offered to scripts alongside their
// capabilities: a cancellable sleep and a comparison against the host
// application's version. It is passed to the runtime explicitly rather
// than closed over.
type ScriptContext struct {
	appVersion string
}

// NewScriptContext creates a script context for the given application
// version.
func NewScriptContext(appVersion string) *ScriptContext {
	return &ScriptContext{appVersion: appVersion}
}

// Sleep pauses for d or until the context is cancelled.
func (c *ScriptContext) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// CompareVersion compares the host application version against required:
// -1 when the host is older, 0 when equal, 1 when newer.
func (c *ScriptContext) CompareVersion(required string) (int, error) {
	host, err := goversion.NewVersion(c.appVersion)
	if err != nil {
		return 0, fmt.Errorf("invalid application version %q: %w", c.appVersion, err)
	}
	want, err := goversion.NewVersion(required)
	if err != nil {
		return 0, fmt.Errorf("invalid version %q: %w", required, err)
	}
	return host.Compare(want), nil
}
