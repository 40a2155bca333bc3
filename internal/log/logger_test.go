// SPDX-License-Identifier: MIT

package log

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

func TestWithComponent(t *testing.T) {
	l := WithComponent("test")
	if l.GetLevel() == zerolog.Disabled {
		t.Fatal("expected enabled logger")
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "req-123")
	if got := RequestIDFromContext(ctx); got != "req-123" {
		t.Errorf("expected req-123, got %q", got)
	}
	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Errorf("expected empty request ID, got %q", got)
	}
}

func TestWithContextNil(t *testing.T) {
	// nil context must not panic and must return the logger unchanged
	l := WithContext(nil, Base()) //nolint:staticcheck
	l.Debug().Msg("ok")
}
