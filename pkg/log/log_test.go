package log

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextLogger(t *testing.T) {
	ctx := context.Background()

	l := Ctx(ctx)
	require.NotNil(t, l, "Ctx returned nil instead of the default logger")
	assert.Equal(t, fallback, l)

	custom := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	require.NotEqual(t, fallback, custom)

	ctx = With(ctx, custom)
	assert.Equal(t, custom, Ctx(ctx))
}

func TestContextLoggerAttrs(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))
	ctx := With(context.Background(), base)

	ctx = With(ctx, Ctx(ctx).With(slog.String("siteID", "site-1")))
	Ctx(ctx).InfoContext(ctx, "hello")

	assert.Contains(t, buf.String(), `"siteID":"site-1"`)
	assert.Contains(t, buf.String(), `"msg":"hello"`)
}
