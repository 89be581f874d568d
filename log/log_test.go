package log

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	bytes.Buffer
}

func (s *syncBuffer) Sync() error { return nil }

func TestNewLoggerWritesJSON(t *testing.T) {
	buf := &syncBuffer{}
	l := New(buf, InfoLevel, true)
	l.Infow("hello", "k", "v")
	require.Contains(t, buf.String(), `"msg":"hello"`)
	require.Contains(t, buf.String(), `"k":"v"`)
}

func TestWithAndNamedPreserveLevel(t *testing.T) {
	buf := &syncBuffer{}
	l := New(buf, WarnLevel, true)
	named := l.Named("vault").With("group", "g1")
	named.Infow("should not appear")
	require.Empty(t, buf.String())
	named.Warnw("should appear")
	require.Contains(t, buf.String(), `"logger":"vault"`)
	require.Contains(t, buf.String(), `"group":"g1"`)
}

func TestFromContextOrDefaultFallsBack(t *testing.T) {
	l := FromContextOrDefault(context.Background())
	require.NotNil(t, l)
}

func TestToContextRoundTrips(t *testing.T) {
	buf := &syncBuffer{}
	l := New(buf, InfoLevel, true)
	ctx := ToContext(context.Background(), l)
	require.Same(t, l, FromContextOrDefault(ctx))
}
