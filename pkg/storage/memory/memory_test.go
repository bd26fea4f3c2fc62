package memory

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreGetDelete(t *testing.T) {
	ctx := context.Background()
	m := New()

	key, err := m.Store(ctx, strings.NewReader("payload"), "jobs/1/in/a.docx")
	require.NoError(t, err)
	assert.Equal(t, "jobs/1/in/a.docx", key)

	rc, err := m.Get(ctx, key)
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	assert.Equal(t, "payload", string(data))

	require.NoError(t, m.Delete(ctx, key))
	_, err = m.Get(ctx, key)
	assert.Error(t, err)
}

func TestCleanupBefore(t *testing.T) {
	ctx := context.Background()
	m := New()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	m.now = func() time.Time { return base }
	_, _ = m.Store(ctx, strings.NewReader("old"), "old")
	m.now = func() time.Time { return base.Add(time.Hour) }
	_, _ = m.Store(ctx, strings.NewReader("new"), "new")

	require.NoError(t, m.CleanupBefore(ctx, base.Add(30*time.Minute)))
	assert.Equal(t, []string{"new"}, m.Keys())
}
