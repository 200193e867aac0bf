package properties

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/stricklysoft-runtime/internal/testutil"
	sserr "github.com/StricklySoft/stricklysoft-runtime/pkg/errors"
	"github.com/StricklySoft/stricklysoft-runtime/pkg/lifecycle"
)

// ===========================================================================
// Memory Tests
// ===========================================================================

func TestMemory_StoreAndResolve(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Store(ctx, "root.db", map[string]string{"dsn": "postgres://a", "pool": "4"}))
	m.Set("root.db", "pool", "8")

	got, err := m.Resolve(ctx, "root.db", []string{"pool", "timeout"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"pool": "8"}, got)

	got, err = m.Resolve(ctx, "root.unknown", []string{"pool"})
	require.NoError(t, err)
	assert.Empty(t, got)

	values := m.Values("root.db")
	values["dsn"] = "changed"
	assert.Equal(t, "postgres://a", m.Values("root.db")["dsn"])
}

func TestMemory_CanceledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := NewMemory()

	_, err := m.Resolve(ctx, "root", []string{"x"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, m.Store(ctx, "root", map[string]string{"x": "1"}), context.Canceled)
}

// ===========================================================================
// File Tests
// ===========================================================================

func TestFile_ResolveFromYAML(t *testing.T) {
	t.Parallel()
	path := testutil.TempFile(t, "properties.yaml", `
root.db:
  dsn: postgres://localhost:5432/app
  max_conns: "20"
root.http:
  port: 8080
`)

	f, err := OpenFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, f.Path())

	got, err := f.Resolve(context.Background(), "root.http", []string{"port"})
	require.NoError(t, err)
	assert.Equal(t, "8080", got["port"])

	got, err = f.Resolve(context.Background(), "root.db", []string{"dsn", "max_conns", "tls"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestFile_StoreCreatesAndMerges(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "conf", "properties.yaml")
	f, err := OpenFile(path)
	require.NoError(t, err)

	require.NoError(t, f.Store(ctx, "root.db", map[string]string{"dsn": "a"}))
	require.NoError(t, f.Store(ctx, "root.db", map[string]string{"pool": "4"}))

	reopened, err := OpenFile(path)
	require.NoError(t, err)
	got, err := reopened.Resolve(ctx, "root.db", []string{"dsn", "pool"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"dsn": "a", "pool": "4"}, got)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary file is left behind")
}

func TestFile_Reload(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "properties.yaml")
	f, err := OpenFile(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("root:\n  mode: active\n"), 0o600))
	require.NoError(t, f.Reload())

	got, err := f.Resolve(context.Background(), "root", []string{"mode"})
	require.NoError(t, err)
	assert.Equal(t, "active", got["mode"])
}

func TestOpenFile_Errors(t *testing.T) {
	t.Parallel()
	_, err := OpenFile("../etc/properties.yaml")
	assert.True(t, sserr.HasCode(err, sserr.CodeValidationFormat))

	path := testutil.TempFile(t, "broken.yaml", "root: [unterminated")
	_, err = OpenFile(path)
	testutil.AssertErrorCode(t, err, sserr.CodeValidationFormat)

	assert.Panics(t, func() { MustFile(path) })
}

// ===========================================================================
// Chain Tests
// ===========================================================================

func TestChain_FirstSourceWins(t *testing.T) {
	t.Parallel()
	overrides := NewMemory()
	overrides.Set("root.http", "port", "9090")
	defaults := NewMemory()
	defaults.Set("root.http", "port", "8080")
	defaults.Set("root.http", "host", "0.0.0.0")

	var asked [][]string
	spy := lifecycle.PropertySourceFunc(func(_ context.Context, _ string, names []string) (map[string]string, error) {
		asked = append(asked, names)
		return nil, nil
	})

	got, err := Chain(overrides, defaults, spy).Resolve(context.Background(), "root.http", []string{"host", "port", "tls"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"port": "9090", "host": "0.0.0.0"}, got)
	assert.Equal(t, [][]string{{"tls"}}, asked, "later sources are asked only for what is missing")
}

func TestChain_StopsWhenComplete(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	m.Set("root", "mode", "active")
	failing := lifecycle.PropertySourceFunc(func(context.Context, string, []string) (map[string]string, error) {
		return nil, errors.New("should not be consulted")
	})

	got, err := Chain(m, failing).Resolve(context.Background(), "root", []string{"mode"})
	require.NoError(t, err)
	assert.Equal(t, "active", got["mode"])

	_, err = Chain(m, failing).Resolve(context.Background(), "root", []string{"mode", "zone"})
	assert.EqualError(t, err, "should not be consulted")
}

// ===========================================================================
// Persist Tests
// ===========================================================================

// TestPersist_RoundTripThroughEngage persists the values of one component
// and resolves them into a fresh component of the same name.
func TestPersist_RoundTripThroughEngage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemory()

	timeout := lifecycle.DurationValue("timeout", time.Second)
	require.NoError(t, timeout.Set("3s"))
	first := lifecycle.NewComponent("cache")
	require.NoError(t, first.AddProperty(timeout))
	require.NoError(t, first.AddProperty(lifecycle.IntValue("shards", 16)))
	require.NoError(t, Persist(ctx, store, first))
	assert.Equal(t, map[string]string{"timeout": "3s", "shards": "16"}, store.Values("cache"))

	restored := lifecycle.DurationValue("timeout", time.Second)
	second, err := lifecycle.NewComponentBuilder("cache").
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		WithProperty(restored).
		WithPropertySource(store).
		Build()
	require.NoError(t, err)

	require.True(t, second.Engage(ctx))
	assert.Equal(t, 3*time.Second, restored.Get())
}

func TestPersist_NoPropertiesIsNoop(t *testing.T) {
	t.Parallel()
	store := NewMemory()
	require.NoError(t, Persist(context.Background(), store, lifecycle.NewComponent("empty")))
	assert.Nil(t, store.Values("empty"))
}

type failingStore struct{ *Memory }

func (failingStore) Store(context.Context, string, map[string]string) error {
	return errors.New("disk full")
}

func TestPersist_WrapsStoreError(t *testing.T) {
	t.Parallel()
	c := lifecycle.NewComponent("cache")
	require.NoError(t, c.AddProperty(lifecycle.IntValue("shards", 16)))

	err := Persist(context.Background(), failingStore{NewMemory()}, c)
	require.Error(t, err)
	assert.True(t, sserr.HasCode(err, sserr.CodeInternalStorage))
	assert.Contains(t, err.Error(), "disk full")
}
