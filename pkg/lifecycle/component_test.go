package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sserr "github.com/StricklySoft/stricklysoft-runtime/pkg/errors"
)

// buildTree returns app -> {db -> {pool}, web}, attached to rec.
func buildTree(t *testing.T, rec *recorder) (app, db, pool, web *Component) {
	t.Helper()
	ctx := context.Background()
	app = mustBuild(t, NewComponentBuilder("app"))
	attach(app, rec)
	db = mustBuild(t, NewComponentBuilder("db"))
	pool = mustBuild(t, NewComponentBuilder("pool"))
	web = mustBuild(t, NewComponentBuilder("web"))
	require.NoError(t, app.AddChild(ctx, db))
	require.NoError(t, db.AddChild(ctx, pool))
	require.NoError(t, app.AddChild(ctx, web))
	return app, db, pool, web
}

// ===========================================================================
// Naming Tests
// ===========================================================================

func TestSanitizeName(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		in      string
		want    string
		changed bool
	}{
		{name: "plain", in: "listener", want: "listener"},
		{name: "separator", in: "db.pool", want: "db_pool", changed: true},
		{name: "control", in: "a\tb\n", want: "a_b_", changed: true},
		{name: "unicode kept", in: "überwachung", want: "überwachung"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := SanitizeName(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.changed, changed)
		})
	}
}

func TestSanitizeName_BlankGetsPlaceholder(t *testing.T) {
	t.Parallel()
	a, changed := SanitizeName("  ")
	require.True(t, changed)
	assert.True(t, strings.HasPrefix(a, "component-"))
	b, _ := SanitizeName("")
	assert.NotEqual(t, a, b, "placeholders must be unique")
}

func TestSanitizeName_TruncatesOnRuneBoundary(t *testing.T) {
	t.Parallel()
	got, changed := SanitizeName(strings.Repeat("é", MaxNameLength))
	require.True(t, changed)
	assert.LessOrEqual(t, len(got), MaxNameLength)
	assert.True(t, utf8.ValidString(got))
}

// ===========================================================================
// Tree Tests
// ===========================================================================

func TestComponent_FQNAndFind(t *testing.T) {
	t.Parallel()
	app, db, pool, web := buildTree(t, &recorder{})

	assert.Equal(t, "app", app.FQN())
	assert.Equal(t, "app.db", db.FQN())
	assert.Equal(t, "app.db.pool", pool.FQN())
	assert.Same(t, app, pool.Root())

	assert.Same(t, pool, app.Find("db.pool"))
	assert.Same(t, app, app.Find(""))
	assert.Nil(t, app.Find("db.missing"))

	children := app.Children()
	require.Len(t, children, 2)
	assert.Same(t, db, children[0])
	assert.Same(t, web, children[1])

	assert.Equal(t, []*Component{app, db, pool, web}, app.Subtree())
}

func TestComponent_AddChild_EmitsStructureEvent(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	app := mustBuild(t, NewComponentBuilder("app"))
	attach(app, rec)

	require.NoError(t, app.AddChild(context.Background(), NewComponent("cache")))

	events := rec.structure()
	require.Len(t, events, 1)
	assert.Equal(t, "app", events[0].Parent)
	assert.Equal(t, "cache", events[0].Child)
	assert.Equal(t, StructureAdded, events[0].Change)
}

func TestComponent_AddChild_RejectsCycle(t *testing.T) {
	t.Parallel()
	app, _, pool, _ := buildTree(t, &recorder{})

	err := pool.AddChild(context.Background(), app)
	require.Error(t, err)
	assert.True(t, sserr.HasCode(err, sserr.CodeValidation))

	err = app.AddChild(context.Background(), app)
	require.Error(t, err)
}

func TestComponent_AddChild_EngageAfter(t *testing.T) {
	t.Parallel()
	app := mustBuild(t, NewComponentBuilder("app"))
	child := mustBuild(t, NewComponentBuilder("child"))

	require.NoError(t, app.AddChild(context.Background(), child, EngageAfter()))
	assert.Equal(t, StatusEnabled, child.Status())
	assert.Equal(t, StatusCreated, app.Status())
}

func TestComponent_AddChild_ReplacesSameName(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rec := &recorder{}
	app := mustBuild(t, NewComponentBuilder("app"))
	attach(app, rec)
	old := mustBuild(t, NewComponentBuilder("worker"))
	require.NoError(t, app.AddChild(ctx, old))
	require.True(t, app.Engage(ctx))
	require.Equal(t, StatusEnabled, old.Status())

	replacement := mustBuild(t, NewComponentBuilder("other"))
	require.NoError(t, app.AddChild(ctx, replacement, Named("worker")))

	assert.Same(t, replacement, app.FindChild("worker"))
	assert.Nil(t, app.FindChild("other"))
	assert.Nil(t, old.Parent())
	assert.Equal(t, StatusDown, old.Status())
	assert.Equal(t, "app.worker", replacement.FQN())

	events := rec.structure()
	require.GreaterOrEqual(t, len(events), 2)
	removed, added := events[len(events)-2], events[len(events)-1]
	assert.Equal(t, []string{"app", "worker", string(StructureRemoved)},
		[]string{removed.Parent, removed.Child, string(removed.Change)})
	assert.Equal(t, []string{"app", "worker", string(StructureAdded)},
		[]string{added.Parent, added.Child, string(added.Change)})
}

func TestComponent_AddChild_MovesBetweenParents(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rec := &recorder{}
	app, db, pool, web := buildTree(t, rec)
	require.True(t, app.Engage(ctx))
	require.Equal(t, StatusEnabled, pool.Status())

	require.NoError(t, web.AddChild(ctx, pool))

	assert.Nil(t, db.FindChild("pool"))
	assert.Same(t, web, pool.Parent())
	assert.Equal(t, "app.web.pool", pool.FQN())
	assert.Equal(t, StatusEnabled, pool.Status(), "a cascading child is engaged again after the move")
	assert.Equal(t,
		[]Status{StatusInitializing, StatusEnabled, StatusShuttingDown, StatusDown, StatusInitializing, StatusEnabled},
		append(rec.statuses("app.db.pool"), rec.statuses("app.web.pool")...))
}

// wideComponent returns a detached component with n children, which makes
// re-linking it slow enough for concurrent callers to overlap.
func wideComponent(t *testing.T, name string, n int) *Component {
	t.Helper()
	c := mustBuild(t, NewComponentBuilder(name))
	for i := 0; i < n; i++ {
		require.NoError(t, c.AddChild(context.Background(), mustBuild(t, NewComponentBuilder(fmt.Sprintf("leaf%d", i)))))
	}
	return c
}

// requireSingleLink checks that x is linked under exactly the parent its
// parent pointer names, with its current name, and nowhere in others.
func requireSingleLink(t *testing.T, x *Component, parents ...*Component) {
	t.Helper()
	owner := x.Parent()
	require.NotNil(t, owner)
	assert.Same(t, x, owner.FindChild(x.Name()))
	for _, p := range parents {
		linked := 0
		for _, ch := range p.Children() {
			if ch == x {
				linked++
			}
		}
		if p == owner {
			assert.Equal(t, 1, linked, "%s must hold x once", p.Name())
		} else {
			assert.Zero(t, linked, "%s must not hold x", p.Name())
		}
	}
}

func TestComponent_AddChild_ConcurrentParents(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for round := 0; round < 20; round++ {
		p1 := mustBuild(t, NewComponentBuilder("p1"))
		p2 := mustBuild(t, NewComponentBuilder("p2"))
		x := wideComponent(t, "x", 200)

		start := make(chan struct{})
		errs := make([]error, 2)
		var wg sync.WaitGroup
		for i, p := range []*Component{p1, p2} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				errs[i] = p.AddChild(ctx, x, Named(fmt.Sprintf("x%d", i)))
			}()
		}
		close(start)
		wg.Wait()

		for _, err := range errs {
			if err != nil {
				assert.True(t, sserr.HasCode(err, sserr.CodeConflict), "unexpected error: %v", err)
			}
		}
		requireSingleLink(t, x, p1, p2)
	}
}

func TestComponent_Rename_ConcurrentMove(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for round := 0; round < 20; round++ {
		p1 := mustBuild(t, NewComponentBuilder("p1"))
		p2 := mustBuild(t, NewComponentBuilder("p2"))
		x := wideComponent(t, "x", 200)
		require.NoError(t, p1.AddChild(ctx, x))

		start := make(chan struct{})
		var renameErr, moveErr error
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			renameErr = x.Rename(ctx, "renamed", false)
		}()
		go func() {
			defer wg.Done()
			<-start
			moveErr = p2.AddChild(ctx, x)
		}()
		close(start)
		wg.Wait()

		for _, err := range []error{renameErr, moveErr} {
			if err != nil {
				assert.True(t, sserr.HasCode(err, sserr.CodeConflict), "unexpected error: %v", err)
			}
		}
		requireSingleLink(t, x, p1, p2)
	}
}

func TestComponent_RemoveChild(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	app, db, pool, _ := buildTree(t, &recorder{})
	require.True(t, app.Engage(ctx))

	assert.False(t, app.RemoveChild(ctx, pool, true), "not a direct child")
	require.True(t, app.RemoveChild(ctx, db, true))

	assert.Nil(t, db.Parent())
	assert.Equal(t, StatusDown, db.Status())
	assert.Equal(t, StatusDown, pool.Status())
	assert.Equal(t, "db.pool", pool.FQN())
}

// ===========================================================================
// Rename Tests
// ===========================================================================

func TestComponent_Rename_PropagatesFQN(t *testing.T) {
	t.Parallel()
	app, db, pool, _ := buildTree(t, &recorder{})
	require.Equal(t, "app.db.pool", pool.FQN())

	require.NoError(t, db.Rename(context.Background(), "store", false))

	assert.Equal(t, "app.store", db.FQN())
	assert.Equal(t, "app.store.pool", pool.FQN())
	assert.Same(t, db, app.FindChild("store"))
	assert.Nil(t, app.FindChild("db"))
}

func TestComponent_Rename_Conflict(t *testing.T) {
	t.Parallel()
	_, db, _, _ := buildTree(t, &recorder{})

	err := db.Rename(context.Background(), "web", true)
	require.Error(t, err)
	assert.True(t, sserr.HasCode(err, sserr.CodeConflictAlreadyExists))
	assert.Equal(t, "db", db.Name())
}

func TestComponent_Rename_ActiveSubtree(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("restart", func(t *testing.T) {
		rec := &recorder{}
		app, db, pool, _ := buildTree(t, rec)
		require.True(t, app.Engage(ctx))

		require.NoError(t, db.Rename(ctx, "store", true))

		assert.Equal(t, StatusEnabled, db.Status())
		assert.Equal(t, StatusEnabled, pool.Status())
		assert.Equal(t, []Status{StatusInitializing, StatusEnabled}, rec.statuses("app.store"))
		assert.Equal(t, []Status{StatusInitializing, StatusEnabled, StatusShuttingDown, StatusDown},
			rec.statuses("app.db"))
	})

	t.Run("no restart", func(t *testing.T) {
		app, db, pool, _ := buildTree(t, &recorder{})
		require.True(t, app.Engage(ctx))

		require.NoError(t, db.Rename(ctx, "store", false))

		assert.Equal(t, StatusDown, db.Status())
		assert.Equal(t, StatusDown, pool.Status())
	})

	t.Run("restart without cascade", func(t *testing.T) {
		app := mustBuild(t, NewComponentBuilder("app"))
		db := mustBuild(t, NewComponentBuilder("db").WithCascadeToChildren(false))
		require.NoError(t, app.AddChild(ctx, db))
		require.True(t, app.Engage(ctx))
		require.Equal(t, StatusEnabled, db.Status())

		require.NoError(t, db.Rename(ctx, "store", true))

		assert.Equal(t, "app.store", db.FQN())
		assert.Equal(t, StatusDown, db.Status(), "only a cascading component is engaged again")
	})
}

func TestComponent_Rename_ResetsPropertyResolution(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	var requested []string
	src := PropertySourceFunc(func(_ context.Context, component string, _ []string) (map[string]string, error) {
		requested = append(requested, component)
		return map[string]string{"port": "8080"}, nil
	})
	app := mustBuild(t, NewComponentBuilder("app").WithPropertySource(src))
	c := mustBuild(t, NewComponentBuilder("listener").WithPropertySource(src).WithProperty(IntValue("port", 0)))
	require.NoError(t, app.AddChild(ctx, c))

	require.True(t, app.Engage(ctx))
	require.True(t, c.PropertiesResolved())
	require.NoError(t, c.Rename(ctx, "http", true))

	assert.Equal(t, []string{"app.listener", "app.http"}, requested)
}

// ===========================================================================
// Destroy Tests
// ===========================================================================

func TestComponent_Destroy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	port := IntValue("port", 80)
	app, db, pool, _ := buildTree(t, &recorder{})
	require.NoError(t, db.AddProperty(port))
	require.True(t, app.Engage(ctx))

	db.Destroy(ctx)

	assert.Equal(t, StatusDestroyed, db.Status())
	assert.Equal(t, StatusDestroyed, pool.Status())
	assert.Nil(t, app.FindChild("db"))
	assert.Nil(t, port.Owner(), "properties are released")

	for _, k := range allKinds {
		assert.False(t, Submit(ctx, NewTransitionDescriptor(db, k, WithReason("x"))), "kind %s", k)
	}
	err := app.AddChild(ctx, db)
	require.Error(t, err)
	assert.True(t, sserr.HasCode(err, sserr.CodeConflictInadmissible))

	db.Destroy(ctx)
	assert.Equal(t, StatusDestroyed, db.Status())
}

// ===========================================================================
// Snapshot Tests
// ===========================================================================

func TestComponent_Snapshot(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	app, db, _, _ := buildTree(t, &recorder{})
	require.NoError(t, db.AddProperty(StringValue("dsn", "postgres://localhost")))
	require.True(t, app.Engage(ctx))

	snap := app.Snapshot()
	assert.Equal(t, "app", snap.FQN)
	assert.Equal(t, StatusEnabled, snap.Status)
	assert.Nil(t, snap.InFlight)
	require.Len(t, snap.Children, 2)
	assert.Equal(t, "app.db", snap.Children[0].FQN)
	assert.Equal(t, "postgres://localhost", snap.Children[0].Properties["dsn"])

	var names []string
	snap.Walk(func(s Snapshot) { names = append(names, s.FQN) })
	assert.Equal(t, []string{"app", "app.db", "app.db.pool", "app.web"}, names)
}
