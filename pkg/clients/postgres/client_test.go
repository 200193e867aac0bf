package postgres

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	sserr "github.com/StricklySoft/stricklysoft-runtime/pkg/errors"
	"github.com/StricklySoft/stricklysoft-runtime/pkg/lifecycle"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func expectationsMet(t *testing.T, mock pgxmock.PgxPoolIface) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

// ===========================================================================
// NewFromPool Tests
// ===========================================================================

func TestNewFromPool(t *testing.T) {
	mock := newMock(t)

	client := NewFromPool(mock, &Config{Database: "testdb"})
	if client.databaseName != "testdb" {
		t.Errorf("databaseName = %q, want %q", client.databaseName, "testdb")
	}
	if client.Config().Table != DefaultTable {
		t.Errorf("Table = %q, want default %q", client.Config().Table, DefaultTable)
	}

	client = NewFromPool(mock, nil)
	if client.Config().Database != DefaultDatabase {
		t.Errorf("Database = %q, want %q", client.Config().Database, DefaultDatabase)
	}
	if client.tracer == nil {
		t.Error("tracer is nil")
	}
}

func TestNewClient_InvalidConfig(t *testing.T) {
	_, err := NewClient(context.Background(), Config{URI: "mysql://localhost/db"})
	if !sserr.HasCode(err, sserr.CodeValidation) {
		t.Fatalf("NewClient() error = %v, want %s", err, sserr.CodeValidation)
	}
}

// ===========================================================================
// Client Tests
// ===========================================================================

func TestClient_Exec_ClassifiesErrors(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec("DELETE").WillReturnError(context.DeadlineExceeded)
	mock.ExpectExec("DELETE").WillReturnError(&pgconn.PgError{Code: "42P01", Message: "relation does not exist"})
	client := NewFromPool(mock, nil)

	_, err := client.Exec(context.Background(), "DELETE FROM t")
	if !sserr.HasCode(err, sserr.CodeTimeoutStorage) {
		t.Errorf("deadline error code = %s, want %s", sserr.GetCode(err), sserr.CodeTimeoutStorage)
	}
	if !sserr.IsRetryable(err) {
		t.Error("deadline error should be retryable")
	}

	_, err = client.Exec(context.Background(), "DELETE FROM t")
	if !sserr.HasCode(err, sserr.CodeInternalStorage) {
		t.Errorf("pg error code = %s, want %s", sserr.GetCode(err), sserr.CodeInternalStorage)
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "42P01" {
		t.Errorf("wrapped error lost the PgError: %v", err)
	}
	expectationsMet(t, mock)
}

func TestClient_InTx_RollsBackOnError(t *testing.T) {
	mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()
	client := NewFromPool(mock, nil)

	boom := errors.New("boom")
	err := client.InTx(context.Background(), func(pgx.Tx) error { return boom })

	if !errors.Is(err, boom) {
		t.Fatalf("InTx() error = %v, want boom", err)
	}
	if !sserr.HasCode(err, sserr.CodeInternalStorage) {
		t.Errorf("InTx() code = %s, want %s", sserr.GetCode(err), sserr.CodeInternalStorage)
	}
	expectationsMet(t, mock)
}

func TestClient_InTx_BeginFailure(t *testing.T) {
	mock := newMock(t)
	mock.ExpectBegin().WillReturnError(errors.New("connection refused"))
	client := NewFromPool(mock, nil)

	called := false
	err := client.InTx(context.Background(), func(pgx.Tx) error { called = true; return nil })

	if err == nil || called {
		t.Fatalf("InTx() error = %v, called = %v", err, called)
	}
	expectationsMet(t, mock)
}

func TestClient_Health(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	defer mock.Close()
	mock.ExpectPing()
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	client := NewFromPool(mock, nil)

	if err := client.Health(context.Background()); err != nil {
		t.Fatalf("Health() error: %v", err)
	}
	err = client.Health(context.Background())
	if !sserr.HasCode(err, sserr.CodeUnavailableDependency) {
		t.Fatalf("Health() error = %v, want %s", err, sserr.CodeUnavailableDependency)
	}
	expectationsMet(t, mock)
}

func TestClient_RecordsSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	mock := newMock(t)
	mock.ExpectExec("UPDATE").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	client := NewFromPool(mock, &Config{Database: "props"})
	client.tracer = tp.Tracer("test")

	long := "UPDATE t SET v = '" + strings.Repeat("x", 200) + "'"
	if _, err := client.Exec(context.Background(), long); err != nil {
		t.Fatalf("Exec() error: %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Name != "postgres.Exec" {
		t.Errorf("span name = %q", spans[0].Name)
	}
	for _, attr := range spans[0].Attributes {
		switch attr.Key {
		case "db.name":
			if attr.Value.AsString() != "props" {
				t.Errorf("db.name = %q", attr.Value.AsString())
			}
		case "db.statement":
			if got := len(attr.Value.AsString()); got != maxSQLTruncateLen+3 {
				t.Errorf("db.statement length = %d, want %d", got, maxSQLTruncateLen+3)
			}
		}
	}
}

// ===========================================================================
// Property Store Tests
// ===========================================================================

func TestPropertyStore_QuotesTable(t *testing.T) {
	store := NewPropertyStore(NewFromPool(newMock(t), &Config{Table: "ops.props"}))
	if !strings.Contains(store.selectSQL, `FROM "ops"."props"`) {
		t.Errorf("selectSQL = %q", store.selectSQL)
	}
}

func TestPropertyStore_Migrate(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "component_properties"`)).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	if err := NewPropertyStore(NewFromPool(mock, nil)).Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error: %v", err)
	}
	expectationsMet(t, mock)
}

func TestPropertyStore_Resolve(t *testing.T) {
	mock := newMock(t)
	store := NewPropertyStore(NewFromPool(mock, nil))
	mock.ExpectQuery(regexp.QuoteMeta(store.selectSQL)).
		WithArgs("root.db", []string{"dsn", "pool"}).
		WillReturnRows(pgxmock.NewRows([]string{"name", "value"}).AddRow("dsn", "postgres://db"))

	got, err := store.Resolve(context.Background(), "root.db", []string{"dsn", "pool"})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if len(got) != 1 || got["dsn"] != "postgres://db" {
		t.Errorf("Resolve() = %v", got)
	}

	got, err = store.Resolve(context.Background(), "root.db", nil)
	if err != nil || len(got) != 0 {
		t.Errorf("Resolve(nil) = %v, %v; want empty without a query", got, err)
	}
	expectationsMet(t, mock)
}

func TestPropertyStore_StoreUpsertsInOrder(t *testing.T) {
	mock := newMock(t)
	store := NewPropertyStore(NewFromPool(mock, nil))
	upsert := regexp.QuoteMeta(store.upsertSQL)
	mock.ExpectBegin()
	mock.ExpectExec(upsert).WithArgs("root.db", "dsn", "postgres://db").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(upsert).WithArgs("root.db", "pool", "8").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := store.Store(context.Background(), "root.db", map[string]string{"pool": "8", "dsn": "postgres://db"})
	if err != nil {
		t.Fatalf("Store() error: %v", err)
	}
	if err := store.Store(context.Background(), "root.db", nil); err != nil {
		t.Fatalf("Store(nil) error: %v", err)
	}
	expectationsMet(t, mock)
}

func TestPropertyStore_StoreRollsBack(t *testing.T) {
	mock := newMock(t)
	store := NewPropertyStore(NewFromPool(mock, nil))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(store.upsertSQL)).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := store.Store(context.Background(), "root", map[string]string{"a": "1"})
	if !sserr.HasCode(err, sserr.CodeInternalStorage) {
		t.Fatalf("Store() error = %v, want %s", err, sserr.CodeInternalStorage)
	}
	expectationsMet(t, mock)
}

func TestPropertyStore_ValuesAndDelete(t *testing.T) {
	mock := newMock(t)
	store := NewPropertyStore(NewFromPool(mock, nil))
	mock.ExpectQuery(regexp.QuoteMeta(store.allSQL)).WithArgs("root").
		WillReturnRows(pgxmock.NewRows([]string{"name", "value"}).AddRow("a", "1").AddRow("b", "2"))
	mock.ExpectExec(regexp.QuoteMeta(store.deleteSQL)).WithArgs("root").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	all, err := store.Values(context.Background(), "root")
	if err != nil || len(all) != 2 || all["b"] != "2" {
		t.Fatalf("Values() = %v, %v", all, err)
	}
	n, err := store.Delete(context.Background(), "root")
	if err != nil || n != 2 {
		t.Fatalf("Delete() = %d, %v; want 2", n, err)
	}
	expectationsMet(t, mock)
}

func TestPropertyStore_ResolvedOnEngage(t *testing.T) {
	mock := newMock(t)
	store := NewPropertyStore(NewFromPool(mock, nil))
	mock.ExpectQuery(regexp.QuoteMeta(store.selectSQL)).
		WithArgs("worker", []string{"concurrency"}).
		WillReturnRows(pgxmock.NewRows([]string{"name", "value"}).AddRow("concurrency", "12"))

	c, err := lifecycle.NewComponentBuilder("worker").
		WithProperty(lifecycle.IntValue("concurrency", 1)).
		WithPropertySource(store).
		WithTransitionTimeout(time.Second).
		Build()
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if !c.Engage(context.Background()) {
		t.Fatal("Engage() was not accepted")
	}
	if c.Status() != lifecycle.StatusEnabled {
		t.Fatalf("status = %s, reason %q", c.Status(), c.ErrorReason())
	}
	for _, p := range c.Properties() {
		if p.Name() == "concurrency" && p.String() != "12" {
			t.Errorf("concurrency = %s, want 12", p.String())
		}
	}
	expectationsMet(t, mock)
}
