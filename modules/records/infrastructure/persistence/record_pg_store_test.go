package persistence

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lumacrm/luma/modules/records/domain/ports"
	"github.com/lumacrm/luma/modules/records/domain/types"
)

type beginFunc func(ctx context.Context) (pgx.Tx, error)

func (f beginFunc) Begin(ctx context.Context) (pgx.Tx, error) { return f(ctx) }

type txStub struct {
	execFn    func(sql string, args []any) (pgconn.CommandTag, error)
	execLog   []string
	queryLog  []string
	rows      pgx.Rows
	row       pgx.Row
	rowQueue  []pgx.Row
	commitErr error
	commits   int
}

func (t *txStub) Begin(context.Context) (pgx.Tx, error) { return t, nil }
func (t *txStub) Commit(context.Context) error {
	t.commits++
	return t.commitErr
}
func (t *txStub) Rollback(context.Context) error { return nil }
func (t *txStub) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *txStub) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (t *txStub) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (t *txStub) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *txStub) Conn() *pgx.Conn { return nil }

func (t *txStub) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	t.execLog = append(t.execLog, sql)
	if t.execFn != nil {
		return t.execFn(sql, args)
	}
	return pgconn.CommandTag{}, nil
}

func (t *txStub) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	t.queryLog = append(t.queryLog, sql)
	if t.rows != nil {
		return t.rows, nil
	}
	return &stubRows{}, nil
}

func (t *txStub) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	t.queryLog = append(t.queryLog, sql)
	if len(t.rowQueue) > 0 {
		row := t.rowQueue[0]
		t.rowQueue = t.rowQueue[1:]
		return row
	}
	if t.row != nil {
		return t.row
	}
	return stubRow{err: errors.New("row not mocked")}
}

type stubRow struct {
	vals []any
	err  error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i := range dest {
		if i >= len(r.vals) || r.vals[i] == nil {
			continue
		}
		switch d := dest[i].(type) {
		case *string:
			*d = r.vals[i].(string)
		case *int:
			*d = r.vals[i].(int)
		case *bool:
			*d = r.vals[i].(bool)
		case *[]byte:
			*d = r.vals[i].([]byte)
		case *time.Time:
			*d = r.vals[i].(time.Time)
		case **time.Time:
			ts := r.vals[i].(time.Time)
			*d = &ts
		}
	}
	return nil
}

type stubRows struct {
	rows []stubRow
	idx  int
}

func (r *stubRows) Close()                                       {}
func (r *stubRows) Err() error                                   { return nil }
func (r *stubRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *stubRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *stubRows) Next() bool {
	if r.idx >= len(r.rows) {
		return false
	}
	r.idx++
	return true
}
func (r *stubRows) Scan(dest ...any) error {
	return r.rows[r.idx-1].Scan(dest...)
}
func (r *stubRows) Values() ([]any, error) { return nil, nil }
func (r *stubRows) RawValues() [][]byte    { return nil }
func (r *stubRows) Conn() *pgx.Conn        { return nil }

var fixedTime = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func recordRowVals() []any {
	return []any{
		"r1", "sm1", "t1", []byte(`{"name":"Ada","amount":12}`),
		"u1", fixedTime, fixedTime, nil,
	}
}

func TestInsertRecordStampsTimestamps(t *testing.T) {
	tx := &txStub{row: stubRow{vals: []any{fixedTime, fixedTime}}}
	store := NewRecordPGStore(beginFunc(func(context.Context) (pgx.Tx, error) { return tx, nil }))

	rec, err := store.InsertRecord(context.Background(), types.Record{
		ID: "r1", SubModuleID: "sm1", TenantID: "t1",
		Payload: map[string]any{"name": "Ada"}, CreatedBy: "u1",
	})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if !rec.CreatedAt.Equal(fixedTime) || !rec.UpdatedAt.Equal(fixedTime) {
		t.Fatalf("timestamps = %v / %v", rec.CreatedAt, rec.UpdatedAt)
	}
	if len(tx.execLog) == 0 || !strings.Contains(tx.execLog[0], "app.current_tenant") {
		t.Fatalf("first statement must set tenant, got %v", tx.execLog)
	}
	if tx.commits != 1 {
		t.Fatalf("commits=%d", tx.commits)
	}
}

func TestFindRecordNotFound(t *testing.T) {
	tx := &txStub{row: stubRow{err: pgx.ErrNoRows}}
	store := NewRecordPGStore(beginFunc(func(context.Context) (pgx.Tx, error) { return tx, nil }))

	_, err := store.FindRecord(context.Background(), "t1", "sm1", "ghost")
	if !errors.Is(err, ports.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestFindRecordScansPayload(t *testing.T) {
	tx := &txStub{row: stubRow{vals: recordRowVals()}}
	store := NewRecordPGStore(beginFunc(func(context.Context) (pgx.Tx, error) { return tx, nil }))

	rec, err := store.FindRecord(context.Background(), "t1", "sm1", "r1")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if rec.ID != "r1" || rec.CreatedBy != "u1" {
		t.Fatalf("rec=%+v", rec)
	}
	if rec.Payload["name"] != "Ada" || rec.Payload["amount"] != float64(12) {
		t.Fatalf("payload=%v", rec.Payload)
	}
	if !strings.Contains(tx.queryLog[0], "deleted_at IS NULL") {
		t.Fatalf("find must exclude soft-deleted rows: %s", tx.queryLog[0])
	}
}

type retryableErr struct{}

func (retryableErr) Error() string     { return "conn closed" }
func (retryableErr) SafeToRetry() bool { return true }

func TestFindRecordRetriesOnceOnTransientError(t *testing.T) {
	calls := 0
	good := &txStub{row: stubRow{vals: recordRowVals()}}
	store := NewRecordPGStore(beginFunc(func(context.Context) (pgx.Tx, error) {
		calls++
		if calls == 1 {
			return nil, retryableErr{}
		}
		return good, nil
	}))

	rec, err := store.FindRecord(context.Background(), "t1", "sm1", "r1")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if rec.ID != "r1" || calls != 2 {
		t.Fatalf("rec=%+v calls=%d", rec, calls)
	}
}

func TestListRecordsCountAndPageShareTx(t *testing.T) {
	tx := &txStub{
		row: stubRow{vals: []any{57}},
		rows: &stubRows{rows: []stubRow{
			{vals: recordRowVals()},
		}},
	}
	store := NewRecordPGStore(beginFunc(func(context.Context) (pgx.Tx, error) { return tx, nil }))

	recs, total, err := store.ListRecords(context.Background(), "t1", "sm1", 20, 20, ports.SortKey{Column: "created_at", Desc: true})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if total != 57 || len(recs) != 1 {
		t.Fatalf("total=%d len=%d", total, len(recs))
	}
	if tx.commits != 1 {
		t.Fatalf("commits=%d", tx.commits)
	}
	if !strings.Contains(tx.queryLog[0], "COUNT(*)") {
		t.Fatalf("count must run before the page query: %v", tx.queryLog)
	}
	if !strings.Contains(tx.queryLog[1], "ORDER BY created_at DESC") {
		t.Fatalf("page query order clause: %s", tx.queryLog[1])
	}
}

func TestListRecordsSortsByPayloadKey(t *testing.T) {
	tx := &txStub{row: stubRow{vals: []any{0}}}
	store := NewRecordPGStore(beginFunc(func(context.Context) (pgx.Tx, error) { return tx, nil }))

	_, _, err := store.ListRecords(context.Background(), "t1", "sm1", 0, 20, ports.SortKey{JSONKey: "amount"})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if !strings.Contains(tx.queryLog[1], "payload->>'amount' ASC NULLS LAST") {
		t.Fatalf("order clause: %s", tx.queryLog[1])
	}
}

func TestUpdateRecordPayloadNotFound(t *testing.T) {
	tx := &txStub{row: stubRow{err: pgx.ErrNoRows}}
	store := NewRecordPGStore(beginFunc(func(context.Context) (pgx.Tx, error) { return tx, nil }))

	_, err := store.UpdateRecordPayload(context.Background(), "t1", "sm1", "gone", map[string]any{"name": "X"})
	if !errors.Is(err, ports.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
	if tx.commits != 0 {
		t.Fatalf("must not commit on miss, commits=%d", tx.commits)
	}
}

func TestSoftDeleteRecordReportsRowsAffected(t *testing.T) {
	affected := pgconn.NewCommandTag("UPDATE 1")
	tx := &txStub{
		execFn: func(sql string, _ []any) (pgconn.CommandTag, error) {
			if strings.Contains(sql, "SET deleted_at") {
				return affected, nil
			}
			return pgconn.CommandTag{}, nil
		},
	}
	store := NewRecordPGStore(beginFunc(func(context.Context) (pgx.Tx, error) { return tx, nil }))

	marked, err := store.SoftDeleteRecord(context.Background(), "t1", "sm1", "r1")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if !marked {
		t.Fatal("expected marked=true for a live row")
	}

	// Repeat delete hits zero rows and stays a success.
	affected = pgconn.NewCommandTag("UPDATE 0")
	marked, err = store.SoftDeleteRecord(context.Background(), "t1", "sm1", "r1")
	if err != nil {
		t.Fatalf("repeat err=%v", err)
	}
	if marked {
		t.Fatal("expected marked=false for an already-deleted row")
	}
}
