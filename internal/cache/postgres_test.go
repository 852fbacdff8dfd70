package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadtrace/internal/model"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresWithPool(mock), mock
}

func TestPostgres_TryLock(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO enrichment_cache").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	ok, err := st.TryLock(context.Background(), "203.0.113.7", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_TryLock_Contended(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO enrichment_cache").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	ok, err := st.TryLock(context.Background(), "203.0.113.7", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "zero rows affected means another worker holds the lock")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpsertRecord(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO enrichment_cache").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	rec := &model.EnrichmentRecord{
		IP:     "203.0.113.7",
		Domain: "acme.nl",
		Status: model.TierEnriched,
		Lat:    52.37,
		Lon:    4.90,
	}
	require.NoError(t, st.UpsertRecord(context.Background(), rec))
	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.Processing, "a full upsert releases the lock")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpsertRecord_RequiresIP(t *testing.T) {
	st, _ := newMockStore(t)
	err := st.UpsertRecord(context.Background(), &model.EnrichmentRecord{Domain: "acme.nl"})
	assert.Error(t, err)
}

func TestPostgres_GetRecord(t *testing.T) {
	st, mock := newMockStore(t)

	stored := model.EnrichmentRecord{
		IP:          "203.0.113.7",
		Domain:      "acme.nl",
		Source:      model.SourceTLSCert,
		Confidence:  0.85,
		CompanyName: "Acme B.V.",
	}
	payload, err := json.Marshal(stored)
	require.NoError(t, err)

	location, err := EncodePoint(52.37, 4.90)
	require.NoError(t, err)

	now := time.Now().UTC()
	lastAttempt := now.Add(-time.Hour)

	rows := pgxmock.NewRows([]string{
		"id", "ip", "payload", "status", "attempts", "last_attempt",
		"resolved_at", "processing", "locked_at", "location", "created_at", "updated_at",
	}).AddRow(
		"rec-1", "203.0.113.7", payload, "enriched", 1, &lastAttempt,
		(*time.Time)(nil), false, (*time.Time)(nil), location, now, now,
	)

	mock.ExpectQuery("SELECT (.+) FROM enrichment_cache WHERE ip").
		WithArgs("203.0.113.7").
		WillReturnRows(rows)

	got, err := st.GetRecord(context.Background(), "203.0.113.7")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "rec-1", got.ID)
	assert.Equal(t, "acme.nl", got.Domain)
	assert.Equal(t, model.TierEnriched, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.Equal(t, lastAttempt, got.LastAttempt)
	assert.True(t, got.ResolvedAt.IsZero())
	assert.InDelta(t, 52.37, got.Lat, 1e-9, "location column is authoritative")
	assert.InDelta(t, 4.90, got.Lon, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SweepExpiredLocks(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec("UPDATE enrichment_cache SET processing = false").
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	n, err := st.SweepExpiredLocks(context.Background(), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ReplacePeople(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM people").
		WithArgs("acme.nl").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec("INSERT INTO people").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := st.ReplacePeople(context.Background(), "acme.nl", []model.Person{
		{Name: "Jan de Vries", Role: "Directeur"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CountByStatus(t *testing.T) {
	st, mock := newMockStore(t)

	rows := pgxmock.NewRows([]string{"status", "count"}).
		AddRow("enriched", int64(12)).
		AddRow("none", int64(3))

	mock.ExpectQuery("SELECT status, COUNT").WillReturnRows(rows)

	counts, err := st.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, counts[model.TierEnriched])
	assert.Equal(t, 3, counts[model.TierNone])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPointRoundTrip(t *testing.T) {
	data, err := EncodePoint(52.3702, 4.8952)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	lat, lon, err := DecodePoint(data)
	require.NoError(t, err)
	assert.InDelta(t, 52.3702, lat, 1e-9)
	assert.InDelta(t, 4.8952, lon, 1e-9)

	lat, lon, err = DecodePoint(nil)
	require.NoError(t, err)
	assert.Zero(t, lat)
	assert.Zero(t, lon)
}
