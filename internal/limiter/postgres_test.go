package limiter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

func newLimiter(t *testing.T, p Policy) (*PG, pgxmock.PgxPoolIface, time.Time) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewPG(mock, p)
	l.now = func() time.Time { return now }
	return l, mock, now
}

func TestNewKey_NormalizesAndHashes(t *testing.T) {
	t.Parallel()

	a := NewKey(" Bob@Shop.IO ", "1.2.3.4")
	b := NewKey("bob@shop.io", "1.2.3.4")
	c := NewKey("bob@shop.io", "5.6.7.8")
	require.Equal(t, "bob@shop.io", a.Email)
	require.Equal(t, a.IPHash, b.IPHash)
	require.NotEqual(t, a.IPHash, c.IPHash)
	require.Len(t, a.IPHash, 32)
}

func TestNewPG_ZeroPolicyDefaults(t *testing.T) {
	t.Parallel()
	l := NewPG(nil, Policy{})
	require.Equal(t, DefaultPolicy(), l.policy)
}

func TestAllow(t *testing.T) {
	l, mock, now := newLimiter(t, DefaultPolicy())
	k := NewKey("a@b.io", "ip")
	ctx := context.Background()
	sel := `SELECT blocked_until FROM auth_limiter WHERE email=\$1 AND ip_hash=\$2`

	mock.ExpectQuery(sel).WithArgs(k.Email, k.IPHash).WillReturnError(pgx.ErrNoRows)
	ok, dur, err := l.Allow(ctx, k)
	require.NoError(t, err)
	require.True(t, ok)
	require.Zero(t, dur)

	mock.ExpectQuery(sel).WithArgs(k.Email, k.IPHash).
		WillReturnRows(pgxmock.NewRows([]string{"blocked_until"}).AddRow(now.Add(10 * time.Minute)))
	ok, dur, err = l.Allow(ctx, k)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 10*time.Minute, dur)

	mock.ExpectQuery(sel).WithArgs(k.Email, k.IPHash).
		WillReturnRows(pgxmock.NewRows([]string{"blocked_until"}).AddRow(now.Add(-time.Minute)))
	ok, _, err = l.Allow(ctx, k)
	require.NoError(t, err)
	require.True(t, ok)

	mock.ExpectQuery(sel).WithArgs(k.Email, k.IPHash).WillReturnError(errors.New("db boom"))
	ok, _, err = l.Allow(ctx, k)
	require.Error(t, err)
	require.False(t, ok)
}

func TestSuccess_ResetsCounters(t *testing.T) {
	l, mock, _ := newLimiter(t, DefaultPolicy())
	k := NewKey("a@b.io", "ip")

	mock.ExpectExec(`INSERT INTO auth_limiter \(email, ip_hash, fail_count, blocked_until, updated_at\)`).
		WithArgs(k.Email, k.IPHash).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, l.Success(context.Background(), k))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFailure_BelowAndAtThreshold(t *testing.T) {
	p := Policy{Window: 5 * time.Minute, MaxFails: 3, BlockFor: 10 * time.Minute}
	l, mock, now := newLimiter(t, p)
	k := NewKey("a@b.io", "ip")
	ctx := context.Background()

	mock.ExpectQuery(`RETURNING fail_count`).
		WithArgs(k.Email, k.IPHash, p.Window).
		WillReturnRows(pgxmock.NewRows([]string{"fail_count"}).AddRow(2))
	blocked, dur, err := l.Failure(ctx, k)
	require.NoError(t, err)
	require.False(t, blocked)
	require.Zero(t, dur)

	mock.ExpectQuery(`RETURNING fail_count`).
		WithArgs(k.Email, k.IPHash, p.Window).
		WillReturnRows(pgxmock.NewRows([]string{"fail_count"}).AddRow(3))
	mock.ExpectExec(`UPDATE auth_limiter SET blocked_until=\$3 WHERE email=\$1 AND ip_hash=\$2`).
		WithArgs(k.Email, k.IPHash, now.Add(p.BlockFor)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	blocked, dur, err = l.Failure(ctx, k)
	require.NoError(t, err)
	require.True(t, blocked)
	require.Equal(t, p.BlockFor, dur)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNop_NeverBlocks(t *testing.T) {
	t.Parallel()
	var l Limiter = Nop{}
	ok, _, err := l.Allow(context.Background(), Key{})
	require.NoError(t, err)
	require.True(t, ok)
	blocked, _, err := l.Failure(context.Background(), Key{})
	require.NoError(t, err)
	require.False(t, blocked)
}
