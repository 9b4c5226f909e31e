package postgres

import (
	"context"
	"errors"
	"io/fs"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"token-swap-guard/internal/domain"
	"token-swap-guard/internal/ledger"
	"token-swap-guard/internal/storage/migrations"
	storagepg "token-swap-guard/internal/storage/postgres"
)

const (
	alice = domain.PartyID("alice")
	bob   = domain.PartyID("bob")
	carol = domain.PartyID("carol")
	gold  = domain.AssetID("gold")
)

// setupTestLedger creates a PostgreSQL container and a ledger on it.
func setupTestLedger(t *testing.T) (*Ledger, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping container-backed test in -short mode")
	}

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	pool, err := storagepg.NewPool(ctx, dsn)
	require.NoError(t, err, "failed to create pool")

	entries, err := fs.ReadDir(migrations.PostgresFS, "postgres")
	require.NoError(t, err)
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	for _, file := range files {
		data, err := fs.ReadFile(migrations.PostgresFS, "postgres/"+file)
		require.NoError(t, err)
		_, err = pool.Exec(ctx, string(data))
		require.NoError(t, err, "failed to execute migration: %s", file)
	}

	cleanup := func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return NewLedger(pool), cleanup
}

func TestLedger_TransferAndBalances(t *testing.T) {
	l, cleanup := setupTestLedger(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, l.Mint(ctx, alice, gold, 1000))
	require.NoError(t, l.Transfer(ctx, alice, bob, gold, 400))

	aliceBal, err := l.BalanceOf(ctx, alice, gold)
	require.NoError(t, err)
	bobBal, err := l.BalanceOf(ctx, bob, gold)
	require.NoError(t, err)
	assert.Equal(t, uint64(600), aliceBal)
	assert.Equal(t, uint64(400), bobBal)
}

func TestLedger_Transfer_InsufficientBalance(t *testing.T) {
	l, cleanup := setupTestLedger(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, l.Mint(ctx, alice, gold, 100))

	err := l.Transfer(ctx, alice, bob, gold, 101)
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	aliceBal, _ := l.BalanceOf(ctx, alice, gold)
	assert.Equal(t, uint64(100), aliceBal)
}

func TestLedger_TransferFrom_ConsumesAllowance(t *testing.T) {
	l, cleanup := setupTestLedger(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, l.Mint(ctx, alice, gold, 1000))
	require.NoError(t, l.Authorize(ctx, alice, bob, gold, 500))

	require.NoError(t, l.TransferFrom(ctx, bob, alice, carol, gold, 300))

	carolBal, _ := l.BalanceOf(ctx, carol, gold)
	remaining, _ := l.Allowance(ctx, alice, bob, gold)
	assert.Equal(t, uint64(300), carolBal)
	assert.Equal(t, uint64(200), remaining)
}

func TestLedger_TransferFrom_NotAuthorized(t *testing.T) {
	l, cleanup := setupTestLedger(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, l.Mint(ctx, alice, gold, 1000))

	err := l.TransferFrom(ctx, bob, alice, carol, gold, 1)
	assert.ErrorIs(t, err, ledger.ErrNotAuthorized)
}

func TestLedger_WithinTx_RollbackRestoresEverything(t *testing.T) {
	l, cleanup := setupTestLedger(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, l.Mint(ctx, alice, gold, 1000))
	require.NoError(t, l.Authorize(ctx, alice, bob, gold, 777))

	boom := errors.New("boom")
	err := l.WithinTx(ctx, func(ctx context.Context, tx ledger.Ledger) error {
		if err := tx.Transfer(ctx, alice, bob, gold, 999); err != nil {
			return err
		}
		if err := tx.Authorize(ctx, alice, bob, gold, 1); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	aliceBal, _ := l.BalanceOf(ctx, alice, gold)
	bobBal, _ := l.BalanceOf(ctx, bob, gold)
	allowance, _ := l.Allowance(ctx, alice, bob, gold)
	assert.Equal(t, uint64(1000), aliceBal)
	assert.Equal(t, uint64(0), bobBal)
	assert.Equal(t, uint64(777), allowance)
}

func TestLedger_WithinTx_Commit(t *testing.T) {
	l, cleanup := setupTestLedger(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, l.Mint(ctx, alice, gold, 1000))

	err := l.WithinTx(ctx, func(ctx context.Context, tx ledger.Ledger) error {
		return tx.Transfer(ctx, alice, bob, gold, 250)
	})
	require.NoError(t, err)

	bobBal, _ := l.BalanceOf(ctx, bob, gold)
	assert.Equal(t, uint64(250), bobBal)
}
