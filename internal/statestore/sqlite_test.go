package statestore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridbot/internal/core"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_WALMode(t *testing.T) {
	store := newTestStore(t)
	var journalMode string
	require.NoError(t, store.db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)
}

func TestSQLiteStore_RunnerCreateAndUpdate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	runnerID, err := store.CreateAndUseRunner(ctx, core.RunnerRecord{
		BotID: "bot-1", Pair: "ETHUSDT", InitPrice: decimal.NewFromInt(100),
		InitBase: decimal.NewFromInt(10), InitQuote: decimal.NewFromInt(700),
		GridNum: 10, Status: "running",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, runnerID)

	err = store.UpdateRunner(ctx, runnerID, map[string]interface{}{"status": "stopped", "latest_price": "105"})
	require.NoError(t, err)

	var data string
	require.NoError(t, store.db.QueryRow("SELECT data FROM runners WHERE id = ?", runnerID).Scan(&data))
	assert.Contains(t, data, "stopped")
	assert.Contains(t, data, "105")
}

func TestSQLiteStore_UpdateRunner_UnknownID(t *testing.T) {
	store := newTestStore(t)
	err := store.UpdateRunner(context.Background(), "does-not-exist", map[string]interface{}{"status": "x"})
	assert.Error(t, err)
}

func TestSQLiteStore_OrderLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	runnerID, err := store.CreateAndUseRunner(ctx, core.RunnerRecord{BotID: "bot-1", Pair: "ETHUSDT"})
	require.NoError(t, err)

	require.NoError(t, store.CreateOrder(ctx, runnerID, core.OrderRecord{
		LocalID: 1, ExchangeOrderID: "ex-1", Side: core.SideBuy,
		Price: decimal.NewFromInt(90), Amount: decimal.NewFromInt(2), Status: "created",
	}))

	require.NoError(t, store.UpdateOrder(ctx, runnerID, 1, map[string]interface{}{"status": "on_traded"}))

	var data string
	require.NoError(t, store.db.QueryRow(
		"SELECT data FROM orders WHERE runner_id = ? AND local_id = ?", runnerID, 1).Scan(&data))
	assert.Contains(t, data, "on_traded")

	require.NoError(t, store.DeleteOrder(ctx, runnerID, 1))

	err = store.db.QueryRow(
		"SELECT data FROM orders WHERE runner_id = ? AND local_id = ?", runnerID, 1).Scan(&data)
	assert.Error(t, err)
}

func TestSQLiteStore_ChecksumValidation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	runnerID, err := store.CreateAndUseRunner(ctx, core.RunnerRecord{BotID: "bot-1", Pair: "ETHUSDT"})
	require.NoError(t, err)

	_, err = store.db.Exec("UPDATE runners SET data = '{\"corrupt\": true}' WHERE id = ?", runnerID)
	require.NoError(t, err)

	err = store.UpdateRunner(ctx, runnerID, map[string]interface{}{"status": "stopped"})
	assert.ErrorContains(t, err, "checksum")
}

func TestSQLiteStore_UpdateOrder_UnknownOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	runnerID, err := store.CreateAndUseRunner(ctx, core.RunnerRecord{BotID: "bot-1", Pair: "ETHUSDT"})
	require.NoError(t, err)

	err = store.UpdateOrder(ctx, runnerID, 99, map[string]interface{}{"status": "x"})
	assert.Error(t, err)
}
