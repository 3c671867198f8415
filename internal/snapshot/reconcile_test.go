package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worthbar/internal/models"
)

func f(v float64) *float64 { return &v }

func account(id string, online bool) models.AccountRecord {
	a := models.AccountRecord{ID: models.FlexID(id)}
	if online {
		a.IsConnected = true
	}
	return a
}

func balance(accountID, date, balanceType string, amount float64) models.BalanceRecord {
	return models.BalanceRecord{
		AccountID:     models.FlexID(accountID),
		BalanceOn:     date,
		BalanceType:   balanceType,
		BalanceAmount: f(amount),
	}
}

func TestReconcilePrefersCompleteDate(t *testing.T) {
	// Three preferred accounts; D1 has all three reporting, the later D2
	// only two. D1 wins as the latest usable date.
	accounts := []models.AccountRecord{
		account("a", true),
		account("b", true),
		account("c", true),
	}
	balances := []models.BalanceRecord{
		balance("a", "2026-08-26", "ONLINE", 100),
		balance("b", "2026-08-26", "ONLINE", 200),
		balance("c", "2026-08-26", "ONLINE", 300),
		balance("a", "2026-08-27", "ONLINE", 110),
		balance("b", "2026-08-27", "ONLINE", 210),
	}

	total, _, err := reconcile(accounts, balances)
	require.NoError(t, err)
	assert.Equal(t, 600.0, total)
}

func TestReconcilePercentBetweenCompleteDates(t *testing.T) {
	accounts := []models.AccountRecord{account("a", true)}
	balances := []models.BalanceRecord{
		balance("a", "2026-08-26", "ONLINE", 200),
		balance("a", "2026-08-27", "ONLINE", 210),
	}

	total, percent, err := reconcile(accounts, balances)
	require.NoError(t, err)
	assert.Equal(t, 210.0, total)
	assert.InDelta(t, 5.0, percent, 1e-9)
}

func TestReconcileExcludedAccountsNeverContribute(t *testing.T) {
	deleted := account("dead", true)
	deleted.IsDeleted = true
	ignored := account("ign", true)
	ignored.IsIgnored = true
	closed := account("cls", true)
	closed.IsClosed = true

	accounts := []models.AccountRecord{account("a", true), deleted, ignored, closed}
	balances := []models.BalanceRecord{
		balance("a", "2026-08-27", "ONLINE", 100),
		balance("dead", "2026-08-27", "ONLINE", 1000),
		balance("ign", "2026-08-27", "ONLINE", 1000),
		balance("cls", "2026-08-27", "ONLINE", 1000),
	}

	total, _, err := reconcile(accounts, balances)
	require.NoError(t, err)
	assert.Equal(t, 100.0, total)
}

func TestReconcileSinglePreferredTagPerAccount(t *testing.T) {
	// A connected account sums only ONLINE rows, a manual account only
	// CURRENT rows; the mismatching rows are dropped.
	accounts := []models.AccountRecord{
		account("online", true),
		account("manual", false),
	}
	balances := []models.BalanceRecord{
		balance("online", "2026-08-27", "ONLINE", 50),
		balance("online", "2026-08-27", "CURRENT", 999),
		balance("manual", "2026-08-27", "CURRENT", 25),
		balance("manual", "2026-08-27", "ONLINE", 999),
	}

	total, _, err := reconcile(accounts, balances)
	require.NoError(t, err)
	assert.Equal(t, 75.0, total)
}

func TestReconcileOnlineClassification(t *testing.T) {
	withOnlineBalance := models.AccountRecord{ID: "x", OnlineBalance: f(1)}
	withLogin := models.AccountRecord{ID: "y", InstitutionLoginID: "login-1"}
	manual := models.AccountRecord{ID: "z"}

	assert.Equal(t, models.BalanceTypeOnline, withOnlineBalance.PreferredBalanceType())
	assert.Equal(t, models.BalanceTypeOnline, withLogin.PreferredBalanceType())
	assert.Equal(t, models.BalanceTypeCurrent, manual.PreferredBalanceType())
}

func TestReconcilePercentZeroWhenPreviousNearZero(t *testing.T) {
	accounts := []models.AccountRecord{account("a", true)}
	balances := []models.BalanceRecord{
		balance("a", "2026-08-26", "ONLINE", 0),
		balance("a", "2026-08-27", "ONLINE", 500),
	}

	_, percent, err := reconcile(accounts, balances)
	require.NoError(t, err)
	assert.Zero(t, percent)
}

func TestReconcileNoPreviousDate(t *testing.T) {
	accounts := []models.AccountRecord{account("a", true)}
	balances := []models.BalanceRecord{
		balance("a", "2026-08-27", "ONLINE", 500),
	}

	total, percent, err := reconcile(accounts, balances)
	require.NoError(t, err)
	assert.Equal(t, 500.0, total)
	assert.Zero(t, percent)
}

func TestReconcileNoUsableRows(t *testing.T) {
	accounts := []models.AccountRecord{account("a", true)}
	balances := []models.BalanceRecord{
		balance("unknown", "2026-08-27", "ONLINE", 500),
	}

	_, _, err := reconcile(accounts, balances)
	assert.ErrorIs(t, err, ErrNoBalanceData)
}

func TestPercentChange(t *testing.T) {
	assert.InDelta(t, 10.0, percentChange(110, 100), 1e-9)
	assert.InDelta(t, 10.0, percentChange(-90, -100), 1e-9)
	assert.Zero(t, percentChange(100, 0))
}
