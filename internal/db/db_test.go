package db_test

import (
	"testing"

	"leasebook/internal/db"
	"leasebook/internal/db/dbtest"
	"leasebook/internal/payment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsCreateTablesAndIndexes(t *testing.T) {
	gdb := dbtest.Open(t)

	for _, table := range []string{
		"users", "leases", "terminations", "payment_confirmations",
		"tenant_tokens", "threads", "messages", "jobs",
	} {
		assert.True(t, gdb.Migrator().HasTable(table), table)
	}
	assert.True(t, gdb.Migrator().HasTable(&payment.Confirmation{}))
	assert.True(t, gdb.Migrator().HasIndex("payment_confirmations", "idx_payments_group_period"))
	assert.True(t, gdb.Migrator().HasIndex("threads", "uq_threads_open_topic"))

	// Running again on a migrated database is a no-op.
	require.NoError(t, db.AutoMigrateAndIndexes(gdb))
}
