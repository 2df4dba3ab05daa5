package legacy_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"leasebook/internal/db/dbtest"
	"leasebook/internal/docstore"
	"leasebook/internal/enums"
	"leasebook/internal/lease"
	"leasebook/internal/legacy"
	"leasebook/internal/payment"
	"leasebook/internal/thread"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

const (
	leaseFile = `{"leases": [{
		"id": "11111111-1111-1111-1111-111111111111",
		"lease_group_id": "22222222-2222-2222-2222-222222222222",
		"version": 1,
		"is_current": true,
		"current_values": {
			"lease_nickname": "Flat 4B",
			"lessee_name": "Asha",
			"lease_start_date": "2025-04-01",
			"lease_end_date": "2026-03-31",
			"monthly_rent": 25000,
			"rent_due_day": "5",
			"security_deposit": ""
		},
		"source_document": {"filename": "lease.pdf"},
		"created_at": "2025-03-20T10:00:00.123456",
		"updated_at": "2025-03-20T10:00:00.123456"
	}]}`

	paymentFile = `{"confirmations": [
		{
			"id": "p-1",
			"lease_group_id": "22222222-2222-2222-2222-222222222222",
			"confirmation_type": "rent",
			"period_month": 1,
			"period_year": 2026,
			"amount_agreed": 25000,
			"amount_declared": 24500.5,
			"tds_deducted": null,
			"date_paid": "2026-01-05",
			"proof_files": ["22222222-2222-2222-2222-222222222222/p-1_a.pdf"],
			"verification_status": "unverified",
			"disclaimer_acknowledged": "2026-01-05T09:00:00",
			"submitted_at": "2026-01-05T09:00:01",
			"submitted_via": "tenant_link",
			"notes": ""
		},
		{
			"id": "p-bad",
			"lease_group_id": "22222222-2222-2222-2222-222222222222",
			"confirmation_type": "parking",
			"period_month": 1,
			"period_year": 2026,
			"amount_declared": 100,
			"submitted_at": "2026-01-05T09:00:01"
		}
	]}`

	threadFile = `{
		"threads": [{
			"id": "t-1",
			"lease_group_id": "22222222-2222-2222-2222-222222222222",
			"topic_type": "payment_review",
			"topic_ref": "rent:2026-01",
			"status": "open",
			"waiting_on": "landlord",
			"created_at": "2026-01-05T09:00:02",
			"resolved_at": null
		}],
		"messages": [
			{
				"id": "m-1",
				"thread_id": "t-1",
				"created_at": "2026-01-05T09:00:02",
				"actor": "tenant",
				"message_type": "submission",
				"body": null,
				"payment_id": "p-1",
				"attachments": [],
				"channel": "internal"
			},
			{
				"id": "m-orphan",
				"thread_id": "t-missing",
				"created_at": "2026-01-06T09:00:00",
				"actor": "tenant",
				"message_type": "reply",
				"body": "hello"
			}
		]
	}`
)

func writeDocs(t *testing.T, dir string) {
	t.Helper()
	files := map[string]string{
		docstore.Leases:   leaseFile,
		docstore.Payments: paymentFile,
		docstore.Threads:  threadFile,
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+".json"), []byte(content), 0o644))
	}
}

func TestImportIsIdempotentAndCollectsErrors(t *testing.T) {
	ctx := context.Background()
	gdb := dbtest.Open(t)
	dir := t.TempDir()
	writeDocs(t, dir)
	m := &legacy.Migrator{DB: gdb, Docs: &docstore.Store{Dir: dir}}

	report, err := m.Import(ctx)
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2, "unknown category and orphan message")
	assert.Equal(t, 1, report["leases"].Inserted)
	assert.Equal(t, 1, report["confirmations"].Inserted)
	assert.Equal(t, 1, report["confirmations"].Failed)
	assert.Equal(t, 1, report["threads"].Inserted)
	assert.Equal(t, 1, report["messages"].Inserted)
	assert.Equal(t, 1, report["messages"].Failed)

	leases := &lease.Service{DB: gdb}
	l, err := leases.GetCurrent(ctx, "22222222-2222-2222-2222-222222222222")
	require.NoError(t, err)
	assert.Equal(t, "Flat 4B", l.Values.Nickname)
	require.NotNil(t, l.Values.RentDueDay)
	assert.Equal(t, 5, *l.Values.RentDueDay)
	assert.False(t, l.Values.SecurityDeposit.Valid)
	require.Len(t, l.Expected(), 3, "defaults filled in by the upgrade")
	assert.True(t, l.Expected()[0].TypicalAmount.Decimal.Equal(l.Values.MonthlyRent.Decimal))

	log := &payment.Log{DB: gdb}
	p, err := log.Get(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, "24500.5", p.AmountDeclared.String())
	assert.False(t, p.TDSDeducted.Valid)
	assert.Nil(t, p.Notes)

	engine := &thread.Engine{DB: gdb}
	th, err := engine.GetThread(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, enums.PartyLandlord, th.WaitingOn)
	assert.Equal(t, "rent:2026-01", th.TopicRef.String())

	again, err := m.Import(ctx)
	require.Error(t, err)
	assert.Equal(t, 0, again["leases"].Inserted)
	assert.Equal(t, 1, again["leases"].Skipped)
	assert.Equal(t, 1, again["messages"].Skipped)
}

func TestExportWritesCollections(t *testing.T) {
	ctx := context.Background()
	gdb := dbtest.Open(t)
	src := t.TempDir()
	writeDocs(t, src)
	_, _ = (&legacy.Migrator{DB: gdb, Docs: &docstore.Store{Dir: src}}).Import(ctx)

	out := &docstore.Store{Dir: t.TempDir()}
	report, err := (&legacy.Migrator{DB: gdb, Docs: out}).Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report["leases"].Inserted)

	leases, err := out.Load(ctx, docstore.Leases)
	require.NoError(t, err)
	require.Len(t, leases["leases"], 1)
	rec := leases["leases"][0]
	assert.Equal(t, docstore.LeaseSchemaVersion, docstore.SchemaVersion(rec))
	cv := rec["current_values"].(map[string]any)
	assert.Equal(t, "2025-04-01", cv["lease_start_date"])

	threads, err := out.Load(ctx, docstore.Threads)
	require.NoError(t, err)
	require.Len(t, threads["threads"], 1)
	require.Len(t, threads["messages"], 1)
	assert.Equal(t, "2026-01-05T09:00:02.000000", threads["messages"][0]["created_at"])

	// Exported files import cleanly into an empty store.
	fresh := dbtest.Open(t)
	report, err = (&legacy.Migrator{DB: fresh, Docs: out}).Import(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report["confirmations"].Inserted)

	th, err := (&thread.Engine{DB: fresh}).GetThread(ctx, "t-1")
	require.NoError(t, err)
	assert.True(t, th.LastActivityAt.Equal(time.Date(2026, 1, 5, 9, 0, 2, 0, time.UTC)))
}
