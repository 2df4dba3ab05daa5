package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 2, 10, 6, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *Store {
	t.Helper()
	return &Store{Dir: t.TempDir(), Now: func() time.Time { return now }}
}

func writeFile(t *testing.T, s *Store, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir, name+".json"), []byte(content), 0o644))
}

func TestLoadFallsBackToEmptyShape(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	c, err := s.Load(ctx, Threads)
	require.NoError(t, err)
	assert.Equal(t, Collection{"threads": {}, "messages": {}}, c)

	writeFile(t, s, Threads, "   \n")
	c, err = s.Load(ctx, Threads)
	require.NoError(t, err)
	assert.Empty(t, c["threads"])

	writeFile(t, s, Threads, `{"threads": [`)
	c, err = s.Load(ctx, Threads)
	require.NoError(t, err)
	assert.Equal(t, Collection{"threads": {}, "messages": {}}, c)

	writeFile(t, s, Threads, `{"threads": [{"id": "t1"}]}`)
	c, err = s.Load(ctx, Threads)
	require.NoError(t, err)
	require.Len(t, c["threads"], 1)
	assert.Empty(t, c["messages"], "missing keys are filled in")

	_, err = s.Load(ctx, "nope")
	assert.ErrorIs(t, err, ErrUnknownCollection)
}

func TestSaveReplacesAtomically(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	c := Empty(Payments)
	c["confirmations"] = append(c["confirmations"], Record{"id": "p1", "amount_declared": json.Number("25000.50")})
	require.NoError(t, s.Save(ctx, Payments, c))

	_, err := os.Stat(filepath.Join(s.Dir, Payments+".tmp"))
	assert.True(t, errors.Is(err, os.ErrNotExist), "temp file is gone after rename")

	got, err := s.Load(ctx, Payments)
	require.NoError(t, err)
	require.Len(t, got["confirmations"], 1)
	assert.Equal(t, json.Number("25000.50"), got["confirmations"][0]["amount_declared"])
}

func TestUpdateSerializesWriters(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Update(ctx, Terminations, func(c Collection) error {
				c["terminations"] = append(c["terminations"], Record{"id": "x"})
				return nil
			}))
		}()
	}
	wg.Wait()

	c, err := s.Load(ctx, Terminations)
	require.NoError(t, err)
	assert.Len(t, c["terminations"], 10)
}

func TestUpdateWritesNothingOnError(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	boom := errors.New("boom")

	err := s.Update(ctx, TenantAccess, func(c Collection) error {
		c["tenant_tokens"] = append(c["tenant_tokens"], Record{"token": "abc"})
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = os.Stat(filepath.Join(s.Dir, TenantAccess+".json"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoadUpgradesSingleFlatLease(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	writeFile(t, s, Leases, `{
		"lease_nickname": "Flat 4B",
		"lessee_name": "Asha",
		"monthly_rent": 25000,
		"lease_start_date": "2025-04-01",
		"source_filename": "lease.pdf",
		"saved_at": "2025-03-20T10:00:00"
	}`)

	c, err := s.Load(ctx, Leases)
	require.NoError(t, err)
	require.Len(t, c["leases"], 1)
	rec := c["leases"][0]

	assert.NotEmpty(t, rec["id"])
	assert.Equal(t, rec["id"], rec["lease_group_id"])
	assert.Equal(t, "2025-03-20T10:00:00", rec["created_at"])
	assert.Equal(t, LeaseSchemaVersion, SchemaVersion(rec))
	assert.Equal(t, false, rec["needs_expected_payment_confirmation"])
	assert.NotContains(t, rec, "lease_nickname")

	cv := rec["current_values"].(map[string]any)
	assert.Equal(t, "Flat 4B", cv["lease_nickname"])
	assert.Equal(t, map[string]any{"duration_months": nil}, cv["lock_in_period"])
	eps := cv["expected_payments"].([]any)
	require.Len(t, eps, 3)
	assert.Equal(t, json.Number("25000"), eps[0].(map[string]any)["typical_amount"])
	assert.Equal(t, "lease.pdf", rec["source_document"].(map[string]any)["filename"])

	// The upgrade was written back and is stable.
	again, err := s.Load(ctx, Leases)
	require.NoError(t, err)
	assert.Equal(t, rec["id"], again["leases"][0]["id"])
	assert.False(t, UpgradeLease(again["leases"][0]))
}

func TestUpgradeKeepsExistingFields(t *testing.T) {
	rec := Record{
		"id":             "l1",
		"lease_group_id": "g1",
		"version":        json.Number("2"),
		"current_values": map[string]any{
			"monthly_rent":      json.Number("30000"),
			"expected_payments": []any{map[string]any{"type": "rent", "expected": false}},
		},
	}
	assert.True(t, UpgradeLease(rec))
	assert.Equal(t, "g1", rec["lease_group_id"])
	assert.Equal(t, json.Number("2"), rec["version"])
	cv := rec["current_values"].(map[string]any)
	assert.Len(t, cv["expected_payments"], 1)
	assert.Contains(t, cv, "renewal_terms")
}
