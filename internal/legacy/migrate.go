package legacy

import (
	"context"
	"fmt"
	"time"

	"leasebook/internal/docstore"
	"leasebook/internal/lease"
	"leasebook/internal/logger"
	"leasebook/internal/payment"
	"leasebook/internal/tenantaccess"
	"leasebook/internal/thread"

	"go.uber.org/multierr"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Counts tallies one record list.
type Counts struct {
	Read     int `json:"read"`
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// Report is keyed by record list ("leases", "confirmations", ...).
type Report map[string]*Counts

func (r Report) counts(key string) *Counts {
	c, ok := r[key]
	if !ok {
		c = &Counts{}
		r[key] = c
	}
	return c
}

type Migrator struct {
	DB   *gorm.DB
	Docs *docstore.Store
	Log  *logger.Logger
}

// Import copies document records into the relational store. Records whose
// id already exists are skipped, so running it twice is harmless. A bad
// record does not stop the others; every failure is returned together.
func (m *Migrator) Import(ctx context.Context) (Report, error) {
	report := Report{}
	var errs error

	steps := []func(context.Context, Report) error{
		m.importLeases,
		m.importTerminations,
		m.importConfirmations,
		m.importTokens,
		m.importThreads,
	}
	for _, step := range steps {
		errs = multierr.Append(errs, step(ctx, report))
	}

	for key, c := range report {
		if m.Log != nil {
			lctx := m.Log.WithFields(ctx, map[string]any{
				"records":  key,
				"read":     c.Read,
				"inserted": c.Inserted,
				"skipped":  c.Skipped,
				"failed":   c.Failed,
			})
			m.Log.Info(lctx, "legacy.import")
		}
	}
	return report, errs
}

// insert creates rec unless its primary key (or another unique key) exists.
func (m *Migrator) insert(ctx context.Context, c *Counts, rec any) error {
	res := m.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(rec)
	if res.Error != nil {
		c.Failed++
		return res.Error
	}
	if res.RowsAffected == 0 {
		c.Skipped++
	} else {
		c.Inserted++
	}
	return nil
}

func recordError(key string, i int, id string, err error) error {
	return fmt.Errorf("%s[%d] %s: %w", key, i, id, err)
}

func (m *Migrator) importLeases(ctx context.Context, report Report) error {
	col, err := m.Docs.Load(ctx, docstore.Leases)
	if err != nil {
		return err
	}
	c := report.counts("leases")
	var errs error
	for i, rec := range col["leases"] {
		c.Read++
		var d leaseDoc
		if err := decode(rec, &d); err != nil {
			c.Failed++
			errs = multierr.Append(errs, recordError("leases", i, "", err))
			continue
		}
		l, err := d.toModel()
		if err == nil {
			err = m.insert(ctx, c, l)
		} else {
			c.Failed++
		}
		if err != nil {
			errs = multierr.Append(errs, recordError("leases", i, d.ID, err))
		}
	}
	return errs
}

func (m *Migrator) importTerminations(ctx context.Context, report Report) error {
	col, err := m.Docs.Load(ctx, docstore.Terminations)
	if err != nil {
		return err
	}
	c := report.counts("terminations")
	var errs error
	for i, rec := range col["terminations"] {
		c.Read++
		var d terminationDoc
		if err := decode(rec, &d); err != nil {
			c.Failed++
			errs = multierr.Append(errs, recordError("terminations", i, "", err))
			continue
		}
		t, err := d.toModel()
		if err == nil {
			err = m.insert(ctx, c, t)
		} else {
			c.Failed++
		}
		if err != nil {
			errs = multierr.Append(errs, recordError("terminations", i, d.ID, err))
		}
	}
	return errs
}

func (m *Migrator) importConfirmations(ctx context.Context, report Report) error {
	col, err := m.Docs.Load(ctx, docstore.Payments)
	if err != nil {
		return err
	}
	c := report.counts("confirmations")
	var errs error
	for i, rec := range col["confirmations"] {
		c.Read++
		var d confirmationDoc
		if err := decode(rec, &d); err != nil {
			c.Failed++
			errs = multierr.Append(errs, recordError("confirmations", i, "", err))
			continue
		}
		p, err := d.toModel()
		if err == nil {
			err = m.insert(ctx, c, p)
		} else {
			c.Failed++
		}
		if err != nil {
			errs = multierr.Append(errs, recordError("confirmations", i, d.ID, err))
		}
	}
	return errs
}

func (m *Migrator) importTokens(ctx context.Context, report Report) error {
	col, err := m.Docs.Load(ctx, docstore.TenantAccess)
	if err != nil {
		return err
	}
	c := report.counts("tenant_tokens")
	var errs error
	for i, rec := range col["tenant_tokens"] {
		c.Read++
		var d tokenDoc
		if err := decode(rec, &d); err != nil {
			c.Failed++
			errs = multierr.Append(errs, recordError("tenant_tokens", i, "", err))
			continue
		}
		t, err := d.toModel()
		if err == nil {
			err = m.insert(ctx, c, t)
		} else {
			c.Failed++
		}
		if err != nil {
			errs = multierr.Append(errs, recordError("tenant_tokens", i, d.LeaseGroupID, err))
		}
	}
	return errs
}

// importThreads imports threads before their messages. Messages of threads
// that are not in the store afterwards are rejected rather than orphaned.
func (m *Migrator) importThreads(ctx context.Context, report Report) error {
	col, err := m.Docs.Load(ctx, docstore.Threads)
	if err != nil {
		return err
	}
	var errs error

	msgs := make([]messageDoc, 0, len(col["messages"]))
	cm := report.counts("messages")
	lastByThread := map[string]time.Time{}
	for i, rec := range col["messages"] {
		var d messageDoc
		if err := decode(rec, &d); err != nil {
			cm.Read++
			cm.Failed++
			errs = multierr.Append(errs, recordError("messages", i, "", err))
			continue
		}
		if at, err := d.createdAt(); err == nil && at.After(lastByThread[d.ThreadID]) {
			lastByThread[d.ThreadID] = at
		}
		msgs = append(msgs, d)
	}

	ct := report.counts("threads")
	for i, rec := range col["threads"] {
		ct.Read++
		var d threadDoc
		if err := decode(rec, &d); err != nil {
			ct.Failed++
			errs = multierr.Append(errs, recordError("threads", i, "", err))
			continue
		}
		t, err := d.toModel(lastByThread[d.ID])
		if err == nil {
			err = m.insert(ctx, ct, t)
		} else {
			ct.Failed++
		}
		if err != nil {
			errs = multierr.Append(errs, recordError("threads", i, d.ID, err))
		}
	}

	ids := make([]string, 0, len(lastByThread))
	for id := range lastByThread {
		ids = append(ids, id)
	}
	known := map[string]bool{}
	if len(ids) > 0 {
		var found []string
		if err := m.DB.WithContext(ctx).Model(&thread.Thread{}).Where("id IN ?", ids).Pluck("id", &found).Error; err != nil {
			return multierr.Append(errs, fmt.Errorf("load imported threads: %w", err))
		}
		for _, id := range found {
			known[id] = true
		}
	}

	for i, d := range msgs {
		cm.Read++
		if !known[d.ThreadID] {
			cm.Failed++
			errs = multierr.Append(errs, recordError("messages", i, d.ID, fmt.Errorf("thread %s not in store", d.ThreadID)))
			continue
		}
		msg, err := d.toModel()
		if err == nil {
			err = m.insert(ctx, cm, msg)
		} else {
			cm.Failed++
		}
		if err != nil {
			errs = multierr.Append(errs, recordError("messages", i, d.ID, err))
		}
	}
	return errs
}

// Export writes the relational contents back out as document collections,
// replacing each file atomically.
func (m *Migrator) Export(ctx context.Context) (Report, error) {
	report := Report{}
	tx := m.DB.WithContext(ctx)

	var (
		leases        []lease.Lease
		terminations  []lease.Termination
		confirmations []payment.Confirmation
		tokens        []tenantaccess.Token
		threads       []thread.Thread
		messages      []thread.Message
	)
	loads := []struct {
		dst   any
		order string
	}{
		{&leases, "lease_group_id asc, version asc"},
		{&terminations, "terminated_at asc"},
		{&confirmations, "submitted_at asc, id asc"},
		{&tokens, "issued_at asc"},
		{&threads, "created_at asc, id asc"},
		{&messages, "created_at asc, id asc"},
	}
	for _, l := range loads {
		if err := tx.Order(l.order).Find(l.dst).Error; err != nil {
			return report, fmt.Errorf("export: %w", err)
		}
	}

	var errs error
	out := map[string]docstore.Collection{
		docstore.Leases:       docstore.Empty(docstore.Leases),
		docstore.Terminations: docstore.Empty(docstore.Terminations),
		docstore.Payments:     docstore.Empty(docstore.Payments),
		docstore.TenantAccess: docstore.Empty(docstore.TenantAccess),
		docstore.Threads:      docstore.Empty(docstore.Threads),
	}
	add := func(name, key string, rec docstore.Record, err error) {
		c := report.counts(key)
		c.Read++
		if err != nil {
			c.Failed++
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		out[name][key] = append(out[name][key], rec)
		c.Inserted++
	}

	for _, l := range leases {
		rec, err := leaseRecord(l)
		add(docstore.Leases, "leases", rec, err)
	}
	for _, t := range terminations {
		rec, err := terminationRecord(t)
		add(docstore.Terminations, "terminations", rec, err)
	}
	for _, c := range confirmations {
		rec, err := confirmationRecord(c)
		add(docstore.Payments, "confirmations", rec, err)
	}
	for _, t := range tokens {
		rec, err := tokenRecord(t)
		add(docstore.TenantAccess, "tenant_tokens", rec, err)
	}
	for _, t := range threads {
		rec, err := threadRecord(t)
		add(docstore.Threads, "threads", rec, err)
	}
	for _, msg := range messages {
		rec, err := messageRecord(msg)
		add(docstore.Threads, "messages", rec, err)
	}

	for _, name := range []string{docstore.Leases, docstore.Terminations, docstore.Payments, docstore.TenantAccess, docstore.Threads} {
		if err := m.Docs.Save(ctx, name, out[name]); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return report, errs
}
