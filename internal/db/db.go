package db

import (
	"fmt"

	"leasebook/internal/auth"
	"leasebook/internal/config"
	"leasebook/internal/jobs"
	"leasebook/internal/lease"
	"leasebook/internal/payment"
	"leasebook/internal/tenantaccess"
	"leasebook/internal/thread"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func Open(cfg config.DBConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", cfg.Driver)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	if cfg.Driver == "sqlite" {
		// sqlite allows one writer; a single connection keeps transactions from tripping over each other.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return gdb, nil
}

func AutoMigrateAndIndexes(gdb *gorm.DB) error {
	// Tables
	if err := gdb.AutoMigrate(
		&auth.User{},
		&lease.Lease{},
		&lease.Termination{},
		&payment.Confirmation{},
		&tenantaccess.Token{},
		&thread.Thread{},
		&thread.Message{},
		&jobs.Job{},
	); err != nil {
		return err
	}

	// One open thread per (lease group, topic type, topic ref). Resolved cycles may repeat the key.
	if err := gdb.Exec(`
create unique index if not exists uq_threads_open_topic
on threads(lease_group_id, topic_type, coalesce(topic_ref, ''))
where status = 'open';
`).Error; err != nil {
		return err
	}

	// One active tenant link per lease group.
	if err := gdb.Exec(`
create unique index if not exists uq_tenant_tokens_active
on tenant_tokens(lease_group_id)
where is_active;
`).Error; err != nil {
		return err
	}

	stmts := []string{
		`create unique index if not exists uq_leases_group_version on leases(lease_group_id, version);`,
		`create unique index if not exists uq_terminations_lease on terminations(lease_id);`,
		`create index if not exists idx_messages_thread_created on messages(thread_id, created_at);`,
		`create index if not exists idx_payments_group_period on payment_confirmations(lease_group_id, period_year, period_month);`,
		`create index if not exists idx_threads_group_status on threads(lease_group_id, status);`,
		`create index if not exists idx_jobs_due on jobs(status, run_at);`,
		`create index if not exists idx_jobs_lock on jobs(status, locked_at);`,
	}
	for _, s := range stmts {
		if err := gdb.Exec(s).Error; err != nil {
			return fmt.Errorf("index exec failed: %w (sql=%s)", err, s)
		}
	}

	return nil
}
