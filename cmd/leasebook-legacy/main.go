package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"leasebook/internal/config"
	"leasebook/internal/db"
	"leasebook/internal/docstore"
	"leasebook/internal/legacy"
	"leasebook/internal/logger"
)

func main() {
	// bootstrap logger early (then re-init after config load)
	logg := logger.New(logger.Options{ServiceName: "leasebook-legacy"})

	cmd := flag.String("cmd", "import", "command: import|export")
	dir := flag.String("dir", "data", "directory holding the JSON document files")
	flag.Parse()

	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "leasebook-legacy",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env": cfg.App.Env,
		"cmd": *cmd,
		"dir": *dir,
	})

	gdb, err := db.Open(cfg.DB)
	requireResource(ctx, logg, "database", err)
	requireResource(ctx, logg, "schema", db.AutoMigrateAndIndexes(gdb))

	m := &legacy.Migrator{
		DB:   gdb,
		Docs: &docstore.Store{Dir: *dir, Log: logg},
		Log:  logg,
	}

	var report legacy.Report
	switch *cmd {
	case "import":
		report, err = m.Import(ctx)
	case "export":
		report, err = m.Export(ctx)
	default:
		fmt.Fprintln(os.Stderr, "unknown -cmd value:", *cmd)
		os.Exit(1)
	}

	out, _ := json.MarshalIndent(report, "", "  ")
	fmt.Println(string(out))
	if err != nil {
		logg.Error(ctx, "legacy."+*cmd+"_failed", err)
		os.Exit(1)
	}
	logg.Info(ctx, "legacy."+*cmd+"_done")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
