// Command stampctl is the operator tool: it exports order workbooks and
// probes the vector-conversion toolchain without starting the daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/goopick/madstamp/internal/artifact"
	"github.com/goopick/madstamp/internal/common"
	"github.com/goopick/madstamp/internal/export"
	repo "github.com/goopick/madstamp/internal/repository"
	"github.com/goopick/madstamp/internal/vectorize"
)

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "export":
		err = runExport(ctx, os.Args[2:], logger)
	case "tools":
		err = runTools(ctx, os.Args[2:], logger)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Error("command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: stampctl <export|tools> [flags]")
	fmt.Fprintln(os.Stderr, "  export  write an XLSX order report (-config -from -to -out)")
	fmt.Fprintln(os.Stderr, "  tools   probe potrace and inkscape (-config)")
}

func runExport(ctx context.Context, args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	fromStr := fs.String("from", "", "start date YYYY-MM-DD (inclusive)")
	toStr := fs.String("to", "", "end date YYYY-MM-DD (inclusive)")
	out := fs.String("out", "", "output file (default orders-YYYYMMDD.xlsx)")
	_ = fs.Parse(args)

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if cfg.Database.DSN == "" {
		return fmt.Errorf("DB_URL is required")
	}

	var from, to *time.Time
	if *fromStr != "" {
		t, err := time.Parse("2006-01-02", *fromStr)
		if err != nil {
			return fmt.Errorf("parse -from: %w", err)
		}
		from = &t
	}
	if *toStr != "" {
		t, err := time.Parse("2006-01-02", *toStr)
		if err != nil {
			return fmt.Errorf("parse -to: %w", err)
		}
		to = &t
	}

	db, closeDB, err := repo.Open(ctx, repo.Config{DSN: cfg.Database.DSN, MaxConns: 2, MinConns: 1}, logger)
	if err != nil {
		return err
	}
	defer closeDB()

	svc := export.NewService(repo.NewOrderRepository(db, logger), repo.NewGenerationRepository(db, logger), logger)
	data, err := svc.ExportOrdersXLSX(ctx, from, to)
	if err != nil {
		return err
	}

	path := *out
	if path == "" {
		path = fmt.Sprintf("orders-%s.xlsx", time.Now().UTC().Format("20060102"))
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	logger.Info("export written", "path", path, "bytes", len(data))
	return nil
}

func runTools(ctx context.Context, args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("tools", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	_ = fs.Parse(args)

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		return err
	}

	conv := vectorize.NewConverter(artifact.NewMemory(), vectorize.NewExecRunner(), cfg.Conversion, logger)
	if err := conv.CheckTools(ctx); err != nil {
		return err
	}
	logger.Info("toolchain ok", "potrace", cfg.Conversion.Potrace, "inkscape", cfg.Conversion.Inkscape)
	return nil
}
