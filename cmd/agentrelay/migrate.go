package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/BaSui01/agentrelay/internal/migration"
)

// runMigrate 解析通用参数后把子命令交给 migration.CLI
func runMigrate(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file")
	dbType := fs.String("db-type", "", "Database type: postgres, mysql, sqlite (default: from config)")
	dbURL := fs.String("db-url", "", "Database connection URL (default: from config)")
	fs.Usage = func() { printMigrateUsage(out) }
	if err := fs.Parse(args); err != nil {
		return err
	}

	migrator, err := createMigrator(*configPath, *dbType, *dbURL)
	if err != nil {
		return err
	}
	defer migrator.Close()

	return migration.NewCLI(migrator).SetOutput(out).Run(ctx, fs.Args())
}

func createMigrator(configPath, dbType, dbURL string) (*migration.Schema, error) {
	if dbURL != "" {
		if dbType == "" {
			return nil, fmt.Errorf("-db-type is required with -db-url")
		}
		return migration.FromURL(dbType, dbURL)
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if dbType != "" {
		cfg.Database.Driver = dbType
	}
	return migration.FromConfig(cfg.Database)
}

func printMigrateUsage(out io.Writer) {
	fmt.Fprintln(out, `Database Migration Commands

Usage:
  agentrelay migrate [options] <subcommand>

Subcommands:
  up          Apply all pending migrations
  down        Rollback the last migration
  down-all    Rollback all migrations
  steps <n>   Apply (n > 0) or rollback (n < 0) n migrations
  force <v>   Force set migration version (use with caution)
  version     Show current migration version
  status      Show migration status (default)
  info        Show migration details

Options:
  -config <path>     Path to configuration file (YAML)
  -db-type <type>    Database type: postgres, mysql, sqlite (default: from config)
  -db-url <url>      Database connection URL (default: from config)

Examples:
  agentrelay migrate up
  agentrelay migrate -config /etc/agentrelay/config.yaml status
  agentrelay migrate -db-type sqlite -db-url "file:relay.db?mode=rwc" up`)
}
