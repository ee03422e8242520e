package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"github.com/Strob0t/agentplan/internal/adapter/postgres"
	"github.com/Strob0t/agentplan/internal/config"
	"github.com/Strob0t/agentplan/internal/domain/plan"
)

// runAdmin dispatches admin subcommands.
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp(os.Stderr)
		return nil
	}

	switch args[0] {
	case "validate":
		return runAdminValidate(args[1:], os.Stdout)
	case "migrate":
		return runAdminMigrate(args[1:])
	case "list-archived":
		return runAdminListArchived(args[1:])
	case "show-archived":
		return runAdminShowArchived(args[1:])
	case "purge-archived":
		return runAdminPurgeArchived(args[1:])
	default:
		printAdminHelp(os.Stderr)
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp(w io.Writer) {
	_, _ = fmt.Fprint(w, `Usage: agentplan admin <command> [options]

Commands:
  validate         Normalize a raw planner JSON file and print the result
  migrate          Apply archive migrations and print the schema version
  list-archived    List archived plans, newest first
  show-archived    Print one archived plan with its results and feedback
  purge-archived   Delete archived plans older than a duration
  help             Show this help message

Examples:
  agentplan admin validate --file plan.json --goal "launch campaign"
  agentplan admin list-archived --limit 20
  agentplan admin show-archived --id 6f1c...
  agentplan admin purge-archived --older-than 720h
`)
}

// loadArchive connects to the configured PostgreSQL archive.
func loadArchive(ctx context.Context, configPath string) (*postgres.ArchiveStore, func(), error) {
	cfg, err := loadAdminConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Postgres.DSN == "" {
		return nil, nil, errors.New("postgres dsn is not configured")
	}
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	return postgres.NewArchiveStore(pool), pool.Close, nil
}

func loadAdminConfig(configPath string) (*config.Config, error) {
	var flags config.CLIFlags
	if configPath != "" {
		flags.ConfigPath = &configPath
	}
	cfg, _, err := config.LoadWithCLI(flags)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// runAdminValidate normalizes a raw plan offline with the configured cycle
// and grouping policies.
func runAdminValidate(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	file := fs.String("file", "", "raw plan JSON file, - for stdin (required)")
	goal := fs.String("goal", "", "goal the plan was generated for")
	configPath := fs.String("config", "", "path to YAML config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("--file is required")
	}

	cfg, err := loadAdminConfig(*configPath)
	if err != nil {
		return err
	}

	var data []byte
	if *file == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(*file)
	}
	if err != nil {
		return fmt.Errorf("read plan: %w", err)
	}

	var raw plan.RawPlan
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode plan: %w", err)
	}
	p, err := plan.Normalize(*goal, &raw, plan.NormalizeOptions{
		CyclePolicy:  plan.CyclePolicy(cfg.Orchestrator.CyclePolicy),
		DeriveGroups: cfg.Orchestrator.DeriveGroups,
	})
	if err != nil {
		return fmt.Errorf("normalize: %w", err)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}

func runAdminMigrate(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadAdminConfig(*configPath)
	if err != nil {
		return err
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres dsn is not configured")
	}

	ctx := context.Background()
	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	version, err := postgres.MigrationVersion(ctx, cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("migration version: %w", err)
	}
	_, _ = fmt.Fprintf(os.Stderr, "Archive schema at version %d\n", version)
	return nil
}

func runAdminListArchived(args []string) error {
	fs := flag.NewFlagSet("list-archived", flag.ContinueOnError)
	limit := fs.Int("limit", 50, "maximum number of plans")
	asJSON := fs.Bool("json", false, "print JSON instead of a table")
	configPath := fs.String("config", "", "path to YAML config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	archive, cleanup, err := loadArchive(ctx, *configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	plans, err := archive.ListArchived(ctx, *limit)
	if err != nil {
		return err
	}

	// Pipes get JSON so the output can be fed to jq.
	if *asJSON || !term.IsTerminal(int(os.Stdout.Fd())) { //nolint:gosec // fd fits in int
		return json.NewEncoder(os.Stdout).Encode(plans)
	}
	if len(plans) == 0 {
		fmt.Println("No archived plans.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tARCHIVED\tADAPTED_FROM\tGOAL")
	for i := range plans {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			plans[i].ID, plans[i].Status, plans[i].ArchivedAt.Format(time.RFC3339),
			plans[i].AdaptedFrom, truncate(plans[i].Goal, 60))
	}
	return w.Flush()
}

func runAdminShowArchived(args []string) error {
	fs := flag.NewFlagSet("show-archived", flag.ContinueOnError)
	id := fs.String("id", "", "plan ID (required)")
	configPath := fs.String("config", "", "path to YAML config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("--id is required")
	}

	ctx := context.Background()
	archive, cleanup, err := loadArchive(ctx, *configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	rec, err := archive.GetArchivedPlan(ctx, *id)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(rec)
}

func runAdminPurgeArchived(args []string) error {
	fs := flag.NewFlagSet("purge-archived", flag.ContinueOnError)
	olderThan := fs.Duration("older-than", 30*24*time.Hour, "purge plans archived longer ago than this")
	yes := fs.Bool("yes", false, "skip the confirmation prompt")
	configPath := fs.String("config", "", "path to YAML config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *olderThan <= 0 {
		return errors.New("--older-than must be positive")
	}

	cutoff := time.Now().Add(-*olderThan)
	if !*yes {
		if !term.IsTerminal(int(os.Stdin.Fd())) { //nolint:gosec // fd fits in int
			return errors.New("refusing to purge without --yes when stdin is not a terminal")
		}
		ok, err := confirm(os.Stdin, os.Stderr,
			fmt.Sprintf("Purge plans archived before %s? [y/N] ", cutoff.Format(time.RFC3339)))
		if err != nil {
			return err
		}
		if !ok {
			_, _ = fmt.Fprintln(os.Stderr, "Aborted.")
			return nil
		}
	}

	ctx := context.Background()
	archive, cleanup, err := loadArchive(ctx, *configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	n, err := archive.PurgeArchivedBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(os.Stderr, "Purged %d archived plan(s)\n", n)
	return nil
}

// confirm prints prompt and reports whether the answer starts with y.
func confirm(in io.Reader, out io.Writer, prompt string) (bool, error) {
	_, _ = fmt.Fprint(out, prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("read answer: %w", err)
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
