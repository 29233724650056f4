package main

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"
)

// appTables are the tables owned by the trigger engine, listed by -list.
var appTables = []string{
	"questions",
	"guests",
	"bookings",
	"booking_rooms",
	"booking_answers",
	"email_triggers",
	"email_trigger_questions",
	"notification_templates",
}

const createTrackingTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	filename   TEXT PRIMARY KEY,
	checksum   TEXT NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

type migration struct {
	name     string
	body     string
	checksum string
}

type appliedMigration struct {
	checksum  string
	appliedAt time.Time
}

// loadMigrations reads every non-empty *.sql file in dir, sorted by name.
func loadMigrations(dir string) ([]migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	out := make([]migration, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		body := string(data)
		if strings.TrimSpace(body) == "" {
			continue
		}
		sum := sha256.Sum256(data)
		out = append(out, migration{name: name, body: body, checksum: hex.EncodeToString(sum[:])})
	}
	return out, nil
}

func appliedMigrations(ctx context.Context, db *sql.DB) (map[string]appliedMigration, error) {
	if _, err := db.ExecContext(ctx, createTrackingTable); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}
	rows, err := db.QueryContext(ctx, `SELECT filename, checksum, applied_at FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]appliedMigration)
	for rows.Next() {
		var name string
		var a appliedMigration
		if err := rows.Scan(&name, &a.checksum, &a.appliedAt); err != nil {
			return nil, err
		}
		applied[name] = a
	}
	return applied, rows.Err()
}

// apply runs one migration and records it in the same transaction, so a
// failed file leaves no row behind and is retried on the next run.
func apply(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.body); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (filename, checksum) VALUES ($1, $2)`, m.name, m.checksum); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}
	return tx.Commit()
}

// migrate applies pending migrations in order and stops at the first
// failure; later files may depend on it.
func migrate(ctx context.Context, db *sql.DB, dir string, out io.Writer) (int, error) {
	migrations, err := loadMigrations(dir)
	if err != nil {
		return 0, err
	}
	applied, err := appliedMigrations(ctx, db)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, m := range migrations {
		if prev, ok := applied[m.name]; ok {
			if prev.checksum != m.checksum {
				log.Printf("[Migrate] %s changed since it was applied; not re-running", m.name)
			}
			continue
		}
		fmt.Fprintf(out, "  %s ... ", m.name)
		if err := apply(ctx, db, m); err != nil {
			fmt.Fprintln(out, "ERROR")
			return n, fmt.Errorf("%s: %w", m.name, err)
		}
		fmt.Fprintln(out, "OK")
		n++
	}
	return n, nil
}

func printStatus(ctx context.Context, db *sql.DB, dir string, out io.Writer) error {
	migrations, err := loadMigrations(dir)
	if err != nil {
		return err
	}
	applied, err := appliedMigrations(ctx, db)
	if err != nil {
		return err
	}
	pending := 0
	for _, m := range migrations {
		prev, ok := applied[m.name]
		switch {
		case !ok:
			fmt.Fprintf(out, "  %-40s pending\n", m.name)
			pending++
		case prev.checksum != m.checksum:
			fmt.Fprintf(out, "  %-40s applied %s (modified since)\n", m.name, prev.appliedAt.Format(time.RFC3339))
		default:
			fmt.Fprintf(out, "  %-40s applied %s\n", m.name, prev.appliedAt.Format(time.RFC3339))
		}
	}
	fmt.Fprintf(out, "Total: %d migrations, %d pending\n", len(migrations), pending)
	return nil
}

func listTables(ctx context.Context, db *sql.DB, out io.Writer) error {
	rows, err := db.QueryContext(ctx, `SELECT tablename FROM pg_tables
		WHERE schemaname = 'public' AND tablename = ANY($1) ORDER BY tablename`, pq.Array(appTables))
	if err != nil {
		return err
	}
	defer rows.Close()
	n := 0
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return err
		}
		fmt.Fprintln(out, " ", t)
		n++
	}
	fmt.Fprintf(out, "Total: %d of %d tables\n", n, len(appTables))
	return rows.Err()
}

func main() {
	dir := flag.String("dir", "migrations", "directory holding the *.sql migrations")
	listOnly := flag.Bool("list", false, "list the engine's tables that exist and exit")
	status := flag.Bool("status", false, "show applied and pending migrations and exit")
	flag.Parse()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("[Migrate] DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("[Migrate] connect: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("[Migrate] ping: %v", err)
	}
	log.Println("[Migrate] connected to database")

	switch {
	case *listOnly:
		err = listTables(ctx, db, os.Stdout)
	case *status:
		err = printStatus(ctx, db, *dir, os.Stdout)
	default:
		var n int
		n, err = migrate(ctx, db, *dir, os.Stdout)
		log.Printf("[Migrate] applied %d migration(s)", n)
	}
	if err != nil {
		log.Printf("[Migrate] %v", err)
		os.Exit(1)
	}
}
