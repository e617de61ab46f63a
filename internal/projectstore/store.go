package projectstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Store is the read-only table of project records backing the scoring
// engine. The dataset is produced by an upstream ETL step (see cmd/seed);
// the serving process never writes to it outside of seeding.
type Store struct {
	db *sql.DB
}

// Open opens the project store at path, applying pragmas, pool limits,
// and pending schema migrations.
func Open(path string) (*Store, error) {
	connStr := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open project store: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping project store: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	slog.Info("Project store opened", "path", path)

	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	goose.SetBaseFS(embedMigrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run goose migrations: %w", err)
	}

	return nil
}

// LoadAll reads every project record in a stable order. Field-level
// invariants are enforced by the aggregate builder, which owns the
// fail-fast decision for the scoring cycle.
func (s *Store) LoadAll(ctx context.Context) ([]ProjectRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT queue_id, developer_name, project_name, status, capacity_mw,
		       fuel_type, region, state, queue_date, cod, withdrawn_date
		FROM projects
		ORDER BY queue_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	var records []ProjectRecord
	for rows.Next() {
		var (
			rec           ProjectRecord
			projectName   sql.NullString
			state         sql.NullString
			cod           sql.NullTime
			withdrawnDate sql.NullTime
		)

		if err := rows.Scan(
			&rec.QueueID, &rec.DeveloperName, &projectName, &rec.Status,
			&rec.CapacityMW, &rec.FuelType, &rec.Region, &state,
			&rec.QueueDate, &cod, &withdrawnDate,
		); err != nil {
			return nil, fmt.Errorf("failed to scan project row: %w", err)
		}

		rec.ProjectName = projectName.String
		rec.State = state.String
		if cod.Valid {
			t := cod.Time
			rec.COD = &t
		}
		if withdrawnDate.Valid {
			t := withdrawnDate.Time
			rec.WithdrawnDate = &t
		}

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate project rows: %w", err)
	}

	return records, nil
}

// Count returns the number of stored project records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count projects: %w", err)
	}
	return n, nil
}

// InsertRecords writes records in one transaction. Used by the seed tool
// only; the serving path treats the store as read-only.
func (s *Store) InsertRecords(ctx context.Context, records []ProjectRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO projects (queue_id, developer_name, project_name, status,
			capacity_mw, fuel_type, region, state, queue_date, cod, withdrawn_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(queue_id) DO UPDATE SET
			developer_name = excluded.developer_name,
			project_name = excluded.project_name,
			status = excluded.status,
			capacity_mw = excluded.capacity_mw,
			fuel_type = excluded.fuel_type,
			region = excluded.region,
			state = excluded.state,
			queue_date = excluded.queue_date,
			cod = excluded.cod,
			withdrawn_date = excluded.withdrawn_date
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("refusing to insert invalid record: %w", err)
		}

		var cod, withdrawn interface{}
		if rec.COD != nil {
			cod = *rec.COD
		}
		if rec.WithdrawnDate != nil {
			withdrawn = *rec.WithdrawnDate
		}

		if _, err := stmt.ExecContext(ctx,
			rec.QueueID, rec.DeveloperName, nullable(rec.ProjectName), string(rec.Status),
			rec.CapacityMW, rec.FuelType, rec.Region, nullable(rec.State),
			rec.QueueDate, cod, withdrawn,
		); err != nil {
			return fmt.Errorf("failed to insert project %s: %w", rec.QueueID, err)
		}
	}

	return tx.Commit()
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
