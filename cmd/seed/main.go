package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gridwatch/queue-reliability/internal/projectstore"
)

// Expected CSV header, matching the raw queue export format.
var expectedColumns = []string{
	"queue_id", "region", "developer", "capacity_mw", "fuel_type",
	"status", "state", "queue_date", "cod", "withdrawn_date",
}

const dateLayout = "2006-01-02"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	csvPath := flag.String("csv", "", "path to the queue CSV export")
	dbPath := flag.String("db", "./data/queue.db", "path to the SQLite store to create")
	flag.Parse()

	if *csvPath == "" {
		slog.Error("Missing required -csv flag")
		flag.Usage()
		os.Exit(2)
	}

	if err := run(*csvPath, *dbPath); err != nil {
		slog.Error("Seeding failed", "error", err)
		os.Exit(1)
	}
}

func run(csvPath, dbPath string) error {
	records, err := readCSV(csvPath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", csvPath, err)
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	store, err := projectstore.Open(dbPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.InsertRecords(ctx, records); err != nil {
		return fmt.Errorf("inserting records: %w", err)
	}

	total, err := store.Count(ctx)
	if err != nil {
		return fmt.Errorf("counting records: %w", err)
	}

	developers := make(map[string]struct{}, len(records))
	for _, r := range records {
		developers[r.DeveloperName] = struct{}{}
	}

	slog.Info("Store seeded",
		"db", dbPath,
		"records_inserted", len(records),
		"records_total", total,
		"developers", len(developers))

	return nil
}

func readCSV(path string) ([]projectstore.ProjectRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = len(expectedColumns)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	for i, col := range expectedColumns {
		if strings.TrimSpace(header[i]) != col {
			return nil, fmt.Errorf("unexpected column %d: got %q, want %q", i, header[i], col)
		}
	}

	var records []projectstore.ProjectRecord
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line+1, err)
		}
		line++

		record, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if err := record.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, record)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("no records found")
	}

	return records, nil
}

func parseRow(row []string) (projectstore.ProjectRecord, error) {
	for i := range row {
		row[i] = strings.TrimSpace(row[i])
	}

	capacity, err := strconv.ParseFloat(row[3], 64)
	if err != nil {
		return projectstore.ProjectRecord{}, fmt.Errorf("invalid capacity_mw %q: %w", row[3], err)
	}

	queueDate, err := time.Parse(dateLayout, row[7])
	if err != nil {
		return projectstore.ProjectRecord{}, fmt.Errorf("invalid queue_date %q: %w", row[7], err)
	}

	cod, err := optionalDate(row[8])
	if err != nil {
		return projectstore.ProjectRecord{}, fmt.Errorf("invalid cod %q: %w", row[8], err)
	}

	withdrawnDate, err := optionalDate(row[9])
	if err != nil {
		return projectstore.ProjectRecord{}, fmt.Errorf("invalid withdrawn_date %q: %w", row[9], err)
	}

	return projectstore.ProjectRecord{
		QueueID:       row[0],
		Region:        row[1],
		DeveloperName: row[2],
		CapacityMW:    capacity,
		FuelType:      row[4],
		Status:        projectstore.ParseStatus(row[5]),
		State:         row[6],
		QueueDate:     queueDate,
		COD:           cod,
		WithdrawnDate: withdrawnDate,
	}, nil
}

func optionalDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
