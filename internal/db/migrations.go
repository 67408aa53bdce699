package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/marcus/nhatky/internal/models"
)

// tableExists checks whether a table exists in the database
func (db *DB) tableExists(table string) (bool, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// columnExists checks whether a column exists on a table
func (db *DB) columnExists(table, column string) (bool, error) {
	rows, err := db.conn.Query(fmt.Sprintf("PRAGMA table_info(%s);", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notnull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// GetSchemaVersion returns the current schema version from the database
func (db *DB) GetSchemaVersion() (int, error) {
	exists, err := db.tableExists("schema_info")
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}
	var version string
	err = db.conn.QueryRow("SELECT value FROM schema_info WHERE key = 'version'").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(version)
	if err != nil {
		return 0, fmt.Errorf("parse schema version %q: %w", version, err)
	}
	return v, nil
}

func setSchemaVersionTx(tx *sql.Tx, version int) error {
	_, err := tx.Exec(`INSERT OR REPLACE INTO schema_info (key, value) VALUES ('version', ?)`,
		strconv.Itoa(version))
	return err
}

// RunMigrations brings the schema to SchemaVersion. A fresh database gets the
// full schema; an older one runs each forward migration in its own
// transaction. A database newer than this build is refused.
func (db *DB) RunMigrations() (int, error) {
	// Quick check without lock - if already at current version, skip
	if v, err := db.GetSchemaVersion(); err == nil && v == SchemaVersion {
		return 0, nil
	}

	var migrationsRun int
	err := db.locked(false, func() error {
		var err error
		migrationsRun, err = db.runMigrationsInternal()
		return err
	})
	return migrationsRun, err
}

// runMigrationsInternal runs migrations with the write lock held. The version
// is re-read under the lock so concurrent openers upgrade exactly once.
func (db *DB) runMigrationsInternal() (int, error) {
	currentVersion, err := db.GetSchemaVersion()
	if err != nil {
		return 0, fmt.Errorf("get schema version: %w", err)
	}
	if currentVersion > SchemaVersion {
		return 0, fmt.Errorf("%w: store is at version %d, this build supports %d", ErrSchemaMismatch, currentVersion, SchemaVersion)
	}
	if currentVersion == SchemaVersion {
		return 0, nil
	}

	if currentVersion == 0 {
		tx, err := db.conn.Begin()
		if err != nil {
			return 0, fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback()
		if _, err := tx.Exec(schema); err != nil {
			return 0, fmt.Errorf("create schema: %w", err)
		}
		if err := setSchemaVersionTx(tx, SchemaVersion); err != nil {
			return 0, fmt.Errorf("set version %d: %w", SchemaVersion, err)
		}
		if err := tx.Commit(); err != nil {
			return 0, fmt.Errorf("commit schema: %w", err)
		}
		db.log.Info("store: created schema", "version", SchemaVersion)
		return 1, nil
	}

	migrationsRun := 0
	for _, migration := range Migrations {
		if migration.Version <= currentVersion {
			continue
		}
		if err := db.applyMigration(migration); err != nil {
			return migrationsRun, err
		}
		db.log.Info("store: migrated schema", "version", migration.Version, "description", migration.Description)
		migrationsRun++
	}
	return migrationsRun, nil
}

func (db *DB) applyMigration(m Migration) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.SQL); err != nil {
		return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
	}
	if err := setSchemaVersionTx(tx, m.Version); err != nil {
		return fmt.Errorf("set version %d: %w", m.Version, err)
	}
	return tx.Commit()
}

// upgradeRecord transforms a stored entry body written in an older record
// format into the current one.
func upgradeRecord(version int, body []byte) ([]byte, error) {
	if version >= models.CurrentRecordVersion {
		return body, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("decode v%d record: %w", version, err)
	}

	// v1 kept agrochemicals under "materials" with an "amount" field
	if version < 2 {
		if raw, ok := fields["materials"]; ok {
			var legacy []struct {
				Name   string  `json:"name"`
				Dosage string  `json:"dosage"`
				Amount float64 `json:"amount"`
				Unit   string  `json:"unit"`
			}
			if err := json.Unmarshal(raw, &legacy); err != nil {
				return nil, fmt.Errorf("decode v1 materials: %w", err)
			}
			chems := make([]models.ChemicalUsage, 0, len(legacy))
			for _, m := range legacy {
				chems = append(chems, models.ChemicalUsage{Name: m.Name, Dosage: m.Dosage, Quantity: m.Amount, Unit: m.Unit})
			}
			data, err := json.Marshal(chems)
			if err != nil {
				return nil, err
			}
			fields["chemicals"] = data
			delete(fields, "materials")
		}
	}

	return json.Marshal(fields)
}
