// Copyright (C) The PascalX Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package pascalx

import (
	"database/sql"
	"fmt"
	"os"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLitePanel is a ReferencePanel stored as one SQLite database per
// chromosome, named "{Prefix}.chr{N}.db".
type SQLitePanel struct {
	Prefix string
}

var sqlitePanelSchema = []string{
	`CREATE TABLE IF NOT EXISTS variants (
		pos INTEGER NOT NULL,
		id TEXT NOT NULL,
		maf REAL NOT NULL,
		genotype BLOB NOT NULL,
		alt TEXT NOT NULL DEFAULT '',
		ref TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS variants_pos ON variants(pos)`,
	`CREATE INDEX IF NOT EXISTS variants_id ON variants(id)`,
}

func (sp SQLitePanel) path(chr string) string {
	return fmt.Sprintf("%s.chr%s.db", sp.Prefix, chr)
}

// Open implements ReferencePanel.
func (sp SQLitePanel) Open(chr string) (ChromosomePanel, error) {
	fnm := sp.path(chr)
	if _, err := os.Stat(fnm); err != nil {
		return nil, fmt.Errorf("reference panel: %w", err)
	}
	db, err := sql.Open("sqlite", "file:"+fnm+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", fnm, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open %s: %w", fnm, err)
	}
	return &sqliteChromosome{db: db, fnm: fnm}, nil
}

type sqliteChromosome struct {
	db  *sql.DB
	fnm string

	// loaded on first use and kept for the life of the handle
	positions []int
}

// SortedPositions implements ChromosomePanel. The result is shared
// between calls and must not be modified.
func (sc *sqliteChromosome) SortedPositions() ([]int, error) {
	if sc.positions != nil {
		return sc.positions, nil
	}
	positions, err := sc.loadPositions()
	if err != nil {
		return nil, err
	}
	if positions == nil {
		positions = []int{}
	}
	sc.positions = positions
	return positions, nil
}

func (sc *sqliteChromosome) loadPositions() ([]int, error) {
	rows, err := sc.db.Query(`SELECT DISTINCT pos FROM variants ORDER BY pos`)
	if err != nil {
		return nil, fmt.Errorf("%s: select positions: %w", sc.fnm, err)
	}
	defer rows.Close()
	var out []int
	for rows.Next() {
		var pos int
		if err := rows.Scan(&pos); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", sc.fnm, err)
		}
		out = append(out, pos)
	}
	return out, rows.Err()
}

func (sc *sqliteChromosome) RangeQuery(lo, hi int) ([]string, error) {
	rows, err := sc.db.Query(`SELECT id FROM variants WHERE pos BETWEEN ? AND ? ORDER BY pos, rowid`, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("%s: range query: %w", sc.fnm, err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", sc.fnm, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const variantColumns = `pos, id, maf, genotype, alt, ref`

func scanVariant(rows *sql.Rows) (*ReferenceVariant, error) {
	var rv ReferenceVariant
	if err := rows.Scan(&rv.Position, &rv.ID, &rv.MAF, &rv.Genotype, &rv.Alt, &rv.Ref); err != nil {
		return nil, err
	}
	return &rv, nil
}

// queryChunk is the number of bound parameters per IN (...) query.
const queryChunk = 500

func (sc *sqliteChromosome) ByVariantIDs(ids []string) ([]*ReferenceVariant, error) {
	found := map[string]*ReferenceVariant{}
	for start := 0; start < len(ids); start += queryChunk {
		chunk := ids[start:]
		if len(chunk) > queryChunk {
			chunk = chunk[:queryChunk]
		}
		args := make([]interface{}, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		q := `SELECT ` + variantColumns + ` FROM variants WHERE id IN (?` + strings.Repeat(",?", len(chunk)-1) + `) ORDER BY rowid`
		rows, err := sc.db.Query(q, args...)
		if err != nil {
			return nil, fmt.Errorf("%s: select by id: %w", sc.fnm, err)
		}
		for rows.Next() {
			rv, err := scanVariant(rows)
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("%s: scan: %w", sc.fnm, err)
			}
			if _, ok := found[rv.ID]; !ok {
				found[rv.ID] = rv
			}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: select by id: %w", sc.fnm, err)
		}
	}
	out := make([]*ReferenceVariant, len(ids))
	for i, id := range ids {
		out[i] = found[id]
	}
	return out, nil
}

func (sc *sqliteChromosome) ByPositions(positions []int) ([]*ReferenceVariant, error) {
	if len(positions) == 0 {
		return nil, nil
	}
	lo, hi := positions[0], positions[0]
	for _, pos := range positions {
		if pos < lo {
			lo = pos
		}
		if pos > hi {
			hi = pos
		}
	}
	rows, err := sc.db.Query(`SELECT `+variantColumns+` FROM variants WHERE pos BETWEEN ? AND ? ORDER BY pos, rowid`, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("%s: select by position: %w", sc.fnm, err)
	}
	defer rows.Close()
	atPos := map[int][]*ReferenceVariant{}
	for rows.Next() {
		rv, err := scanVariant(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", sc.fnm, err)
		}
		atPos[rv.Position] = append(atPos[rv.Position], rv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: select by position: %w", sc.fnm, err)
	}
	var out []*ReferenceVariant
	for _, pos := range positions {
		out = append(out, atPos[pos]...)
	}
	return out, nil
}

func (sc *sqliteChromosome) VariantIDs() (map[string]bool, error) {
	rows, err := sc.db.Query(`SELECT DISTINCT id FROM variants`)
	if err != nil {
		return nil, fmt.Errorf("%s: select ids: %w", sc.fnm, err)
	}
	defer rows.Close()
	ids := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", sc.fnm, err)
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

func (sc *sqliteChromosome) Close() error {
	return sc.db.Close()
}

// SQLitePanelWriter appends records to one chromosome database of a
// SQLitePanel, creating it if needed.
type SQLitePanelWriter struct {
	db  *sql.DB
	fnm string
}

// Create opens chromosome chr of the panel for writing.
func (sp SQLitePanel) Create(chr string) (*SQLitePanelWriter, error) {
	fnm := sp.path(chr)
	db, err := sql.Open("sqlite", fnm)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", fnm, err)
	}
	for _, stmt := range sqlitePanelSchema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: create schema: %w", fnm, err)
		}
	}
	return &SQLitePanelWriter{db: db, fnm: fnm}, nil
}

// Insert adds records in a single transaction.
func (w *SQLitePanelWriter) Insert(rvs ...ReferenceVariant) error {
	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("%s: begin: %w", w.fnm, err)
	}
	stmt, err := tx.Prepare(`INSERT INTO variants (` + variantColumns + `) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("%s: prepare: %w", w.fnm, err)
	}
	defer stmt.Close()
	for _, rv := range rvs {
		genotype := rv.Genotype
		if genotype == nil {
			genotype = []uint8{}
		}
		if _, err := stmt.Exec(rv.Position, rv.ID, rv.MAF, genotype, rv.Alt, rv.Ref); err != nil {
			tx.Rollback()
			return fmt.Errorf("%s: insert %s: %w", w.fnm, rv.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", w.fnm, err)
	}
	return nil
}

// Close closes the database.
func (w *SQLitePanelWriter) Close() error {
	return w.db.Close()
}
