// Package sqlite supplies the base candle series from a local SQLite file.
// It is the series-loader collaborator: the store it feeds is read-only
// after load, so this reader is only used at startup.
package sqlite

import (
	"database/sql"
	"fmt"
	"log"

	_ "github.com/mattn/go-sqlite3"

	"chartreplay/internal/model"
)

// Reader provides read-only access to the base candle table.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// ReadBaseCandles reads the full 1-minute series for a symbol, ordered by
// timestamp ascending as the master series requires. An empty result is
// surfaced as ErrEmptySeries.
func (r *Reader) ReadBaseCandles(symbol string) ([]model.Candle, error) {
	rows, err := r.db.Query(`
		SELECT ts, open, high, low, close, volume
		FROM candles_1m
		WHERE symbol = ?
		ORDER BY ts ASC
	`, symbol)
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles_1m: %w", err)
	}
	defer rows.Close()

	var candles []model.Candle
	for rows.Next() {
		var c model.Candle
		if err := rows.Scan(&c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan candles_1m: %w", err)
		}
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("symbol %s: %w", symbol, model.ErrEmptySeries)
	}
	return candles, nil
}

// Close releases the database handle.
func (r *Reader) Close() error {
	return r.db.Close()
}
