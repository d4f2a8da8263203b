// Package persistence is the market-preferences/drawings collaborator: a
// small SQLite adapter a host command layer calls into. It is not part of
// the session's core module graph — the engine itself never touches it —
// but spec.md §6 names its exact schema, so it ships as a concrete
// collaborator rather than a bare interface. Grounded on the teacher's
// internal/store/sqlite/writer.go for the WAL-mode single-connection-pool
// setup, and on original_source/market/persistence.rs for the schema and
// upsert semantics.
package persistence

import (
	"database/sql"
	"fmt"
	"regexp"
	"time"
	"unicode/utf8"

	_ "github.com/mattn/go-sqlite3"

	"aggconflate/internal/errs"
	"aggconflate/internal/model"
)

// Store is a single-connection SQLite handle for preferences + drawings.
type Store struct {
	db *sql.DB
}

// Open opens (creating if missing) the SQLite database at path, enables
// WAL mode, and ensures the schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, errs.Wrap(errs.Persistence, "sqlite open", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, errs.Wrap(errs.Migration, "sqlite schema", err)
	}

	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS market_preferences (
			id             INTEGER PRIMARY KEY CHECK (id = 1),
			market_kind    TEXT    NOT NULL,
			symbol         TEXT    NOT NULL,
			timeframe      TEXT    NOT NULL,
			magnet_strong  INTEGER NOT NULL DEFAULT 0,
			updated_at_ms  INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS market_drawings (
			id             TEXT    PRIMARY KEY,
			market_kind    TEXT    NOT NULL,
			symbol         TEXT    NOT NULL,
			timeframe      TEXT    NOT NULL,
			drawing_type   TEXT    NOT NULL,
			color          TEXT,
			label          TEXT,
			payload_json   TEXT    NOT NULL,
			created_at_ms  INTEGER NOT NULL,
			updated_at_ms  INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_market_drawings_scope
			ON market_drawings (market_kind, symbol, timeframe);
	`)
	return err
}

func (s *Store) Close() error { return s.db.Close() }

// Preferences is the persisted singleton row.
type Preferences struct {
	MarketKind    model.MarketKind
	Symbol        string
	Timeframe     model.Timeframe
	MagnetStrong  bool
	UpdatedAtMs   int64
}

func nowUnixMs() int64 { return time.Now().UnixMilli() }

// GetPreferences reads the singleton row, seeding it with defaults on
// first use — mirrors persistence.rs's ensure_market_preferences_seed +
// get_market_preferences pairing.
func (s *Store) GetPreferences() (Preferences, error) {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO market_preferences (id, market_kind, symbol, timeframe, magnet_strong, updated_at_ms)
		 VALUES (1, ?, ?, ?, 0, ?)`,
		string(model.DefaultMarketKind), model.DefaultSymbol, string(model.DefaultTimeframe), nowUnixMs(),
	)
	if err != nil {
		return Preferences{}, errs.Wrap(errs.Persistence, "seed preferences", err)
	}

	row := s.db.QueryRow(
		`SELECT market_kind, symbol, timeframe, magnet_strong, updated_at_ms FROM market_preferences WHERE id = 1`)

	var kindRaw, tfRaw string
	var magnet int64
	var p Preferences
	if err := row.Scan(&kindRaw, &p.Symbol, &tfRaw, &magnet, &p.UpdatedAtMs); err != nil {
		return Preferences{}, errs.Wrap(errs.Persistence, "read preferences", err)
	}

	kind, err := model.ParseMarketKind(kindRaw)
	if err != nil {
		return Preferences{}, err
	}
	tf, err := model.ParseTimeframe(tfRaw)
	if err != nil {
		return Preferences{}, err
	}
	p.MarketKind = kind
	p.Timeframe = tf
	p.MagnetStrong = magnet != 0
	return p, nil
}

// SavePreferences upserts the singleton row and returns the stored value.
func (s *Store) SavePreferences(p Preferences) (Preferences, error) {
	magnet := int64(0)
	if p.MagnetStrong {
		magnet = 1
	}

	_, err := s.db.Exec(
		`INSERT INTO market_preferences (id, market_kind, symbol, timeframe, magnet_strong, updated_at_ms)
		 VALUES (1, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   market_kind=excluded.market_kind, symbol=excluded.symbol, timeframe=excluded.timeframe,
		   magnet_strong=excluded.magnet_strong, updated_at_ms=excluded.updated_at_ms`,
		string(p.MarketKind), p.Symbol, string(p.Timeframe), magnet, nowUnixMs(),
	)
	if err != nil {
		return Preferences{}, errs.Wrap(errs.Persistence, "save preferences", err)
	}
	return s.GetPreferences()
}

// Drawing is one chart annotation row.
type Drawing struct {
	ID          string
	MarketKind  model.MarketKind
	Symbol      string
	Timeframe   model.Timeframe
	DrawingType string
	Color       string
	Label       string
	PayloadJSON string
	CreatedAtMs int64
	UpdatedAtMs int64
}

const maxLabelLen = 120

var hexColorPattern = regexp.MustCompile(`^#[0-9A-F]{6}$`)

// validDrawingTypes is the closed set spec.md §6 names for drawing_type.
var validDrawingTypes = map[string]bool{
	"trendLine":      true,
	"horizontalLine": true,
	"ruler":          true,
	"fibRetracement": true,
	"fibExtension":   true,
}

// normalize validates d against the drawing constraints spec.md §6 names,
// mirroring original_source's persistence.rs DrawingArgs::normalize: id
// must be non-empty, drawing_type must be one of the known set, color (if
// set) must be uppercase "#RRGGBB", label must be at most 120 characters,
// and payload_json must be non-empty.
func (d Drawing) normalize() (Drawing, error) {
	if d.ID == "" {
		return Drawing{}, errs.New(errs.InvalidArgument, "drawing id must be non-empty")
	}
	if !validDrawingTypes[d.DrawingType] {
		return Drawing{}, errs.New(errs.InvalidArgument, "unknown drawing_type: "+d.DrawingType)
	}
	if d.Color != "" && !hexColorPattern.MatchString(d.Color) {
		return Drawing{}, errs.New(errs.InvalidArgument, "color must be uppercase #RRGGBB")
	}
	if utf8.RuneCountInString(d.Label) > maxLabelLen {
		return Drawing{}, errs.New(errs.InvalidArgument, fmt.Sprintf("label must be at most %d characters", maxLabelLen))
	}
	if d.PayloadJSON == "" {
		return Drawing{}, errs.New(errs.InvalidArgument, "payload_json must be non-empty")
	}
	return d, nil
}

// ListDrawings returns every drawing scoped to (kind, symbol, timeframe),
// oldest-updated first.
func (s *Store) ListDrawings(kind model.MarketKind, symbol string, tf model.Timeframe) ([]Drawing, error) {
	rows, err := s.db.Query(
		`SELECT id, market_kind, symbol, timeframe, drawing_type, color, label, payload_json, created_at_ms, updated_at_ms
		 FROM market_drawings
		 WHERE market_kind = ? AND symbol = ? AND timeframe = ?
		 ORDER BY updated_at_ms ASC, id ASC`,
		string(kind), symbol, string(tf),
	)
	if err != nil {
		return nil, errs.Wrap(errs.Persistence, "list drawings", err)
	}
	defer rows.Close()

	var out []Drawing
	for rows.Next() {
		var d Drawing
		var kindRaw, tfRaw string
		var color, label sql.NullString
		if err := rows.Scan(&d.ID, &kindRaw, &d.Symbol, &tfRaw, &d.DrawingType, &color, &label, &d.PayloadJSON, &d.CreatedAtMs, &d.UpdatedAtMs); err != nil {
			return nil, errs.Wrap(errs.Persistence, "scan drawing", err)
		}
		d.Color = color.String
		d.Label = label.String
		parsedKind, err := model.ParseMarketKind(kindRaw)
		if err != nil {
			return nil, err
		}
		parsedTf, err := model.ParseTimeframe(tfRaw)
		if err != nil {
			return nil, err
		}
		d.MarketKind = parsedKind
		d.Timeframe = parsedTf
		out = append(out, d)
	}
	return out, rows.Err()
}

// UpsertDrawing validates d (see Drawing.normalize) and inserts or
// replaces it by id, preserving its original created_at_ms across updates.
func (s *Store) UpsertDrawing(d Drawing) (Drawing, error) {
	d, err := d.normalize()
	if err != nil {
		return Drawing{}, err
	}
	now := nowUnixMs()
	createdAt := d.CreatedAtMs
	if createdAt == 0 {
		createdAt = now
	}

	_, err = s.db.Exec(
		`INSERT INTO market_drawings (id, market_kind, symbol, timeframe, drawing_type, color, label, payload_json, created_at_ms, updated_at_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   market_kind=excluded.market_kind, symbol=excluded.symbol, timeframe=excluded.timeframe,
		   drawing_type=excluded.drawing_type, color=excluded.color, label=excluded.label,
		   payload_json=excluded.payload_json, updated_at_ms=excluded.updated_at_ms`,
		d.ID, string(d.MarketKind), d.Symbol, string(d.Timeframe), d.DrawingType, d.Color, d.Label, d.PayloadJSON, createdAt, now,
	)
	if err != nil {
		return Drawing{}, errs.Wrap(errs.Persistence, "upsert drawing", err)
	}

	row := s.db.QueryRow(
		`SELECT id, market_kind, symbol, timeframe, drawing_type, color, label, payload_json, created_at_ms, updated_at_ms
		 FROM market_drawings WHERE id = ?`, d.ID)

	var out Drawing
	var kindRaw, tfRaw string
	var color, label sql.NullString
	if err := row.Scan(&out.ID, &kindRaw, &out.Symbol, &tfRaw, &out.DrawingType, &color, &label, &out.PayloadJSON, &out.CreatedAtMs, &out.UpdatedAtMs); err != nil {
		return Drawing{}, errs.Wrap(errs.Persistence, "read back drawing", err)
	}
	out.Color, out.Label = color.String, label.String
	parsedKind, err := model.ParseMarketKind(kindRaw)
	if err != nil {
		return Drawing{}, err
	}
	parsedTf, err := model.ParseTimeframe(tfRaw)
	if err != nil {
		return Drawing{}, err
	}
	out.MarketKind, out.Timeframe = parsedKind, parsedTf
	return out, nil
}

// DeleteDrawing removes a drawing scoped to (id, kind, symbol, timeframe)
// and reports whether a row was actually removed.
func (s *Store) DeleteDrawing(id string, kind model.MarketKind, symbol string, tf model.Timeframe) (bool, error) {
	res, err := s.db.Exec(
		`DELETE FROM market_drawings WHERE id = ? AND market_kind = ? AND symbol = ? AND timeframe = ?`,
		id, string(kind), symbol, string(tf),
	)
	if err != nil {
		return false, errs.Wrap(errs.Persistence, "delete drawing", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errs.Wrap(errs.Persistence, "rows affected", err)
	}
	return n > 0, nil
}
