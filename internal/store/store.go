// Package store persists analysis history and settings in a local SQLite
// database. Write paths report errors; read paths degrade to empty results
// so a corrupted history never blocks a new analysis.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/srg/soilsense/internal/analysis"
	_ "modernc.org/sqlite"
)

// Record is one stored analysis.
type Record struct {
	ID        string            `json:"id"`
	CreatedAt time.Time         `json:"created_at"`
	Soil      analysis.SoilData `json:"soil"`
	Result    analysis.Result   `json:"result"`
}

// Store manages the soilsense database.
type Store struct {
	db     *sql.DB
	dbPath string
	logger *logrus.Logger
	mu     sync.RWMutex
}

// NewStore creates or opens the history store.
func NewStore(dbPath string, logger *logrus.Logger) (*Store, error) {
	if logger == nil {
		logger = logrus.New()
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{
		db:     db,
		dbPath: dbPath,
		logger: logger,
	}

	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS analyses (
		id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		temperature REAL NOT NULL,
		moisture REAL NOT NULL,
		ph REAL NOT NULL,
		location TEXT,
		weather TEXT,
		notes TEXT,
		score INTEGER NOT NULL,
		result_json TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_analyses_created ON analyses(created_at);

	CREATE TABLE IF NOT EXISTS chat_messages (
		analysis_id TEXT NOT NULL REFERENCES analyses(id),
		seq INTEGER NOT NULL,
		role TEXT NOT NULL,
		text TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (analysis_id, seq)
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveAnalysis stores one analysis and returns its generated ID.
func (s *Store) SaveAnalysis(soil analysis.SoilData, result *analysis.Result) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("failed to encode result: %w", err)
	}

	id := uuid.NewString()
	_, err = s.db.Exec(`
		INSERT INTO analyses (id, created_at, temperature, moisture, ph, location, weather, notes, score, result_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, time.Now().UTC(), soil.Temperature, soil.Moisture, soil.PH,
		soil.Location, soil.Weather, soil.Notes, result.Score, string(resultJSON))
	if err != nil {
		return "", fmt.Errorf("failed to save analysis: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"id":    id,
		"score": result.Score,
	}).Debug("Analysis saved")
	return id, nil
}

// ListAnalyses returns the newest analyses first, up to limit (0 means all).
// Query failures and undecodable rows degrade to an empty or shorter list.
func (s *Store) ListAnalyses(limit int) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, created_at, temperature, moisture, ph, location, weather, notes, result_json
		FROM analyses ORDER BY created_at DESC`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to read analysis history")
		return nil
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			s.logger.WithError(err).Warn("Skipping unreadable history row")
			continue
		}
		records = append(records, rec)
	}
	return records
}

// GetAnalysis loads one record by ID.
func (s *Store) GetAnalysis(id string) (*Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, created_at, temperature, moisture, ph, location, weather, notes, result_json
		FROM analyses WHERE id = ?`, id)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to load analysis")
		return nil, false
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, false
	}
	rec, err := scanRecord(rows)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to decode analysis")
		return nil, false
	}
	return &rec, true
}

// LatestAnalysis returns the most recent record, if any.
func (s *Store) LatestAnalysis() (*Record, bool) {
	records := s.ListAnalyses(1)
	if len(records) == 0 {
		return nil, false
	}
	return &records[0], true
}

func scanRecord(rows *sql.Rows) (Record, error) {
	var rec Record
	var resultJSON string
	if err := rows.Scan(&rec.ID, &rec.CreatedAt,
		&rec.Soil.Temperature, &rec.Soil.Moisture, &rec.Soil.PH,
		&rec.Soil.Location, &rec.Soil.Weather, &rec.Soil.Notes,
		&resultJSON); err != nil {
		return Record{}, err
	}
	if err := json.Unmarshal([]byte(resultJSON), &rec.Result); err != nil {
		return Record{}, fmt.Errorf("corrupt result for %s: %w", rec.ID, err)
	}
	return rec, nil
}

// AppendChat records one turn of a follow-up conversation.
func (s *Store) AppendChat(analysisID, role, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO chat_messages (analysis_id, seq, role, text, created_at)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM chat_messages WHERE analysis_id = ?), ?, ?, ?)`,
		analysisID, analysisID, role, text, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save chat message: %w", err)
	}
	return nil
}

// ChatHistory returns the conversation for an analysis in order. Failures
// degrade to an empty history.
func (s *Store) ChatHistory(analysisID string) []analysis.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT role, text FROM chat_messages WHERE analysis_id = ? ORDER BY seq`, analysisID)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to read chat history")
		return nil
	}
	defer rows.Close()

	var msgs []analysis.Message
	for rows.Next() {
		var m analysis.Message
		if err := rows.Scan(&m.Role, &m.Text); err != nil {
			s.logger.WithError(err).Warn("Skipping unreadable chat row")
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs
}

// GetSetting reads one setting; a missing key or failed read reports ok=false.
func (s *Store) GetSetting(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if err != sql.ErrNoRows {
			s.logger.WithError(err).Warn("Failed to read setting")
		}
		return "", false
	}
	return value, true
}

// SetSetting upserts one setting.
func (s *Store) SetSetting(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("failed to save setting %q: %w", key, err)
	}
	return nil
}
