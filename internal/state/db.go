package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/parleylabs/parley/pkg/models"
)

// DB is the SQLite-backed Store implementation.
type DB struct {
	conn *sql.DB
	path string
	mu   sync.RWMutex
}

// DefaultDBPath returns the default database location under XDG data home.
func DefaultDBPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "parley", "parley.db")
}

// Open opens an SQLite database at the given path, creating parent
// directories as needed. WAL mode is enabled for concurrent reads.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	db := &DB{conn: conn, path: path}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Path returns the path to the database file.
func (db *DB) Path() string {
	return db.path
}

// Close closes the database connection.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.conn.Close()
}

// migrate applies the schema.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS negotiations (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			disruption_json TEXT,
			decision_json TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS rounds (
			negotiation_id TEXT NOT NULL REFERENCES negotiations(id),
			counterparty_id TEXT NOT NULL,
			round INTEGER NOT NULL,
			phase TEXT NOT NULL,
			status TEXT NOT NULL,
			outbound TEXT NOT NULL,
			reply TEXT NOT NULL,
			offer_json TEXT,
			error TEXT,
			sealed_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (negotiation_id, counterparty_id, round)
		);
	`)
	if err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// CreateNegotiation registers a new negotiation in the running state.
func (db *DB) CreateNegotiation(id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(
		"INSERT INTO negotiations (id, status) VALUES (?, ?)",
		id, string(StatusRunning),
	)
	if err != nil {
		return fmt.Errorf("create negotiation %s: %w", id, err)
	}
	return nil
}

// UpdateStatus transitions a negotiation's lifecycle state.
func (db *DB) UpdateStatus(id string, status NegotiationStatus) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	res, err := db.conn.Exec(
		"UPDATE negotiations SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		string(status), id,
	)
	if err != nil {
		return fmt.Errorf("update status for %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &NotFoundError{ID: id}
	}
	return nil
}

// SaveRound persists one sealed round. Re-saving the same
// (counterparty, round) pair replaces the previous record.
func (db *DB) SaveRound(id string, round models.NegotiationRound) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	var offerJSON []byte
	if round.Offer != nil {
		var err error
		offerJSON, err = json.Marshal(round.Offer)
		if err != nil {
			return fmt.Errorf("marshal offer: %w", err)
		}
	}

	_, err := db.conn.Exec(`
		INSERT OR REPLACE INTO rounds
			(negotiation_id, counterparty_id, round, phase, status, outbound, reply, offer_json, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, round.CounterpartyID, round.Round, string(round.Phase), string(round.Status),
		round.Outbound.Content, round.Reply.Content, nullable(offerJSON), round.Error,
	)
	if err != nil {
		return fmt.Errorf("save round %d for %s/%s: %w", round.Round, id, round.CounterpartyID, err)
	}
	return nil
}

// Rounds returns all persisted rounds, ordered by round then counterparty.
func (db *DB) Rounds(id string) ([]models.NegotiationRound, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query(`
		SELECT counterparty_id, round, phase, status, outbound, reply, offer_json, error
		FROM rounds WHERE negotiation_id = ?
		ORDER BY round, counterparty_id`, id)
	if err != nil {
		return nil, fmt.Errorf("query rounds for %s: %w", id, err)
	}
	defer rows.Close()

	var out []models.NegotiationRound
	for rows.Next() {
		var r models.NegotiationRound
		var phase, status string
		var offerJSON sql.NullString
		var errMsg sql.NullString
		if err := rows.Scan(&r.CounterpartyID, &r.Round, &phase, &status,
			&r.Outbound.Content, &r.Reply.Content, &offerJSON, &errMsg); err != nil {
			return nil, fmt.Errorf("scan round: %w", err)
		}
		r.Phase = models.RoundPhase(phase)
		r.Status = models.RoundStatus(status)
		r.Outbound.Role = models.RoleInitiator
		r.Reply.Role = models.RoleCounterparty
		r.Error = errMsg.String
		if offerJSON.Valid && offerJSON.String != "" {
			var offer models.StructuredOffer
			if err := json.Unmarshal([]byte(offerJSON.String), &offer); err != nil {
				return nil, fmt.Errorf("unmarshal offer: %w", err)
			}
			r.Offer = &offer
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SaveDisruption persists the disruption analysis.
func (db *DB) SaveDisruption(id string, analysis models.DisruptionAnalysis) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	data, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("marshal disruption analysis: %w", err)
	}

	res, err := db.conn.Exec(
		"UPDATE negotiations SET disruption_json = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		string(data), id,
	)
	if err != nil {
		return fmt.Errorf("save disruption for %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &NotFoundError{ID: id}
	}
	return nil
}

// SaveDecision persists the final decision and marks the negotiation
// complete.
func (db *DB) SaveDecision(id string, decision models.FinalDecision) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	data, err := json.Marshal(decision)
	if err != nil {
		return fmt.Errorf("marshal decision: %w", err)
	}

	res, err := db.conn.Exec(
		"UPDATE negotiations SET decision_json = ?, status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		string(data), string(StatusComplete), id,
	)
	if err != nil {
		return fmt.Errorf("save decision for %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &NotFoundError{ID: id}
	}
	return nil
}

// GetDecision returns the committed decision. Idempotent: repeated calls
// return the same stored decision.
func (db *DB) GetDecision(id string) (*models.FinalDecision, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var decisionJSON sql.NullString
	err := db.conn.QueryRow(
		"SELECT decision_json FROM negotiations WHERE id = ?", id,
	).Scan(&decisionJSON)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("query decision for %s: %w", id, err)
	}
	if !decisionJSON.Valid || decisionJSON.String == "" {
		return nil, &NotFoundError{ID: id}
	}

	var decision models.FinalDecision
	if err := json.Unmarshal([]byte(decisionJSON.String), &decision); err != nil {
		return nil, fmt.Errorf("unmarshal decision: %w", err)
	}
	return &decision, nil
}

// nullable converts an empty byte slice to a NULL-able value.
func nullable(data []byte) interface{} {
	if len(data) == 0 {
		return nil
	}
	return string(data)
}
