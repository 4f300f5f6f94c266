// ABOUTME: Database package for logging every query-server frame to SQLite
// ABOUTME: Provides message logging, session tracking, and request traces

package db

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/harper/codeql-relay/internal/errors"
	"github.com/harper/codeql-relay/internal/jsonrpc"
	"github.com/harper/codeql-relay/internal/logger"
	"github.com/harper/codeql-relay/internal/queryserver"
	"github.com/kballard/go-shellquote"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

type DB struct {
	conn *sql.DB
}

var _ queryserver.FrameObserver = (*DB)(nil)

// Open opens or creates the SQLite database, creating its directory.
func Open(dbPath string) (*DB, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "failed to create database directory")
		}
	}

	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	// Enable WAL mode for better concurrency
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "failed to enable WAL mode")
	}

	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "failed to create schema")
	}

	logger.Info("Database initialized at %s", dbPath)
	return &DB{conn: conn}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// CreateSession records a new query-server instance.
func (db *DB) CreateSession(sessionID, codeqlPath string, args []string) error {
	_, err := db.conn.Exec(
		"INSERT INTO sessions (id, codeql_path, command, started_at) VALUES (?, ?, ?, ?)",
		sessionID, codeqlPath, shellquote.Join(append([]string{codeqlPath}, args...)...), time.Now().UTC(),
	)
	if err != nil {
		return errors.Wrap(err, "failed to create session")
	}
	return nil
}

// CloseSession marks a session as stopped
func (db *DB) CloseSession(sessionID string) error {
	_, err := db.conn.Exec(
		"UPDATE sessions SET stopped_at = ? WHERE id = ?",
		time.Now().UTC(), sessionID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to close session")
	}
	return nil
}

// frameDetails is what the log indexes from a raw frame.
type frameDetails struct {
	messageType string
	method      string
	jsonrpcID   *int64
	progressID  *int64
}

func describe(raw []byte) frameDetails {
	var d frameDetails
	msg, err := jsonrpc.Parse(raw)
	if err != nil {
		d.messageType = jsonrpc.KindInvalid.String()
		return d
	}

	kind := msg.Kind()
	d.messageType = kind.String()
	d.method = msg.Method
	if id, ok := msg.IntID(); ok && kind != jsonrpc.KindNotification {
		d.jsonrpcID = &id
	}

	switch kind {
	case jsonrpc.KindRequest:
		var p struct {
			ProgressID *int64 `json:"progressId"`
		}
		if json.Unmarshal(msg.Params, &p) == nil {
			d.progressID = p.ProgressID
		}
	case jsonrpc.KindNotification:
		if update, ok := queryserver.ParseProgress(msg.Method, msg.Params); ok {
			pid := update.ID
			d.progressID = &pid
		}
	}
	return d
}

// LogMessage logs a frame with its direction and parsed details.
func (db *DB) LogMessage(sessionID string, direction queryserver.Direction, rawMessage []byte) error {
	d := describe(rawMessage)
	_, err := db.conn.Exec(
		`INSERT INTO messages (session_id, direction, message_type, method, jsonrpc_id, progress_id, raw_message, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, string(direction), d.messageType, nullString(d.method), d.jsonrpcID, d.progressID,
		string(rawMessage), time.Now().UTC(),
	)
	if err != nil {
		return errors.Wrap(err, "failed to log message")
	}
	return nil
}

// ObserveFrame logs the frame. Failures are reported and otherwise ignored
// so a broken log never stalls the engine connection.
func (db *DB) ObserveFrame(instanceID string, dir queryserver.Direction, body []byte) {
	if err := db.LogMessage(instanceID, dir, body); err != nil {
		logger.Warn("Message log write failed: %v", err)
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Message represents a logged frame
type Message struct {
	ID          int64                 `json:"id"`
	SessionID   string                `json:"session_id"`
	Direction   queryserver.Direction `json:"direction"`
	MessageType string                `json:"message_type"`
	Method      string                `json:"method,omitempty"`
	JSONRPCId   *int64                `json:"jsonrpc_id,omitempty"`
	ProgressID  *int64                `json:"progress_id,omitempty"`
	RawMessage  string                `json:"raw_message"`
	Timestamp   time.Time             `json:"timestamp"`
}

const messageColumns = `id, session_id, direction, message_type, method, jsonrpc_id, progress_id, raw_message, timestamp`

func scanMessages(rows *sql.Rows) ([]Message, error) {
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		var direction string
		var messageType, method sql.NullString
		var jsonrpcID, progressID sql.NullInt64

		err := rows.Scan(&m.ID, &m.SessionID, &direction, &messageType, &method, &jsonrpcID, &progressID, &m.RawMessage, &m.Timestamp)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan message")
		}

		m.Direction = queryserver.Direction(direction)
		m.MessageType = messageType.String
		m.Method = method.String
		if jsonrpcID.Valid {
			id := jsonrpcID.Int64
			m.JSONRPCId = &id
		}
		if progressID.Valid {
			pid := progressID.Int64
			m.ProgressID = &pid
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// GetSessionMessages retrieves all messages for a session in arrival order.
func (db *DB) GetSessionMessages(sessionID string) ([]Message, error) {
	rows, err := db.conn.Query(
		`SELECT `+messageColumns+` FROM messages WHERE session_id = ? ORDER BY id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query messages")
	}
	return scanMessages(rows)
}

// GetRequestTrace returns the request with the given id, its response, and
// every progress notification carrying the request's progress id.
func (db *DB) GetRequestTrace(sessionID string, requestID int64) ([]Message, error) {
	rows, err := db.conn.Query(
		`SELECT `+messageColumns+` FROM messages
		 WHERE session_id = ?
		   AND (
		     (jsonrpc_id = ? AND message_type IN ('request', 'response'))
		     OR (message_type = 'notification' AND progress_id IS NOT NULL AND progress_id = (
		           SELECT progress_id FROM messages
		           WHERE session_id = ? AND jsonrpc_id = ? AND message_type = 'request'
		           ORDER BY id LIMIT 1))
		   )
		 ORDER BY id ASC`,
		sessionID, requestID, sessionID, requestID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query request trace")
	}
	return scanMessages(rows)
}

// Session represents a logged query-server instance
type Session struct {
	ID         string     `json:"id"`
	CodeQLPath string     `json:"codeql_path"`
	Command    string     `json:"command"`
	StartedAt  time.Time  `json:"started_at"`
	StoppedAt  *time.Time `json:"stopped_at,omitempty"`
}

// GetAllSessions retrieves all sessions, newest first.
func (db *DB) GetAllSessions() ([]Session, error) {
	rows, err := db.conn.Query(
		`SELECT id, codeql_path, command, started_at, stopped_at
		 FROM sessions ORDER BY started_at DESC`,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query sessions")
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		var stoppedAt sql.NullTime

		if err := rows.Scan(&s.ID, &s.CodeQLPath, &s.Command, &s.StartedAt, &stoppedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan session")
		}
		if stoppedAt.Valid {
			t := stoppedAt.Time
			s.StoppedAt = &t
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}
