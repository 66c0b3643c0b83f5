// Package audit provides an HMAC-signed, append-only trail of tool
// invocations. Every invocation, whether allowed, denied, or failed, is
// offered to the trail; a write failure is logged and swallowed, never surfaced to
// the caller, and never part of the business transaction it describes.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	banotel "github.com/ovenworks/banneton/internal/otel"
)

var tracer = banotel.Tracer("github.com/ovenworks/banneton/internal/audit")

// ErrRecordNotFound is returned by Get when no record matches.
var ErrRecordNotFound = errors.New("audit record not found")

// Record is the write-once audit entry for one tool invocation.
type Record struct {
	ID         string          `json:"id"`
	TenantID   string          `json:"tenant_id"`
	UserID     string          `json:"user_id"`
	ToolName   string          `json:"tool_name"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	Success    bool            `json:"success"`
	Timestamp  time.Time       `json:"timestamp"`
	Signature  string          `json:"signature"`
}

// Store persists HMAC-signed audit records in SQLite.
type Store struct {
	db     *sql.DB
	signer *Signer
}

// NewStore opens (creating if needed) the audit database at dbPath with
// HMAC signing.
func NewStore(dbPath, signingKey string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS audit_records (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		tool_name TEXT NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		record_json TEXT NOT NULL,
		signature TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_tenant ON audit_records(tenant_id);
	CREATE INDEX IF NOT EXISTS idx_audit_tool ON audit_records(tool_name);
	CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_records(timestamp);
	`
	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		return nil, fmt.Errorf("creating audit schema: %w", err)
	}

	signer, err := NewSigner(signingKey)
	if err != nil {
		return nil, fmt.Errorf("creating signer: %w", err)
	}

	return &Store{db: db, signer: signer}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Write signs and persists a record. The record's ID and Timestamp are
// filled in when zero.
func (s *Store) Write(ctx context.Context, rec *Record) error {
	ctx, span := tracer.Start(ctx, "audit.write",
		trace.WithAttributes(
			attribute.String("tenant_id", rec.TenantID),
			attribute.String("tool.name", rec.ToolName),
		))
	defer span.End()

	if rec.ID == "" {
		rec.ID = "aud_" + uuid.New().String()[:12]
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	recordJSON, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling audit record: %w", err)
	}
	signature, err := s.signer.Sign(recordJSON)
	if err != nil {
		return fmt.Errorf("signing audit record: %w", err)
	}
	rec.Signature = signature

	signedJSON, _ := json.Marshal(rec)

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_records (id, tenant_id, user_id, tool_name, timestamp, record_json, signature)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.TenantID, rec.UserID, rec.ToolName, rec.Timestamp, string(signedJSON), signature)
	if err != nil {
		return fmt.Errorf("storing audit record: %w", err)
	}
	return nil
}

// Get retrieves a record by ID.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	var recordJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT record_json FROM audit_records WHERE id = ?`, id).Scan(&recordJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying audit record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal([]byte(recordJSON), &rec); err != nil {
		return nil, fmt.Errorf("unmarshaling audit record: %w", err)
	}
	return &rec, nil
}

// List returns records for the tenant, newest first, optionally filtered
// by tool name.
func (s *Store) List(ctx context.Context, tenantID, toolName string, limit int) ([]Record, error) {
	query := `SELECT record_json FROM audit_records WHERE tenant_id = ?`
	args := []interface{}{tenantID}
	if toolName != "" {
		query += ` AND tool_name = ?`
		args = append(args, toolName)
	}
	query += ` ORDER BY timestamp DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var recordJSON string
		if err := rows.Scan(&recordJSON); err != nil {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(recordJSON), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Verify checks the HMAC signature integrity of a stored record.
func (s *Store) Verify(ctx context.Context, id string) (bool, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}

	signature := rec.Signature
	rec.Signature = ""
	recordJSON, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("marshaling for verification: %w", err)
	}
	return s.signer.Verify(recordJSON, signature), nil
}
