package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ashureev/support-relay/internal/domain"
	"github.com/ashureev/support-relay/internal/shared"
	_ "modernc.org/sqlite"
)

const (
	busyMaxRetries = 3
	busyBaseDelay  = 100 * time.Millisecond
)

// withBusyRetry retries a write that failed with a SQLite concurrency
// error (SQLITE_BUSY, "database is locked"), backing off 100ms, 200ms
// between attempts. Any other failure is returned immediately.
func withBusyRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for i := 0; i < busyMaxRetries; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if !shared.IsSQLiteConflictError(err) || i == busyMaxRetries-1 {
			return err
		}
		delay := busyBaseDelay * time.Duration(1<<i)
		slog.Debug("Write hit a busy database, retrying", "op", op, "attempt", i+1, "delay", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS customers (
		customer_id TEXT PRIMARY KEY,
		phone_number TEXT NOT NULL UNIQUE,
		name TEXT,
		email TEXT,
		address TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conversations (
		conversation_id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		company_id TEXT NOT NULL,
		phone_number TEXT,
		messages_json TEXT NOT NULL,
		start_time INTEGER NOT NULL,
		end_time INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_customer_created
		ON conversations(customer_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_conversations_session
		ON conversations(session_id);

	CREATE TABLE IF NOT EXISTS company_knowledge (
		company_id TEXT PRIMARY KEY,
		kb_text TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateCustomer inserts a new customer record.
func (s *SQLiteStore) CreateCustomer(ctx context.Context, customer *domain.Customer) error {
	query := `
	INSERT INTO customers (customer_id, phone_number, name, email, address, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		customer.CustomerID, customer.PhoneNumber,
		nullable(customer.Name), nullable(customer.Email), nullable(customer.Address),
		customer.CreatedAt.UnixMilli(), customer.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert customer: %w", err)
	}
	return nil
}

// GetCustomerByPhone retrieves a customer by normalized phone number.
func (s *SQLiteStore) GetCustomerByPhone(ctx context.Context, phone string) (*domain.Customer, error) {
	return s.getCustomer(ctx, `WHERE phone_number = ?`, phone)
}

// GetCustomer retrieves a customer by identifier.
func (s *SQLiteStore) GetCustomer(ctx context.Context, customerID string) (*domain.Customer, error) {
	return s.getCustomer(ctx, `WHERE customer_id = ?`, customerID)
}

func (s *SQLiteStore) getCustomer(ctx context.Context, where string, arg interface{}) (*domain.Customer, error) {
	query := `
		SELECT customer_id, phone_number, name, email, address, created_at, updated_at
		FROM customers ` + where

	row := s.db.QueryRowContext(ctx, query, arg)

	var customer domain.Customer
	var name, email, address sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(
		&customer.CustomerID, &customer.PhoneNumber,
		&name, &email, &address,
		&createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan customer row: %w", err)
	}

	customer.Name = name.String
	customer.Email = email.String
	customer.Address = address.String
	customer.CreatedAt = time.UnixMilli(createdAt)
	customer.UpdatedAt = time.UnixMilli(updatedAt)

	return &customer, nil
}

// UpdateCustomerProfile applies optional profile field updates.
func (s *SQLiteStore) UpdateCustomerProfile(ctx context.Context, customerID string, update domain.CustomerUpdate) error {
	if update.Empty() {
		return nil
	}

	sets := []string{"updated_at = ?"}
	args := []interface{}{time.Now().UnixMilli()}

	if update.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, nullable(*update.Name))
	}
	if update.Email != nil {
		sets = append(sets, "email = ?")
		args = append(args, nullable(*update.Email))
	}
	if update.Address != nil {
		sets = append(sets, "address = ?")
		args = append(args, nullable(*update.Address))
	}
	args = append(args, customerID)

	query := `UPDATE customers SET ` + strings.Join(sets, ", ") + ` WHERE customer_id = ?`
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update customer profile: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("customer not found")
	}
	return nil
}

// InsertConversation writes one immutable transcript document.
func (s *SQLiteStore) InsertConversation(ctx context.Context, conv *domain.Conversation) error {
	messagesJSON, err := json.Marshal(conv.Messages)
	if err != nil {
		return fmt.Errorf("marshal transcript messages: %w", err)
	}

	query := `
	INSERT INTO conversations (
		conversation_id, customer_id, session_id, company_id, phone_number,
		messages_json, start_time, end_time, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	// A finalize write can collide with concurrent admin traffic; ride
	// out transient lock contention rather than losing the transcript.
	return withBusyRetry(ctx, "insert conversation", func() error {
		_, err := s.db.ExecContext(ctx, query,
			conv.ConversationID, conv.CustomerID, conv.SessionID, conv.CompanyID,
			nullable(conv.PhoneNumber), string(messagesJSON),
			conv.StartTime.UnixMilli(), conv.EndTime.UnixMilli(), conv.CreatedAt.UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("insert conversation: %w", err)
		}
		return nil
	})
}

// ConversationsByCustomer returns the most recent transcripts for a customer.
func (s *SQLiteStore) ConversationsByCustomer(ctx context.Context, customerID string, limit int) ([]*domain.Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT conversation_id, customer_id, session_id, company_id, phone_number,
		       messages_json, start_time, end_time, created_at
		FROM conversations
		WHERE customer_id = ?
		ORDER BY created_at DESC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, customerID, limit)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var conversations []*domain.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, conv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}

	return conversations, nil
}

// ConversationBySession retrieves the transcript written for a session.
func (s *SQLiteStore) ConversationBySession(ctx context.Context, sessionID string) (*domain.Conversation, error) {
	query := `
		SELECT conversation_id, customer_id, session_id, company_id, phone_number,
		       messages_json, start_time, end_time, created_at
		FROM conversations
		WHERE session_id = ?`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query conversation by session: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate conversation by session: %w", err)
		}
		return nil, nil
	}
	return scanConversation(rows)
}

func scanConversation(rows *sql.Rows) (*domain.Conversation, error) {
	var conv domain.Conversation
	var phone sql.NullString
	var messagesJSON string
	var startTime, endTime, createdAt int64

	if err := rows.Scan(
		&conv.ConversationID, &conv.CustomerID, &conv.SessionID, &conv.CompanyID,
		&phone, &messagesJSON, &startTime, &endTime, &createdAt,
	); err != nil {
		return nil, fmt.Errorf("scan conversation row: %w", err)
	}

	if err := json.Unmarshal([]byte(messagesJSON), &conv.Messages); err != nil {
		return nil, fmt.Errorf("unmarshal transcript messages: %w", err)
	}

	conv.PhoneNumber = phone.String
	conv.StartTime = time.UnixMilli(startTime)
	conv.EndTime = time.UnixMilli(endTime)
	conv.CreatedAt = time.UnixMilli(createdAt)

	return &conv, nil
}

// UpsertKnowledge creates or replaces the durable knowledge record for a company.
func (s *SQLiteStore) UpsertKnowledge(ctx context.Context, kb *domain.CompanyKnowledge) error {
	query := `
	INSERT INTO company_knowledge (company_id, kb_text, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(company_id) DO UPDATE SET
		kb_text = excluded.kb_text,
		updated_at = excluded.updated_at`

	return withBusyRetry(ctx, "upsert knowledge", func() error {
		_, err := s.db.ExecContext(ctx, query, kb.CompanyID, kb.Text, kb.UpdatedAt.UnixMilli())
		if err != nil {
			return fmt.Errorf("upsert knowledge: %w", err)
		}
		return nil
	})
}

// GetKnowledge retrieves a company's knowledge record.
func (s *SQLiteStore) GetKnowledge(ctx context.Context, companyID string) (*domain.CompanyKnowledge, error) {
	query := `SELECT company_id, kb_text, updated_at FROM company_knowledge WHERE company_id = ?`

	row := s.db.QueryRowContext(ctx, query, companyID)

	var kb domain.CompanyKnowledge
	var updatedAt int64

	err := row.Scan(&kb.CompanyID, &kb.Text, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan knowledge row: %w", err)
	}

	kb.UpdatedAt = time.UnixMilli(updatedAt)
	return &kb, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
