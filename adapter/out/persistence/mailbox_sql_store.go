package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver for database/sql
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"smart_mailbox/core/domain"
	"smart_mailbox/core/port/out"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

func init() {
	// modernc registers as "sqlite", which sqlx does not know.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

const schema = `
CREATE TABLE IF NOT EXISTS emails (
	id                 TEXT PRIMARY KEY,
	subject            TEXT NOT NULL DEFAULT '',
	sender             TEXT NOT NULL DEFAULT '',
	sender_name        TEXT NOT NULL DEFAULT '',
	recipient          TEXT NOT NULL DEFAULT '',
	recipient_name     TEXT NOT NULL DEFAULT '',
	body_text          TEXT NOT NULL DEFAULT '',
	body_html          TEXT NOT NULL DEFAULT '',
	date_sent          TIMESTAMP NOT NULL,
	file_path          TEXT NOT NULL DEFAULT '',
	file_hash          TEXT NOT NULL DEFAULT '',
	file_size          BIGINT NOT NULL DEFAULT 0,
	has_attachments    BOOLEAN NOT NULL DEFAULT FALSE,
	attachment_count   INTEGER NOT NULL DEFAULT 0,
	ai_processed       BOOLEAN NOT NULL DEFAULT FALSE,
	ai_processing_date TIMESTAMP NULL,
	is_generated_reply BOOLEAN NOT NULL DEFAULT FALSE,
	original_email_id  TEXT NOT NULL DEFAULT '',
	created_at         TIMESTAMP NOT NULL,
	updated_at         TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_emails_file_hash ON emails (file_hash);
CREATE INDEX IF NOT EXISTS idx_emails_original ON emails (original_email_id);

CREATE TABLE IF NOT EXISTS email_tags (
	email_id TEXT NOT NULL,
	tag_name TEXT NOT NULL,
	position INTEGER NOT NULL,
	PRIMARY KEY (email_id, tag_name)
);

CREATE TABLE IF NOT EXISTS tags (
	name         TEXT PRIMARY KEY,
	display_name TEXT NOT NULL DEFAULT '',
	criterion    TEXT NOT NULL DEFAULT '',
	description  TEXT NOT NULL DEFAULT '',
	color        TEXT NOT NULL DEFAULT '',
	is_active    BOOLEAN NOT NULL DEFAULT TRUE,
	is_system    BOOLEAN NOT NULL DEFAULT FALSE,
	position     INTEGER NOT NULL DEFAULT 0
);
`

// SQLStore implements out.Store on SQLite or PostgreSQL.
type SQLStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// OpenSQL connects and migrates. For sqlite, dsn is a file path.
func OpenSQL(driver, dsn string) (*SQLStore, error) {
	var (
		db  *sqlx.DB
		err error
	)
	switch driver {
	case DriverSQLite:
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
		db, err = sqlx.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// single writer
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("set WAL mode: %w", err)
		}
	case DriverPostgres:
		db, err = sqlx.Connect("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		db.SetMaxOpenConns(10)
		db.SetConnMaxIdleTime(5 * time.Minute)
	default:
		return nil, fmt.Errorf("unknown sql driver %q", driver)
	}

	s := NewSQLStore(db)
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore wraps an open, migrated connection.
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *SQLStore) migrate() error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate schema: %w", err)
		}
	}
	return nil
}

// emailRow is the database row for emails.
type emailRow struct {
	ID               string       `db:"id"`
	Subject          string       `db:"subject"`
	Sender           string       `db:"sender"`
	SenderName       string       `db:"sender_name"`
	Recipient        string       `db:"recipient"`
	RecipientName    string       `db:"recipient_name"`
	BodyText         string       `db:"body_text"`
	BodyHTML         string       `db:"body_html"`
	DateSent         time.Time    `db:"date_sent"`
	FilePath         string       `db:"file_path"`
	FileHash         string       `db:"file_hash"`
	FileSize         int64        `db:"file_size"`
	HasAttachments   bool         `db:"has_attachments"`
	AttachmentCount  int          `db:"attachment_count"`
	AIProcessed      bool         `db:"ai_processed"`
	AIProcessingDate sql.NullTime `db:"ai_processing_date"`
	IsGeneratedReply bool         `db:"is_generated_reply"`
	OriginalEmailID  string       `db:"original_email_id"`
	CreatedAt        time.Time    `db:"created_at"`
	UpdatedAt        time.Time    `db:"updated_at"`
}

func toRow(e *domain.EmailRecord) *emailRow {
	r := &emailRow{
		ID:               e.ID,
		Subject:          e.Subject,
		Sender:           e.Sender,
		SenderName:       e.SenderName,
		Recipient:        e.Recipient,
		RecipientName:    e.RecipientName,
		BodyText:         e.BodyText,
		BodyHTML:         e.BodyHTML,
		DateSent:         e.DateSent.UTC(),
		FilePath:         e.FilePath,
		FileHash:         e.FileHash,
		FileSize:         e.FileSize,
		HasAttachments:   e.HasAttachments,
		AttachmentCount:  e.AttachmentCount,
		AIProcessed:      e.AIProcessed,
		IsGeneratedReply: e.IsGeneratedReply,
		OriginalEmailID:  e.OriginalEmailID,
		CreatedAt:        e.CreatedAt.UTC(),
		UpdatedAt:        e.UpdatedAt.UTC(),
	}
	if e.AIProcessingDate != nil {
		r.AIProcessingDate = sql.NullTime{Time: e.AIProcessingDate.UTC(), Valid: true}
	}
	return r
}

func (r *emailRow) toDomain() *domain.EmailRecord {
	e := &domain.EmailRecord{
		ID:               r.ID,
		Subject:          r.Subject,
		Sender:           r.Sender,
		SenderName:       r.SenderName,
		Recipient:        r.Recipient,
		RecipientName:    r.RecipientName,
		BodyText:         r.BodyText,
		BodyHTML:         r.BodyHTML,
		DateSent:         r.DateSent.UTC(),
		FilePath:         r.FilePath,
		FileHash:         r.FileHash,
		FileSize:         r.FileSize,
		HasAttachments:   r.HasAttachments,
		AttachmentCount:  r.AttachmentCount,
		Tags:             []string{},
		AIProcessed:      r.AIProcessed,
		IsGeneratedReply: r.IsGeneratedReply,
		OriginalEmailID:  r.OriginalEmailID,
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}
	if r.AIProcessingDate.Valid {
		t := r.AIProcessingDate.Time.UTC()
		e.AIProcessingDate = &t
	}
	return e
}

const emailColumns = `id, subject, sender, sender_name, recipient, recipient_name,
	body_text, body_html, date_sent, file_path, file_hash, file_size,
	has_attachments, attachment_count, ai_processed, ai_processing_date,
	is_generated_reply, original_email_id, created_at, updated_at`

const upsertEmail = `
	INSERT INTO emails (` + emailColumns + `) VALUES (
		:id, :subject, :sender, :sender_name, :recipient, :recipient_name,
		:body_text, :body_html, :date_sent, :file_path, :file_hash, :file_size,
		:has_attachments, :attachment_count, :ai_processed, :ai_processing_date,
		:is_generated_reply, :original_email_id, :created_at, :updated_at
	)
	ON CONFLICT (id) DO UPDATE SET
		subject = excluded.subject,
		sender = excluded.sender,
		sender_name = excluded.sender_name,
		recipient = excluded.recipient,
		recipient_name = excluded.recipient_name,
		body_text = excluded.body_text,
		body_html = excluded.body_html,
		date_sent = excluded.date_sent,
		file_path = excluded.file_path,
		file_hash = excluded.file_hash,
		file_size = excluded.file_size,
		has_attachments = excluded.has_attachments,
		attachment_count = excluded.attachment_count,
		ai_processed = excluded.ai_processed,
		ai_processing_date = excluded.ai_processing_date,
		is_generated_reply = excluded.is_generated_reply,
		original_email_id = excluded.original_email_id,
		updated_at = excluded.updated_at`

func (s *SQLStore) Save(ctx context.Context, email *domain.EmailRecord) (string, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	existing, err := s.findExisting(ctx, tx, email)
	if err != nil {
		return "", err
	}
	rec := prepareForSave(email, existing, s.now())

	if _, err := tx.NamedExecContext(ctx, upsertEmail, toRow(rec)); err != nil {
		return "", fmt.Errorf("save email: %w", err)
	}
	if err := replaceTags(ctx, tx, rec.ID, rec.Tags); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return rec.ID, nil
}

func (s *SQLStore) findExisting(ctx context.Context, tx *sqlx.Tx, email *domain.EmailRecord) (*domain.EmailRecord, error) {
	var row emailRow
	var err error
	switch {
	case email.ID != "":
		err = tx.GetContext(ctx, &row, tx.Rebind(`SELECT `+emailColumns+` FROM emails WHERE id = ?`), email.ID)
	case email.FileHash != "":
		err = tx.GetContext(ctx, &row, tx.Rebind(`SELECT `+emailColumns+` FROM emails WHERE file_hash = ? ORDER BY created_at LIMIT 1`), email.FileHash)
	default:
		return nil, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup email: %w", err)
	}
	return row.toDomain(), nil
}

func replaceTags(ctx context.Context, tx *sqlx.Tx, id string, tags []string) error {
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM email_tags WHERE email_id = ?`), id); err != nil {
		return fmt.Errorf("clear tags: %w", err)
	}
	insert := tx.Rebind(`INSERT INTO email_tags (email_id, tag_name, position) VALUES (?, ?, ?)`)
	for i, t := range tags {
		if _, err := tx.ExecContext(ctx, insert, id, t, i); err != nil {
			return fmt.Errorf("insert tag %s: %w", t, err)
		}
	}
	return nil
}

func (s *SQLStore) GetByID(ctx context.Context, id string) (*domain.EmailRecord, error) {
	return s.getOne(ctx, `SELECT `+emailColumns+` FROM emails WHERE id = ?`, id)
}

func (s *SQLStore) GetByFileHash(ctx context.Context, hash string) (*domain.EmailRecord, error) {
	if hash == "" {
		return nil, domain.ErrEmailNotFound
	}
	return s.getOne(ctx, `SELECT `+emailColumns+` FROM emails WHERE file_hash = ? ORDER BY created_at LIMIT 1`, hash)
}

func (s *SQLStore) getOne(ctx context.Context, query string, arg any) (*domain.EmailRecord, error) {
	var row emailRow
	if err := s.db.GetContext(ctx, &row, s.db.Rebind(query), arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrEmailNotFound
		}
		return nil, err
	}
	emails := []*domain.EmailRecord{row.toDomain()}
	if err := s.loadTags(ctx, emails); err != nil {
		return nil, err
	}
	return emails[0], nil
}

func (s *SQLStore) AssignTags(ctx context.Context, id string, tags []string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE emails SET updated_at = ? WHERE id = ?`), s.now(), id)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return domain.ErrEmailNotFound
	}
	if err := replaceTags(ctx, tx, id, uniqueTags(tags)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) GetGeneratedRepliesFor(ctx context.Context, id string) ([]*domain.EmailRecord, error) {
	return s.selectEmails(ctx,
		`SELECT `+emailColumns+` FROM emails WHERE is_generated_reply = ? AND original_email_id = ? ORDER BY date_sent DESC`,
		true, id)
}

func (s *SQLStore) ListUnprocessed(ctx context.Context, limit int) ([]*domain.EmailRecord, error) {
	query := `SELECT ` + emailColumns + ` FROM emails WHERE ai_processed = ? AND is_generated_reply = ? ORDER BY created_at`
	args := []any{false, false}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.selectEmails(ctx, query, args...)
}

// List returns matching records newest first.
func (s *SQLStore) List(ctx context.Context, filter *domain.EmailFilter) ([]*domain.EmailRecord, error) {
	if filter == nil {
		filter = &domain.EmailFilter{}
	}

	var (
		where []string
		args  []any
	)
	if !filter.IncludeGenerated {
		where = append(where, "is_generated_reply = ?")
		args = append(args, false)
	}
	if filter.AIProcessed != nil {
		where = append(where, "ai_processed = ?")
		args = append(args, *filter.AIProcessed)
	}
	if filter.Tag != "" {
		where = append(where, "id IN (SELECT email_id FROM email_tags WHERE tag_name = ?)")
		args = append(args, filter.Tag)
	}
	if q := strings.ToLower(strings.TrimSpace(filter.Query)); q != "" {
		like := "%" + q + "%"
		where = append(where, `(LOWER(subject) LIKE ? OR LOWER(sender) LIKE ? OR LOWER(sender_name) LIKE ?
			OR LOWER(recipient) LIKE ? OR LOWER(recipient_name) LIKE ? OR LOWER(body_text) LIKE ?
			OR id IN (SELECT email_id FROM email_tags WHERE LOWER(tag_name) LIKE ?))`)
		for i := 0; i < 7; i++ {
			args = append(args, like)
		}
	}

	query := `SELECT ` + emailColumns + ` FROM emails`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date_sent DESC"
	if filter.Limit > 0 || filter.Offset > 0 {
		limit := filter.Limit
		if limit <= 0 {
			limit = math.MaxInt32
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, filter.Offset)
	}
	return s.selectEmails(ctx, query, args...)
}

func (s *SQLStore) selectEmails(ctx context.Context, query string, args ...any) ([]*domain.EmailRecord, error) {
	var rows []emailRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	emails := make([]*domain.EmailRecord, len(rows))
	for i := range rows {
		emails[i] = rows[i].toDomain()
	}
	if err := s.loadTags(ctx, emails); err != nil {
		return nil, err
	}
	return emails, nil
}

func (s *SQLStore) loadTags(ctx context.Context, emails []*domain.EmailRecord) error {
	if len(emails) == 0 {
		return nil
	}
	byID := make(map[string]*domain.EmailRecord, len(emails))
	ids := make([]string, len(emails))
	for i, e := range emails {
		byID[e.ID] = e
		ids[i] = e.ID
	}

	query, args, err := sqlx.In(`SELECT email_id, tag_name FROM email_tags WHERE email_id IN (?) ORDER BY email_id, position`, ids)
	if err != nil {
		return err
	}
	var rows []struct {
		EmailID string `db:"email_id"`
		TagName string `db:"tag_name"`
	}
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("load tags: %w", err)
	}
	for _, r := range rows {
		if e := byID[r.EmailID]; e != nil {
			e.Tags = append(e.Tags, r.TagName)
		}
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, ids []string) (*domain.DeleteResult, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	res := &domain.DeleteResult{}
	delTags := tx.Rebind(`DELETE FROM email_tags WHERE email_id = ?`)
	delEmail := tx.Rebind(`DELETE FROM emails WHERE id = ?`)
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, delTags, id); err != nil {
			return nil, err
		}
		r, err := tx.ExecContext(ctx, delEmail, id)
		if err != nil {
			return nil, err
		}
		if n, _ := r.RowsAffected(); n > 0 {
			res.Succeeded++
		} else {
			res.Failed++
			res.FailedIDs = append(res.FailedIDs, id)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *SQLStore) GetAllTags(ctx context.Context) ([]*domain.TagDefinition, error) {
	var tags []*domain.TagDefinition
	err := s.db.SelectContext(ctx, &tags,
		`SELECT name, display_name, criterion, description, color, is_active, is_system FROM tags ORDER BY position, name`)
	if err != nil {
		return nil, err
	}
	return tags, nil
}

func (s *SQLStore) UpsertTags(ctx context.Context, tags []*domain.TagDefinition) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var next int
	if err := tx.GetContext(ctx, &next, `SELECT COALESCE(MAX(position), 0) + 1 FROM tags`); err != nil {
		return err
	}

	upsert := tx.Rebind(`
		INSERT INTO tags (name, display_name, criterion, description, color, is_active, is_system, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			display_name = excluded.display_name,
			criterion = excluded.criterion,
			description = excluded.description,
			color = excluded.color,
			is_active = excluded.is_active,
			is_system = excluded.is_system`)
	for _, t := range tags {
		if t == nil || strings.TrimSpace(t.Name) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, upsert,
			strings.TrimSpace(t.Name), t.DisplayName, t.Criterion, t.Description, t.Color, t.IsActive, t.IsSystem, next,
		); err != nil {
			return fmt.Errorf("upsert tag %s: %w", t.Name, err)
		}
		next++
	}
	return tx.Commit()
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

var _ out.Store = (*SQLStore)(nil)
