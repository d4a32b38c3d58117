// Package capture implements the Raw Capture Layer (L1): an append-only,
// full-text-searchable message log with cross-channel ordering, plus the
// ingestion-state bookkeeping columns the crystallization and graph
// ingestion paths depend on.
//
// L1, L4 (internal/crystallize), and L5 (internal/inventory) share a single
// modernc.org/sqlite file, mirroring the teacher's single-embedded-store
// idiom (see internal/sefii.Engine.execWithRetry for the retry pattern
// adapted below). Callers open the store once with Open and hand the
// returned *Store to the crystallize/inventory constructors.
package capture

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/JDHayesBC/Awareness-sub005/internal/ppserr"
)

// AuthorRole is the closed set of message speakers.
type AuthorRole string

const (
	RoleUser      AuthorRole = "user"
	RoleAssistant AuthorRole = "assistant"
	RoleSystem    AuthorRole = "system"
)

// Message is the L1 record.
type Message struct {
	ID              int64
	Channel         string
	AuthorName      string
	AuthorRole      AuthorRole
	Content         string
	CreatedAt       time.Time
	IsPrimaryEntity bool
	SummaryID       *int64
	GraphBatchID    *int64
}

// Store owns the messages table, its FTS5 mirror, and the ingestion-state
// columns. It is the single writer for appends; all other callers read.
type Store struct {
	db *sql.DB
}

// Open creates (if needed) and opens the sqlite file at path, running the
// schema migration idempotently.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, ppserr.Wrap(ppserr.DependencyDown, "capture.Open", "opening sqlite file", err)
	}
	db.SetMaxOpenConns(1) // single-writer file; serialize through one *sql.DB handle
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// DB exposes the shared handle so internal/crystallize and internal/inventory
// can colocate their tables in the same file.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

// Probe is L1's cheap health check (internal/health.Prober).
func (s *Store) Probe(ctx context.Context) (ok bool, detail string, elapsed time.Duration) {
	start := time.Now()
	err := s.db.PingContext(ctx)
	elapsed = time.Since(start)
	if err != nil {
		return false, err.Error(), elapsed
	}
	return true, "ok", elapsed
}

func (s *Store) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	channel TEXT NOT NULL,
	author_name TEXT NOT NULL,
	author_role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at TEXT NOT NULL,
	is_primary_entity INTEGER NOT NULL DEFAULT 0,
	summary_id INTEGER,
	graph_batch_id INTEGER
);
CREATE INDEX IF NOT EXISTS idx_messages_channel_created ON messages(channel, created_at);
CREATE INDEX IF NOT EXISTS idx_messages_summary_id ON messages(summary_id);
CREATE INDEX IF NOT EXISTS idx_messages_graph_batch_id ON messages(graph_batch_id);

CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
	content,
	content='messages',
	content_rowid='id',
	tokenize='unicode61'
);

CREATE TRIGGER IF NOT EXISTS messages_ai AFTER INSERT ON messages BEGIN
	INSERT INTO messages_fts(rowid, content) VALUES (new.id, new.content);
END;
CREATE TRIGGER IF NOT EXISTS messages_ad AFTER DELETE ON messages BEGIN
	INSERT INTO messages_fts(messages_fts, rowid, content) VALUES ('delete', old.id, old.content);
END;
CREATE TRIGGER IF NOT EXISTS messages_au AFTER UPDATE ON messages BEGIN
	INSERT INTO messages_fts(messages_fts, rowid, content) VALUES ('delete', old.id, old.content);
	INSERT INTO messages_fts(rowid, content) VALUES (new.id, new.content);
END;
`
	if _, err := s.db.Exec(schema); err != nil {
		return ppserr.Wrap(ppserr.Internal, "capture.migrate", "creating schema", err)
	}
	return nil
}

// execWithRetry retries a transient write once before surfacing it, mirroring
// the teacher's sefii.Engine.execWithRetry idiom.
func execWithRetry(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error) {
	res, err := db.ExecContext(ctx, query, args...)
	if err == nil {
		return res, nil
	}
	time.Sleep(50 * time.Millisecond)
	return db.ExecContext(ctx, query, args...)
}

// Append inserts a message and returns its assigned id. Never fails for
// content shape; only for backing-store errors.
func (s *Store) Append(ctx context.Context, channel, authorName string, role AuthorRole, content string, createdAt time.Time, isPrimaryEntity bool) (int64, error) {
	res, err := execWithRetry(ctx, s.db,
		`INSERT INTO messages (channel, author_name, author_role, content, created_at, is_primary_entity)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		channel, authorName, string(role), content, createdAt.UTC().Format(time.RFC3339Nano), boolToInt(isPrimaryEntity))
	if err != nil {
		return 0, ppserr.Wrap(ppserr.DependencyDown, "capture.Append", "inserting message", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, ppserr.Wrap(ppserr.Internal, "capture.Append", "reading inserted id", err)
	}
	return id, nil
}

// FTSSearch ranks by BM25 (FTS5's bm25()), ties broken by recency.
func (s *Store) FTSSearch(ctx context.Context, query string, limit int, channelFilter string, since, until *time.Time) ([]Message, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	sb := strings.Builder{}
	sb.WriteString(`SELECT m.id, m.channel, m.author_name, m.author_role, m.content, m.created_at,
		m.is_primary_entity, m.summary_id, m.graph_batch_id
		FROM messages_fts f JOIN messages m ON m.id = f.rowid
		WHERE messages_fts MATCH ?`)
	args := []any{query}
	if channelFilter != "" {
		sb.WriteString(" AND m.channel = ?")
		args = append(args, channelFilter)
	}
	if since != nil {
		sb.WriteString(" AND m.created_at >= ?")
		args = append(args, since.UTC().Format(time.RFC3339Nano))
	}
	if until != nil {
		sb.WriteString(" AND m.created_at <= ?")
		args = append(args, until.UTC().Format(time.RFC3339Nano))
	}
	sb.WriteString(" ORDER BY bm25(messages_fts), m.created_at DESC LIMIT ?")
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, ppserr.Wrap(ppserr.DependencyDown, "capture.FTSSearch", "querying fts index", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// Range returns messages with id in [startID, endID], in id order.
func (s *Store) Range(ctx context.Context, startID, endID int64) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, channel, author_name, author_role, content, created_at, is_primary_entity, summary_id, graph_batch_id
		 FROM messages WHERE id BETWEEN ? AND ? ORDER BY id ASC`, startID, endID)
	if err != nil {
		return nil, ppserr.Wrap(ppserr.DependencyDown, "capture.Range", "querying range", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// WindowAround returns the `before` messages preceding id, id itself, and the
// `after` messages following it, in strict id order regardless of channel.
func (s *Store) WindowAround(ctx context.Context, id int64, before, after int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, channel, author_name, author_role, content, created_at, is_primary_entity, summary_id, graph_batch_id
		 FROM messages WHERE id BETWEEN ? AND ? ORDER BY id ASC`,
		id-int64(before), id+int64(after))
	if err != nil {
		return nil, ppserr.Wrap(ppserr.DependencyDown, "capture.WindowAround", "querying window", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// RecentAcrossChannels returns the most recent `limit` messages across every
// channel, oldest first, for startup-mode recall (§4.6 protocol step 1:
// "the last W messages across all channels").
func (s *Store) RecentAcrossChannels(ctx context.Context, limit int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, channel, author_name, author_role, content, created_at, is_primary_entity, summary_id, graph_batch_id
		 FROM messages ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, ppserr.Wrap(ppserr.DependencyDown, "capture.RecentAcrossChannels", "querying recent messages", err)
	}
	defer rows.Close()
	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// CountUnsummarized returns the number of messages with summary_id NULL.
// L1 does not track summary kind, so the count covers every kind.
func (s *Store) CountUnsummarized(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE summary_id IS NULL`).Scan(&n)
	if err != nil {
		return 0, ppserr.Wrap(ppserr.DependencyDown, "capture.CountUnsummarized", "counting", err)
	}
	return n, nil
}

// SelectUnsummarized returns up to max unsummarized messages in id order.
func (s *Store) SelectUnsummarized(ctx context.Context, max int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, channel, author_name, author_role, content, created_at, is_primary_entity, summary_id, graph_batch_id
		 FROM messages WHERE summary_id IS NULL ORDER BY id ASC LIMIT ?`, max)
	if err != nil {
		return nil, ppserr.Wrap(ppserr.DependencyDown, "capture.SelectUnsummarized", "querying", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// CountUnungested returns the number of messages with graph_batch_id NULL.
func (s *Store) CountUnungested(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE graph_batch_id IS NULL`).Scan(&n)
	if err != nil {
		return 0, ppserr.Wrap(ppserr.DependencyDown, "capture.CountUnungested", "counting", err)
	}
	return n, nil
}

// SelectUnungested returns up to batchSize unungested messages in id order.
func (s *Store) SelectUnungested(ctx context.Context, batchSize int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, channel, author_name, author_role, content, created_at, is_primary_entity, summary_id, graph_batch_id
		 FROM messages WHERE graph_batch_id IS NULL ORDER BY id ASC LIMIT ?`, batchSize)
	if err != nil {
		return nil, ppserr.Wrap(ppserr.DependencyDown, "capture.SelectUnungested", "querying", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// MarkSummarized atomically sets summary_id for ids. summary_id is never
// mutated once non-NULL, so this must only be called once per id.
func (s *Store) MarkSummarized(ctx context.Context, ids []int64, summaryID int64) error {
	return s.markBatch(ctx, "summary_id", ids, summaryID)
}

// MarkIngested atomically sets graph_batch_id for ids.
func (s *Store) MarkIngested(ctx context.Context, ids []int64, batchID int64) error {
	return s.markBatch(ctx, "graph_batch_id", ids, batchID)
}

func (s *Store) markBatch(ctx context.Context, column string, ids []int64, value int64) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ppserr.Wrap(ppserr.DependencyDown, "capture.markBatch", "starting transaction", err)
	}
	defer tx.Rollback()

	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+1)
	args = append(args, value)
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}
	query := fmt.Sprintf(`UPDATE messages SET %s = ? WHERE id IN (%s)`, column, strings.Join(placeholders, ","))
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return ppserr.Wrap(ppserr.DependencyDown, "capture.markBatch", "updating batch", err)
	}
	if err := tx.Commit(); err != nil {
		return ppserr.Wrap(ppserr.DependencyDown, "capture.markBatch", "committing", err)
	}
	return nil
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	var out []Message
	for rows.Next() {
		var m Message
		var createdAt string
		var role string
		var isPrimary int
		var summaryID, graphBatchID sql.NullInt64
		if err := rows.Scan(&m.ID, &m.Channel, &m.AuthorName, &role, &m.Content, &createdAt, &isPrimary, &summaryID, &graphBatchID); err != nil {
			return nil, ppserr.Wrap(ppserr.Internal, "capture.scanMessages", "scanning row", err)
		}
		m.AuthorRole = AuthorRole(role)
		m.IsPrimaryEntity = isPrimary != 0
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			m.CreatedAt = t
		}
		if summaryID.Valid {
			v := summaryID.Int64
			m.SummaryID = &v
		}
		if graphBatchID.Valid {
			v := graphBatchID.Int64
			m.GraphBatchID = &v
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
