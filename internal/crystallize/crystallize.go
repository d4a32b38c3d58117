// Package crystallize implements the Crystallization Layer (L4): rolling
// narrative summarization of the raw stream, with bookkeeping of which raw
// range each summary covers. It shares the sqlite file internal/capture
// opens, mirroring agentic_memory.go's ingest-then-link pattern adapted from
// per-memory note linking to per-window narrative summarization.
package crystallize

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/JDHayesBC/Awareness-sub005/internal/capture"
	"github.com/JDHayesBC/Awareness-sub005/internal/ppserr"
)

// Kind is the closed set of summary kinds.
type Kind string

const (
	KindWork       Kind = "work"
	KindReflection Kind = "reflection"
	KindMixed      Kind = "mixed"
)

// DefaultMinBatch is the minimum contiguous unsummarized range required
// before summarize_request will propose a summary.
const DefaultMinBatch = 20

// DefaultWindowSize is how many of the most-recent summaries Recent treats
// as the "current window" versus archival (Search-only).
const DefaultWindowSize = 8

// Summary is the L4 record.
type Summary struct {
	ID             int64
	Text           string
	StartMessageID int64
	EndMessageID   int64
	Channels       []string
	Kind           Kind
	CreatedAt      time.Time
}

// Request is returned by SummarizeRequest for the caller to execute against
// an LLM and feed back through StoreSummary.
type Request struct {
	Prompt        string
	StartMessage  int64
	EndMessage    int64
	Channels      []string
	Reason        string // "no_messages" | "insufficient_messages", empty on success
}

// Stats summarizes the L4 store's contents.
type Stats struct {
	CountByKind map[Kind]int
	Oldest      *time.Time
	Newest      *time.Time
}

// Store owns the summaries table.
type Store struct {
	db       *sql.DB
	capture  *capture.Store
	minBatch int
	window   int
}

// Open attaches L4 tables to cap's shared sqlite handle.
func Open(cap *capture.Store) (*Store, error) {
	s := &Store{db: cap.DB(), capture: cap, minBatch: DefaultMinBatch, window: DefaultWindowSize}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS summaries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	text TEXT NOT NULL,
	start_message_id INTEGER NOT NULL,
	end_message_id INTEGER NOT NULL,
	channels TEXT NOT NULL,
	kind TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_summaries_kind_created ON summaries(kind, created_at);
`
	if _, err := s.db.Exec(schema); err != nil {
		return ppserr.Wrap(ppserr.Internal, "crystallize.migrate", "creating schema", err)
	}
	return nil
}

// SummarizeRequest selects a contiguous unsummarized range and returns a
// prompt for the caller's LLM to execute; it never calls an LLM itself.
func (s *Store) SummarizeRequest(ctx context.Context, kind Kind, maxMessages int) (*Request, error) {
	n, err := s.capture.CountUnsummarized(ctx)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return &Request{Reason: "no_messages"}, nil
	}
	if n < s.minBatch {
		return &Request{Reason: "insufficient_messages"}, nil
	}

	msgs, err := s.capture.SelectUnsummarized(ctx, maxMessages)
	if err != nil {
		return nil, err
	}
	if len(msgs) < s.minBatch {
		return &Request{Reason: "insufficient_messages"}, nil
	}

	channelSet := map[string]struct{}{}
	var lines []string
	for _, m := range msgs {
		channelSet[m.Channel] = struct{}{}
		lines = append(lines, fmt.Sprintf("[%s/%s] %s", m.Channel, m.AuthorRole, m.Content))
	}
	channels := make([]string, 0, len(channelSet))
	for c := range channelSet {
		channels = append(channels, c)
	}

	prompt := fmt.Sprintf(
		"Summarize the following %s conversation into a single narrative paragraph. Preserve names, decisions, and open threads.\n\n%s",
		kind, strings.Join(lines, "\n"))

	return &Request{
		Prompt:       prompt,
		StartMessage: msgs[0].ID,
		EndMessage:   msgs[len(msgs)-1].ID,
		Channels:     channels,
	}, nil
}

// StoreSummary atomically inserts the summary and marks the covered messages.
// Non-overlap is enforced within (channel, kind): calling this twice with the
// same range and kind fails the second time with INVARIANT.
func (s *Store) StoreSummary(ctx context.Context, text string, startID, endID int64, channels []string, kind Kind) (int64, error) {
	if startID > endID {
		return 0, ppserr.New(ppserr.InputShape, "crystallize.StoreSummary", "start must be <= end")
	}

	overlap, err := s.overlaps(ctx, startID, endID, channels, kind)
	if err != nil {
		return 0, err
	}
	if overlap {
		return 0, ppserr.New(ppserr.Invariant, "crystallize.StoreSummary", "overlapping summary for kind within a shared channel")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, ppserr.Wrap(ppserr.DependencyDown, "crystallize.StoreSummary", "starting transaction", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO summaries (text, start_message_id, end_message_id, channels, kind, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		text, startID, endID, strings.Join(channels, ","), string(kind), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, ppserr.Wrap(ppserr.DependencyDown, "crystallize.StoreSummary", "inserting summary", err)
	}
	summaryID, err := res.LastInsertId()
	if err != nil {
		return 0, ppserr.Wrap(ppserr.Internal, "crystallize.StoreSummary", "reading inserted id", err)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(channels)), ",")
	args := []any{summaryID, startID, endID}
	for _, c := range channels {
		args = append(args, c)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE messages SET summary_id = ? WHERE id BETWEEN ? AND ? AND channel IN (`+placeholders+`)`, args...); err != nil {
		return 0, ppserr.Wrap(ppserr.DependencyDown, "crystallize.StoreSummary", "marking summarized messages", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, ppserr.Wrap(ppserr.DependencyDown, "crystallize.StoreSummary", "committing", err)
	}
	return summaryID, nil
}

func (s *Store) idsInRangeForChannels(ctx context.Context, startID, endID int64, channels []string) ([]int64, error) {
	msgs, err := s.capture.Range(ctx, startID, endID)
	if err != nil {
		return nil, err
	}
	chset := map[string]struct{}{}
	for _, c := range channels {
		chset[c] = struct{}{}
	}
	var ids []int64
	for _, m := range msgs {
		if _, ok := chset[m.Channel]; ok {
			ids = append(ids, m.ID)
		}
	}
	return ids, nil
}

func (s *Store) overlaps(ctx context.Context, startID, endID int64, channels []string, kind Kind) (bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT channels FROM summaries WHERE kind = ? AND start_message_id <= ? AND end_message_id >= ?`,
		string(kind), endID, startID)
	if err != nil {
		return false, ppserr.Wrap(ppserr.DependencyDown, "crystallize.overlaps", "querying summaries", err)
	}
	defer rows.Close()

	want := map[string]struct{}{}
	for _, c := range channels {
		want[c] = struct{}{}
	}
	for rows.Next() {
		var chanStr string
		if err := rows.Scan(&chanStr); err != nil {
			return false, ppserr.Wrap(ppserr.Internal, "crystallize.overlaps", "scanning row", err)
		}
		for _, c := range strings.Split(chanStr, ",") {
			if _, ok := want[c]; ok {
				return true, nil
			}
		}
	}
	return false, rows.Err()
}

// Recent returns the current window (most recent `window` summaries) first;
// pass k <= window for just the window, larger k reaches into the archive.
func (s *Store) Recent(ctx context.Context, k int, kind *Kind) ([]Summary, error) {
	query := `SELECT id, text, start_message_id, end_message_id, channels, kind, created_at FROM summaries`
	args := []any{}
	if kind != nil {
		query += ` WHERE kind = ?`
		args = append(args, string(*kind))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, k)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ppserr.Wrap(ppserr.DependencyDown, "crystallize.Recent", "querying", err)
	}
	defer rows.Close()
	return scanSummaries(rows)
}

// Search performs a substring search over summary text, most recent first.
func (s *Store) Search(ctx context.Context, query string, k int) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, start_message_id, end_message_id, channels, kind, created_at
		 FROM summaries WHERE text LIKE ? ORDER BY created_at DESC LIMIT ?`,
		"%"+query+"%", k)
	if err != nil {
		return nil, ppserr.Wrap(ppserr.DependencyDown, "crystallize.Search", "querying", err)
	}
	defer rows.Close()
	return scanSummaries(rows)
}

// Stats returns counts by kind plus the oldest/newest summary timestamps.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT kind, COUNT(*) FROM summaries GROUP BY kind`)
	if err != nil {
		return Stats{}, ppserr.Wrap(ppserr.DependencyDown, "crystallize.Stats", "querying counts", err)
	}
	counts := map[Kind]int{}
	for rows.Next() {
		var k string
		var n int
		if err := rows.Scan(&k, &n); err != nil {
			rows.Close()
			return Stats{}, ppserr.Wrap(ppserr.Internal, "crystallize.Stats", "scanning count row", err)
		}
		counts[Kind(k)] = n
	}
	rows.Close()

	var oldestStr, newestStr sql.NullString
	err = s.db.QueryRowContext(ctx, `SELECT MIN(created_at), MAX(created_at) FROM summaries`).Scan(&oldestStr, &newestStr)
	if err != nil {
		return Stats{}, ppserr.Wrap(ppserr.DependencyDown, "crystallize.Stats", "querying bounds", err)
	}
	st := Stats{CountByKind: counts}
	if oldestStr.Valid {
		if t, err := time.Parse(time.RFC3339Nano, oldestStr.String); err == nil {
			st.Oldest = &t
		}
	}
	if newestStr.Valid {
		if t, err := time.Parse(time.RFC3339Nano, newestStr.String); err == nil {
			st.Newest = &t
		}
	}
	return st, nil
}

// Probe is L4's cheap health check (internal/health.Prober).
func (s *Store) Probe(ctx context.Context) (ok bool, detail string, elapsed time.Duration) {
	start := time.Now()
	err := s.db.PingContext(ctx)
	elapsed = time.Since(start)
	if err != nil {
		return false, err.Error(), elapsed
	}
	return true, "ok", elapsed
}

// TurnsSinceLast returns how many messages are currently unsummarized.
func (s *Store) TurnsSinceLast(ctx context.Context, kind Kind) (int, error) {
	return s.capture.CountUnsummarized(ctx)
}

func scanSummaries(rows *sql.Rows) ([]Summary, error) {
	var out []Summary
	for rows.Next() {
		var sm Summary
		var channels, kind, createdAt string
		if err := rows.Scan(&sm.ID, &sm.Text, &sm.StartMessageID, &sm.EndMessageID, &channels, &kind, &createdAt); err != nil {
			return nil, ppserr.Wrap(ppserr.Internal, "crystallize.scanSummaries", "scanning row", err)
		}
		sm.Channels = strings.Split(channels, ",")
		sm.Kind = Kind(kind)
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			sm.CreatedAt = t
		}
		out = append(out, sm)
	}
	return out, rows.Err()
}
