// Package texture implements the Rich Texture Layer (L3): episode ingestion
// into an entity/relationship knowledge graph with a constrained schema,
// bi-temporal edges, and hybrid (vector + lexical + graph-proximity)
// retrieval. Grounded directly on the teacher's
// internal/agents/graph_memory.go (MemoryNode/MemoryEdge over pgx +
// pgvector) generalized from a cost-weighted recommendation graph to the
// closed entity/edge schema this layer requires.
package texture

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/JDHayesBC/Awareness-sub005/internal/embedclient"
	"github.com/JDHayesBC/Awareness-sub005/internal/llmclient"
	"github.com/JDHayesBC/Awareness-sub005/internal/ppserr"
)

// EntityType is the closed schema of node kinds.
type EntityType string

const (
	TypePerson            EntityType = "Person"
	TypePlace             EntityType = "Place"
	TypeConcept           EntityType = "Concept"
	TypeSymbol            EntityType = "Symbol"
	TypeTechnicalArtifact EntityType = "TechnicalArtifact"
	TypeEvent             EntityType = "Event"
)

var closedEntityTypes = map[EntityType]bool{
	TypePerson: true, TypePlace: true, TypeConcept: true,
	TypeSymbol: true, TypeTechnicalArtifact: true, TypeEvent: true,
}

// EdgeType is the closed schema of predicates the extractor may emit.
// Each carries a short docstring describing when to emit it (used to build
// the extraction prompt) and its own single-valued-ness (a single-valued
// predicate expires the prior current edge on contradiction rather than
// coexisting with it).
type EdgeType struct {
	Predicate    string
	Doc          string
	SingleValued bool
}

var closedEdgeTypes = []EdgeType{
	{"knows", "two people are acquainted", false},
	{"likes", "a preference or fondness", false},
	{"works_on", "an ongoing project or task relationship", false},
	{"located_in", "physical or logical containment", true},
	{"member_of", "organizational or group membership", false},
	{"created", "authorship or origination", false},
	{"related_to", "a generic fallback relationship", false},
	{"occurred_at", "an event's place", true},
	{"participated_in", "involvement in an event", false},
}

// edgeTypeMap lists the predicates expected between a given
// (source-type, target-type) pair. Extraction does not consult it: the map is
// not part of the extraction prompt and emitted edges are not checked or
// annotated against it.
var edgeTypeMap = map[[2]EntityType][]string{
	{TypePerson, TypePerson}:            {"knows", "likes", "member_of", "related_to"},
	{TypePerson, TypePlace}:             {"located_in", "related_to"},
	{TypePerson, TypeConcept}:           {"likes", "works_on", "related_to"},
	{TypePerson, TypeTechnicalArtifact}: {"works_on", "created", "related_to"},
	{TypePerson, TypeEvent}:             {"participated_in", "related_to"},
	{TypeEvent, TypePlace}:              {"occurred_at", "related_to"},
}

// GraphEpisode is the unit handed to the extractor.
type GraphEpisode struct {
	EpisodeName string
	Body        string
	Channel     string
	Speaker     string
	Role        string
	Timestamp   time.Time
}

// EntityNode is the L3 node record.
type EntityNode struct {
	UUID            string
	Name            string
	Types           []EntityType
	Summary         string
	CreatedAt       time.Time
	LastMentionedAt time.Time
}

// RelationEdge is the L3 bi-temporal edge record.
type RelationEdge struct {
	UUID       string
	SourceUUID string
	TargetUUID string
	Predicate  string
	Fact       string
	ValidFrom  time.Time
	ValidTo    *time.Time
	CreatedAt  time.Time
	ExpiredAt  *time.Time
}

// IsCurrent reports whether e is current per §3's bi-temporal invariant.
func (e RelationEdge) IsCurrent(now time.Time) bool {
	if e.ExpiredAt != nil {
		return false
	}
	if e.ValidTo != nil && !e.ValidTo.After(now) {
		return false
	}
	return true
}

// IngestionBatch tracks the ingestion controller's batch lifecycle.
type IngestionBatch struct {
	ID             int64
	StartMessageID int64
	EndMessageID   int64
	Channels       []string
	CreatedAt      time.Time
	Status         string
}

const (
	BatchPending   = "pending"
	BatchSucceeded = "succeeded"
	BatchPartial   = "partial"
	BatchFailed    = "failed"
)

// SentinelFailedBatchID marks messages whose graph ingestion failed for good
// (a schema violation, or a transient error that outlasted the retries), so
// they are never silently retried (§4.7).
const SentinelFailedBatchID int64 = -1

// Store owns the Postgres/pgvector-backed graph.
type Store struct {
	pool  *pgxpool.Pool
	embed *embedclient.Client
	llm   *llmclient.Client
	dim   int

	// dedupThreshold is K in §4.3.2: at >= this many duplicate (name,type)
	// nodes, a merge is triggered on the next search that surfaces them.
	dedupThreshold int
}

// Open connects to dsn and ensures the schema, following the teacher's
// EnsureEnhancedMemoryTables idiom (pgvector index, not pgrouting — L3's
// traversals here are small bounded BFS, not shortest-path routing).
func Open(ctx context.Context, dsn string, embed *embedclient.Client, llm *llmclient.Client, dim int) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, ppserr.Wrap(ppserr.DependencyDown, "texture.Open", "connecting to graph backend", err)
	}
	s := &Store{pool: pool, embed: embed, llm: llm, dim: dim, dedupThreshold: 5}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// SetDedupThreshold overrides the default K (5) for self-healing dedup.
func (s *Store) SetDedupThreshold(k int) { s.dedupThreshold = k }

func (s *Store) Close() { s.pool.Close() }

// Probe is L3's cheap health check (internal/health.Prober).
func (s *Store) Probe(ctx context.Context) (ok bool, detail string, elapsed time.Duration) {
	start := time.Now()
	err := s.pool.Ping(ctx)
	elapsed = time.Since(start)
	if err != nil {
		return false, err.Error(), elapsed
	}
	return true, "ok", elapsed
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector;`,
		`CREATE TABLE IF NOT EXISTS entity_nodes (
			uuid TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			types TEXT[] NOT NULL,
			summary TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			last_mentioned_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			embedding vector(` + itoa(s.dim) + `)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_entity_nodes_name_types ON entity_nodes (lower(name), types);`,
		`CREATE TABLE IF NOT EXISTS relation_edges (
			uuid TEXT PRIMARY KEY,
			source_uuid TEXT NOT NULL REFERENCES entity_nodes(uuid) ON DELETE CASCADE,
			target_uuid TEXT NOT NULL REFERENCES entity_nodes(uuid) ON DELETE CASCADE,
			predicate TEXT NOT NULL,
			fact TEXT NOT NULL,
			valid_from TIMESTAMPTZ NOT NULL,
			valid_to TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			expired_at TIMESTAMPTZ,
			embedding vector(` + itoa(s.dim) + `)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_relation_edges_source ON relation_edges(source_uuid);`,
		`CREATE INDEX IF NOT EXISTS idx_relation_edges_target ON relation_edges(target_uuid);`,
		`CREATE INDEX IF NOT EXISTS idx_relation_edges_current ON relation_edges(expired_at, valid_to);`,
		`CREATE TABLE IF NOT EXISTS ingestion_batches (
			id BIGSERIAL PRIMARY KEY,
			start_message_id BIGINT NOT NULL,
			end_message_id BIGINT NOT NULL,
			channels TEXT[] NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			status TEXT NOT NULL
		);`,
	}
	for _, q := range stmts {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return ppserr.Wrap(ppserr.Internal, "texture.migrate", "applying schema", err)
		}
	}
	return nil
}

func itoa(n int) string {
	if n <= 0 {
		n = 768
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	if len(digits) == 0 {
		return "768"
	}
	return string(digits)
}

func vecToPg(v []float32) pgvector.Vector { return pgvector.NewVector(v) }
