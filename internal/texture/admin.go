package texture

import (
	"context"
	"time"

	"github.com/JDHayesBC/Awareness-sub005/internal/ppserr"
)

// AddTriplet is the manual-insert admin op (§4.3.5): it bypasses extraction
// and resolves/creates the source and target entities directly.
func (s *Store) AddTriplet(ctx context.Context, sourceName, predicate, targetName, fact string, types []EntityType, timestamp time.Time) (string, error) {
	if len(types) == 0 {
		types = []EntityType{TypeConcept}
	}
	srcID, err := s.resolveEntity(ctx, sourceName, types, "", timestamp)
	if err != nil {
		return "", err
	}
	tgtID, err := s.resolveEntity(ctx, targetName, types, "", timestamp)
	if err != nil {
		return "", err
	}
	if err := s.emitEdge(ctx, srcID, tgtID, predicate, fact, timestamp); err != nil {
		return "", err
	}
	var edgeUUID string
	err = s.pool.QueryRow(ctx, `
		SELECT uuid FROM relation_edges WHERE source_uuid = $1 AND target_uuid = $2 AND predicate = $3 AND fact = $4
		ORDER BY created_at DESC LIMIT 1`, srcID, tgtID, predicate, fact).Scan(&edgeUUID)
	if err != nil {
		return "", ppserr.Wrap(ppserr.Internal, "texture.AddTriplet", "reading back inserted edge", err)
	}
	return edgeUUID, nil
}

// DeleteEdge removes an edge outright (distinct from expiry, which is the
// path extraction takes on contradiction).
func (s *Store) DeleteEdge(ctx context.Context, edgeUUID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM relation_edges WHERE uuid = $1`, edgeUUID)
	if err != nil {
		return ppserr.Wrap(ppserr.DependencyDown, "texture.DeleteEdge", "deleting edge", err)
	}
	if tag.RowsAffected() == 0 {
		return ppserr.New(ppserr.NotFound, "texture.DeleteEdge", "no such edge")
	}
	return nil
}

// IngestionStats reports batch counts by status.
type IngestionStats struct {
	CountByStatus map[string]int
	TotalBatches  int
}

func (s *Store) IngestionStats(ctx context.Context) (IngestionStats, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM ingestion_batches GROUP BY status`)
	if err != nil {
		return IngestionStats{}, ppserr.Wrap(ppserr.DependencyDown, "texture.IngestionStats", "querying stats", err)
	}
	defer rows.Close()
	counts := map[string]int{}
	total := 0
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return IngestionStats{}, ppserr.Wrap(ppserr.Internal, "texture.IngestionStats", "scanning row", err)
		}
		counts[status] = n
		total += n
	}
	return IngestionStats{CountByStatus: counts, TotalBatches: total}, rows.Err()
}

// RecordBatch creates a new IngestionBatch row in pending status, returning
// its id for the caller (ingestctl, or an operator via ingest_batch) to fill
// in.
func (s *Store) RecordBatch(ctx context.Context, startID, endID int64, channels []string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO ingestion_batches (start_message_id, end_message_id, channels, status) VALUES ($1, $2, $3, $4) RETURNING id`,
		startID, endID, channels, BatchPending).Scan(&id)
	if err != nil {
		return 0, ppserr.Wrap(ppserr.DependencyDown, "texture.RecordBatch", "inserting batch", err)
	}
	return id, nil
}

// CompleteBatch updates a batch's terminal status.
func (s *Store) CompleteBatch(ctx context.Context, batchID int64, status string) error {
	_, err := s.pool.Exec(ctx, `UPDATE ingestion_batches SET status = $1 WHERE id = $2`, status, batchID)
	if err != nil {
		return ppserr.Wrap(ppserr.DependencyDown, "texture.CompleteBatch", "updating batch status", err)
	}
	return nil
}

// IngestBatch pushes messages through extraction synchronously, bypassing
// the paced controller, for an operator who wants an immediate ingest
// (§4.3.5). It returns the number of episodes that ingested successfully.
func (s *Store) IngestBatch(ctx context.Context, episodes []GraphEpisode, extCtx ExtractionContext) (succeeded int, err error) {
	for _, ep := range episodes {
		if ingestErr := s.Ingest(ctx, ep, extCtx); ingestErr != nil {
			return succeeded, ingestErr
		}
		succeeded++
	}
	return succeeded, nil
}
