package texture

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/JDHayesBC/Awareness-sub005/internal/ppserr"
)

// EdgeResult is the shape documented in §4.3.3: an ordered list of facts
// with provenance and score.
type EdgeResult struct {
	UUID       string
	Fact       string
	SourceName string
	TargetName string
	Predicate  string
	Score      float64
	ValidFrom  time.Time
}

// NodeResult surfaces an entity summary (node_hybrid_search_rrf).
type NodeResult struct {
	UUID    string
	Name    string
	Summary string
	Score   float64
}

const rrfK = 60.0

// edgeCandidate mirrors the teacher's fusedCandidate (internal/rag/retrieve/
// fusion.go) adapted to rank over relation_edges rows instead of document
// chunks.
type edgeCandidate struct {
	uuid                   string
	fact                   string
	sourceUUID, targetUUID string
	validFrom              time.Time
	ftRank, vecRank        int
}

// EdgeHybridSearchRRF is the generic fact-lookup recipe: RRF over (BM25-style
// lexical rank on edge fact) + (vector similarity on edge fact), grounded on
// internal/rag/retrieve/fusion.go's FuseRRF.
func (s *Store) EdgeHybridSearchRRF(ctx context.Context, queryText string, limit int) ([]EdgeResult, error) {
	ftRows, err := s.lexicalEdgeCandidates(ctx, queryText, limit*4)
	if err != nil {
		return nil, err
	}
	vecRows, err := s.vectorEdgeCandidates(ctx, queryText, limit*4)
	if err != nil {
		return nil, err
	}
	fused := fuseEdges(ftRows, vecRows)
	return s.materializeEdges(ctx, fused, limit)
}

// EdgeHybridSearchNodeDistance adds a graph-distance boost to
// center_entity_uuid on top of EdgeHybridSearchRRF, grounded on
// internal/rag/retrieve/graph_expand.go's ExpandWithGraph neighbor-boost.
// If centerUUID is empty it falls back to EdgeHybridSearchRRF.
func (s *Store) EdgeHybridSearchNodeDistance(ctx context.Context, queryText string, limit int, centerUUID string) ([]EdgeResult, error) {
	if centerUUID == "" {
		return s.EdgeHybridSearchRRF(ctx, queryText, limit)
	}
	ftRows, err := s.lexicalEdgeCandidates(ctx, queryText, limit*4)
	if err != nil {
		return nil, err
	}
	vecRows, err := s.vectorEdgeCandidates(ctx, queryText, limit*4)
	if err != nil {
		return nil, err
	}
	fused := fuseEdges(ftRows, vecRows)

	neighbors, err := s.neighborSet(ctx, centerUUID, 2)
	if err != nil {
		return nil, err
	}
	const boost = 0.15
	for i := range fused {
		src, tgt := fused[i].sourceUUID, fused[i].targetUUID
		if neighbors[src] || neighbors[tgt] || src == centerUUID || tgt == centerUUID {
			fused[i].fused += boost
		}
	}
	sort.Slice(fused, func(i, j int) bool { return fused[i].fused > fused[j].fused })
	return s.materializeEdges(ctx, fused, limit)
}

// NodeHybridSearchRRF surfaces entity summaries ranked by full-text relevance
// (ts_rank_cd) over name and summary. It runs a single lexical query; nodes
// are not ranked by vector similarity and no rank fusion takes place.
func (s *Store) NodeHybridSearchRRF(ctx context.Context, queryText string, limit int) ([]NodeResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT uuid, name, summary, ts_rank_cd(to_tsvector('english', name || ' ' || summary), plainto_tsquery('english', $1)) AS score
		FROM entity_nodes
		WHERE to_tsvector('english', name || ' ' || summary) @@ plainto_tsquery('english', $1)
		ORDER BY score DESC LIMIT $2`, queryText, limit)
	if err != nil {
		return nil, ppserr.Wrap(ppserr.DependencyDown, "texture.NodeHybridSearchRRF", "querying nodes", err)
	}
	defer rows.Close()

	var out []NodeResult
	for rows.Next() {
		var n NodeResult
		if err := rows.Scan(&n.UUID, &n.Name, &n.Summary, &n.Score); err != nil {
			return nil, ppserr.Wrap(ppserr.Internal, "texture.NodeHybridSearchRRF", "scanning row", err)
		}
		out = append(out, n)
	}
	for _, n := range out {
		_ = s.checkAndMergeDuplicates(ctx, n.Name)
	}
	return out, rows.Err()
}

type fusedEdge struct {
	edgeCandidate
	fused float64
}

func (s *Store) lexicalEdgeCandidates(ctx context.Context, queryText string, limit int) ([]edgeCandidate, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT uuid, fact, source_uuid, target_uuid, valid_from,
			ts_rank_cd(to_tsvector('english', fact), plainto_tsquery('english', $1)) AS score
		FROM relation_edges
		WHERE expired_at IS NULL AND (valid_to IS NULL OR valid_to > now())
		  AND to_tsvector('english', fact) @@ plainto_tsquery('english', $1)
		ORDER BY score DESC LIMIT $2`, queryText, limit)
	if err != nil {
		return nil, ppserr.Wrap(ppserr.DependencyDown, "texture.lexicalEdgeCandidates", "querying fts", err)
	}
	defer rows.Close()

	var out []edgeCandidate
	rank := 1
	for rows.Next() {
		var c edgeCandidate
		var score float64
		if err := rows.Scan(&c.uuid, &c.fact, &c.sourceUUID, &c.targetUUID, &c.validFrom, &score); err != nil {
			return nil, ppserr.Wrap(ppserr.Internal, "texture.lexicalEdgeCandidates", "scanning row", err)
		}
		c.ftRank = rank
		rank++
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) vectorEdgeCandidates(ctx context.Context, queryText string, limit int) ([]edgeCandidate, error) {
	if s.embed == nil {
		return nil, nil
	}
	vec, err := s.embed.EmbedOne(ctx, queryText)
	if err != nil {
		return nil, nil // embedding service down: degrade to lexical-only, per §4.2 failure semantics
	}
	rows, err := s.pool.Query(ctx, `
		SELECT uuid, fact, source_uuid, target_uuid, valid_from
		FROM relation_edges
		WHERE expired_at IS NULL AND (valid_to IS NULL OR valid_to > now()) AND embedding IS NOT NULL
		ORDER BY embedding <-> $1 LIMIT $2`, vecToPg(vec), limit)
	if err != nil {
		return nil, ppserr.Wrap(ppserr.DependencyDown, "texture.vectorEdgeCandidates", "querying vector index", err)
	}
	defer rows.Close()

	var out []edgeCandidate
	rank := 1
	for rows.Next() {
		var c edgeCandidate
		if err := rows.Scan(&c.uuid, &c.fact, &c.sourceUUID, &c.targetUUID, &c.validFrom); err != nil {
			return nil, ppserr.Wrap(ppserr.Internal, "texture.vectorEdgeCandidates", "scanning row", err)
		}
		c.vecRank = rank
		rank++
		out = append(out, c)
	}
	return out, rows.Err()
}

// fuseEdges performs Reciprocal Rank Fusion over lexical and vector edge
// candidate lists, equal-weighted, grounded on fusion.go's FuseRRF.
func fuseEdges(ft, vec []edgeCandidate) []fusedEdge {
	byUUID := map[string]*fusedEdge{}
	order := []string{}
	upsert := func(c edgeCandidate) *fusedEdge {
		if e, ok := byUUID[c.uuid]; ok {
			return e
		}
		e := &fusedEdge{edgeCandidate: edgeCandidate{uuid: c.uuid, fact: c.fact, sourceUUID: c.sourceUUID, targetUUID: c.targetUUID, validFrom: c.validFrom}}
		byUUID[c.uuid] = e
		order = append(order, c.uuid)
		return e
	}
	for _, c := range ft {
		e := upsert(c)
		e.ftRank = c.ftRank
	}
	for _, c := range vec {
		e := upsert(c)
		e.vecRank = c.vecRank
	}
	out := make([]fusedEdge, 0, len(order))
	for _, id := range order {
		e := byUUID[id]
		ftContrib, vecContrib := 0.0, 0.0
		if e.ftRank > 0 {
			ftContrib = 1.0 / (rrfK + float64(e.ftRank))
		}
		if e.vecRank > 0 {
			vecContrib = 1.0 / (rrfK + float64(e.vecRank))
		}
		e.fused = 0.5*ftContrib + 0.5*vecContrib
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if math.Abs(out[i].fused-out[j].fused) > 1e-12 {
			return out[i].fused > out[j].fused
		}
		return out[i].uuid < out[j].uuid
	})
	return out
}

func (s *Store) materializeEdges(ctx context.Context, fused []fusedEdge, limit int) ([]EdgeResult, error) {
	if limit <= 0 {
		limit = 10
	}
	seenFact := map[string]bool{}
	var out []EdgeResult
	for _, f := range fused {
		if len(out) >= limit {
			break
		}
		var sourceUUID, targetUUID, predicate, sourceName, targetName string
		err := s.pool.QueryRow(ctx, `
			SELECT e.source_uuid, e.target_uuid, e.predicate, sn.name, tn.name
			FROM relation_edges e
			JOIN entity_nodes sn ON sn.uuid = e.source_uuid
			JOIN entity_nodes tn ON tn.uuid = e.target_uuid
			WHERE e.uuid = $1`, f.uuid).Scan(&sourceUUID, &targetUUID, &predicate, &sourceName, &targetName)
		if err != nil {
			continue // edge may have been collapsed by a concurrent dedup merge
		}
		dedupeKey := sourceUUID + "|" + targetUUID + "|" + predicate + "|" + f.fact
		if seenFact[dedupeKey] {
			continue
		}
		seenFact[dedupeKey] = true
		out = append(out, EdgeResult{
			UUID: f.uuid, Fact: f.fact, SourceName: sourceName, TargetName: targetName,
			Predicate: predicate, Score: f.fused, ValidFrom: f.validFrom,
		})
	}
	for _, e := range out {
		_ = s.checkAndMergeDuplicates(ctx, e.SourceName)
	}
	return out, nil
}

// neighborSet returns the set of node uuids within hops of centerUUID.
func (s *Store) neighborSet(ctx context.Context, centerUUID string, hops int) (map[string]bool, error) {
	frontier := map[string]bool{centerUUID: true}
	visited := map[string]bool{centerUUID: true}
	for h := 0; h < hops; h++ {
		ids := make([]string, 0, len(frontier))
		for id := range frontier {
			ids = append(ids, id)
		}
		rows, err := s.pool.Query(ctx, `
			SELECT source_uuid, target_uuid FROM relation_edges
			WHERE (source_uuid = ANY($1) OR target_uuid = ANY($1)) AND expired_at IS NULL`, ids)
		if err != nil {
			return nil, ppserr.Wrap(ppserr.DependencyDown, "texture.neighborSet", "querying neighbors", err)
		}
		next := map[string]bool{}
		for rows.Next() {
			var a, b string
			if err := rows.Scan(&a, &b); err != nil {
				rows.Close()
				return nil, ppserr.Wrap(ppserr.Internal, "texture.neighborSet", "scanning row", err)
			}
			if !visited[a] {
				next[a] = true
			}
			if !visited[b] {
				next[b] = true
			}
		}
		rows.Close()
		for id := range next {
			visited[id] = true
		}
		frontier = next
	}
	delete(visited, centerUUID)
	return visited, nil
}
