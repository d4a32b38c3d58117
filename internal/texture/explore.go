package texture

import (
	"context"
	"time"

	"github.com/JDHayesBC/Awareness-sub005/internal/ppserr"
)

// Subgraph is the result of a bounded BFS explore (§4.3.4). The graph is
// naturally cyclic (per §9), so traversal is depth-bounded, not
// visited-set-bounded by type.
type Subgraph struct {
	CenterUUID string
	Nodes      []EntityNode
	Edges      []RelationEdge
}

// Explore runs a BFS from the canonical node for entityName out to depth
// (capped at 3), returning every node and current edge discovered.
func (s *Store) Explore(ctx context.Context, entityName string, depth int) (*Subgraph, error) {
	if depth > 3 {
		depth = 3
	}
	centerID, err := s.lookupCanonicalUUID(ctx, entityName)
	if err != nil {
		return nil, err
	}

	visitedNodes := map[string]EntityNode{}
	visitedEdges := map[string]RelationEdge{}
	frontier := []string{centerID}
	seenFrontier := map[string]bool{centerID: true}

	for level := 0; level < depth && len(frontier) > 0; level++ {
		rows, err := s.pool.Query(ctx, `
			SELECT uuid, source_uuid, target_uuid, predicate, fact, valid_from, valid_to, created_at, expired_at
			FROM relation_edges
			WHERE (source_uuid = ANY($1) OR target_uuid = ANY($1)) AND expired_at IS NULL AND (valid_to IS NULL OR valid_to > now())`,
			frontier)
		if err != nil {
			return nil, ppserr.Wrap(ppserr.DependencyDown, "texture.Explore", "querying edges", err)
		}
		var next []string
		for rows.Next() {
			var e RelationEdge
			if err := rows.Scan(&e.UUID, &e.SourceUUID, &e.TargetUUID, &e.Predicate, &e.Fact, &e.ValidFrom, &e.ValidTo, &e.CreatedAt, &e.ExpiredAt); err != nil {
				rows.Close()
				return nil, ppserr.Wrap(ppserr.Internal, "texture.Explore", "scanning edge", err)
			}
			visitedEdges[e.UUID] = e
			for _, id := range []string{e.SourceUUID, e.TargetUUID} {
				if !seenFrontier[id] {
					seenFrontier[id] = true
					next = append(next, id)
				}
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, ppserr.Wrap(ppserr.DependencyDown, "texture.Explore", "iterating edges", err)
		}
		frontier = next
	}

	allIDs := make([]string, 0, len(seenFrontier))
	for id := range seenFrontier {
		allIDs = append(allIDs, id)
	}
	nodeRows, err := s.pool.Query(ctx, `
		SELECT uuid, name, types, summary, created_at, last_mentioned_at FROM entity_nodes WHERE uuid = ANY($1)`, allIDs)
	if err != nil {
		return nil, ppserr.Wrap(ppserr.DependencyDown, "texture.Explore", "querying nodes", err)
	}
	defer nodeRows.Close()
	for nodeRows.Next() {
		var n EntityNode
		var types []string
		if err := nodeRows.Scan(&n.UUID, &n.Name, &types, &n.Summary, &n.CreatedAt, &n.LastMentionedAt); err != nil {
			return nil, ppserr.Wrap(ppserr.Internal, "texture.Explore", "scanning node", err)
		}
		for _, t := range types {
			n.Types = append(n.Types, EntityType(t))
		}
		visitedNodes[n.UUID] = n
	}

	sg := &Subgraph{CenterUUID: centerID}
	for _, n := range visitedNodes {
		sg.Nodes = append(sg.Nodes, n)
	}
	for _, e := range visitedEdges {
		sg.Edges = append(sg.Edges, e)
	}
	return sg, nil
}

// Timeline returns edges touching entityName's canonical node ordered by
// valid_from, optionally bounded by [start, end].
func (s *Store) Timeline(ctx context.Context, entityName string, start, end *time.Time) ([]RelationEdge, error) {
	centerID, err := s.lookupCanonicalUUID(ctx, entityName)
	if err != nil {
		return nil, err
	}
	query := `
		SELECT uuid, source_uuid, target_uuid, predicate, fact, valid_from, valid_to, created_at, expired_at
		FROM relation_edges WHERE (source_uuid = $1 OR target_uuid = $1)`
	args := []any{centerID}
	if start != nil {
		query += ` AND valid_from >= $2`
		args = append(args, *start)
	}
	if end != nil {
		query += ` AND valid_from <= $` + itoa(len(args)+1)
		args = append(args, *end)
	}
	query += ` ORDER BY valid_from ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, ppserr.Wrap(ppserr.DependencyDown, "texture.Timeline", "querying timeline", err)
	}
	defer rows.Close()

	var out []RelationEdge
	for rows.Next() {
		var e RelationEdge
		if err := rows.Scan(&e.UUID, &e.SourceUUID, &e.TargetUUID, &e.Predicate, &e.Fact, &e.ValidFrom, &e.ValidTo, &e.CreatedAt, &e.ExpiredAt); err != nil {
			return nil, ppserr.Wrap(ppserr.Internal, "texture.Timeline", "scanning row", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// EntityExists reports whether uuid names a current entity node, used by
// texture_search to decide whether a requested center_entity_uuid is a real
// anchor for the graph-distance boost or should fall back annotated (§8
// boundary: "texture_search with center_entity_uuid that does not exist
// falls back to generic RRF and annotates the response").
func (s *Store) EntityExists(ctx context.Context, uuid string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM entity_nodes WHERE uuid = $1)`, uuid).Scan(&exists)
	if err != nil {
		return false, ppserr.Wrap(ppserr.DependencyDown, "texture.EntityExists", "checking entity", err)
	}
	return exists, nil
}

func (s *Store) lookupCanonicalUUID(ctx context.Context, entityName string) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx, `
		SELECT n.uuid FROM entity_nodes n
		WHERE lower(n.name) = lower($1)
		ORDER BY (SELECT COUNT(*) FROM relation_edges e WHERE e.source_uuid = n.uuid OR e.target_uuid = n.uuid) DESC
		LIMIT 1`, entityName).Scan(&id)
	if err != nil {
		return "", ppserr.New(ppserr.NotFound, "texture.lookupCanonicalUUID", "no such entity: "+entityName)
	}
	return id, nil
}
