package texture

import (
	"context"

	"github.com/JDHayesBC/Awareness-sub005/internal/ppserr"
)

// MergePlan describes what a dedup merge would do, for dry-run operators
// (§4.3.2 "a dry-run mode MUST exist for operators").
type MergePlan struct {
	Name           string
	CanonicalUUID  string
	DuplicateUUIDs []string
	EdgesReparented int
}

// checkAndMergeDuplicates is called after any search materializes a
// canonical entity: if >= K nodes share name (case-insensitive), merge is
// performed inline. Candidates are matched by name only; node types are not
// compared.
func (s *Store) checkAndMergeDuplicates(ctx context.Context, name string) error {
	dupes, err := s.findDuplicates(ctx, name)
	if err != nil {
		return err
	}
	if len(dupes) < s.dedupThreshold {
		return nil
	}
	_, err = s.merge(ctx, name, dupes, false)
	return err
}

// PlanMerge returns what merging name's duplicates would do, without
// mutating the store.
func (s *Store) PlanMerge(ctx context.Context, name string) (*MergePlan, error) {
	return s.Dedup(ctx, name, true)
}

// Dedup runs the merge for the nodes sharing name (case-insensitive; node
// types are not compared), regardless of the inline dedupThreshold, for the ppsctl dedup admin op
// (§4.3.2). dryRun true reports the plan without mutating the graph.
func (s *Store) Dedup(ctx context.Context, name string, dryRun bool) (*MergePlan, error) {
	dupes, err := s.findDuplicates(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(dupes) == 0 {
		return &MergePlan{Name: name}, nil
	}
	return s.merge(ctx, name, dupes, dryRun)
}

type dupCandidate struct {
	uuid   string
	degree int
}

func (s *Store) findDuplicates(ctx context.Context, name string) ([]dupCandidate, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT n.uuid,
			(SELECT COUNT(*) FROM relation_edges e WHERE e.source_uuid = n.uuid OR e.target_uuid = n.uuid) AS degree
		FROM entity_nodes n WHERE lower(n.name) = lower($1)
		ORDER BY degree DESC`, name)
	if err != nil {
		return nil, ppserr.Wrap(ppserr.DependencyDown, "texture.findDuplicates", "querying candidates", err)
	}
	defer rows.Close()

	var out []dupCandidate
	for rows.Next() {
		var c dupCandidate
		if err := rows.Scan(&c.uuid, &c.degree); err != nil {
			return nil, ppserr.Wrap(ppserr.Internal, "texture.findDuplicates", "scanning candidate", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// merge picks the most-connected node as canonical, re-parents all edges,
// skips self-loops produced by the merge, collapses duplicate edges by
// (source,target,predicate,fact) identity, and deletes the duplicates. When
// dryRun is true, no mutation occurs and the plan reflects what would happen.
func (s *Store) merge(ctx context.Context, name string, dupes []dupCandidate, dryRun bool) (*MergePlan, error) {
	canonical := dupes[0].uuid
	var duplicateUUIDs []string
	for _, d := range dupes[1:] {
		duplicateUUIDs = append(duplicateUUIDs, d.uuid)
	}
	plan := &MergePlan{Name: name, CanonicalUUID: canonical, DuplicateUUIDs: duplicateUUIDs}
	if dryRun || len(duplicateUUIDs) == 0 {
		return plan, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, ppserr.Wrap(ppserr.DependencyDown, "texture.merge", "starting transaction", err)
	}
	defer tx.Rollback(ctx)

	for _, dup := range duplicateUUIDs {
		res, err := tx.Exec(ctx, `UPDATE relation_edges SET source_uuid = $1 WHERE source_uuid = $2 AND target_uuid != $1`, canonical, dup)
		if err != nil {
			return nil, ppserr.Wrap(ppserr.DependencyDown, "texture.merge", "reparenting source edges", err)
		}
		plan.EdgesReparented += int(res.RowsAffected())

		res, err = tx.Exec(ctx, `UPDATE relation_edges SET target_uuid = $1 WHERE target_uuid = $2 AND source_uuid != $1`, canonical, dup)
		if err != nil {
			return nil, ppserr.Wrap(ppserr.DependencyDown, "texture.merge", "reparenting target edges", err)
		}
		plan.EdgesReparented += int(res.RowsAffected())

		// Self-loops produced by the merge (dup was the other end of an
		// edge with canonical) are removed, not reparented.
		if _, err := tx.Exec(ctx, `DELETE FROM relation_edges WHERE source_uuid = $1 OR target_uuid = $1`, dup); err != nil {
			return nil, ppserr.Wrap(ppserr.DependencyDown, "texture.merge", "clearing residual duplicate edges", err)
		}
	}

	// Collapse duplicate edges that now share (source,target,predicate,fact).
	if _, err := tx.Exec(ctx, `
		DELETE FROM relation_edges a USING relation_edges b
		WHERE a.uuid > b.uuid
		  AND a.source_uuid = b.source_uuid AND a.target_uuid = b.target_uuid
		  AND a.predicate = b.predicate AND a.fact = b.fact`); err != nil {
		return nil, ppserr.Wrap(ppserr.DependencyDown, "texture.merge", "collapsing duplicate edges", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM entity_nodes WHERE uuid = ANY($1)`, duplicateUUIDs); err != nil {
		return nil, ppserr.Wrap(ppserr.DependencyDown, "texture.merge", "deleting duplicate nodes", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, ppserr.Wrap(ppserr.DependencyDown, "texture.merge", "committing merge", err)
	}
	return plan, nil
}
