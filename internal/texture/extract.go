package texture

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JDHayesBC/Awareness-sub005/internal/llmclient"
	"github.com/JDHayesBC/Awareness-sub005/internal/ppserr"
)

// ExtractionContext disambiguates low-entropy names in the extraction
// prompt (§4.3.1 step 1).
type ExtractionContext struct {
	CurrentScene        string
	CrystallizationNote string
	RecentAnchorSnippet string
}

type extractedEntity struct {
	Name    string   `json:"name"`
	Types   []string `json:"types"`
	Summary string   `json:"summary"`
}

type extractedEdge struct {
	SourceName string `json:"source_name"`
	TargetName string `json:"target_name"`
	Predicate  string `json:"predicate"`
	Fact       string `json:"fact"`
}

type extractionResult struct {
	Entities []extractedEntity `json:"entities"`
	Edges    []extractedEdge   `json:"edges"`
}

// Ingest runs the three-step extraction pipeline over ep: entity extraction,
// resolution against existing canonical nodes, and edge emission with
// contradiction handling (§4.3.1).
func (s *Store) Ingest(ctx context.Context, ep GraphEpisode, extCtx ExtractionContext) error {
	result, err := s.extract(ctx, ep, extCtx)
	if err != nil {
		return err
	}

	resolved := make(map[string]string) // extracted name (lower) -> uuid
	for _, e := range result.Entities {
		types := closeTypes(e.Types)
		if len(types) == 0 {
			types = []EntityType{TypeConcept}
		}
		id, err := s.resolveEntity(ctx, e.Name, types, e.Summary, ep.Timestamp)
		if err != nil {
			return err
		}
		resolved[strings.ToLower(e.Name)] = id
	}

	for _, edge := range result.Edges {
		srcID, ok := resolved[strings.ToLower(edge.SourceName)]
		if !ok {
			srcID, err = s.resolveEntity(ctx, edge.SourceName, []EntityType{TypeConcept}, "", ep.Timestamp)
			if err != nil {
				return err
			}
		}
		tgtID, ok := resolved[strings.ToLower(edge.TargetName)]
		if !ok {
			tgtID, err = s.resolveEntity(ctx, edge.TargetName, []EntityType{TypeConcept}, "", ep.Timestamp)
			if err != nil {
				return err
			}
		}
		if err := s.emitEdge(ctx, srcID, tgtID, edge.Predicate, edge.Fact, ep.Timestamp); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) extract(ctx context.Context, ep GraphEpisode, extCtx ExtractionContext) (extractionResult, error) {
	if s.llm == nil {
		return extractionResult{}, ppserr.New(ppserr.DependencyDown, "texture.extract", "completion client not configured")
	}
	prompt := buildExtractionPrompt(ep, extCtx)
	raw, err := s.llm.Complete(ctx, []llmclient.Message{
		{Role: "system", Content: "You extract entities and relationships as strict JSON. Output only JSON."},
		{Role: "user", Content: prompt},
	}, 1024, 0)
	if err != nil {
		return extractionResult{}, err
	}
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var result extractionResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return extractionResult{}, ppserr.Wrap(ppserr.Internal, "texture.extract", "parsing extraction response", err)
	}
	return result, nil
}

func buildExtractionPrompt(ep GraphEpisode, extCtx ExtractionContext) string {
	var typeNames []string
	for t := range closedEntityTypes {
		typeNames = append(typeNames, string(t))
	}
	var edgeDocs []string
	for _, et := range closedEdgeTypes {
		edgeDocs = append(edgeDocs, fmt.Sprintf("- %s: %s", et.Predicate, et.Doc))
	}
	return fmt.Sprintf(`Entity types: %s
Edge types:
%s

Context: scene=%q, summary=%q, recent_anchor=%q

Episode (speaker=%s, role=%s, channel=%s, time=%s):
%s

Return JSON: {"entities":[{"name":str,"types":[str],"summary":str}],"edges":[{"source_name":str,"target_name":str,"predicate":str,"fact":str}]}`,
		strings.Join(typeNames, ", "), strings.Join(edgeDocs, "\n"),
		extCtx.CurrentScene, extCtx.CrystallizationNote, extCtx.RecentAnchorSnippet,
		ep.Speaker, ep.Role, ep.Channel, ep.Timestamp.Format(time.RFC3339), ep.Body)
}

func closeTypes(raw []string) []EntityType {
	var out []EntityType
	for _, r := range raw {
		for t := range closedEntityTypes {
			if strings.EqualFold(r, string(t)) {
				out = append(out, t)
				break
			}
		}
	}
	return out
}

// resolveEntity finds the canonical node for (name, types) by (lowercased
// name, type-set) per §4.3.1 step 2, preferring the most-connected existing
// node on ambiguity, or creates a new one.
func (s *Store) resolveEntity(ctx context.Context, name string, types []EntityType, summary string, mentionedAt time.Time) (string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT n.uuid, n.types,
			(SELECT COUNT(*) FROM relation_edges e WHERE e.source_uuid = n.uuid OR e.target_uuid = n.uuid) AS degree
		FROM entity_nodes n
		WHERE lower(n.name) = lower($1)
		ORDER BY degree DESC`, name)
	if err != nil {
		return "", ppserr.Wrap(ppserr.DependencyDown, "texture.resolveEntity", "querying candidates", err)
	}
	defer rows.Close()

	var bestID string
	for rows.Next() {
		var id string
		var existingTypes []string
		var degree int
		if err := rows.Scan(&id, &existingTypes, &degree); err != nil {
			return "", ppserr.Wrap(ppserr.Internal, "texture.resolveEntity", "scanning candidate", err)
		}
		if bestID == "" && sameTypeSet(existingTypes, types) {
			bestID = id
		}
	}
	if err := rows.Err(); err != nil {
		return "", ppserr.Wrap(ppserr.DependencyDown, "texture.resolveEntity", "iterating candidates", err)
	}
	if bestID != "" {
		_, err := s.pool.Exec(ctx, `UPDATE entity_nodes SET last_mentioned_at = $1 WHERE uuid = $2`, mentionedAt, bestID)
		if err != nil {
			return "", ppserr.Wrap(ppserr.DependencyDown, "texture.resolveEntity", "updating last_mentioned_at", err)
		}
		return bestID, nil
	}

	id := uuid.NewString()
	typeStrs := make([]string, len(types))
	for i, t := range types {
		typeStrs[i] = string(t)
	}
	var embedding any
	if s.embed != nil {
		if vec, err := s.embed.EmbedOne(ctx, name+" "+summary); err == nil {
			embedding = vecToPg(vec)
		}
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO entity_nodes (uuid, name, types, summary, created_at, last_mentioned_at, embedding)
		VALUES ($1, $2, $3, $4, $5, $5, $6)`,
		id, name, typeStrs, summary, mentionedAt, embedding)
	if err != nil {
		return "", ppserr.Wrap(ppserr.DependencyDown, "texture.resolveEntity", "inserting entity", err)
	}
	return id, nil
}

func sameTypeSet(a []string, b []EntityType) bool {
	if len(a) == 0 || len(b) == 0 {
		return true
	}
	set := map[string]bool{}
	for _, x := range a {
		set[strings.ToLower(x)] = true
	}
	for _, t := range b {
		if set[strings.ToLower(string(t))] {
			return true
		}
	}
	return false
}

// emitEdge writes an edge with valid_from=timestamp. For a single-valued
// predicate, a current edge from the same source with that predicate to a
// different target is expired rather than overwritten (§4.3.1 step 3).
func (s *Store) emitEdge(ctx context.Context, srcID, tgtID, predicate, fact string, timestamp time.Time) error {
	if srcID == tgtID {
		return nil // skip self-loops
	}
	singleValued := false
	for _, et := range closedEdgeTypes {
		if et.Predicate == predicate {
			singleValued = et.SingleValued
			break
		}
	}
	if singleValued {
		_, err := s.pool.Exec(ctx, `
			UPDATE relation_edges SET expired_at = $1
			WHERE source_uuid = $2 AND predicate = $3 AND target_uuid != $4 AND expired_at IS NULL AND (valid_to IS NULL OR valid_to > $1)`,
			timestamp, srcID, predicate, tgtID)
		if err != nil {
			return ppserr.Wrap(ppserr.DependencyDown, "texture.emitEdge", "expiring prior edge", err)
		}
	}

	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM relation_edges WHERE source_uuid = $1 AND target_uuid = $2 AND predicate = $3 AND fact = $4)`,
		srcID, tgtID, predicate, fact).Scan(&exists)
	if err != nil {
		return ppserr.Wrap(ppserr.DependencyDown, "texture.emitEdge", "checking duplicate", err)
	}
	if exists {
		return nil
	}

	id := uuid.NewString()
	var embedding any
	if s.embed != nil {
		if vec, err := s.embed.EmbedOne(ctx, fact); err == nil {
			embedding = vecToPg(vec)
		}
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO relation_edges (uuid, source_uuid, target_uuid, predicate, fact, valid_from, created_at, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, now(), $7)`,
		id, srcID, tgtID, predicate, fact, timestamp, embedding)
	if err != nil {
		return ppserr.Wrap(ppserr.DependencyDown, "texture.emitEdge", "inserting edge", err)
	}
	return nil
}
