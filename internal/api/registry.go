package api

import (
	"context"
	"encoding/json"
	"time"

	"github.com/JDHayesBC/Awareness-sub005/internal/composer"
	"github.com/JDHayesBC/Awareness-sub005/internal/crystallize"
	"github.com/JDHayesBC/Awareness-sub005/internal/ppserr"
	"github.com/JDHayesBC/Awareness-sub005/internal/texture"
)

// ToolHandler is the single shape every tool name resolves to: decode the
// request object, run the operation, return a response object (marshaled to
// JSON by the caller) or a *ppserr.Error.
type ToolHandler func(ctx context.Context, raw json.RawMessage) (any, error)

// BuildRegistry wires the frozen tool-name surface (spec §6) to deps. Both
// transports in this package dispatch through the same map — "a single
// declarative map[string]ToolHandler registry, no inheritance".
func BuildRegistry(deps *Deps) map[string]ToolHandler {
	return map[string]ToolHandler{
		"ambient_recall":           handleAmbientRecall(deps),
		"anchor_search":            handleAnchorSearch(deps),
		"raw_search":               handleRawSearch(deps),
		"texture_search":           handleTextureSearch(deps),
		"texture_explore":          handleTextureExplore(deps),
		"texture_timeline":         handleTextureTimeline(deps),
		"get_crystals":             handleGetCrystals(deps),
		"get_recent_summaries":     handleGetRecentSummaries(deps),
		"search_summaries":         handleSearchSummaries(deps),
		"get_turns_since_summary":  handleGetTurnsSinceSummary(deps),
		"get_turns_around":         handleGetTurnsAround(deps),
		"get_conversation_context": handleGetConversationContext(deps),

		"anchor_save":         handleAnchorSave(deps),
		"anchor_delete":       handleAnchorDelete(deps),
		"anchor_resync":       handleAnchorResync(deps),
		"texture_add":         handleTextureAdd(deps),
		"texture_add_triplet": handleTextureAddTriplet(deps),
		"texture_delete":      handleTextureDelete(deps),
		"crystallize":         handleCrystallize(deps),
		"summarize_messages":  handleSummarizeMessages(deps),
		"store_summary":       handleStoreSummary(deps),

		"ingest_batch_to_graphiti": handleIngestBatch(deps),
		"graphiti_ingestion_stats": handleIngestionStats(deps),
		"pps_health":               handlePPSHealth(deps),
		"summary_stats":            handleSummaryStats(deps),

		"inventory_list":       handleInventoryList(deps),
		"inventory_add":        handleInventoryAdd(deps),
		"inventory_get":        handleInventoryGet(deps),
		"inventory_delete":     handleInventoryDelete(deps),
		"inventory_categories": handleInventoryCategories(deps),
		"enter_space":          handleEnterSpace(deps),
		"list_spaces":          handleListSpaces(deps),
	}
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return ppserr.Wrap(ppserr.InputShape, "api.decode", "invalid request body", err)
	}
	return nil
}

// ---------- Memory retrieval ----------

type ambientRecallArgs struct {
	Context       string `json:"context"`
	LimitPerLayer int    `json:"limit_per_layer"`
	BudgetChars   int    `json:"budget_chars"`
	Mode          string `json:"mode"`
	PrimaryEntity string `json:"primary_entity"`
	SoftDeadlineMS int   `json:"soft_deadline_ms"`
}

func handleAmbientRecall(deps *Deps) ToolHandler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var a ambientRecallArgs
		if err := decode(raw, &a); err != nil {
			return nil, err
		}
		if deps.Composer == nil {
			return nil, ppserr.New(ppserr.DependencyDown, "api.ambient_recall", "composer not configured")
		}
		primary := a.PrimaryEntity
		if primary == "" {
			primary = deps.PrimaryEntityName
		}
		req := composer.Request{
			Context:       a.Context,
			LimitPerLayer: a.LimitPerLayer,
			BudgetChars:   a.BudgetChars,
			Mode:          composer.Mode(a.Mode),
			PrimaryEntity: primary,
		}
		if a.SoftDeadlineMS > 0 {
			req.SoftDeadline = time.Duration(a.SoftDeadlineMS) * time.Millisecond
		}
		return deps.Composer.Recall(ctx, req)
	}
}

type anchorSearchArgs struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

func handleAnchorSearch(deps *Deps) ToolHandler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var a anchorSearchArgs
		if err := decode(raw, &a); err != nil {
			return nil, err
		}
		if deps.Anchors == nil {
			return nil, ppserr.New(ppserr.DependencyDown, "api.anchor_search", "anchors layer not configured")
		}
		hits, err := deps.Anchors.Search(ctx, a.Query, a.Limit)
		if err != nil {
			return nil, err
		}
		return map[string]any{"results": hits}, nil
	}
}

type rawSearchArgs struct {
	Query         string     `json:"query"`
	Limit         int        `json:"limit"`
	ChannelFilter string     `json:"channel_filter"`
	Since         *time.Time `json:"since"`
	Until         *time.Time `json:"until"`
}

func handleRawSearch(deps *Deps) ToolHandler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var a rawSearchArgs
		if err := decode(raw, &a); err != nil {
			return nil, err
		}
		if deps.Capture == nil {
			return nil, ppserr.New(ppserr.DependencyDown, "api.raw_search", "capture layer not configured")
		}
		limit := a.Limit
		if limit <= 0 {
			limit = 20
		}
		msgs, err := deps.Capture.FTSSearch(ctx, a.Query, limit, a.ChannelFilter, a.Since, a.Until)
		if err != nil {
			return nil, err
		}
		return map[string]any{"messages": msgs}, nil
	}
}

type textureSearchArgs struct {
	Query           string `json:"query"`
	Limit           int    `json:"limit"`
	CenterEntityUUID string `json:"center_entity_uuid"`
}

func handleTextureSearch(deps *Deps) ToolHandler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var a textureSearchArgs
		if err := decode(raw, &a); err != nil {
			return nil, err
		}
		if deps.Texture == nil {
			return nil, ppserr.New(ppserr.DependencyDown, "api.texture_search", "texture layer not configured")
		}
		limit := a.Limit
		if limit <= 0 {
			limit = 10
		}
		centerUUID := a.CenterEntityUUID
		fellBack := false
		if centerUUID != "" {
			exists, err := deps.Texture.EntityExists(ctx, centerUUID)
			if err != nil {
				return nil, err
			}
			if !exists {
				fellBack = true
				centerUUID = ""
			}
		}
		edges, err := deps.Texture.EdgeHybridSearchNodeDistance(ctx, a.Query, limit, centerUUID)
		if err != nil {
			return nil, err
		}
		resp := map[string]any{"edges": edges}
		if fellBack {
			resp["center_entity_uuid_fallback"] = true
			resp["note"] = "center_entity_uuid not found; fell back to generic RRF"
		}
		return resp, nil
	}
}

type textureExploreArgs struct {
	EntityName string `json:"entity_name"`
	Depth      int    `json:"depth"`
}

func handleTextureExplore(deps *Deps) ToolHandler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var a textureExploreArgs
		if err := decode(raw, &a); err != nil {
			return nil, err
		}
		if deps.Texture == nil {
			return nil, ppserr.New(ppserr.DependencyDown, "api.texture_explore", "texture layer not configured")
		}
		if a.EntityName == "" {
			return nil, ppserr.New(ppserr.InputShape, "api.texture_explore", "entity_name is required")
		}
		depth := a.Depth
		if depth <= 0 {
			depth = 1
		}
		return deps.Texture.Explore(ctx, a.EntityName, depth)
	}
}

type textureTimelineArgs struct {
	EntityName string     `json:"entity_name"`
	Start      *time.Time `json:"start"`
	End        *time.Time `json:"end"`
}

func handleTextureTimeline(deps *Deps) ToolHandler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var a textureTimelineArgs
		if err := decode(raw, &a); err != nil {
			return nil, err
		}
		if deps.Texture == nil {
			return nil, ppserr.New(ppserr.DependencyDown, "api.texture_timeline", "texture layer not configured")
		}
		if a.EntityName == "" {
			return nil, ppserr.New(ppserr.InputShape, "api.texture_timeline", "entity_name is required")
		}
		edges, err := deps.Texture.Timeline(ctx, a.EntityName, a.Start, a.End)
		if err != nil {
			return nil, err
		}
		return map[string]any{"edges": edges}, nil
	}
}

type recentSummariesArgs struct {
	K    int     `json:"k"`
	Kind *string `json:"kind"`
}

func handleGetCrystals(deps *Deps) ToolHandler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		return recentSummaries(ctx, deps, raw)
	}
}

func handleGetRecentSummaries(deps *Deps) ToolHandler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		return recentSummaries(ctx, deps, raw)
	}
}

func recentSummaries(ctx context.Context, deps *Deps, raw json.RawMessage) (any, error) {
	var a recentSummariesArgs
	if err := decode(raw, &a); err != nil {
		return nil, err
	}
	if deps.Crystallize == nil {
		return nil, ppserr.New(ppserr.DependencyDown, "api.get_recent_summaries", "crystallize layer not configured")
	}
	k := a.K
	if k <= 0 {
		k = crystallize.DefaultWindowSize
	}
	var kind *crystallize.Kind
	if a.Kind != nil {
		k2 := crystallize.Kind(*a.Kind)
		kind = &k2
	}
	summaries, err := deps.Crystallize.Recent(ctx, k, kind)
	if err != nil {
		return nil, err
	}
	return map[string]any{"summaries": summaries}, nil
}

type searchSummariesArgs struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

func handleSearchSummaries(deps *Deps) ToolHandler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var a searchSummariesArgs
		if err := decode(raw, &a); err != nil {
			return nil, err
		}
		if deps.Crystallize == nil {
			return nil, ppserr.New(ppserr.DependencyDown, "api.search_summaries", "crystallize layer not configured")
		}
		k := a.K
		if k <= 0 {
			k = 10
		}
		summaries, err := deps.Crystallize.Search(ctx, a.Query, k)
		if err != nil {
			return nil, err
		}
		return map[string]any{"summaries": summaries}, nil
	}
}

type turnsSinceSummaryArgs struct {
	Kind string `json:"kind"`
	Max  int    `json:"max"`
}

func handleGetTurnsSinceSummary(deps *Deps) ToolHandler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var a turnsSinceSummaryArgs
		if err := decode(raw, &a); err != nil {
			return nil, err
		}
		if deps.Crystallize == nil || deps.Capture == nil {
			return nil, ppserr.New(ppserr.DependencyDown, "api.get_turns_since_summary", "crystallize/capture layer not configured")
		}
		kind := crystallize.Kind(a.Kind)
		if kind == "" {
			kind = crystallize.KindMixed
		}
		count, err := deps.Crystallize.TurnsSinceLast(ctx, kind)
		if err != nil {
			return nil, err
		}
		max := a.Max
		if max <= 0 {
			max = count
		}
		msgs, err := deps.Capture.SelectUnsummarized(ctx, max)
		if err != nil {
			return nil, err
		}
		return map[string]any{"count": count, "messages": msgs}, nil
	}
}

type turnsAroundArgs struct {
	ID     int64 `json:"id"`
	Before int   `json:"before"`
	After  int   `json:"after"`
}

func handleGetTurnsAround(deps *Deps) ToolHandler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var a turnsAroundArgs
		if err := decode(raw, &a); err != nil {
			return nil, err
		}
		if deps.Capture == nil {
			return nil, ppserr.New(ppserr.DependencyDown, "api.get_turns_around", "capture layer not configured")
		}
		msgs, err := deps.Capture.WindowAround(ctx, a.ID, a.Before, a.After)
		if err != nil {
			return nil, err
		}
		return map[string]any{"messages": msgs}, nil
	}
}

type conversationContextArgs struct {
	Limit int `json:"limit"`
}

// handleGetConversationContext returns the same last-W-messages-plus-memory
// package ambient_recall's startup mode builds, for a caller that wants
// grounding without the full fan-out query context (§4.6 protocol step 1).
func handleGetConversationContext(deps *Deps) ToolHandler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var a conversationContextArgs
		if err := decode(raw, &a); err != nil {
			return nil, err
		}
		if deps.Composer == nil {
			return nil, ppserr.New(ppserr.DependencyDown, "api.get_conversation_context", "composer not configured")
		}
		req := composer.Request{Mode: composer.ModeStartup}
		if a.Limit > 0 {
			req.LimitPerLayer = a.Limit
		}
		return deps.Composer.Recall(ctx, req)
	}
}

// ---------- Memory storage ----------

type anchorSaveArgs struct {
	Title string   `json:"title"`
	Body  string   `json:"body"`
	Tags  []string `json:"tags"`
}

func handleAnchorSave(deps *Deps) ToolHandler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var a anchorSaveArgs
		if err := decode(raw, &a); err != nil {
			return nil, err
		}
		if deps.Anchors == nil {
			return nil, ppserr.New(ppserr.DependencyDown, "api.anchor_save", "anchors layer not configured")
		}
		if a.Title == "" {
			return nil, ppserr.New(ppserr.InputShape, "api.anchor_save", "title is required")
		}
		return deps.Anchors.Save(ctx, a.Title, a.Body, a.Tags)
	}
}

type anchorDeleteArgs struct {
	ID         string `json:"id"`
	DeleteFile bool   `json:"delete_file"`
}

func handleAnchorDelete(deps *Deps) ToolHandler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var a anchorDeleteArgs
		if err := decode(raw, &a); err != nil {
			return nil, err
		}
		if deps.Anchors == nil {
			return nil, ppserr.New(ppserr.DependencyDown, "api.anchor_delete", "anchors layer not configured")
		}
		if a.ID == "" {
			return nil, ppserr.New(ppserr.InputShape, "api.anchor_delete", "id is required")
		}
		if err := deps.Anchors.Delete(ctx, a.ID, a.DeleteFile); err != nil {
			return nil, err
		}
		return map[string]any{"ok": true}, nil
	}
}

type anchorResyncArgs struct {
	Prune bool `json:"prune"`
}

func handleAnchorResync(deps *Deps) ToolHandler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var a anchorResyncArgs
		if err := decode(raw, &a); err != nil {
			return nil, err
		}
		if deps.Anchors == nil {
			return nil, ppserr.New(ppserr.DependencyDown, "api.anchor_resync", "anchors layer not configured")
		}
		return deps.Anchors.Sync(ctx, a.Prune)
	}
}

type textureAddArgs struct {
	EpisodeName string `json:"episode_name"`
	Body        string `json:"body"`
	Channel     string `json:"channel"`
	Speaker     string `json:"speaker"`
	Role        string `json:"role"`
	Timestamp   *time.Time `json:"timestamp"`

	CurrentScene        string `json:"current_scene"`
	CrystallizationNote string `json:"crystallization_note"`
	RecentAnchorSnippet string `json:"recent_anchor_snippet"`
}

func handleTextureAdd(deps *Deps) ToolHandler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var a textureAddArgs
		if err := decode(raw, &a); err != nil {
			return nil, err
		}
		if deps.Texture == nil {
			return nil, ppserr.New(ppserr.DependencyDown, "api.texture_add", "texture layer not configured")
		}
		if a.Body == "" {
			return nil, ppserr.New(ppserr.InputShape, "api.texture_add", "body is required")
		}
		ts := time.Now().UTC()
		if a.Timestamp != nil {
			ts = *a.Timestamp
		}
		ep := texture.GraphEpisode{
			EpisodeName: a.EpisodeName, Body: a.Body, Channel: a.Channel,
			Speaker: a.Speaker, Role: a.Role, Timestamp: ts,
		}
		extCtx := texture.ExtractionContext{
			CurrentScene: a.CurrentScene, CrystallizationNote: a.CrystallizationNote, RecentAnchorSnippet: a.RecentAnchorSnippet,
		}
		if err := deps.Texture.Ingest(ctx, ep, extCtx); err != nil {
			return nil, err
		}
		return map[string]any{"ok": true}, nil
	}
}

type textureAddTripletArgs struct {
	SourceName string     `json:"source_name"`
	Predicate  string     `json:"predicate"`
	TargetName string     `json:"target_name"`
	Fact       string     `json:"fact"`
	Types      []string   `json:"types"`
	Timestamp  *time.Time `json:"timestamp"`
}

func handleTextureAddTriplet(deps *Deps) ToolHandler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var a textureAddTripletArgs
		if err := decode(raw, &a); err != nil {
			return nil, err
		}
		if deps.Texture == nil {
			return nil, ppserr.New(ppserr.DependencyDown, "api.texture_add_triplet", "texture layer not configured")
		}
		if a.SourceName == "" || a.Predicate == "" || a.TargetName == "" {
			return nil, ppserr.New(ppserr.InputShape, "api.texture_add_triplet", "source_name, predicate, and target_name are required")
		}
		ts := time.Now().UTC()
		if a.Timestamp != nil {
			ts = *a.Timestamp
		}
		types := make([]texture.EntityType, 0, len(a.Types))
		for _, t := range a.Types {
			types = append(types, texture.EntityType(t))
		}
		edgeUUID, err := deps.Texture.AddTriplet(ctx, a.SourceName, a.Predicate, a.TargetName, a.Fact, types, ts)
		if err != nil {
			return nil, err
		}
		return map[string]any{"edge_uuid": edgeUUID}, nil
	}
}

type textureDeleteArgs struct {
	EdgeUUID string `json:"edge_uuid"`
}

func handleTextureDelete(deps *Deps) ToolHandler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var a textureDeleteArgs
		if err := decode(raw, &a); err != nil {
			return nil, err
		}
		if deps.Texture == nil {
			return nil, ppserr.New(ppserr.DependencyDown, "api.texture_delete", "texture layer not configured")
		}
		if a.EdgeUUID == "" {
			return nil, ppserr.New(ppserr.InputShape, "api.texture_delete", "edge_uuid is required")
		}
		if err := deps.Texture.DeleteEdge(ctx, a.EdgeUUID); err != nil {
			return nil, err
		}
		return map[string]any{"ok": true}, nil
	}
}

type crystallizeArgs struct {
	Kind        string `json:"kind"`
	MaxMessages int    `json:"max_messages"`
}

func handleCrystallize(deps *Deps) ToolHandler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		return summarizeRequest(ctx, deps, raw)
	}
}

func handleSummarizeMessages(deps *Deps) ToolHandler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		return summarizeRequest(ctx, deps, raw)
	}
}

func summarizeRequest(ctx context.Context, deps *Deps, raw json.RawMessage) (any, error) {
	var a crystallizeArgs
	if err := decode(raw, &a); err != nil {
		return nil, err
	}
	if deps.Crystallize == nil {
		return nil, ppserr.New(ppserr.DependencyDown, "api.summarize_messages", "crystallize layer not configured")
	}
	kind := crystallize.Kind(a.Kind)
	if kind == "" {
		kind = crystallize.KindMixed
	}
	max := a.MaxMessages
	if max <= 0 {
		max = crystallize.DefaultMinBatch * 2
	}
	return deps.Crystallize.SummarizeRequest(ctx, kind, max)
}

type storeSummaryArgs struct {
	Text     string   `json:"text"`
	StartID  int64    `json:"start_id"`
	EndID    int64    `json:"end_id"`
	Channels []string `json:"channels"`
	Kind     string   `json:"kind"`
}

func handleStoreSummary(deps *Deps) ToolHandler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var a storeSummaryArgs
		if err := decode(raw, &a); err != nil {
			return nil, err
		}
		if deps.Crystallize == nil {
			return nil, ppserr.New(ppserr.DependencyDown, "api.store_summary", "crystallize layer not configured")
		}
		if a.Text == "" {
			return nil, ppserr.New(ppserr.InputShape, "api.store_summary", "text is required")
		}
		kind := crystallize.Kind(a.Kind)
		if kind == "" {
			kind = crystallize.KindMixed
		}
		id, err := deps.Crystallize.StoreSummary(ctx, a.Text, a.StartID, a.EndID, a.Channels, kind)
		if err != nil {
			return nil, err
		}
		return map[string]any{"summary_id": id}, nil
	}
}

// ---------- Ingestion & admin ----------

type ingestBatchArgs struct {
	Episodes []textureAddArgs `json:"episodes"`
}

func handleIngestBatch(deps *Deps) ToolHandler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var a ingestBatchArgs
		if err := decode(raw, &a); err != nil {
			return nil, err
		}
		if deps.Texture == nil {
			return nil, ppserr.New(ppserr.DependencyDown, "api.ingest_batch_to_graphiti", "texture layer not configured")
		}
		episodes := make([]texture.GraphEpisode, 0, len(a.Episodes))
		for _, e := range a.Episodes {
			ts := time.Now().UTC()
			if e.Timestamp != nil {
				ts = *e.Timestamp
			}
			episodes = append(episodes, texture.GraphEpisode{
				EpisodeName: e.EpisodeName, Body: e.Body, Channel: e.Channel,
				Speaker: e.Speaker, Role: e.Role, Timestamp: ts,
			})
		}
		succeeded, err := deps.Texture.IngestBatch(ctx, episodes, texture.ExtractionContext{})
		resp := map[string]any{"succeeded": succeeded, "total": len(episodes)}
		if err != nil {
			if succeeded > 0 {
				return resp, ppserr.Wrap(ppserr.Partial, "api.ingest_batch_to_graphiti", "batch partially ingested", err)
			}
			return nil, err
		}
		return resp, nil
	}
}

func handleIngestionStats(deps *Deps) ToolHandler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		if deps.Texture == nil {
			return nil, ppserr.New(ppserr.DependencyDown, "api.graphiti_ingestion_stats", "texture layer not configured")
		}
		return deps.Texture.IngestionStats(ctx)
	}
}

func handlePPSHealth(deps *Deps) ToolHandler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		if deps.Health == nil {
			return nil, ppserr.New(ppserr.Internal, "api.pps_health", "health aggregator not configured")
		}
		return deps.Health.Check(ctx), nil
	}
}

func handleSummaryStats(deps *Deps) ToolHandler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		if deps.Crystallize == nil {
			return nil, ppserr.New(ppserr.DependencyDown, "api.summary_stats", "crystallize layer not configured")
		}
		return deps.Crystallize.Stats(ctx)
	}
}

// ---------- Inventory & spaces ----------

type inventoryListArgs struct {
	Category string            `json:"category"`
	Filters  map[string]string `json:"filters"`
}

func handleInventoryList(deps *Deps) ToolHandler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var a inventoryListArgs
		if err := decode(raw, &a); err != nil {
			return nil, err
		}
		if deps.Inventory == nil {
			return nil, ppserr.New(ppserr.DependencyDown, "api.inventory_list", "inventory layer not configured")
		}
		items, err := deps.Inventory.List(ctx, a.Category, a.Filters)
		if err != nil {
			return nil, err
		}
		return map[string]any{"items": items}, nil
	}
}

type inventoryAddArgs struct {
	Category    string         `json:"category"`
	Name        string         `json:"name"`
	Attributes  map[string]any `json:"attributes"`
	Description string         `json:"description"`
}

func handleInventoryAdd(deps *Deps) ToolHandler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var a inventoryAddArgs
		if err := decode(raw, &a); err != nil {
			return nil, err
		}
		if deps.Inventory == nil {
			return nil, ppserr.New(ppserr.DependencyDown, "api.inventory_add", "inventory layer not configured")
		}
		if err := deps.Inventory.Add(ctx, a.Category, a.Name, a.Attributes, a.Description); err != nil {
			return nil, err
		}
		return map[string]any{"ok": true}, nil
	}
}

type inventoryGetArgs struct {
	Category string `json:"category"`
	Name     string `json:"name"`
}

func handleInventoryGet(deps *Deps) ToolHandler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var a inventoryGetArgs
		if err := decode(raw, &a); err != nil {
			return nil, err
		}
		if deps.Inventory == nil {
			return nil, ppserr.New(ppserr.DependencyDown, "api.inventory_get", "inventory layer not configured")
		}
		return deps.Inventory.Get(ctx, a.Category, a.Name)
	}
}

func handleInventoryDelete(deps *Deps) ToolHandler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var a inventoryGetArgs
		if err := decode(raw, &a); err != nil {
			return nil, err
		}
		if deps.Inventory == nil {
			return nil, ppserr.New(ppserr.DependencyDown, "api.inventory_delete", "inventory layer not configured")
		}
		if err := deps.Inventory.Delete(ctx, a.Category, a.Name); err != nil {
			return nil, err
		}
		return map[string]any{"ok": true}, nil
	}
}

func handleInventoryCategories(deps *Deps) ToolHandler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		if deps.Inventory == nil {
			return nil, ppserr.New(ppserr.DependencyDown, "api.inventory_categories", "inventory layer not configured")
		}
		cats, err := deps.Inventory.Categories(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"categories": cats}, nil
	}
}

type enterSpaceArgs struct {
	Name string `json:"name"`
}

func handleEnterSpace(deps *Deps) ToolHandler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var a enterSpaceArgs
		if err := decode(raw, &a); err != nil {
			return nil, err
		}
		if deps.Inventory == nil {
			return nil, ppserr.New(ppserr.DependencyDown, "api.enter_space", "inventory layer not configured")
		}
		if a.Name == "" {
			return nil, ppserr.New(ppserr.InputShape, "api.enter_space", "name is required")
		}
		return deps.Inventory.EnterSpace(ctx, a.Name)
	}
}

func handleListSpaces(deps *Deps) ToolHandler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		if deps.Inventory == nil {
			return nil, ppserr.New(ppserr.DependencyDown, "api.list_spaces", "inventory layer not configured")
		}
		spaces, err := deps.Inventory.ListSpaces(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"spaces": spaces}, nil
	}
}
