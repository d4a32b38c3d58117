// Package composer implements the Ambient-Recall Composer (C): a single
// ambient_recall operation that fans out concurrently across L1–L4,
// deduplicates, applies a character budget, and renders one formatted
// context block. Grounded on the teacher's internal/rag/service.Service
// top-level orchestration shape and internal/agent/warpp.go's errgroup
// fan-out-then-gather idiom (there used for Authenticator/Personalizer,
// here for per-layer recall calls).
package composer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/JDHayesBC/Awareness-sub005/internal/anchors"
	"github.com/JDHayesBC/Awareness-sub005/internal/capture"
	"github.com/JDHayesBC/Awareness-sub005/internal/clock"
	"github.com/JDHayesBC/Awareness-sub005/internal/crystallize"
	"github.com/JDHayesBC/Awareness-sub005/internal/texture"
)

// Mode selects startup behavior (§4.6 protocol step 1).
type Mode string

const (
	ModeNormal  Mode = "normal"
	ModeStartup Mode = "startup"
)

const (
	DefaultLimitPerLayer = 5
	DefaultBudgetChars   = 50_000
	DefaultSoftDeadline  = 500 * time.Millisecond
	startupWindowSize    = 20
)

// Request is ambient_recall's input.
type Request struct {
	Context        string
	LimitPerLayer  int
	BudgetChars    int
	Mode           Mode
	PrimaryEntity  string // optional entity name to center texture's graph-distance boost on
	SoftDeadline   time.Duration
}

// ClockBlock mirrors internal/clock.Block in the composer's output shape.
type ClockBlock struct {
	Timestamp time.Time
	Display   string
	Hour      int
	Note      string
}

// LayerManifest reports item/char counts (and any timeout) for one layer.
type LayerManifest struct {
	Items   int
	Chars   int
	Timeout bool
}

// Manifest is emitted before formatted_context (§4.6 protocol step 7).
type Manifest struct {
	Crystals    LayerManifest
	WordPhotos  LayerManifest
	RichTexture LayerManifest
	Summaries   LayerManifest
	RecentTurns LayerManifest
	TotalChars  int
}

// Result is ambient_recall's output.
type Result struct {
	Clock            ClockBlock
	MemoryHealth     string
	CountUnsummarized int
	CountUnungested   int
	Manifest          Manifest
	FormattedContext  string
	LatencyMS         float64
}

// Composer owns handles to every layer it fans out to. Any handle may be nil
// (layer not configured / unreachable); a nil handle degrades to an empty
// slice for that layer, the same as a soft-deadline timeout.
type Composer struct {
	Capture     *capture.Store
	Anchors     *anchors.Store
	Texture     *texture.Store
	Crystallize *crystallize.Store
}

type item struct {
	text string
	hash string
}

// Recall runs the full ambient_recall protocol.
func (c *Composer) Recall(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	if req.LimitPerLayer <= 0 {
		req.LimitPerLayer = DefaultLimitPerLayer
	}
	if req.BudgetChars <= 0 {
		req.BudgetChars = DefaultBudgetChars
	}
	if req.Mode == "" {
		req.Mode = ModeNormal
	}
	if req.SoftDeadline <= 0 {
		req.SoftDeadline = DefaultSoftDeadline
	}

	now := time.Now()
	clockBlock := clock.Now(now)

	var (
		crystals, summaries []item
		wordPhotos          []item
		richTexture         []item
		recentTurns         []item
		crystalsTO, wpTO, rtTO, sumTO, turnsTO bool
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		items, timedOut := c.fanOut(gctx, req.SoftDeadline, func(ctx context.Context) []item {
			if c.Crystallize == nil {
				return nil
			}
			summaries, err := c.Crystallize.Recent(ctx, req.LimitPerLayer, nil)
			if err != nil {
				return nil
			}
			out := make([]item, 0, len(summaries))
			for _, s := range summaries {
				out = append(out, newItem(s.Text))
			}
			return out
		})
		crystals, crystalsTO = items, timedOut
		return nil
	})

	g.Go(func() error {
		items, timedOut := c.fanOut(gctx, req.SoftDeadline, func(ctx context.Context) []item {
			if c.Anchors == nil || req.Context == "" {
				return nil
			}
			hits, err := c.Anchors.Search(ctx, req.Context, req.LimitPerLayer)
			if err != nil {
				return nil
			}
			out := make([]item, 0, len(hits))
			for _, h := range hits {
				out = append(out, newItem(h.Anchor.Title+"\n"+h.Anchor.Body))
			}
			return out
		})
		wordPhotos, wpTO = items, timedOut
		return nil
	})

	g.Go(func() error {
		items, timedOut := c.fanOut(gctx, req.SoftDeadline, func(ctx context.Context) []item {
			if c.Texture == nil || req.Context == "" {
				return nil
			}
			center := ""
			if req.PrimaryEntity != "" {
				if sg, err := c.Texture.Explore(ctx, req.PrimaryEntity, 0); err == nil {
					center = sg.CenterUUID
				}
			}
			edges, err := c.Texture.EdgeHybridSearchNodeDistance(ctx, req.Context, req.LimitPerLayer, center)
			if err != nil {
				return nil
			}
			out := make([]item, 0, len(edges))
			for _, e := range edges {
				out = append(out, newItem(fmt.Sprintf("%s %s %s: %s", e.SourceName, e.Predicate, e.TargetName, e.Fact)))
			}
			return out
		})
		richTexture, rtTO = items, timedOut
		return nil
	})

	g.Go(func() error {
		items, timedOut := c.fanOut(gctx, req.SoftDeadline, func(ctx context.Context) []item {
			if c.Crystallize == nil || req.Context == "" {
				return nil
			}
			summaries, err := c.Crystallize.Search(ctx, req.Context, req.LimitPerLayer)
			if err != nil {
				return nil
			}
			out := make([]item, 0, len(summaries))
			for _, s := range summaries {
				out = append(out, newItem(s.Text))
			}
			return out
		})
		summaries, sumTO = items, timedOut
		return nil
	})

	if req.Mode == ModeStartup {
		g.Go(func() error {
			items, timedOut := c.fanOut(gctx, req.SoftDeadline, func(ctx context.Context) []item {
				if c.Capture == nil {
					return nil
				}
				msgs, err := c.Capture.RecentAcrossChannels(ctx, startupWindowSize)
				if err != nil {
					return nil
				}
				out := make([]item, 0, len(msgs))
				for _, m := range msgs {
					out = append(out, newItem(fmt.Sprintf("[%s] %s: %s", m.Channel, m.AuthorRole, m.Content)))
				}
				return out
			})
			recentTurns, turnsTO = items, timedOut
			return nil
		})
	}

	_ = g.Wait() // sub-calls never return errors; degradation is expressed via empty slices

	crystals = dedupe(crystals)
	wordPhotos = dedupe(wordPhotos)
	richTexture = dedupe(richTexture)
	summaries = dedupe(summaries)
	recentTurns = dedupe(recentTurns)

	budget := req.BudgetChars
	wordPhotos, wpChars, budget := truncateToBudget(wordPhotos, budget)
	crystals, crChars, budget := truncateToBudget(crystals, budget)
	richTexture, rtChars, budget := truncateToBudget(richTexture, budget)
	summaries, sumChars, budget := truncateToBudget(summaries, budget)
	recentTurns, turnsChars, _ := truncateToBudget(recentTurns, budget)

	manifest := Manifest{
		Crystals:    LayerManifest{Items: len(crystals), Chars: crChars, Timeout: crystalsTO},
		WordPhotos:  LayerManifest{Items: len(wordPhotos), Chars: wpChars, Timeout: wpTO},
		RichTexture: LayerManifest{Items: len(richTexture), Chars: rtChars, Timeout: rtTO},
		Summaries:   LayerManifest{Items: len(summaries), Chars: sumChars, Timeout: sumTO},
		RecentTurns: LayerManifest{Items: len(recentTurns), Chars: turnsChars, Timeout: turnsTO},
	}
	formatted := formatContext(clockBlock, wordPhotos, richTexture, summaries, crystals, recentTurns)
	// TotalChars counts the rendered context (headers and list markers
	// included), not the sum of raw item text, so it matches len(formatted)
	// exactly rather than drifting further apart as item count grows (§8.5).
	manifest.TotalChars = len(formatted)

	var unsummarized, unungested int
	var health string
	if c.Capture != nil {
		unsummarized, _ = c.Capture.CountUnsummarized(ctx)
		unungested, _ = c.Capture.CountUnungested(ctx)
	}
	health = summarizeHealth(unsummarized, unungested)

	return Result{
		Clock:             ClockBlock(clockBlock),
		MemoryHealth:      health,
		CountUnsummarized: unsummarized,
		CountUnungested:   unungested,
		Manifest:          manifest,
		FormattedContext:  formatted,
		LatencyMS:         float64(time.Since(start).Microseconds()) / 1000.0,
	}, nil
}

// fanOut runs fn with a soft deadline; an overrun yields an empty slice with
// timedOut=true instead of blocking the gather (§4.6 protocol step 3).
func (c *Composer) fanOut(ctx context.Context, deadline time.Duration, fn func(context.Context) []item) ([]item, bool) {
	callCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	resultCh := make(chan []item, 1)
	go func() {
		resultCh <- fn(callCtx)
	}()

	select {
	case result := <-resultCh:
		return result, false
	case <-callCtx.Done():
		return nil, true
	}
}

func newItem(text string) item {
	h := sha256.Sum256([]byte(text))
	return item{text: text, hash: hex.EncodeToString(h[:])}
}

func dedupe(items []item) []item {
	seen := map[string]bool{}
	out := make([]item, 0, len(items))
	for _, it := range items {
		if seen[it.hash] {
			continue
		}
		seen[it.hash] = true
		out = append(out, it)
	}
	return out
}

// truncateToBudget keeps items, in order, up to remaining chars; truncation
// happens at item boundaries, never mid-sentence (§4.6 protocol step 5).
func truncateToBudget(items []item, remaining int) ([]item, int, int) {
	if remaining <= 0 {
		return nil, 0, remaining
	}
	var kept []item
	used := 0
	for _, it := range items {
		n := len(it.text)
		if used+n > remaining {
			break
		}
		kept = append(kept, it)
		used += n
	}
	return kept, used, remaining - used
}

func formatContext(cb clock.Block, anchorsItems, textureItems, summaryItems, crystalItems, turnItems []item) string {
	var b strings.Builder
	b.WriteString(cb.Display)
	b.WriteString("\n\n")
	if len(anchorsItems) > 0 {
		b.WriteString("## Anchors\n")
		writeItems(&b, anchorsItems)
	}
	if len(textureItems) > 0 {
		b.WriteString("## Rich Texture\n")
		writeItems(&b, textureItems)
	}
	if len(summaryItems) > 0 {
		b.WriteString("## Summaries\n")
		writeItems(&b, summaryItems)
	}
	if len(crystalItems) > 0 {
		b.WriteString("## Crystals\n")
		writeItems(&b, crystalItems)
	}
	if len(turnItems) > 0 {
		b.WriteString("## Recent Turns\n")
		writeItems(&b, turnItems)
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeItems(b *strings.Builder, items []item) {
	for _, it := range items {
		b.WriteString("- ")
		b.WriteString(it.text)
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

func summarizeHealth(unsummarized, unungested int) string {
	switch {
	case unsummarized == 0 && unungested == 0:
		return "all caught up"
	case unsummarized > 0 && unungested > 0:
		return fmt.Sprintf("%d messages awaiting crystallization, %d awaiting graph ingestion", unsummarized, unungested)
	case unsummarized > 0:
		return fmt.Sprintf("%d messages awaiting crystallization", unsummarized)
	default:
		return fmt.Sprintf("%d messages awaiting graph ingestion", unungested)
	}
}
