// Package anchors implements the Core Anchors Layer (L2): curated markdown
// "word-photo" files, vector-indexed for semantic recall. Grounded on the
// teacher's internal/persistence/databases/qdrant_vector.go wrapper around
// github.com/qdrant/go-client, generalized from opaque string IDs to
// content-addressed anchor IDs, plus a directory-sync operation the teacher
// doesn't have an analogue for.
package anchors

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"gopkg.in/yaml.v2"

	"github.com/JDHayesBC/Awareness-sub005/internal/embedclient"
	"github.com/JDHayesBC/Awareness-sub005/internal/ppserr"
)

// Anchor is the L2 record (§3 Anchor).
type Anchor struct {
	ID              string // content hash of source path + body
	SourcePath      string
	Title           string
	Body            string
	Tags            []string
	EmbeddingModel  string
	PendingEmbed    bool // true when the embedding service was unreachable on last sync
	lastContentHash string
}

// SyncResult is sync's return shape (§4.2 contract).
type SyncResult struct {
	Added     int
	Updated   int
	Removed   int
	Unchanged int
}

// Store owns the qdrant collection and the curated directory. All mutation of
// byID and the qdrant upsert/delete sequence it tracks is serialized by mu —
// Sync, Save, and Delete run from both echo request goroutines and the
// fsnotify watcher's debounce callback, and §5 requires L2 sync be serialized.
type Store struct {
	client     *qdrant.Client
	collection string
	embed      *embedclient.Client
	directory  string

	mu sync.Mutex
	// byID tracks source_path/title/tags metadata not worth round tripping
	// through qdrant payload decoding on every search. It is an in-memory
	// index keyed by source path, empty after Open and filled by Sync and Save.
	byID map[string]*Anchor
}

type frontMatter struct {
	Title string   `yaml:"title"`
	Tags  []string `yaml:"tags"`
}

// Open connects to qdrant at dsn (host:port or qdrant://host:port?api_key=...,
// mirroring the teacher's NewQdrantVector DSN parsing) and ensures the
// collection exists at the embedding client's dimensionality.
func Open(ctx context.Context, dsn, collection string, embed *embedclient.Client, directory string) (*Store, error) {
	if collection == "" {
		return nil, ppserr.New(ppserr.InputShape, "anchors.Open", "collection name is required")
	}
	host, port, useTLS, apiKey, err := parseDSN(dsn)
	if err != nil {
		return nil, ppserr.Wrap(ppserr.InputShape, "anchors.Open", "parsing qdrant dsn", err)
	}
	cfg := &qdrant.Config{Host: host, Port: port, UseTLS: useTLS}
	if apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, ppserr.Wrap(ppserr.DependencyDown, "anchors.Open", "creating qdrant client", err)
	}
	s := &Store{client: client, collection: collection, embed: embed, directory: directory, byID: make(map[string]*Anchor)}
	if err := s.ensureCollection(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() { s.client.Close() }

// Probe is L2's cheap health check (internal/health.Prober).
func (s *Store) Probe(ctx context.Context) (ok bool, detail string, elapsed time.Duration) {
	start := time.Now()
	_, err := s.client.CollectionExists(ctx, s.collection)
	elapsed = time.Since(start)
	if err != nil {
		return false, err.Error(), elapsed
	}
	return true, "ok", elapsed
}

func (s *Store) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return ppserr.Wrap(ppserr.DependencyDown, "anchors.ensureCollection", "checking collection", err)
	}
	if exists {
		return nil
	}
	dim := s.embed.Dimensions()
	if dim <= 0 {
		dim = 768
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return ppserr.Wrap(ppserr.DependencyDown, "anchors.ensureCollection", "creating collection", err)
	}
	return nil
}

// AnchorID is content-addressed: hash of source path + body (§3 Anchor).
func AnchorID(sourcePath, body string) string {
	h := sha256.Sum256([]byte(sourcePath + "\x00" + body))
	return hex.EncodeToString(h[:])
}

func pointUUID(anchorID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(anchorID)).String()
}

// Sync scans directory for markdown files, inserting new anchors, updating
// changed ones, and — when prune is true — removing anchors whose backing
// file disappeared. Embedding failures mark affected anchors "pending
// embedding" rather than failing the whole sync (§4.2 failure semantics).
func (s *Store) Sync(ctx context.Context, prune bool) (SyncResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result SyncResult
	entries, err := os.ReadDir(s.directory)
	if err != nil {
		return result, ppserr.Wrap(ppserr.DependencyDown, "anchors.Sync", "reading anchors directory", err)
	}

	seenPaths := map[string]bool{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		path := filepath.Join(s.directory, entry.Name())
		seenPaths[path] = true

		raw, err := os.ReadFile(path)
		if err != nil {
			continue // vanished between ReadDir and ReadFile; next sync will see it as removed
		}
		title, tags, body := parseFrontMatter(entry.Name(), raw)
		id := AnchorID(path, body)

		existing, known := s.byID[path2key(path)]
		if known && existing.ID == id && existing.EmbeddingModel == s.modelIdentity() {
			result.Unchanged++
			continue
		}

		anchor := &Anchor{ID: id, SourcePath: path, Title: title, Body: body, Tags: tags}
		if err := s.index(ctx, anchor); err != nil {
			return result, err
		}
		if known && existing.ID != id {
			if err := s.deleteIndexEntry(ctx, existing.ID); err != nil {
				return result, err
			}
		}
		if known {
			result.Updated++
		} else {
			result.Added++
		}
		s.byID[path2key(path)] = anchor
	}

	if prune {
		for key, a := range s.byID {
			if !seenPaths[a.SourcePath] {
				if err := s.deleteIndexEntry(ctx, a.ID); err != nil {
					return result, err
				}
				delete(s.byID, key)
				result.Removed++
			}
		}
	}
	return result, nil
}

func path2key(path string) string { return path }

// modelIdentity is the embedding model stamp anchors are compared against.
// A model change means every anchor's stored vector is stale, so sync will
// re-embed and re-upsert it (§4.2: "refuse to mix old/new vectors").
func (s *Store) modelIdentity() string {
	if s.embed == nil {
		return ""
	}
	return s.embed.Model()
}

func (s *Store) index(ctx context.Context, a *Anchor) error {
	model := ""
	var vec []float32
	if s.embed != nil {
		v, err := s.embed.EmbedOne(ctx, a.Title+"\n\n"+a.Body)
		if err != nil {
			a.PendingEmbed = true
		} else {
			vec = v
			model = s.embed.Model()
		}
	} else {
		a.PendingEmbed = true
	}
	a.EmbeddingModel = model

	if a.PendingEmbed {
		return nil // retried on next sync; never block the directory scan on embedding availability
	}

	payload := qdrant.NewValueMap(map[string]any{
		"source_path":     a.SourcePath,
		"title":           a.Title,
		"tags":            strings.Join(a.Tags, ","),
		"embedding_model": a.EmbeddingModel,
		"anchor_id":       a.ID,
	})
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(pointUUID(a.ID)),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: payload,
		}},
	})
	if err != nil {
		return ppserr.Wrap(ppserr.DependencyDown, "anchors.index", "upserting point", err)
	}
	return nil
}

func (s *Store) deleteIndexEntry(ctx context.Context, anchorID string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points:         qdrant.NewPointsSelector(qdrant.NewIDUUID(pointUUID(anchorID))),
	})
	if err != nil {
		return ppserr.Wrap(ppserr.DependencyDown, "anchors.deleteIndexEntry", "deleting point", err)
	}
	return nil
}

// SearchResult pairs an anchor with its similarity score.
type SearchResult struct {
	Anchor Anchor
	Score  float64
}

// Search runs cosine similarity search; on embedding failure it returns an
// empty slice, not an error (§4.2: "search never blocks on embedding
// failures").
func (s *Store) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}
	if s.embed == nil {
		return nil, nil
	}
	vec, err := s.embed.EmbedOne(ctx, query)
	if err != nil {
		return nil, nil
	}
	l := uint64(limit)
	hits, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &l,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, ppserr.Wrap(ppserr.DependencyDown, "anchors.Search", "querying qdrant", err)
	}
	out := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		var a Anchor
		if hit.Payload != nil {
			if v, ok := hit.Payload["anchor_id"]; ok {
				a.ID = v.GetStringValue()
			}
			if v, ok := hit.Payload["source_path"]; ok {
				a.SourcePath = v.GetStringValue()
			}
			if v, ok := hit.Payload["title"]; ok {
				a.Title = v.GetStringValue()
			}
			if v, ok := hit.Payload["tags"]; ok && v.GetStringValue() != "" {
				a.Tags = strings.Split(v.GetStringValue(), ",")
			}
			if v, ok := hit.Payload["embedding_model"]; ok {
				a.EmbeddingModel = v.GetStringValue()
			}
		}
		out = append(out, SearchResult{Anchor: a, Score: float64(hit.Score)})
	}
	return out, nil
}

// Save writes a new markdown file to the curated directory and indexes it in
// one step; the on-disk file is the source of truth (§4.2 contract).
func (s *Store) Save(ctx context.Context, title, body string, tags []string) (*Anchor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fm := frontMatter{Title: title, Tags: tags}
	header, err := yaml.Marshal(fm)
	if err != nil {
		return nil, ppserr.Wrap(ppserr.Internal, "anchors.Save", "marshaling front matter", err)
	}
	content := "---\n" + string(header) + "---\n\n" + body

	name := slugify(title) + "-" + strconv.FormatInt(time.Now().UnixNano(), 36) + ".md"
	path := filepath.Join(s.directory, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return nil, ppserr.Wrap(ppserr.DependencyDown, "anchors.Save", "writing anchor file", err)
	}

	a := &Anchor{ID: AnchorID(path, body), SourcePath: path, Title: title, Body: body, Tags: tags}
	if err := s.index(ctx, a); err != nil {
		return nil, err
	}
	s.byID[path2key(path)] = a
	return a, nil
}

// Delete removes the index entry for anchorID and, if deleteFile is true,
// the backing markdown file too.
func (s *Store) Delete(ctx context.Context, anchorID string, deleteFile bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var found *Anchor
	for _, a := range s.byID {
		if a.ID == anchorID {
			found = a
			break
		}
	}
	if found == nil {
		return ppserr.New(ppserr.NotFound, "anchors.Delete", "no such anchor: "+anchorID)
	}
	if err := s.deleteIndexEntry(ctx, anchorID); err != nil {
		return err
	}
	delete(s.byID, path2key(found.SourcePath))
	if deleteFile {
		if err := os.Remove(found.SourcePath); err != nil && !os.IsNotExist(err) {
			return ppserr.Wrap(ppserr.DependencyDown, "anchors.Delete", "removing backing file", err)
		}
	}
	return nil
}

func parseFrontMatter(filename string, raw []byte) (title string, tags []string, body string) {
	content := string(raw)
	if strings.HasPrefix(content, "---\n") {
		if end := strings.Index(content[4:], "\n---"); end >= 0 {
			header := content[4 : 4+end]
			var fm frontMatter
			if yaml.Unmarshal([]byte(header), &fm) == nil {
				title, tags = fm.Title, fm.Tags
			}
			rest := content[4+end+4:]
			body = strings.TrimPrefix(rest, "\n")
			body = strings.TrimPrefix(body, "\n")
		}
	}
	if body == "" {
		body = content
	}
	if title == "" {
		title = strings.TrimSuffix(filename, ".md")
	}
	return title, tags, strings.TrimSpace(body)
}

func slugify(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('-')
		}
	}
	s := b.String()
	if s == "" {
		return "anchor"
	}
	return s
}

func parseDSN(dsn string) (host string, port int, useTLS bool, apiKey string, err error) {
	host, port, useTLS = "localhost", 6334, false
	if dsn == "" {
		return host, port, useTLS, "", nil
	}
	rest := dsn
	if strings.HasPrefix(rest, "https://") {
		useTLS = true
		rest = strings.TrimPrefix(rest, "https://")
	} else {
		rest = strings.TrimPrefix(rest, "qdrant://")
		rest = strings.TrimPrefix(rest, "http://")
	}
	if i := strings.Index(rest, "?"); i >= 0 {
		query := rest[i+1:]
		rest = rest[:i]
		for _, kv := range strings.Split(query, "&") {
			parts := strings.SplitN(kv, "=", 2)
			if len(parts) == 2 && parts[0] == "api_key" {
				apiKey = parts[1]
			}
		}
	}
	parts := strings.SplitN(rest, ":", 2)
	if parts[0] != "" {
		host = parts[0]
	}
	if len(parts) == 2 && parts[1] != "" {
		p, perr := strconv.Atoi(parts[1])
		if perr != nil {
			return "", 0, false, "", perr
		}
		port = p
	}
	return host, port, useTLS, apiKey, nil
}
