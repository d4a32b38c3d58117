// Package api implements the Transport Surface (API): one declarative tool
// registry exposed over both an HTTP server (github.com/labstack/echo/v4,
// the teacher's web framework throughout routes.go/handlers.go) and a stdio
// JSON-RPC proxy (github.com/metoro-io/mcp-golang, the teacher's
// cmd/mcpserver/mcpserver.go library) that forwards every call to the HTTP
// path of the same process.
package api

import (
	"github.com/JDHayesBC/Awareness-sub005/internal/anchors"
	"github.com/JDHayesBC/Awareness-sub005/internal/capture"
	"github.com/JDHayesBC/Awareness-sub005/internal/composer"
	"github.com/JDHayesBC/Awareness-sub005/internal/crystallize"
	"github.com/JDHayesBC/Awareness-sub005/internal/health"
	"github.com/JDHayesBC/Awareness-sub005/internal/inventory"
	"github.com/JDHayesBC/Awareness-sub005/internal/texture"
)

// Deps bundles every layer handle the tool registry dispatches against. Any
// field may be nil; handlers for an unconfigured layer return DEPENDENCY_DOWN.
type Deps struct {
	Capture     *capture.Store
	Anchors     *anchors.Store
	Texture     *texture.Store
	Crystallize *crystallize.Store
	Inventory   *inventory.Store
	Composer    *composer.Composer
	Health      *health.Aggregator

	// PrimaryEntityName is ambient_recall's default PrimaryEntity for
	// identity-centric retrieval when the request does not name one.
	PrimaryEntityName string
}
