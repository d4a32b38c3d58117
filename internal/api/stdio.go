package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcp "github.com/metoro-io/mcp-golang"
	"github.com/metoro-io/mcp-golang/transport/stdio"

	"github.com/JDHayesBC/Awareness-sub005/internal/logging"
)

// dynamicArgs is the single args shape every proxied tool registers with;
// the real decoding happens downstream, in the registry's per-tool handler,
// once this proxy's forwarded JSON body reaches the HTTP path.
type dynamicArgs map[string]any

// StdioServer is a thin proxy (§4.9): it registers every name in registry
// with the stdio transport, but each handler forwards the call verbatim as
// an HTTP POST to baseURL + "/tools/" + name on the same process, rather
// than invoking the registry's handler in-process. This keeps exactly one
// code path — the HTTP one — responsible for running tools.
type StdioServer struct {
	baseURL string
	client  *http.Client
	server  *mcp.Server
}

// NewStdioServer builds the proxy. names must be the same tool-name set the
// HTTP server in this process was built with, grounded on
// cmd/mcp-manifold/main.go's RegisterTool-per-tool loop.
func NewStdioServer(baseURL string, names []string) (*StdioServer, error) {
	transport := stdio.NewStdioServerTransport()
	server := mcp.NewServer(transport)
	s := &StdioServer{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 60 * time.Second},
		server:  server,
	}
	for _, name := range names {
		if err := server.RegisterTool(name, "proxied pattern-persistence tool: "+name, s.proxyHandler(name)); err != nil {
			return nil, fmt.Errorf("registering stdio tool %s: %w", name, err)
		}
	}
	return s, nil
}

func (s *StdioServer) proxyHandler(name string) func(args dynamicArgs) (*mcp.ToolResponse, error) {
	return func(args dynamicArgs) (*mcp.ToolResponse, error) {
		body, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("marshaling args for %s: %w", name, err)
		}
		req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, s.baseURL+"/tools/"+name, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := s.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("forwarding %s to http transport: %w", name, err)
		}
		defer resp.Body.Close()
		var out bytes.Buffer
		if _, err := out.ReadFrom(resp.Body); err != nil {
			return nil, err
		}
		return mcp.NewToolResponse(mcp.NewTextContent(out.String())), nil
	}
}

// Serve runs the stdio server until the process receives SIGINT/SIGTERM,
// mirroring cmd/mcp-manifold/main.go's signal-handling shape.
func (s *StdioServer) Serve() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.Serve(); err != nil {
			errChan <- fmt.Errorf("stdio server error: %w", err)
		}
	}()

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		logging.Log.WithField("signal", sig.String()).Info("pattern-persistence stdio server shutting down")
		return nil
	}
}
