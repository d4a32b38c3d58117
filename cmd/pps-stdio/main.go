// Command pps-stdio is the line-delimited JSON-RPC stdio proxy (§4.9): it
// forwards every tool call to a running pps-server over HTTP on the same
// process's host. It holds no layer stores of its own.
package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/JDHayesBC/Awareness-sub005/internal/api"
	"github.com/JDHayesBC/Awareness-sub005/internal/entityenv"
	"github.com/JDHayesBC/Awareness-sub005/internal/logging"
)

// toolNames lists the frozen tool-name surface (spec §6) that pps-server
// registers; pps-stdio proxies the same set without needing pps-server's
// Deps to build the registry itself.
var toolNames = func() []string {
	names := make([]string, 0, 32)
	for name := range api.BuildRegistry(&api.Deps{}) {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}()

func main() {
	cfg, err := entityenv.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(2)
	}
	logging.Init(cfg.ClaudeHome, cfg.LogLevel)

	baseURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.HTTPPort)
	server, err := api.NewStdioServer(baseURL, toolNames)
	if err != nil {
		logging.Log.WithError(err).Fatal("building stdio proxy")
	}

	if err := server.Serve(); err != nil {
		logging.Log.WithError(err).Fatal("stdio server error")
	}
}
