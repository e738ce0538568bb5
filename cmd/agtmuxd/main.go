// Command agtmuxd is the daemon entrypoint: it admits Source Servers
// (the heuristic tmux poller and the deterministic Codex adapter) into
// the Source Registry, runs the Gateway's pull/merge/compact pipeline,
// ingests the merged event stream into the daemon projection, and serves
// the JSON-RPC client API over a Unix socket and WebSocket. Grounded on
// the teacher's cmd/server/main.go flag/signal/context wiring, retargeted
// from session-monitor/gamification startup to the spec §5 pull-based
// Source -> Gateway -> Daemon -> Client pipeline.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/g960059/agtmux/internal/config"
	"github.com/g960059/agtmux/internal/daemon"
	"github.com/g960059/agtmux/internal/runtime"
	"github.com/g960059/agtmux/internal/wire"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (defaults to the XDG config path)")
	port := flag.Int("port", 0, "Override wire server port")
	flag.Parse()

	cfgPath := *configPath
	if cfgPath == "" {
		cfgPath = config.DefaultConfigPath()
	}

	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *port > 0 {
		cfg.Wire.Port = *port
	}

	projection := daemon.NewWithPollInterval(cfg.Poller.Interval)
	hub := wire.NewHub(projection, cfg.Wire.BroadcastThrottle)
	allowlist := wire.NewOriginAllowlist(cfg.Wire.AllowedOrigins)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt := runtime.NewRuntime(cfg, projection, hub)
	go rt.Run(ctx)

	if err := wire.ListenUnixSocket(cfg.Wire.UnixSocketPath, hub); err != nil {
		log.Fatalf("failed to listen on unix socket %s: %v", cfg.Wire.UnixSocketPath, err)
	}
	log.Printf("listening on unix socket %s", cfg.Wire.UnixSocketPath)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wire.WebSocketHandler(hub, allowlist))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutting down...")
		cancel()
		os.Exit(0)
	}()

	addr := cfg.Wire.Host
	if addr == "" {
		addr = "127.0.0.1"
	}
	log.Printf("listening on %s:%d", addr, cfg.Wire.Port)
	if err := http.ListenAndServe(addrWithPort(addr, cfg.Wire.Port), mux); err != nil {
		log.Fatalf("wire server error: %v", err)
	}
}

func addrWithPort(host string, port int) string {
	return host + ":" + strconv.Itoa(port)
}
