// Package main implements the txkv coordinator service: it issues logical
// timestamps, maintains the bounded commit history, runs OCC backward
// validation, and drives the parallel write-apply phase across the fixed
// set of data nodes.
//
// Architecture:
//
//	┌─────────────────────────────────────────┐
//	│            Coordinator                   │
//	├─────────────────────────────────────────┤
//	│  HTTP API:                              │
//	│    /health              - Health check   │
//	│    /metrics             - Prometheus      │
//	│    /v1/begin            - BEGIN           │
//	│    /v1/validate_commit  - VALIDATE_COMMIT │
//	│    /v1/abort            - ABORT           │
//	├─────────────────────────────────────────┤
//	│  Components:                            │
//	│    coordinator.Coordinator - clock+history│
//	│    coordinator.NodeRouter  - shard routing│
//	│    coordinator.Liveness    - node probing │
//	└─────────────────────────────────────────┘
//
// CLI surface: -listen and a repeatable -node flag giving the node
// endpoints in shard order. No other flags are part of the core contract.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dreamware/txkv/internal/cluster"
	"github.com/dreamware/txkv/internal/coordinator"
)

// nodeList accumulates repeatable -node flag values in order, since shard
// placement is positional: shard(key) = hash(key) mod N over the fixed,
// ordered node list.
type nodeList []string

func (n *nodeList) String() string     { return strings.Join(*n, ",") }
func (n *nodeList) Set(v string) error { *n = append(*n, v); return nil }

func main() {
	listen := flag.String("listen", ":9091", "address to listen on")
	var nodes nodeList
	flag.Var(&nodes, "node", "data node endpoint, repeatable, in shard order (e.g. -node http://n0:9090 -node http://n1:9090)")
	flag.Parse()

	if len(nodes) == 0 {
		panic("coordinator: at least one -node endpoint is required")
	}

	log, err := newLogger()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	reg := prometheus.NewRegistry()
	router := coordinator.NewNodeRouter(nodes)
	coord := coordinator.New(router, coordinator.HTTPNodeClient(), reg, log)

	liveness := coordinator.NewLiveness(5*time.Second, log)
	liveness.Start(context.Background(), nodes)
	defer liveness.Stop()

	srv := &server{coord: coord, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/v1/begin", srv.handleBegin)
	mux.HandleFunc("/v1/validate_commit", srv.handleValidateCommit)
	mux.HandleFunc("/v1/abort", srv.handleAbort)

	httpSrv := &http.Server{
		Addr:              *listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Infow("coordinator listening", "addr", *listen, "nodes", []string(nodes))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("listen failed", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Errorw("shutdown error", "error", err)
	}
	log.Info("coordinator stopped")
}

func newLogger() (*zap.SugaredLogger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

// server adapts coordinator.Coordinator to the JSON/HTTP RPC framing
// shared with the data nodes.
type server struct {
	coord *coordinator.Coordinator
	log   *zap.SugaredLogger
}

func (s *server) handleBegin(w http.ResponseWriter, r *http.Request) {
	var req cluster.BeginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	tid := s.coord.Begin()
	writeJSON(w, cluster.BeginResponse{RequestID: req.RequestID, TID: tid})
}

func (s *server) handleValidateCommit(w http.ResponseWriter, r *http.Request) {
	var req cluster.ValidateCommitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	writes := make(map[string][]byte, len(req.Writes))
	for _, kv := range req.Writes {
		writes[kv.Key] = kv.Value
	}

	status, tsCommit, reason := s.coord.ValidateAndCommit(r.Context(), req.TID, req.ReadKeys, writes, req.Discipline)
	writeJSON(w, cluster.ValidateCommitResponse{RequestID: req.RequestID, Status: status, TSCommit: tsCommit, Reason: reason})
}

func (s *server) handleAbort(w http.ResponseWriter, r *http.Request) {
	var req cluster.AbortRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	s.coord.Abort(req.TID)
	writeJSON(w, cluster.AbortResponse{RequestID: req.RequestID, OK: true})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
