// Package main implements the txkv data node service: it owns one shard of
// the key space and serves the lockless OCC path and the lock-table
// mediated S2PL path over the same in-memory store.
//
// Architecture:
//
//	┌─────────────────────────────────────────┐
//	│                Node                      │
//	├─────────────────────────────────────────┤
//	│  HTTP API:                              │
//	│    /health              - Health check  │
//	│    /metrics             - Prometheus     │
//	│    /info                - Shard identity │
//	│    /v1/get              - GET            │
//	│    /v1/put              - PUT            │
//	│    /v1/lock/acquire     - LOCK_ACQUIRE    │
//	│    /v1/lock/release_all - LOCK_RELEASE_ALL│
//	├─────────────────────────────────────────┤
//	│  Components:                            │
//	│    node.DataNode  - lockless + S2PL paths│
//	│    storage.Store  - bucket-striped map   │
//	└─────────────────────────────────────────┘
//
// CLI surface: -listen, -index, -shards. No other flags are part of the
// core contract.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dreamware/txkv/internal/cluster"
	"github.com/dreamware/txkv/internal/node"
	"github.com/dreamware/txkv/internal/storage"
)

func main() {
	listen := flag.String("listen", ":9090", "address to listen on")
	index := flag.Int("index", 0, "this node's shard index, for logging and self-identification")
	shards := flag.Int("shards", 1, "total shard count N across the cluster")
	flag.Parse()

	log, err := newLogger()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	reg := prometheus.NewRegistry()
	store := storage.NewBucketStore(0)
	dn := node.NewDataNode(store, reg, log)

	srv := &server{node: dn, index: *index, shards: *shards, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/info", srv.handleInfo)
	mux.HandleFunc("/v1/get", srv.handleGet)
	mux.HandleFunc("/v1/put", srv.handlePut)
	mux.HandleFunc("/v1/lock/acquire", srv.handleLockAcquire)
	mux.HandleFunc("/v1/lock/release_all", srv.handleLockReleaseAll)

	httpSrv := &http.Server{
		Addr:              *listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Infow("node listening", "addr", *listen, "index", *index, "shards", *shards)
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
	log.Info("node stopped")
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

// server adapts node.DataNode to the JSON/HTTP RPC framing shared with the
// coordinator.
type server struct {
	node   *node.DataNode
	index  int
	shards int
	log    *zap.SugaredLogger
}

// handleInfo reports this node's shard identity and current storage
// occupancy, for operators confirming a node came up with the index and
// shard count its peers expect.
func (s *server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	stats := s.node.Stats()
	writeJSON(w, struct {
		Index  int `json:"index"`
		Shards int `json:"shards"`
		Keys   int `json:"keys"`
		Bytes  int `json:"bytes"`
	}{Index: s.index, Shards: s.shards, Keys: stats.Keys, Bytes: stats.Bytes})
}

func (s *server) handleGet(w http.ResponseWriter, r *http.Request) {
	var req cluster.GetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	resp := cluster.GetResponse{RequestID: req.RequestID}
	if req.TID != nil {
		value, found, rejected := s.node.GetLocked(*req.TID, req.Key)
		resp.Value, resp.Found, resp.Rejected = value, found, rejected
	} else {
		value, found := s.node.Get(req.Key)
		resp.Value, resp.Found = value, found
	}

	writeJSON(w, resp)
}

func (s *server) handlePut(w http.ResponseWriter, r *http.Request) {
	var req cluster.PutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	resp := cluster.PutResponse{RequestID: req.RequestID}
	if req.TID != nil {
		resp.Rejected = s.node.PutLocked(*req.TID, req.Key, req.Value)
		resp.OK = !resp.Rejected
	} else {
		s.node.Put(req.Key, req.Value)
		resp.OK = true
	}

	writeJSON(w, resp)
}

func (s *server) handleLockAcquire(w http.ResponseWriter, r *http.Request) {
	var req cluster.LockAcquireRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	timeout := time.Duration(req.TimeoutMS) * time.Millisecond
	result := s.node.Acquire(r.Context(), req.TID, req.Key, req.Mode, timeout)

	writeJSON(w, cluster.LockAcquireResponse{RequestID: req.RequestID, Result: result})
}

func (s *server) handleLockReleaseAll(w http.ResponseWriter, r *http.Request) {
	var req cluster.LockReleaseAllRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	s.node.ReleaseAll(req.TID)
	writeJSON(w, cluster.LockReleaseAllResponse{RequestID: req.RequestID, OK: true})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
