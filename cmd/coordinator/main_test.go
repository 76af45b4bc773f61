package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dreamware/txkv/internal/cluster"
	"github.com/dreamware/txkv/internal/coordinator"
)

func newTestServer() *server {
	router := coordinator.NewNodeRouter([]string{"http://n0:1"})
	coord := coordinator.New(router, noopNodeClient{}, nil, nil)
	return &server{coord: coord}
}

// noopNodeClient satisfies coordinator.NodeClient without a real network
// call, so handler tests exercise only the HTTP decode/encode layer.
type noopNodeClient struct{}

func (noopNodeClient) Put(_ context.Context, _, _ string, _ []byte) error { return nil }

func doRequest(t *testing.T, handler http.HandlerFunc, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestHandleBeginReturnsIncreasingTIDs(t *testing.T) {
	s := newTestServer()

	rec1 := doRequest(t, s.handleBegin, cluster.BeginRequest{RequestID: "r1"})
	var resp1 cluster.BeginResponse
	json.NewDecoder(rec1.Body).Decode(&resp1)

	rec2 := doRequest(t, s.handleBegin, cluster.BeginRequest{RequestID: "r2"})
	var resp2 cluster.BeginResponse
	json.NewDecoder(rec2.Body).Decode(&resp2)

	if resp2.TID <= resp1.TID {
		t.Fatalf("expected increasing TIDs, got %d then %d", resp1.TID, resp2.TID)
	}
}

func TestHandleValidateCommitNoConflictCommits(t *testing.T) {
	s := newTestServer()

	beginRec := doRequest(t, s.handleBegin, cluster.BeginRequest{RequestID: "r1"})
	var begin cluster.BeginResponse
	json.NewDecoder(beginRec.Body).Decode(&begin)

	rec := doRequest(t, s.handleValidateCommit, cluster.ValidateCommitRequest{
		RequestID: "r2",
		TID:       begin.TID,
		Writes:    []cluster.KV{{Key: "k", Value: []byte("v")}},
	})
	var resp cluster.ValidateCommitResponse
	json.NewDecoder(rec.Body).Decode(&resp)

	if resp.Status != cluster.StatusCommitted {
		t.Fatalf("expected commit, got %v (reason=%s)", resp.Status, resp.Reason)
	}
}

func TestHandleAbortAcknowledges(t *testing.T) {
	s := newTestServer()
	beginRec := doRequest(t, s.handleBegin, cluster.BeginRequest{RequestID: "r1"})
	var begin cluster.BeginResponse
	json.NewDecoder(beginRec.Body).Decode(&begin)

	rec := doRequest(t, s.handleAbort, cluster.AbortRequest{RequestID: "r2", TID: begin.TID})
	var resp cluster.AbortResponse
	json.NewDecoder(rec.Body).Decode(&resp)

	if !resp.OK {
		t.Fatal("expected abort to acknowledge")
	}
}
