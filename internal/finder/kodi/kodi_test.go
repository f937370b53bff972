package kodi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"streamer/internal/token"
)

func TestPlayIssuesPlayerOpen(t *testing.T) {
	t.Parallel()

	var gotMethod string
	var gotParams map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		gotMethod = req.Method
		gotParams = req.Params
		json.NewEncoder(w).Encode(rpcResponse{})
	}))
	defer srv.Close()

	d := New("living room", srv.URL)
	if err := d.Play(context.Background(), "http://host/stream/1/abc", "movie", token.FromParts(1, 2)); err != nil {
		t.Fatalf("Play: %v", err)
	}

	if gotMethod != "Player.Open" {
		t.Errorf("method = %q, want Player.Open", gotMethod)
	}
	item, ok := gotParams["item"].(map[string]any)
	if !ok || item["file"] != "http://host/stream/1/abc" {
		t.Errorf("params.item = %+v", gotParams["item"])
	}
}

func TestCallSurfacesRPCError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": -1, "message": "no active player"},
		})
	}))
	defer srv.Close()

	d := New("living room", srv.URL)
	if err := d.Stop(context.Background()); err == nil {
		t.Fatal("expected an error from the RPC error response")
	}
}

func TestFinderReturnsTheConfiguredDevice(t *testing.T) {
	t.Parallel()

	d := New("tv", "http://127.0.0.1:8080/jsonrpc")
	f := NewFinder(d, 3)

	devices, err := f.Find(context.Background())
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(devices) != 1 || devices[0].Name() != "tv" {
		t.Errorf("Find() = %+v", devices)
	}
}
