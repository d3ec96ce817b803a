package main

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hyperjump/postlsh/internal/config"
	"github.com/hyperjump/postlsh/internal/kv"
	"github.com/hyperjump/postlsh/internal/lsh"
	"github.com/hyperjump/postlsh/internal/search"
	"github.com/hyperjump/postlsh/internal/server"
	"github.com/hyperjump/postlsh/internal/vector"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestParsePostIDs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    []uint32
		wantErr bool
	}{
		{"separate args", []string{"1", "2"}, []uint32{1, 2}, false},
		{"comma list", []string{"1,2", "3"}, []uint32{1, 2, 3}, false},
		{"trailing comma", []string{"4,"}, []uint32{4}, false},
		{"negative", []string{"-1"}, nil, true},
		{"not a number", []string{"abc"}, nil, true},
		{"only commas", []string{","}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parsePostIDs(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "postlsh version dev") {
		t.Errorf("output = %q", out)
	}
}

func TestInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if _, err := execute(t, "init", path); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LSH.Seed != config.DefaultSeed || cfg.LSH.Tables != config.DefaultTables {
		t.Errorf("written config = %+v", cfg.LSH)
	}
}

// newAPI serves the real handler over a memory store holding two close posts.
func newAPI(t *testing.T) string {
	t.Helper()
	store := kv.NewMemory()
	idx, err := lsh.NewSRP(4, 8, 3, 31)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	for id, v := range map[uint32][]float32{1: {1, 0, 0}, 2: {2, 0, 0}} {
		raw, _ := vector.Encode(v)
		_ = store.Set(ctx, kv.EmbeddingKey(id), raw)
		_ = store.Set(ctx, kv.ReverseKey(vector.Fingerprint(v)), kv.FormatPostID(id))
		if err := idx.StoreVecs([][]float32{v}); err != nil {
			t.Fatal(err)
		}
	}
	srv := server.NewServer(store, idx, search.NewEngine(store, idx, nil), &config.ServerConfig{}, zap.NewNop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

func TestQueryViaHTTP(t *testing.T) {
	url := newAPI(t)
	got, err := queryViaHTTP(context.Background(), url, []uint32{1}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []uint32{2}) {
		t.Errorf("query = %v, want [2]", got)
	}

	_, err = queryViaHTTP(context.Background(), url, []uint32{99}, 10)
	if err == nil || !strings.Contains(err.Error(), "500") {
		t.Errorf("missing post err = %v, want a 500", err)
	}
}

func TestQueryCommand(t *testing.T) {
	url := newAPI(t)
	out, err := execute(t, "query", "--server", url, "--n-results", "5", "--output", "text", "1")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "post:2") {
		t.Errorf("output = %q", out)
	}
}

func TestStatsViaHTTP(t *testing.T) {
	s, err := statsViaHTTP(context.Background(), newAPI(t))
	if err != nil {
		t.Fatal(err)
	}
	if s.Vectors != 2 || s.Tables != 8 || s.Dim != 3 {
		t.Errorf("stats = %+v", s)
	}
}

func TestPublishCommand(t *testing.T) {
	mr := miniredis.RunT(t)
	host, port, err := net.SplitHostPort(mr.Addr())
	if err != nil {
		t.Fatal(err)
	}
	t.Setenv("REDIS_HOST", host)
	t.Setenv("REDIS_PORT", port)

	store := kv.NewRedis(kv.RedisOptions{Addr: mr.Addr()})
	defer store.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	sub, err := store.Subscribe(ctx, kv.ChannelNewEmbedding)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	if _, err := execute(t, "publish", "7", "8"); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"7", "8"} {
		msg, err := sub.Receive(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if msg.Payload != want {
			t.Errorf("payload = %q, want %q", msg.Payload, want)
		}
	}
}

func TestMaxProjectionsAgree(t *testing.T) {
	if config.MaxProjections != lsh.MaxProjections {
		t.Errorf("config allows %d projections, index supports %d", config.MaxProjections, lsh.MaxProjections)
	}
}

func TestClientName(t *testing.T) {
	a, b := clientName("requests"), clientName("requests")
	if !strings.HasPrefix(a, "postlsh-requests-") || len(a) != len("postlsh-requests-")+8 {
		t.Errorf("clientName = %q", a)
	}
	if a == b {
		t.Error("client names should differ per connection")
	}
}

func testServeConfig(t *testing.T, addr string) *config.Config {
	t.Helper()
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatal(err)
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{
		Redis: config.RedisConfig{Host: host, Port: p},
		LSH:   config.LSHConfig{Projections: 4, Tables: 2, Dim: 3, Seed: 31},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func TestServeLogsStartupFailures(t *testing.T) {
	t.Run("redis_unreachable", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()

		core, logs := observer.New(zap.InfoLevel)
		if err := serve(testServeConfig(t, addr), zap.New(core)); err == nil {
			t.Fatal("expected an error")
		}
		if got := logs.FilterMessage("Failed to initialize components").Len(); got != 1 {
			t.Errorf("got %d failure log entries, want 1", got)
		}
	})

	t.Run("bad_embedding", func(t *testing.T) {
		mr := miniredis.RunT(t)
		if err := mr.Set(kv.EmbeddingKey(1), "[null,0,0]"); err != nil {
			t.Fatal(err)
		}

		core, logs := observer.New(zap.InfoLevel)
		err := serve(testServeConfig(t, mr.Addr()), zap.New(core))
		if !errors.Is(err, vector.ErrParse) {
			t.Fatalf("err = %v, want %v", err, vector.ErrParse)
		}
		entries := logs.FilterMessage("Backfill failed").All()
		if len(entries) != 1 {
			t.Fatalf("got %d failure log entries, want 1", len(entries))
		}
		if entries[0].Level != zap.ErrorLevel {
			t.Errorf("level = %v, want error", entries[0].Level)
		}
	})
}
