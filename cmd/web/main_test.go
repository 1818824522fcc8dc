package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Diego-DPL/zypace/internal/e2etest"
	"github.com/Diego-DPL/zypace/internal/testhelpers"
)

// testLookupEnv serves an in-memory database on a random port, overlaid with env.
func testLookupEnv(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		switch key {
		case "ZYPACE_SQLITE_URL":
			return ":memory:", true
		case "ZYPACE_ADDR":
			return "localhost:0", true
		default:
			v, ok := env[key]
			return v, ok
		}
	}
}

func startServer(t *testing.T, env map[string]string) *e2etest.Server {
	t.Helper()
	server, err := e2etest.StartServer(t, testhelpers.NewWriter(t), testLookupEnv(env), run)
	if err != nil {
		t.Fatalf("start server: %v", err)
	}
	return server
}

func startSession(t *testing.T, client *e2etest.Client) int {
	t.Helper()
	runnerID, err := client.StartSession(t.Context())
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	return runnerID
}

var promptRangePattern = regexp.MustCompile(`from (\d{4}-\d{2}-\d{2}) to (\d{4}-\d{2}-\d{2}) inclusive`)

// generationServer is a chat completions endpoint that answers every prompt with a schedule covering the requested
// range: easy runs with a rest day on Mondays.
type generationServer struct {
	*httptest.Server
	mu     sync.Mutex
	models []string
	fail   bool
}

func newGenerationServer(t *testing.T) *generationServer {
	t.Helper()
	g := &generationServer{Server: nil, mu: sync.Mutex{}, models: nil, fail: false}
	g.Server = httptest.NewServer(http.HandlerFunc(g.handle))
	t.Cleanup(g.Close)
	return g
}

func (g *generationServer) env() map[string]string {
	return map[string]string{
		"OPENAI_API_KEY":  "test-key",
		"OPENAI_BASE_URL": g.URL,
		"OPENAI_MODEL":    "gpt-test",
	}
}

func (g *generationServer) setFailing(fail bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fail = fail
}

func (g *generationServer) requestedModels() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.models...)
}

func (g *generationServer) handle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model    string `json:"model"`
		Messages []struct {
			Content string `json:"content"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	g.mu.Lock()
	g.models = append(g.models, req.Model)
	fail := g.fail
	g.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if fail {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
		return
	}

	var prompt strings.Builder
	for _, m := range req.Messages {
		prompt.WriteString(m.Content)
	}
	match := promptRangePattern.FindStringSubmatch(prompt.String())
	if match == nil {
		http.Error(w, "no date range in prompt", http.StatusBadRequest)
		return
	}
	start, _ := time.Parse(time.DateOnly, match[1])
	end, _ := time.Parse(time.DateOnly, match[2])

	type entry struct {
		Date        string `json:"date"`
		Description string `json:"description"`
	}
	var entries []entry
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		description := "Easy run 6 km"
		if d.Weekday() == time.Monday {
			description = "Rest"
		}
		entries = append(entries, entry{Date: d.Format(time.DateOnly), Description: description})
	}
	reply, _ := json.Marshal(map[string]any{"plan": entries})

	body, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   req.Model,
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": "Here you go:\n" + string(reply)},
		}},
	})
	_, _ = w.Write(body)
}

// today is the server's current day.
func today() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
