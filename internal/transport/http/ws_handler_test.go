package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"haccp-training-service/internal/app"
	"haccp-training-service/internal/domain"
	"haccp-training-service/internal/infra/memory"
)

func newTestHandler() (*WSHandler, *memory.ProgressRepository) {
	progressRepo := memory.NewProgressRepository()
	progress := app.NewProgressStore(progressRepo, memory.NewLeaderboardRepository(), nil, nil)

	scenarios := memory.NewScenarioRepository(memory.NewStaticScenarioLoader(sampleScenario()), time.Minute)
	diagnostic := app.NewDiagnosticService(scenarios, progress, app.DefaultAccuracyParams(), 10*time.Millisecond, nil)

	unlock := app.NewUnlockEngine(
		memory.NewFlagSource(domain.FeatureFlags{TrainingEnabled: true}),
		progress, app.UnlockOptions{}, nil)

	clues := app.NewClueLedger(memory.NewKV(), nil)

	registry := memory.NewSessionRegistry(app.SessionDeps{
		Checkpoints: memory.NewCheckpointRepository(),
		Attempts:    memory.NewAttemptRepository(),
		Pool:        memory.NewStaticQuestionPool(samplePool()),
	}, app.SimulationConfig{QuestionCount: 2, TeamSize: 0}, nil)

	return NewWSHandler(GameDeps{
		Registry:   registry,
		Progress:   progress,
		Diagnostic: diagnostic,
		Unlock:     unlock,
		Clues:      clues,
	}, nil), progressRepo
}

func TestWebSocketDiagnosticFlow(t *testing.T) {
	wsHandler, _ := newTestHandler()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	server := httptest.NewServer(mux)
	defer server.Close()

	u := "ws" + server.URL[len("http"):] + "/ws?playerId=p1&sessionId=s1&module=1"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Expect the initial state snapshot first.
	_, payload := readNext(conn, t, "state")
	if payload["state"] != string(app.StateNotStarted) {
		t.Fatalf("expected NOT_STARTED, got %v", payload["state"])
	}

	// Investigate the one relevant question, pick the correct resolution.
	writeMsg(conn, t, "openQuestion", map[string]any{"level": 1, "questionId": "q1"})
	writeMsg(conn, t, "selectResolution", map[string]any{"level": 1, "optionId": "r1", "selected": true})
	writeMsg(conn, t, "completeDiagnostic", map[string]any{"level": 1, "timeRemaining": 42})

	_, payload = readNext(conn, t, "progress")
	if payload["completed"] != true {
		t.Fatalf("expected completed progress, got %v", payload)
	}
	if acc, ok := payload["accuracy"].(float64); !ok || acc != 100 {
		t.Fatalf("expected accuracy 100, got %v", payload["accuracy"])
	}

	// Level 1 is done, so level 2 should be unlocked.
	writeMsg(conn, t, "unlock", map[string]any{"level": 2})
	_, payload = readNext(conn, t, "unlockStatus")
	if payload["unlocked"] != true {
		t.Fatalf("expected level 2 unlocked, got %v", payload)
	}
}

func TestWebSocketClueAndReset(t *testing.T) {
	wsHandler, progressRepo := newTestHandler()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	server := httptest.NewServer(mux)
	defer server.Close()

	u := "ws" + server.URL[len("http"):] + "/ws?playerId=p1&sessionId=s1&module=1"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	readNext(conn, t, "state")

	writeMsg(conn, t, "clue", map[string]any{"level": 3, "clue": 2})
	_, payload := readNext(conn, t, "clues")
	indices, ok := payload["indices"].([]any)
	if !ok || len(indices) != 1 || indices[0].(float64) != 2 {
		t.Fatalf("expected clue indices [2], got %v", payload["indices"])
	}

	writeMsg(conn, t, "completeDiagnostic", map[string]any{"level": 1, "timeRemaining": 0})
	readNext(conn, t, "progress")

	writeMsg(conn, t, "resetProgress", map[string]any{})
	readNext(conn, t, "resetDone")
	if rec, _ := progressRepo.Get(context.Background(), "p1", 1); rec != nil {
		t.Fatalf("expected progress wiped after reset, got %+v", rec)
	}
}

func TestWebSocketHandlerReturnsAfterAbruptClose(t *testing.T) {
	wsHandler, _ := newTestHandler()

	handlerDone := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		wsHandler.ServeWS(w, r)
		close(handlerDone)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	u := "ws" + server.URL[len("http"):] + "/ws?playerId=p1&sessionId=s1&module=1"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	readNext(conn, t, "state")

	// Queue far more replies than the outbound buffer holds, never read
	// them, and drop the connection. The dead writer must not wedge the
	// read loop behind the full buffer.
	for i := 0; i < 40; i++ {
		writeMsg(conn, t, "clue", map[string]any{"level": 1, "clue": i})
	}
	conn.Close()

	select {
	case <-handlerDone:
	case <-time.After(5 * time.Second):
		t.Fatal("handler did not return after the client dropped")
	}
}

func TestWebSocketRejectsMissingIdentity(t *testing.T) {
	wsHandler, _ := newTestHandler()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ws?sessionId=s1&module=1", nil)
	wsHandler.ServeWS(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func writeMsg(conn *websocket.Conn, t *testing.T, typ string, payload map[string]any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"type": typ, "payload": payload}); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read json: %v", err)
		}
		if expect == "" || msg.Type == expect {
			return msg.Type, msg.Payload
		}
		// Skip interleaved state snapshots pushed by the session.
	}
}

func sampleScenario() map[int]domain.Scenario {
	return map[int]domain.Scenario{
		1: {
			ID:    "scn-1",
			Level: 1,
			Questions: []domain.DiagnosticQuestion{
				{ID: "q1", Text: "What does the cooler log show?", Relevant: true},
				{ID: "q2", Text: "Who painted the sign?", Relevant: false},
			},
			Resolutions: []domain.ResolutionOption{
				{ID: "r1", Text: "Discard and document", Correct: true},
				{ID: "r2", Text: "Serve it anyway", Correct: false},
			},
		},
	}
}

func samplePool() map[int][]domain.SimQuestion {
	return map[int][]domain.SimQuestion{
		1: {
			{ID: "s1", Prompt: "Raw meat over produce", Violation: "v", RootCause: "r", Solution: "s"},
			{ID: "s2", Prompt: "No soap at handsink", Violation: "v", RootCause: "r", Solution: "s"},
			{ID: "s3", Prompt: "Cooler above 41F", Violation: "v", RootCause: "r", Solution: "s"},
		},
	}
}
