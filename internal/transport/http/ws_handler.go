package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"haccp-training-service/internal/app"
	"haccp-training-service/internal/domain"
)

// GameDeps are the use cases the websocket surface drives. The core itself
// has no listener; this handler is the hosting harness around it.
type GameDeps struct {
	Registry   app.SessionRegistry
	Progress   *app.ProgressStore
	Diagnostic *app.DiagnosticService
	Unlock     *app.UnlockEngine
	Clues      *app.ClueLedger
}

type WSHandler struct {
	deps     GameDeps
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(deps GameDeps, log *zap.Logger) *WSHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WSHandler{
		deps: deps,
		log:  log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	Violation string `json:"violation"`
	RootCause string `json:"rootCause"`
	Solution  string `json:"solution"`
}

type cluePayload struct {
	Level int `json:"level"`
	Clue  int `json:"clue"`
}

type levelPayload struct {
	Level int `json:"level"`
}

type openQuestionPayload struct {
	Level      int    `json:"level"`
	QuestionID string `json:"questionId"`
}

type selectResolutionPayload struct {
	Level    int    `json:"level"`
	OptionID string `json:"optionId"`
	Selected bool   `json:"selected"`
}

type completeDiagnosticPayload struct {
	Level         int `json:"level"`
	TimeRemaining int `json:"timeRemaining"`
}

type unlockStatus struct {
	Level    int  `json:"level"`
	Unlocked bool `json:"unlocked"`
}

type clueList struct {
	Level   int   `json:"level"`
	Indices []int `json:"indices"`
}

type resumeResult struct {
	Resumed bool `json:"resumed"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the connection and runs one player's game loop. The
// session outlives the connection so a reconnect reattaches to the same run.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	playerID := r.URL.Query().Get("playerId")
	sessionID := r.URL.Query().Get("sessionId")
	moduleRaw := r.URL.Query().Get("module")
	module, err := strconv.Atoi(moduleRaw)
	if playerID == "" || err != nil {
		http.Error(w, "missing playerId or module", http.StatusBadRequest)
		return
	}
	if sessionID == "" {
		// Solo play gets its own session; teams pass a shared sessionId.
		sessionID = uuid.NewString()
	}
	identity := domain.Identity{PlayerID: playerID, SessionID: sessionID}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	session := h.deps.Registry.GetOrCreate(identity, module)

	updates := make(chan app.SessionSnapshot, 8)
	session.SetOnUpdate(func(snap app.SessionSnapshot) {
		select {
		case updates <- snap:
		default:
			// Drop the stale snapshot rather than block a timer tick.
			select {
			case <-updates:
			default:
			}
			updates <- snap
		}
	})
	defer session.SetOnUpdate(nil)

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug("ws write error", zap.Error(err))
				return
			}
		}
	}()

	// A dead writer stops draining send; dropping on the floor beats
	// wedging the read loop behind a full buffer.
	deliver := func(msg outboundMessage[any]) {
		select {
		case send <- msg:
		case <-writerDone:
		}
	}

	go func() {
		defer close(updatesDone)
		for {
			select {
			case snap := <-updates:
				select {
				case send <- outboundMessage[any]{Type: "state", Payload: snap}:
				case <-writerDone:
					return
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	deliver(outboundMessage[any]{Type: "state", Payload: session.Snapshot()})

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "resume":
			resumed := session.Resume(r.Context())
			deliver(outboundMessage[any]{Type: "resumeResult", Payload: resumeResult{Resumed: resumed}})
		case "start":
			if err := session.Start(r.Context()); err != nil {
				deliver(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}})
			}
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				deliver(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}})
				continue
			}
			if err := session.EditAnswer(r.Context(), domain.SimAnswer{
				Violation: payload.Violation,
				RootCause: payload.RootCause,
				Solution:  payload.Solution,
			}); err != nil {
				deliver(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}})
			}
		case "next":
			if err := session.Advance(r.Context()); err != nil {
				deliver(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}})
			}
		case "openQuestion":
			var payload openQuestionPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				deliver(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid openQuestion payload"}})
				continue
			}
			h.deps.Diagnostic.OpenQuestion(r.Context(), playerID, payload.Level, payload.QuestionID)
		case "selectResolution":
			var payload selectResolutionPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				deliver(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid selectResolution payload"}})
				continue
			}
			h.deps.Diagnostic.SelectResolution(r.Context(), playerID, payload.Level, payload.OptionID, payload.Selected)
		case "completeDiagnostic":
			var payload completeDiagnosticPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				deliver(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid completeDiagnostic payload"}})
				continue
			}
			rec, err := h.deps.Diagnostic.Complete(r.Context(), playerID, payload.Level, payload.TimeRemaining)
			if err != nil {
				deliver(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}})
				continue
			}
			deliver(outboundMessage[any]{Type: "progress", Payload: rec})
		case "unlock":
			var payload levelPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				deliver(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid unlock payload"}})
				continue
			}
			deliver(outboundMessage[any]{Type: "unlockStatus", Payload: unlockStatus{
				Level:    payload.Level,
				Unlocked: h.deps.Unlock.IsUnlocked(r.Context(), playerID, payload.Level),
			}})
		case "clue":
			var payload cluePayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				deliver(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid clue payload"}})
				continue
			}
			h.deps.Clues.Unlock(payload.Level, payload.Clue)
			deliver(outboundMessage[any]{Type: "clues", Payload: clueList{
				Level:   payload.Level,
				Indices: h.deps.Clues.Unlocked(payload.Level),
			}})
		case "resetProgress":
			if err := h.deps.Progress.ResetAll(r.Context(), playerID); err != nil {
				deliver(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}})
				continue
			}
			h.deps.Clues.Reset()
			deliver(outboundMessage[any]{Type: "resetDone", Payload: struct{}{}})
		default:
			deliver(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}})
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}
