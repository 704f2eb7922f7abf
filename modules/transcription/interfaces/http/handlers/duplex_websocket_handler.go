// Package handlers exposes the duplex audio protocol (§6) as a gin +
// gorilla/websocket endpoint, generalizing the teacher's
// HandleAudioWebSocket (simple_websocket_handlers.go) from its ad hoc
// AudioProcessor abstraction to Chronicle's registry/bus/worker wiring.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"chronicle/server/jobs/infrastructure"
	"chronicle/server/modules/livetranscription"
	"chronicle/server/modules/persistence"
	sessiondomain "chronicle/server/modules/session/domain"
	sessioninfra "chronicle/server/modules/session/infrastructure"
	"chronicle/server/modules/transcription/domain/streaming"
	"chronicle/server/modules/user/interfaces/http/middleware"
	"chronicle/server/seedwork/domain"
	"chronicle/server/seedwork/infrastructure/bus"
	"chronicle/server/seedwork/infrastructure/metrics"
)

var duplexUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Origin enforcement belongs to the upstream gateway, which already
		// resolved and verified the Principal attached to this request.
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// header is the JSON control frame the protocol exchanges; audio-chunk's
// header is immediately followed by a separate binary frame holding
// exactly PayloadLength bytes of PCM (§6).
type header struct {
	Type          string `json:"type"`
	Rate          int    `json:"rate,omitempty"`
	Width         int    `json:"width,omitempty"`
	Channels      int    `json:"channels,omitempty"`
	Mode          string `json:"mode,omitempty"`
	PayloadLength int    `json:"payload_length,omitempty"`
}

type errorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// DuplexHandlers wires the Audio Session Registry (§4.B), Stream Bus
// (§4.A), Audio Persistence Worker (§4.C) and Live Transcription Worker
// (§4.D) into one websocket connection handler.
type DuplexHandlers struct {
	Registry     sessiondomain.Registry
	Tracker      *sessioninfra.ConnectionTracker
	Bus          bus.Bus
	SpeechDetect *infrastructure.ConversationAdapter
	Store        persistence.ConversationRepository
	LiveProvider streaming.StreamingTranscriptionProvider
	ChunkDir     string
	Diarize      bool

	Logger zerolog.Logger
}

// NewDuplexHandlers builds a DuplexHandlers. LiveProvider may be nil,
// disabling the Live Transcription Worker for this deployment.
func NewDuplexHandlers(
	registry sessiondomain.Registry,
	tracker *sessioninfra.ConnectionTracker,
	b bus.Bus,
	speechDetect *infrastructure.ConversationAdapter,
	store persistence.ConversationRepository,
	liveProvider streaming.StreamingTranscriptionProvider,
	chunkDir string,
	diarize bool,
	logger zerolog.Logger,
) *DuplexHandlers {
	return &DuplexHandlers{
		Registry:     registry,
		Tracker:      tracker,
		Bus:          b,
		SpeechDetect: speechDetect,
		Store:        store,
		LiveProvider: liveProvider,
		ChunkDir:     chunkDir,
		Diarize:      diarize,
		Logger:       logger,
	}
}

// HandleDuplexAudio upgrades the connection, creates a session, starts the
// persistence and live-transcription workers, arms the first
// Speech-Detection Controller, then dispatches header/payload frames
// until the peer disconnects or sends audio-stop.
func (h *DuplexHandlers) HandleDuplexAudio(c *gin.Context) {
	principal, ok := middleware.FromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	conn, err := duplexUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Logger.Error().Err(err).Msg("duplex websocket upgrade failed")
		return
	}
	defer conn.Close()

	sessionID := domain.GenerateID()
	clientID := c.Query("client_id")
	sess := sessiondomain.NewSession(sessionID, clientID, principal.UserID)

	if err := h.Registry.Create(c.Request.Context(), sess); err != nil {
		h.Logger.Error().Err(err).Str("session_id", sessionID).Msg("failed to create session")
		writeErrorFrame(conn, "failed to open session")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.Tracker.MarkConnected(sessionID)
	defer h.Tracker.MarkDisconnected(sessionID)

	metrics.SessionsActive.Inc()
	defer metrics.SessionsActive.Dec()

	var workerCount int
	workerErrs := make(chan error, 2)

	persistenceWorker := persistence.NewWorker(h.Bus, h.Registry, h.Store, h.ChunkDir, 16000)
	workerCount++
	go func() { workerErrs <- persistenceWorker.Run(ctx, sessionID) }()

	if h.LiveProvider != nil {
		liveWorker := livetranscription.NewWorker(h.Bus, h.LiveProvider, h.Registry, 16000, h.Diarize)
		workerCount++
		go func() { workerErrs <- liveWorker.Run(ctx, sessionID, clientID) }()
	}

	if err := h.SpeechDetect.RearmSpeechDetection(ctx, sessionID); err != nil {
		h.Logger.Error().Err(err).Str("session_id", sessionID).Msg("failed to arm speech detection")
	}

	if err := conn.WriteJSON(header{Type: "ready"}); err != nil {
		h.Logger.Debug().Err(err).Msg("failed to send ready frame")
	}

	bytesStream, _ := bus.StreamNames(sessionID)
	sampleRate := 16000

readLoop:
	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.Logger.Debug().Err(err).Str("session_id", sessionID).Msg("duplex websocket closed unexpectedly")
			}
			if _, err := h.Registry.TransitionToFinalizing(ctx, sessionID, sessiondomain.ReasonWebsocketDisconnect); err != nil {
				h.Logger.Error().Err(err).Str("session_id", sessionID).Msg("failed to finalize session on disconnect")
			}
			break readLoop
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var hdr header
		if err := json.Unmarshal(payload, &hdr); err != nil {
			writeErrorFrame(conn, "malformed header frame")
			continue
		}

		switch hdr.Type {
		case "audio-start":
			if hdr.Rate > 0 {
				sampleRate = hdr.Rate
			}

		case "audio-chunk":
			if hdr.PayloadLength <= 0 {
				writeErrorFrame(conn, "audio-chunk missing payload_length")
				continue
			}
			rate := hdr.Rate
			if rate == 0 {
				rate = sampleRate
			}
			_, binPayload, err := conn.ReadMessage()
			if err != nil {
				h.Logger.Debug().Err(err).Str("session_id", sessionID).Msg("failed reading chunk payload frame")
				if _, err := h.Registry.TransitionToFinalizing(ctx, sessionID, sessiondomain.ReasonWebsocketDisconnect); err != nil {
					h.Logger.Error().Err(err).Msg("failed to finalize session on disconnect")
				}
				break readLoop
			}
			metrics.AudioChunksIngestedTotal.Inc()
			if len(binPayload) != hdr.PayloadLength {
				writeErrorFrame(conn, "payload_length mismatch")
				continue
			}
			chunk := streaming.Chunk{Data: binPayload, SampleRate: rate}
			if _, err := h.Bus.Append(ctx, bytesStream, streaming.EncodeChunk(chunk)); err != nil {
				h.Logger.Error().Err(err).Str("session_id", sessionID).Msg("failed to append audio chunk")
			}

		case "audio-stop":
			if _, err := h.Registry.TransitionToFinalizing(ctx, sessionID, sessiondomain.ReasonUserStopped); err != nil {
				h.Logger.Error().Err(err).Str("session_id", sessionID).Msg("failed to finalize session on stop")
			}

		case "ping":
			if err := conn.WriteJSON(header{Type: "pong"}); err != nil {
				h.Logger.Debug().Err(err).Msg("failed to send pong")
			}

		default:
			writeErrorFrame(conn, "unknown frame type: "+hdr.Type)
		}
	}

	cancel()
	for i := 0; i < workerCount; i++ {
		if err := <-workerErrs; err != nil && !errors.Is(err, context.Canceled) {
			h.Logger.Debug().Err(err).Str("session_id", sessionID).Msg("worker exited")
		}
	}
}

func writeErrorFrame(conn *websocket.Conn, msg string) {
	_ = conn.WriteJSON(errorFrame{Type: "error", Error: msg})
}
