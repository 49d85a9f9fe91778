package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"github.com/kapu/pitch-coach-go/internal/constants"
	"github.com/kapu/pitch-coach-go/internal/domain"
	"github.com/kapu/pitch-coach-go/internal/util"
)

const (
	frameTurn   = "turn"
	frameReset  = "reset"
	frameReply  = "reply"
	frameState  = "state"
	frameReport = "report"
	frameError  = "error"
)

type clientFrame struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

type serverFrame struct {
	Type     string                 `json:"type"`
	Reply    string                 `json:"reply,omitempty"`
	Source   domain.ReplySource     `json:"source,omitempty"`
	Analysis *domain.InputAnalysis  `json:"analysis,omitempty"`
	State    *domain.SessionState   `json:"state,omitempty"`
	Report   *domain.TrainingReport `json:"report,omitempty"`
	Error    string                 `json:"error,omitempty"`
	Status   int                    `json:"status,omitempty"`
}

// wsSession serves one roleplay session over a single connection.
type wsSession struct {
	server    *Server
	conn      *websocket.Conn
	sessionID string
	writeMu   sync.Mutex
	stopCh    chan struct{}
	stopOnce  sync.Once
	workers   conc.WaitGroup
	logger    *zap.Logger
}

func (s *Server) handleWebSocket(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.deps.Orchestrator.Get(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", zap.String("session_id", id), zap.Error(err))
		return
	}

	ws := &wsSession{
		server:    s,
		conn:      conn,
		sessionID: id,
		stopCh:    make(chan struct{}),
		logger:    s.logger.With(zap.String("session_id", id)),
	}
	ws.run(c.Request.Context())
}

func (ws *wsSession) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		ws.stop()
		ws.workers.Wait()
		_ = ws.conn.Close()
		ws.logger.Info("WebSocket closed")
	}()

	ws.logger.Info("WebSocket connected")

	ws.conn.SetReadLimit(constants.WebSocketConfig.MaxMessageSize)
	_ = ws.conn.SetReadDeadline(time.Now().Add(constants.WebSocketConfig.PongTimeout))
	ws.conn.SetPongHandler(func(string) error {
		return ws.conn.SetReadDeadline(time.Now().Add(constants.WebSocketConfig.PongTimeout))
	})

	ws.workers.Go(ws.pingLoop)

	for {
		_, data, err := ws.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ws.logger.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}
		ws.handleFrame(ctx, data)
	}
}

func (ws *wsSession) handleFrame(ctx context.Context, data []byte) {
	var frame clientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		ws.logger.Debug("Unreadable client frame",
			zap.String("data", util.TruncateString(string(data), 200)),
			zap.Error(err),
		)
		ws.send(serverFrame{Type: frameError, Error: "frame is not valid JSON", Status: http.StatusBadRequest})
		return
	}

	switch frame.Type {
	case frameTurn:
		res, err := ws.server.deps.Orchestrator.HandleTurn(ctx, ws.sessionID, frame.Message)
		if err != nil {
			ws.sendError(err)
			return
		}
		ws.send(serverFrame{
			Type:     frameReply,
			Reply:    res.Reply,
			Source:   res.Source,
			Analysis: &res.Analysis,
			State:    &res.State,
		})
		if res.State.Phase == domain.PhaseEnded {
			generation := res.State.Generation
			ws.workers.Go(func() { ws.awaitReport(ctx, generation) })
		}

	case frameReset:
		state, err := ws.server.deps.Orchestrator.Reset(ctx, ws.sessionID)
		if err != nil {
			ws.sendError(err)
			return
		}
		ws.send(serverFrame{Type: frameState, State: &state})

	default:
		ws.send(serverFrame{Type: frameError, Error: "unknown frame type " + frame.Type, Status: http.StatusBadRequest})
	}
}

// awaitReport polls until the deferred report for generation is stored,
// then pushes it to the client.
func (ws *wsSession) awaitReport(ctx context.Context, generation int64) {
	ticker := time.NewTicker(constants.WebSocketConfig.ReportPollInterval)
	defer ticker.Stop()
	deadline := time.After(constants.WebSocketConfig.ReportWaitTimeout)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ws.stopCh:
			return
		case <-deadline:
			ws.logger.Warn("Gave up waiting for report")
			return
		case <-ticker.C:
			state, err := ws.server.deps.Orchestrator.Get(ctx, ws.sessionID)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					ws.sendError(err)
				}
				return
			}
			if state.Generation != generation {
				return
			}
			if state.Report != nil {
				ws.send(serverFrame{Type: frameReport, Report: state.Report})
				return
			}
		}
	}
}

func (ws *wsSession) pingLoop() {
	ticker := time.NewTicker(constants.WebSocketConfig.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ws.stopCh:
			return
		case <-ticker.C:
			ws.writeMu.Lock()
			err := ws.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(constants.WebSocketConfig.WriteTimeout))
			ws.writeMu.Unlock()
			if err != nil {
				ws.logger.Debug("Ping failed", zap.Error(err))
				return
			}
		}
	}
}

func (ws *wsSession) sendError(err error) {
	ws.send(serverFrame{Type: frameError, Error: err.Error(), Status: statusFor(err)})
}

func (ws *wsSession) send(frame serverFrame) {
	ws.writeMu.Lock()
	defer ws.writeMu.Unlock()

	_ = ws.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketConfig.WriteTimeout))
	if err := ws.conn.WriteJSON(frame); err != nil {
		ws.logger.Debug("WebSocket write failed", zap.String("type", frame.Type), zap.Error(err))
	}
}

func (ws *wsSession) stop() {
	ws.stopOnce.Do(func() {
		close(ws.stopCh)
	})
}
