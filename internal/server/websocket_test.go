package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kapu/pitch-coach-go/internal/domain"
)

func dialSession(t *testing.T, env *testEnv, id string) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(env.srv.Handler())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/roleplay/" + id
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) serverFrame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var frame serverFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

func TestWebSocketTurnsAndReport(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.orch.Start(context.Background(), "user-ws", "skeptical", "")
	if err != nil {
		t.Fatal(err)
	}
	conn := dialSession(t, env, res.State.ID)

	var frame serverFrame
	for i := 0; i < 4; i++ {
		if err := conn.WriteJSON(clientFrame{Type: frameTurn, Message: "no"}); err != nil {
			t.Fatal(err)
		}
		frame = readFrame(t, conn)
		if frame.Type != frameReply || frame.Reply == "" || frame.State == nil {
			t.Fatalf("turn %d: unexpected frame %+v", i+1, frame)
		}
	}
	if frame.State.Phase != domain.PhaseEnded {
		t.Fatalf("phase = %s", frame.State.Phase)
	}

	report := readFrame(t, conn)
	if report.Type != frameReport || report.Report == nil {
		t.Fatalf("expected report frame, got %+v", report)
	}
	if report.Report.FinalEngagement != domain.EngagementCold {
		t.Fatalf("final engagement = %s", report.Report.FinalEngagement)
	}

	if err := conn.WriteJSON(clientFrame{Type: frameTurn, Message: "hello?"}); err != nil {
		t.Fatal(err)
	}
	if f := readFrame(t, conn); f.Type != frameError || f.Status != http.StatusConflict {
		t.Fatalf("expected conflict frame, got %+v", f)
	}

	if err := conn.WriteJSON(clientFrame{Type: frameReset}); err != nil {
		t.Fatal(err)
	}
	f := readFrame(t, conn)
	if f.Type != frameState || f.State == nil || f.State.Phase != domain.PhaseDiscovery {
		t.Fatalf("expected fresh state frame, got %+v", f)
	}
}

func TestWebSocketRejectsBadFrames(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.orch.Start(context.Background(), "", "new", "")
	if err != nil {
		t.Fatal(err)
	}
	conn := dialSession(t, env, res.State.ID)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatal(err)
	}
	if f := readFrame(t, conn); f.Type != frameError || f.Status != http.StatusBadRequest {
		t.Fatalf("unexpected frame %+v", f)
	}

	if err := conn.WriteJSON(clientFrame{Type: "dance"}); err != nil {
		t.Fatal(err)
	}
	if f := readFrame(t, conn); f.Type != frameError || !strings.Contains(f.Error, "dance") {
		t.Fatalf("unexpected frame %+v", f)
	}
}

func TestWebSocketUnknownSession(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/roleplay/missing"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 response, got %+v", resp)
	}
}
