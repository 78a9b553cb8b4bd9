package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"risparmi/internal/core"
	applog "risparmi/internal/log"
)

const streamWriteTimeout = 5 * time.Second

type adviceResponse struct {
	Tips    []core.SavingsTip       `json:"tips"`
	Method  *core.RecommendedMethod `json:"method,omitempty"`
	Loading bool                    `json:"loading"`
	Error   string                  `json:"error,omitempty"`
}

func (s *Server) handleAdvice(w http.ResponseWriter, r *http.Request) {
	snap := s.app.Snapshot()
	tips := snap.Tips
	if tips == nil {
		tips = []core.SavingsTip{}
	}
	writeJSON(w, http.StatusOK, adviceResponse{
		Tips:    tips,
		Method:  snap.Method,
		Loading: snap.LoadingAdvice,
		Error:   snap.AdviceError,
	})
}

// handleRefreshAdvice starts a new advice run and returns at once; the result
// arrives through the snapshot.
func (s *Server) handleRefreshAdvice(w http.ResponseWriter, r *http.Request) {
	s.app.RefreshAdvice()
	w.WriteHeader(http.StatusAccepted)
}

// handleStream upgrades to a websocket and pushes every snapshot as JSON
// until the client goes away.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	logger := applog.FromContext(r.Context())
	conn, err := websocket.Accept(w, r, s.acceptOptions())
	if err != nil {
		logger.WarnContext(r.Context(), "Websocket upgrade failed", applog.FieldError, err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream ended")

	snaps, cancel := s.app.Subscribe()
	defer cancel()

	// no client messages are expected; CloseRead handles control frames
	ctx := conn.CloseRead(r.Context())
	logger.DebugContext(ctx, "Snapshot stream opened", applog.FieldOperation, applog.OpStream)

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snaps:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if err := writeSnapshot(ctx, conn, snap); err != nil {
				if !errors.Is(err, context.Canceled) {
					logger.WarnContext(ctx, "Snapshot stream write failed", applog.FieldError, err)
				}
				return
			}
		}
	}
}

func writeSnapshot(ctx context.Context, conn *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, v)
}

func (s *Server) acceptOptions() *websocket.AcceptOptions {
	for _, o := range s.origins {
		if o == "*" {
			return &websocket.AcceptOptions{InsecureSkipVerify: true}
		}
	}
	return &websocket.AcceptOptions{OriginPatterns: s.origins}
}
