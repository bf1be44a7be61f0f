// internal/httpserver/ws.go
//
// GET /game/{id}/ws streams snapshots of one game over a websocket.
// A snapshot is written after every engine change. While a single-player
// stopwatch is running the current snapshot is also pushed every streamTick,
// which drives the on-screen timer. The ticker dies with the connection.

package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/padel-memory/internal/game"
)

const (
	streamTick    = 200 * time.Millisecond
	streamWriteTO = 5 * time.Second
)

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: originPatterns(),
	})
	if err != nil {
		log.Warn().Err(err).Str("gameId", e.ID()).Msg("websocket accept")
		return
	}
	defer conn.CloseNow()

	// Client messages are not expected; CloseRead handles control frames and
	// cancels ctx once the peer goes away.
	ctx := conn.CloseRead(r.Context())

	snaps, unsubscribe := e.Subscribe()
	defer unsubscribe()

	ticker := time.NewTicker(streamTick)
	defer ticker.Stop()

	var last game.Snapshot
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snaps:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "game closed")
				return
			}
			last = snap
			if err := writeSnapshot(ctx, conn, s.gameView(snap)); err != nil {
				log.Debug().Err(err).Str("gameId", e.ID()).Msg("websocket write")
				return
			}
		case <-ticker.C:
			if !stopwatchRunning(last) {
				continue
			}
			last = e.Snapshot()
			if err := writeSnapshot(ctx, conn, s.gameView(last)); err != nil {
				log.Debug().Err(err).Str("gameId", e.ID()).Msg("websocket write")
				return
			}
		}
	}
}

// stopwatchRunning is true for a dealt single-player game that is not complete.
func stopwatchRunning(s game.Snapshot) bool {
	return s.Players == 1 && s.ElapsedMs != nil &&
		s.Phase != game.PhaseAllMatched && !s.Finished
}

func writeSnapshot(ctx context.Context, conn *websocket.Conn, v gameRes) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, streamWriteTO)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

// originPatterns allows the configured client origin host.
func originPatterns() []string {
	u, err := url.Parse(clientOrigin())
	if err != nil || u.Host == "" {
		return nil
	}
	return []string{u.Host}
}
