// internal/httpserver/routes_records.go
//
// Best-time routes:
//   - GET /records            → the caller's best time per board size
//   - GET /leaderboard?cards= → fastest recorded times for one board (top 20 by default)

package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/padel-memory/internal/game"
	"github.com/robalobadob/padel-memory/internal/records"
)

const (
	defaultLeaderboardLimit = 20
	maxLeaderboardLimit     = 100
)

func (s *Server) mountRecords(r chi.Router) {
	r.Get("/records", s.handleRecords)
	r.Get("/leaderboard", s.handleLeaderboard)
}

type recordsRes struct {
	Records []records.Record `json:"records"`
}

// handleRecords lists records under the caller's primary identity.
func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	ids := identities(r)
	if len(ids) == 0 {
		_ = json.NewEncoder(w).Encode(recordsRes{Records: []records.Record{}})
		return
	}
	out, err := s.records.List(r.Context(), ids[0])
	if err != nil {
		log.Error().Err(err).Msg("list records")
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	_ = json.NewEncoder(w).Encode(recordsRes{Records: out})
}

type lbRes struct {
	Board game.BoardSize  `json:"board"`
	Top   []records.LBRow `json:"top"`
}

// handleLeaderboard returns the leaderboard for ?cards=N (default 16).
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	cards := defaultBoardCards
	if v := r.URL.Query().Get("cards"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "unknown_board")
			return
		}
		cards = n
	}
	board, err := game.LookupBoard(cards)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown_board")
		return
	}
	limit := defaultLeaderboardLimit
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 {
		limit = min(n, maxLeaderboardLimit)
	}
	rows, err := s.records.Leaderboard(r.Context(), board.Cards, limit)
	if err != nil {
		log.Error().Err(err).Msg("leaderboard")
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	_ = json.NewEncoder(w).Encode(lbRes{Board: board, Top: rows})
}
