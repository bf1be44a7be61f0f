// internal/httpserver/routes_game.go
//
// Game routes:
//   - POST   /game/new        → create an engine and deal {players, boardCards}
//   - GET    /game/{id}       → current snapshot
//   - POST   /game/{id}/flip  → {cardId} → {accepted, state}
//   - POST   /game/{id}/reset → new deal, same setup
//   - DELETE /game/{id}       → leave (cancels pending timers)
//
// Engines live in the in-memory store; finished deals are written to the
// history table and counted in the owner's stats.

package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/padel-memory/internal/daily"
	"github.com/robalobadob/padel-memory/internal/game"
	"github.com/robalobadob/padel-memory/internal/images"
	"github.com/robalobadob/padel-memory/internal/records"
)

const (
	defaultPlayers    = 1
	defaultBoardCards = 16
)

func (s *Server) mountGame(r chi.Router) {
	r.Post("/game/new", s.handleNewGame)
	r.Get("/game/{id}", s.handleGetGame)
	r.Post("/game/{id}/flip", s.handleFlip)
	r.Post("/game/{id}/reset", s.handleReset)
	r.Delete("/game/{id}", s.handleLeave)
}

// newGameReq is the POST /game/new payload. Zero values pick the defaults.
type newGameReq struct {
	Players    int  `json:"players"`
	BoardCards int  `json:"boardCards"`
	Daily      bool `json:"daily"`
}

// gameRes is a snapshot plus the card back shown for face-down cards.
type gameRes struct {
	game.Snapshot
	BackImage string `json:"backImage"`
}

func (s *Server) gameView(snap game.Snapshot) gameRes {
	return gameRes{Snapshot: snap, BackImage: images.Back(s.game.AssetRoot)}
}

// handleNewGame validates the setup, deals, and registers the engine under the caller.
func (s *Server) handleNewGame(w http.ResponseWriter, r *http.Request) {
	var req newGameReq
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_json")
			return
		}
	}
	if req.Players == 0 {
		req.Players = defaultPlayers
	}
	if req.BoardCards == 0 {
		req.BoardCards = defaultBoardCards
	}

	owner := s.ownerID(w, r)
	solo := req.Players == 1
	userID := ""
	if me := currentUser(r); me != nil {
		userID = me.ID
	}

	e, err := game.NewEngine(game.Options{
		Players:    req.Players,
		BoardCards: req.BoardCards,
		Rules:      s.game.Rules(),
		Scheduler:  s.sched,
		Records:    s.records.For(owner),
		Dealer:     s.dealer(req.Daily),
		OnComplete: func(snap game.Snapshot) { s.recordFinished(owner, userID, solo, snap) },
	})
	if err != nil {
		switch {
		case errors.Is(err, game.ErrInvalidPlayers):
			writeError(w, http.StatusBadRequest, "invalid_players")
		case errors.Is(err, game.ErrUnknownBoard):
			writeError(w, http.StatusBadRequest, "unknown_board")
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	if !s.dealInto(w, e) {
		e.Close()
		return
	}
	if err := s.store.Save(r.Context(), owner, e); err != nil {
		e.Close()
		log.Error().Err(err).Msg("save game")
		writeError(w, http.StatusInternalServerError, "save_failed")
		return
	}
	log.Info().Str("gameId", e.ID()).Str("owner", owner).Int("players", req.Players).Int("cards", req.BoardCards).Bool("daily", req.Daily).Msg("new game")
	writeJSON(w, http.StatusOK, s.gameView(e.Snapshot()))
}

// dealer returns a random deal, or the board of the current UTC day.
func (s *Server) dealer(isDaily bool) game.Dealer {
	if !isDaily {
		return func() (int, []string, func(int) int) {
			set := images.RandomSet(s.game.ImageSets)
			return set, s.pool(set), nil
		}
	}
	return func() (int, []string, func(int) int) {
		day := s.now()
		set := daily.ImageSet(day, s.dailySalt, s.game.ImageSets)
		return set, s.pool(set), daily.Source(day, s.dailySalt)
	}
}

// dealInto starts a fresh session on e, writing the error response on failure.
func (s *Server) dealInto(w http.ResponseWriter, e *game.Engine) bool {
	if err := e.Redeal(); err != nil {
		if errors.Is(err, game.ErrInsufficientAssets) {
			log.Warn().Err(err).Str("gameId", e.ID()).Int("players", e.Players()).Int("cards", e.Board().Cards).Msg("deal")
			writeError(w, http.StatusUnprocessableEntity, "insufficient_assets")
			return false
		}
		log.Error().Err(err).Str("gameId", e.ID()).Msg("deal")
		writeError(w, http.StatusInternalServerError, "deal_failed")
		return false
	}
	return true
}

// lookup finds the game in the URL among the caller's identities.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*game.Engine, bool) {
	id := chi.URLParam(r, "id")
	for _, owner := range identities(r) {
		if e, err := s.store.Get(r.Context(), owner, id); err == nil {
			return e, true
		}
	}
	writeError(w, http.StatusNotFound, "not_found")
	return nil, false
}

func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.gameView(e.Snapshot()))
}

type flipReq struct {
	CardID string `json:"cardId"`
}

type flipRes struct {
	Accepted bool    `json:"accepted"`
	State    gameRes `json:"state"`
}

// handleFlip forwards a flip. Rejected flips are not errors: accepted=false.
func (s *Server) handleFlip(w http.ResponseWriter, r *http.Request) {
	var req flipReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json")
		return
	}
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	accepted := e.Flip(req.CardID)
	writeJSON(w, http.StatusOK, flipRes{Accepted: accepted, State: s.gameView(e.Snapshot())})
}

// handleReset deals again with the same players and board.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if !s.dealInto(w, e) {
		return
	}
	writeJSON(w, http.StatusOK, s.gameView(e.Snapshot()))
}

// handleLeave drops the game; its timers are cancelled.
func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	for _, owner := range identities(r) {
		if err := s.store.Delete(r.Context(), owner, id); err == nil {
			writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
			return
		}
	}
	writeError(w, http.StatusNotFound, "not_found")
}

// recordFinished persists a completed deal (best effort, runs on the engine's timer goroutine).
// An anonymous owner that logged in mid-game is credited to the account.
func (s *Server) recordFinished(owner, userID string, solo bool, snap game.Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if resolved := s.records.Resolve(owner); resolved != owner {
		owner, userID = resolved, resolved
	}

	if err := s.records.InsertFinished(ctx, records.FromSnapshot(owner, snap, time.Now())); err != nil {
		log.Warn().Err(err).Str("gameId", snap.GameID).Msg("insert finished game")
	}
	if userID != "" {
		if err := s.bumpStats(ctx, userID, solo); err != nil {
			log.Warn().Err(err).Str("user", userID).Msg("bump stats")
		}
	}
}
