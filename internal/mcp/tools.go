// Package mcp exposes one memory game per process as MCP tools over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/padel-memory/internal/config"
	"github.com/robalobadob/padel-memory/internal/game"
	"github.com/robalobadob/padel-memory/internal/images"
	"github.com/robalobadob/padel-memory/internal/records"
)

// resolveWait bounds how long flip(wait=true) blocks for the pair to resolve.
const resolveWait = 10 * time.Second

// Tools holds the single active game and the process-local best times.
type Tools struct {
	mu      sync.Mutex
	active  *game.Engine
	cfg     config.Game
	records *records.Memory

	deal  func() (int, []string)
	sched game.Scheduler
}

// NewTools deals from the configured image sets.
func NewTools(cfg config.Game) *Tools {
	return &Tools{
		cfg:     cfg,
		records: records.NewMemory(),
		deal:    func() (int, []string) { return images.Deal(cfg.AssetRoot, cfg.ImageSets) },
	}
}

// Register adds all game tools to the MCP server.
func (t *Tools) Register(s *server.MCPServer) {
	s.AddTool(newGameTool(), t.handleNewGame)
	s.AddTool(flipTool(), t.handleFlip)
	s.AddTool(getStateTool(), t.handleGetState)
	s.AddTool(bestTimesTool(), t.handleBestTimes)
}

// Close ends the active game, cancelling its timers.
func (t *Tools) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active != nil {
		t.active.Close()
		t.active = nil
	}
}

// --- Tool definitions ---

func newGameTool() mcp.Tool {
	return mcp.NewTool("new_game",
		mcp.WithDescription("Deal a new memory game, replacing any game in progress. "+
			"Cards start face down; face-down cards carry no image. Returns the game state."),
		mcp.WithNumber("players", mcp.Required(), mcp.Description("Number of hot-seat players, 1 to 4. With 1 player the game is timed.")),
		mcp.WithNumber("board_cards", mcp.Required(), mcp.Description("Board size in cards: 8, 12, 16, 20, 24, 30 or 36")),
	)
}

func flipTool() mcp.Tool {
	return mcp.NewTool("flip",
		mcp.WithDescription("Turn a face-down card face up. After the second card of a turn the pair is "+
			"evaluated after a short delay; while it resolves further flips are rejected. "+
			"Returns whether the flip was accepted and the game state."),
		mcp.WithString("card_id", mcp.Required(), mcp.Description("Id of the card to flip, from the cards list")),
		mcp.WithBoolean("wait", mcp.Description("If true and this flip opened a pair, wait until the pair is resolved before returning")),
	)
}

func getStateTool() mcp.Tool {
	return mcp.NewTool("get_state",
		mcp.WithDescription("Get the current game state without changing it. Read-only."),
	)
}

func bestTimesTool() mcp.Tool {
	return mcp.NewTool("best_times",
		mcp.WithDescription("List single-player best times per board size recorded in this process."),
	)
}

// --- Tool handlers ---

func (t *Tools) handleNewGame(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	players := request.GetInt("players", 0)
	cards := request.GetInt("board_cards", 0)

	e, err := game.NewEngine(game.Options{
		Players:    players,
		BoardCards: cards,
		Rules:      t.cfg.Rules(),
		Scheduler:  t.sched,
		Records:    t.records,
	})
	if err != nil {
		switch {
		case errors.Is(err, game.ErrInvalidPlayers):
			return mcp.NewToolResultErrorf("players must be between %d and %d", game.MinPlayers, game.MaxPlayers), nil
		case errors.Is(err, game.ErrUnknownBoard):
			return mcp.NewToolResultErrorf("unsupported board_cards %d", cards), nil
		}
		return mcp.NewToolResultErrorf("Failed to create game: %v", err), nil
	}

	set, pool := t.deal()
	if err := e.Start(set, pool); err != nil {
		e.Close()
		return mcp.NewToolResultErrorf("Failed to deal: %v", err), nil
	}

	t.mu.Lock()
	if t.active != nil {
		t.active.Close()
	}
	t.active = e
	t.mu.Unlock()

	log.Info().Str("gameId", e.ID()).Int("players", players).Int("cards", cards).Msg("mcp new game")
	return mcp.NewToolResultText(respondJSON(e.Snapshot())), nil
}

type flipResponse struct {
	Accepted bool          `json:"accepted"`
	State    game.Snapshot `json:"state"`
}

func (t *Tools) handleFlip(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	e := t.current()
	if e == nil {
		return mcp.NewToolResultError("No game is running. Use new_game first."), nil
	}
	cardID := request.GetString("card_id", "")
	if cardID == "" {
		return mcp.NewToolResultError("card_id is required"), nil
	}

	var (
		updates <-chan game.Snapshot
		cancel  = func() {}
	)
	wait := request.GetBool("wait", false)
	if wait {
		updates, cancel = e.Subscribe()
		<-updates // current state, before this flip
	}
	defer cancel()

	accepted := e.Flip(cardID)
	snap := e.Snapshot()
	if accepted && wait && snap.Phase == game.PhaseResolving {
		snap = waitResolved(ctx, updates, snap)
	}
	return mcp.NewToolResultText(respondJSON(flipResponse{Accepted: accepted, State: snap})), nil
}

// waitResolved returns the first snapshot of a later generation or with input unlocked.
func waitResolved(ctx context.Context, updates <-chan game.Snapshot, from game.Snapshot) game.Snapshot {
	ctx, cancel := context.WithTimeout(ctx, resolveWait)
	defer cancel()
	last := from
	for {
		select {
		case <-ctx.Done():
			return last
		case s, ok := <-updates:
			if !ok {
				return last
			}
			last = s
			if s.Generation != from.Generation || !s.InputLocked {
				return s
			}
		}
	}
}

func (t *Tools) handleGetState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	e := t.current()
	if e == nil {
		return mcp.NewToolResultError("No game is running. Use new_game first."), nil
	}
	return mcp.NewToolResultText(respondJSON(e.Snapshot())), nil
}

func (t *Tools) handleBestTimes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(respondJSON(map[string]any{"records": t.records.All()})), nil
}

func (t *Tools) current() *game.Engine {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

func respondJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf(`{"error": "marshal error: %v"}`, err)
	}
	return string(data)
}
