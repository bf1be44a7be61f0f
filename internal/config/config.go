// internal/config/config.go
//
// Game and server configuration.
//
// Rules come from a YAML file (GAME_CONFIG, default ./game.yaml) layered over
// built-in defaults; a missing file is not an error. Server settings come from
// the environment (usually populated by godotenv from .env).
//
// Example game.yaml:
//
//	asset_root: /memory
//	image_sets: 5
//	joker_keyword: heerjan
//	resolution_delay_match_ms: 650
//	resolution_delay_mismatch_ms: 1200
//	end_screen_delay_ms: 1500

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/robalobadob/padel-memory/internal/game"
)

// Game holds the rule surface supplied to every new engine.
type Game struct {
	AssetRoot       string `yaml:"asset_root"`
	ImageSets       int    `yaml:"image_sets"`
	JokerKeyword    string `yaml:"joker_keyword"`
	MatchDelayMs    int    `yaml:"resolution_delay_match_ms"`
	MismatchDelayMs int    `yaml:"resolution_delay_mismatch_ms"`
	EndScreenMs     int    `yaml:"end_screen_delay_ms"`
}

// Server holds process-level settings.
type Server struct {
	Port         string
	DBPath       string
	ClientOrigin string
	LogLevel     string
}

// Config is everything main needs.
type Config struct {
	Game   Game
	Server Server
}

// DefaultGame returns the rules the game shipped with.
func DefaultGame() Game {
	r := game.DefaultRules()
	return Game{
		AssetRoot:       "/memory",
		ImageSets:       5,
		JokerKeyword:    r.JokerKeyword,
		MatchDelayMs:    int(r.MatchDelay / time.Millisecond),
		MismatchDelayMs: int(r.MismatchDelay / time.Millisecond),
		EndScreenMs:     int(r.EndScreenDelay / time.Millisecond),
	}
}

// Load reads the YAML rules at path over the defaults and the server
// settings from the environment.
func Load(path string) (Config, error) {
	g, err := LoadGame(path)
	if err != nil {
		return Config{}, err
	}
	return Config{
		Game: g,
		Server: Server{
			Port:         GetEnv("PORT", "5175"),
			DBPath:       GetEnv("DB_PATH", "./data/app.db"),
			ClientOrigin: GetEnv("CLIENT_ORIGIN", "http://localhost:5173"),
			LogLevel:     GetEnv("LOG_LEVEL", "info"),
		},
	}, nil
}

// LoadGame reads only the rules file. A missing file yields the defaults.
func LoadGame(path string) (Game, error) {
	g := DefaultGame()
	if path == "" {
		return g, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return g, nil
	}
	if err != nil {
		return g, fmt.Errorf("read game config: %w", err)
	}
	if err := yaml.Unmarshal(data, &g); err != nil {
		return g, fmt.Errorf("parse game config: %w", err)
	}
	if err := g.Validate(); err != nil {
		return g, fmt.Errorf("game config %s: %w", path, err)
	}
	return g, nil
}

// Validate rejects values the engine cannot run with.
func (g Game) Validate() error {
	if g.ImageSets < 1 {
		return errors.New("image_sets must be at least 1")
	}
	if g.MatchDelayMs < 0 || g.MismatchDelayMs < 0 || g.EndScreenMs < 0 {
		return errors.New("delays must not be negative")
	}
	return nil
}

// Rules converts the file values into engine rules.
func (g Game) Rules() game.Rules {
	return game.Rules{
		JokerKeyword:   g.JokerKeyword,
		MatchDelay:     time.Duration(g.MatchDelayMs) * time.Millisecond,
		MismatchDelay:  time.Duration(g.MismatchDelayMs) * time.Millisecond,
		EndScreenDelay: time.Duration(g.EndScreenMs) * time.Millisecond,
	}
}

// GetEnv returns the value of k or def if unset/empty.
func GetEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
