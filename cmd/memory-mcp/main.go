// Command memory-mcp serves a single memory game as MCP tools over stdio.
// Logs go to stderr; stdout carries the protocol.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/padel-memory/internal/config"
	"github.com/robalobadob/padel-memory/internal/images"
	memorymcp "github.com/robalobadob/padel-memory/internal/mcp"
)

func main() {
	_ = godotenv.Load()
	gameCfg := flag.String("config", config.GetEnv("GAME_CONFIG", "game.yaml"), "path to game rules YAML file")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})
	if lvl, err := zerolog.ParseLevel(config.GetEnv("LOG_LEVEL", "warn")); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	g, err := config.LoadGame(*gameCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := images.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	tools := memorymcp.NewTools(g)
	defer tools.Close()

	s := server.NewMCPServer("padel-memory", "1.0.0")
	tools.Register(s)

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
