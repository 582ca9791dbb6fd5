package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/hpungsan/grimoire/internal/config"
	"github.com/hpungsan/grimoire/internal/logging"
	"github.com/hpungsan/grimoire/internal/mcp"
	"github.com/hpungsan/grimoire/internal/repo"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"create": true, "get": true, "update": true, "delete": true,
	"list": true, "search": true, "history": true, "restore": true,
	"export": true, "reindex": true, "stats": true, "settings": true,
	"suggest": true, "serve": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	if cliCommands[arg] {
		return true
	}
	if arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" {
		return true
	}
	return false
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
    ___ ___ ___ __  __  ___ ___ ___ ___
   / __| _ \_ _|  \/  |/ _ \_ _| _ \ __|
  | (_ |   /| || |\/| | (_) | ||   / _|
   \___|_|_\___|_|  |_|\___/___|_|_\___|

  Prompt, agent, skill and command library

  Usage: grimoire <command> [options]
         grimoire --help

  MCP server mode requires piped input.`)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Help and version need no database
	if isHelpOrVersion() {
		app := newCLIApp(nil, nil, zerolog.Nop())
		if err := app.Run(os.Args); err != nil {
			fatal("%v", err)
		}
		return
	}

	dataDir, err := config.DataDir()
	if err != nil {
		fatal("could not resolve data directory: %v", err)
	}

	cwd, _ := os.Getwd()
	cfg, err := config.LoadWithRepo(dataDir, cwd)
	if err != nil {
		fatal("failed to load config: %v", err)
	}

	log := logging.New(logging.FromConfig(cfg))

	r, err := repo.Open(context.Background(), dataDir, cfg, repo.WithLogger(log))
	if err != nil {
		fatal("failed to open repository: %v", err)
	}
	defer r.Close()

	if isCLIMode() {
		app := newCLIApp(r, cfg, log)
		if err := app.Run(os.Args); err != nil {
			r.Close()
			fatal("%v", err)
		}
		return
	}

	// Unknown argument on a terminal is a typo, not an MCP client
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'grimoire --help' for usage.\n")
		r.Close()
		os.Exit(1)
	}

	if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
		log.Warn().Strs("tools", unknown).Msg("unknown tool names in disabled_tools")
	}
	if unknown := mcp.ValidateDisabledTypes(cfg.DisabledTypes); len(unknown) > 0 {
		log.Warn().Strs("types", unknown).Msg("unknown type names in disabled_types")
	}

	if err := mcp.Run(r, cfg, log, Version); err != nil {
		r.Close()
		fatal("%v", err)
	}
}
