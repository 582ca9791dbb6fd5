package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/hpungsan/grimoire/internal/config"
	"github.com/hpungsan/grimoire/internal/db"
	"github.com/hpungsan/grimoire/internal/editor"
	"github.com/hpungsan/grimoire/internal/errors"
	"github.com/hpungsan/grimoire/internal/export"
	"github.com/hpungsan/grimoire/internal/item"
	"github.com/hpungsan/grimoire/internal/repo"
	"github.com/hpungsan/grimoire/internal/suggest"
	"github.com/hpungsan/grimoire/internal/web"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(r *repo.Repository, cfg *config.Config, log zerolog.Logger) *cli.App {
	app := &cli.App{
		Name:    "grimoire",
		Usage:   "Prompt, agent, skill and command library",
		Version: Version,
		Commands: []*cli.Command{
			createCmd(r),
			getCmd(r),
			updateCmd(r),
			deleteCmd(r),
			listCmd(r),
			searchCmd(r),
			historyCmd(r),
			restoreCmd(r),
			exportCmd(r, cfg),
			reindexCmd(r),
			statsCmd(r),
			settingsCmd(r),
			suggestCmd(r, cfg),
			serveCmd(r, cfg, log),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// fieldFlags are the item attribute flags shared by create and update.
func fieldFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Display name"},
		&cli.StringFlag{Name: "description", Aliases: []string{"d"}, Usage: "Short description (required for agents and skills)"},
		&cli.StringFlag{Name: "model", Usage: "Model alias or id (agents, commands)"},
		&cli.StringFlag{Name: "tools", Usage: "Comma-separated tools the agent may use"},
		&cli.StringFlag{Name: "allowed-tools", Usage: "Comma-separated allowed tools (skills, commands)"},
		&cli.StringFlag{Name: "argument-hint", Usage: "Argument hint (commands)"},
		&cli.StringFlag{Name: "permission-mode", Usage: "default|acceptEdits|bypassPermissions|plan (agents)"},
		&cli.StringFlag{Name: "skills", Usage: "Comma-separated skills the agent loads"},
		&cli.StringFlag{Name: "tags", Usage: "Comma-separated tags"},
	}
}

// createCmd creates the create command.
func createCmd(r *repo.Repository) *cli.Command {
	return &cli.Command{
		Name:  "create",
		Usage: "Create an item (reads content from stdin)",
		Flags: append([]cli.Flag{
			&cli.StringFlag{Name: "category", Aliases: []string{"c"}, Required: true, Usage: "prompt|agent|skill|command"},
		}, fieldFlags()...),
		Action: func(c *cli.Context) error {
			category, err := parseCategory(c.String("category"))
			if err != nil {
				return outputError(err)
			}

			content, ok, err := readInput(c)
			if err != nil {
				return outputError(errors.NewInvalidRequest(fmt.Sprintf("read stdin: %v", err)))
			}
			if !ok {
				return outputError(errors.NewInvalidRequest("content must be piped via stdin"))
			}

			f := fieldsFromFlags(c)
			f.Content = &content

			it, err := r.Create(c.Context, item.Candidate{Category: category, Fields: f})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, it)
		},
	}
}

// getCmd creates the get command.
func getCmd(r *repo.Repository) *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Fetch an item by id",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			id, err := requireID(c)
			if err != nil {
				return outputError(err)
			}
			it, err := r.Get(c.Context, id)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, it)
		},
	}
}

// updateCmd creates the update command.
func updateCmd(r *repo.Repository) *cli.Command {
	return &cli.Command{
		Name:      "update",
		Usage:     "Patch an item (optionally reads new content from stdin)",
		ArgsUsage: "<id>",
		Flags: append([]cli.Flag{
			&cli.IntFlag{Name: "base-version", Aliases: []string{"b"}, Required: true, Usage: "Version the edit is based on"},
		}, fieldFlags()...),
		Action: func(c *cli.Context) error {
			id, err := requireID(c)
			if err != nil {
				return outputError(err)
			}

			patch := patchFromFlags(c)
			content, ok, err := readInput(c)
			if err != nil {
				return outputError(errors.NewInvalidRequest(fmt.Sprintf("read stdin: %v", err)))
			}
			if ok {
				patch.Content = &content
			}

			it, err := r.Update(c.Context, id, c.Int("base-version"), patch)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, it)
		},
	}
}

// deleteCmd creates the delete command.
func deleteCmd(r *repo.Repository) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete an item and its history",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			id, err := requireID(c)
			if err != nil {
				return outputError(err)
			}
			if err := r.Delete(c.Context, id); err != nil {
				return outputError(err)
			}
			return outputJSON(c, map[string]any{"id": id, "deleted": true})
		},
	}
}

// listCmd creates the list command.
func listCmd(r *repo.Repository) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List items, most recently updated first",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "category", Aliases: []string{"c"}, Usage: "Filter by category"},
			&cli.StringFlag{Name: "tag", Aliases: []string{"t"}, Usage: "Filter by tag"},
		},
		Action: func(c *cli.Context) error {
			filter := repo.ListFilter{}
			if s := c.String("category"); s != "" {
				category, err := parseCategory(s)
				if err != nil {
					return outputError(err)
				}
				filter.Category = &category
			}
			if tag := c.String("tag"); tag != "" {
				filter.Tag = &tag
			}

			items, err := r.List(c.Context, filter)
			if err != nil {
				return outputError(err)
			}
			if items == nil {
				items = []*item.Item{}
			}
			return outputJSON(c, map[string]any{"items": items, "count": len(items)})
		},
	}
}

// searchCmd creates the search command.
func searchCmd(r *repo.Repository) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search names, descriptions, content and tags",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "category", Aliases: []string{"c"}, Usage: "Filter by category"},
			&cli.StringFlag{Name: "tag", Aliases: []string{"t"}, Usage: "Filter by tag"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "Maximum results (0 = all)"},
		},
		Action: func(c *cli.Context) error {
			if c.Int("limit") < 0 {
				return outputError(errors.NewInvalidRequest("limit must not be negative"))
			}
			in := repo.QueryInput{
				Term:  strings.Join(c.Args().Slice(), " "),
				Limit: c.Int("limit"),
			}
			if s := c.String("category"); s != "" {
				category, err := parseCategory(s)
				if err != nil {
					return outputError(err)
				}
				in.Category = &category
			}
			if tag := c.String("tag"); tag != "" {
				in.Tag = &tag
			}

			results, err := r.Query(c.Context, in)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, map[string]any{"results": results, "count": len(results)})
		},
	}
}

// historyCmd creates the history command.
func historyCmd(r *repo.Repository) *cli.Command {
	return &cli.Command{
		Name:      "history",
		Usage:     "List superseded versions of an item, or show one with --version",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "version", Usage: "Show the snapshot recorded for this version"},
		},
		Action: func(c *cli.Context) error {
			id, err := requireID(c)
			if err != nil {
				return outputError(err)
			}

			if c.IsSet("version") {
				entry, err := r.HistoryEntry(c.Context, id, c.Int("version"))
				if err != nil {
					return outputError(err)
				}
				return outputJSON(c, entry)
			}

			entries, err := r.History(c.Context, id)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, map[string]any{"item_id": id, "entries": entries, "count": len(entries)})
		},
	}
}

// restoreCmd creates the restore command.
func restoreCmd(r *repo.Repository) *cli.Command {
	return &cli.Command{
		Name:      "restore",
		Usage:     "Make a recorded version current again",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "version", Required: true, Usage: "Version to restore"},
		},
		Action: func(c *cli.Context) error {
			id, err := requireID(c)
			if err != nil {
				return outputError(err)
			}
			it, err := r.Restore(c.Context, id, c.Int("version"))
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, it)
		},
	}
}

// exportCmd creates the export command.
func exportCmd(r *repo.Repository, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Write agents, commands and skills as markdown files",
		ArgsUsage: "[id]",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "all", Usage: "Export every exportable item"},
			&cli.StringFlag{Name: "dir", Usage: "Base directory (defaults to export_dir)"},
		},
		Action: func(c *cli.Context) error {
			if (c.NArg() == 0) == !c.Bool("all") {
				return outputError(errors.NewInvalidRequest("give either an id or --all"))
			}

			var (
				exporter *export.Exporter
				err      error
			)
			if dir := c.String("dir"); dir != "" {
				exporter, err = export.New(dir)
			} else {
				exporter, err = export.FromConfig(cfg)
			}
			if err != nil {
				return outputError(err)
			}

			var results []export.Result
			if c.Bool("all") {
				items, err := r.List(c.Context, repo.ListFilter{})
				if err != nil {
					return outputError(err)
				}
				results, err = exporter.ExportAll(items)
				if err != nil {
					return outputError(err)
				}
			} else {
				it, err := r.Get(c.Context, c.Args().First())
				if err != nil {
					return outputError(err)
				}
				res, err := exporter.Export(it)
				if err != nil {
					return outputError(err)
				}
				results = []export.Result{*res}
			}
			if results == nil {
				results = []export.Result{}
			}
			return outputJSON(c, map[string]any{"exported": results, "count": len(results)})
		},
	}
}

// reindexCmd creates the reindex command.
func reindexCmd(r *repo.Repository) *cli.Command {
	return &cli.Command{
		Name:  "reindex",
		Usage: "Rebuild the search index, or check it with --verify",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "verify", Usage: "Compare index rows with items and repair mismatches only"},
		},
		Action: func(c *cli.Context) error {
			if c.Bool("verify") {
				repaired, err := r.VerifyIndex(c.Context)
				if err != nil {
					return outputError(err)
				}
				if repaired == nil {
					repaired = []string{}
				}
				return outputJSON(c, map[string]any{"repaired": repaired, "count": len(repaired)})
			}

			n, err := r.Reindex(c.Context)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, map[string]any{"indexed": n})
		},
	}
}

// statsCmd creates the stats command.
func statsCmd(r *repo.Repository) *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Item counts per category and tag counts",
		Action: func(c *cli.Context) error {
			stats, err := r.Stats(c.Context)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, stats)
		},
	}
}

// settingsCmd creates the settings command group.
func settingsCmd(r *repo.Repository) *cli.Command {
	store := func() *db.SettingsStore { return db.NewSettingsStore(r.DB()) }

	return &cli.Command{
		Name:  "settings",
		Usage: "Read and write stored settings (llm_provider, llm_api_key, llm_model)",
		Subcommands: []*cli.Command{
			{
				Name:      "get",
				Usage:     "Print one setting",
				ArgsUsage: "<key>",
				Action: func(c *cli.Context) error {
					key := c.Args().First()
					if key == "" {
						return outputError(errors.NewInvalidRequest("key is required"))
					}
					value, ok, err := store().Get(c.Context, key)
					if err != nil {
						return outputError(err)
					}
					if !ok {
						return outputError(errors.NewInvalidRequest(fmt.Sprintf("setting %q is not set", key)))
					}
					return outputJSON(c, db.Setting{Key: key, Value: displaySetting(key, value)})
				},
			},
			{
				Name:      "set",
				Usage:     "Store a setting",
				ArgsUsage: "<key> <value>",
				Action: func(c *cli.Context) error {
					if c.NArg() != 2 {
						return outputError(errors.NewInvalidRequest("usage: settings set <key> <value>"))
					}
					key, value := c.Args().Get(0), c.Args().Get(1)
					if err := store().Set(c.Context, key, value); err != nil {
						return outputError(err)
					}
					return outputJSON(c, db.Setting{Key: key, Value: displaySetting(key, value)})
				},
			},
			{
				Name:  "list",
				Usage: "Print all settings",
				Action: func(c *cli.Context) error {
					all, err := store().All(c.Context)
					if err != nil {
						return outputError(err)
					}
					for i := range all {
						all[i].Value = displaySetting(all[i].Key, all[i].Value)
					}
					if all == nil {
						all = []db.Setting{}
					}
					return outputJSON(c, map[string]any{"settings": all, "count": len(all)})
				},
			},
		},
	}
}

// suggestCmd creates the suggest command.
func suggestCmd(r *repo.Repository, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "suggest",
		Usage:     "Ask the configured LLM to rewrite an item's content",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "action", Aliases: []string{"a"}, Value: string(suggest.ActionImprove), Usage: "improve|concise|examples|custom"},
			&cli.StringFlag{Name: "instruction", Aliases: []string{"i"}, Usage: "Instruction for the custom action"},
			&cli.BoolFlag{Name: "save", Usage: "Save the suggestion as a new version"},
		},
		Action: func(c *cli.Context) error {
			id, err := requireID(c)
			if err != nil {
				return outputError(err)
			}
			action, err := suggest.ParseAction(c.String("action"))
			if err != nil {
				return outputError(errors.NewInvalidRequest(err.Error()))
			}

			s, err := suggest.FromSettings(c.Context, db.NewSettingsStore(r.DB()))
			if err != nil {
				return outputError(errors.NewInvalidRequest(err.Error()))
			}

			draft, err := editor.Open(c.Context, r, id)
			if err != nil {
				return outputError(err)
			}

			timeout := time.Duration(cfg.SuggestTimeoutSeconds) * time.Second
			task := draft.Suggest(c.Context, s, action, c.String("instruction"), timeout)
			text, err := task.Wait(c.Context)
			if err != nil {
				return outputError(errors.NewInvalidRequest(fmt.Sprintf("suggestion failed: %v", err)))
			}

			out := map[string]any{"item_id": id, "action": action, "suggestion": text}
			if c.Bool("save") {
				if _, err := draft.ApplySuggestion(task); err != nil {
					return outputError(err)
				}
				saved, err := draft.Save(c.Context)
				if err != nil {
					return outputError(err)
				}
				out["item"] = saved
			}
			return outputJSON(c, out)
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(r *repo.Repository, cfg *config.Config, log zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the local web UI",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Usage: "Address to bind (defaults to web_bind)"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Port to listen on (defaults to web_port)"},
		},
		Action: func(c *cli.Context) error {
			serveCfg := *cfg
			if c.IsSet("bind") {
				serveCfg.WebBind = c.String("bind")
			}
			if c.IsSet("port") {
				serveCfg.WebPort = c.Int("port")
			}

			srv, err := web.NewServer(r, &serveCfg, log, Version)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			return web.Run(srv, log)
		},
	}
}

// Helper functions

// outputJSON writes v to the app's stdout as indented JSON.
func outputJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats an error as "[CODE] message" with exit status 1.
func outputError(err error) error {
	if gErr, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", gErr.Code, gErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// readInput reads piped content from the app's stdin. An interactive
// terminal counts as no input.
func readInput(c *cli.Context) (string, bool, error) {
	if f, ok := c.App.Reader.(*os.File); ok {
		stat, err := f.Stat()
		if err != nil || stat.Mode()&os.ModeCharDevice != 0 {
			return "", false, nil
		}
	}
	data, err := io.ReadAll(c.App.Reader)
	if err != nil {
		return "", false, err
	}
	text := strings.TrimSpace(string(data))
	return text, text != "", nil
}

func requireID(c *cli.Context) (string, error) {
	id := c.Args().First()
	if id == "" {
		return "", errors.NewInvalidRequest("item id is required")
	}
	return id, nil
}

func parseCategory(s string) (item.Category, error) {
	category, err := item.ParseCategory(s)
	if err != nil {
		return "", errors.NewValidationFailed([]item.Violation{{Field: item.FieldCategory, Reason: item.ReasonInvalidEnum}})
	}
	return category, nil
}

// fieldsFromFlags builds a candidate field set from the flags that were given.
func fieldsFromFlags(c *cli.Context) item.Fields {
	var f item.Fields
	f.Name = stringFlag(c, "name")
	f.Description = stringFlag(c, "description")
	f.Model = stringFlag(c, "model")
	f.ArgumentHint = stringFlag(c, "argument-hint")
	f.PermissionMode = stringFlag(c, "permission-mode")
	if c.IsSet("tools") {
		f.ToolList = parseList(c.String("tools"))
	}
	if c.IsSet("allowed-tools") {
		f.AllowedTools = parseList(c.String("allowed-tools"))
	}
	if c.IsSet("skills") {
		f.SkillRefs = parseList(c.String("skills"))
	}
	if c.IsSet("tags") {
		f.Tags = parseList(c.String("tags"))
	}
	return f
}

// patchFromFlags builds a patch from the flags that were given. An empty
// flag value clears an optional field or list.
func patchFromFlags(c *cli.Context) item.Patch {
	var p item.Patch
	p.Name = stringFlag(c, "name")
	p.Description = stringFlag(c, "description")
	p.Model = stringFlag(c, "model")
	p.ArgumentHint = stringFlag(c, "argument-hint")
	p.PermissionMode = stringFlag(c, "permission-mode")
	p.ToolList = listFlag(c, "tools")
	p.AllowedTools = listFlag(c, "allowed-tools")
	p.SkillRefs = listFlag(c, "skills")
	p.Tags = listFlag(c, "tags")
	return p
}

func stringFlag(c *cli.Context, name string) *string {
	if !c.IsSet(name) {
		return nil
	}
	v := c.String(name)
	return &v
}

func listFlag(c *cli.Context, name string) *[]string {
	if !c.IsSet(name) {
		return nil
	}
	l := parseList(c.String(name))
	if l == nil {
		l = []string{}
	}
	return &l
}

// parseList splits a comma-separated string into trimmed, non-empty elements.
func parseList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// displaySetting masks secrets in printed settings.
func displaySetting(key, value string) string {
	if key != suggest.SettingAPIKey || value == "" {
		return value
	}
	if len(value) <= 8 {
		return "****"
	}
	return value[:4] + "****" + value[len(value)-4:]
}
