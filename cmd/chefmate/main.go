// ChefMate - AI recipe recommendation agent
// License: MIT
//
// Copyright (c) 2026 ChefMate contributors

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/chzyer/readline"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/linqiu/chefmate/pkg/bus"
	"github.com/linqiu/chefmate/pkg/channels"
	"github.com/linqiu/chefmate/pkg/config"
	"github.com/linqiu/chefmate/pkg/embedding"
	"github.com/linqiu/chefmate/pkg/engine"
	"github.com/linqiu/chefmate/pkg/fridge"
	"github.com/linqiu/chefmate/pkg/gateway"
	"github.com/linqiu/chefmate/pkg/logger"
	"github.com/linqiu/chefmate/pkg/preference"
	"github.com/linqiu/chefmate/pkg/providers"
	"github.com/linqiu/chefmate/pkg/recipe"
	"github.com/linqiu/chefmate/pkg/session"
)

const appName = "chefmate"

var (
	version   = "dev"
	gitCommit string
	buildTime string
	goVersion string
)

func formatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

func printVersion() {
	fmt.Printf("%s %s\n", appName, formatVersion())
	if buildTime != "" {
		fmt.Printf("  Build: %s\n", buildTime)
	}
	goVer := goVersion
	if goVer == "" {
		goVer = runtime.Version()
	}
	fmt.Printf("  Go: %s\n", goVer)
}

func main() {
	if err := executeCLI(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func getConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".chefmate", "config.json")
}

func loadConfig() (*config.Config, error) {
	return config.LoadConfig(getConfigPath())
}

// runtime bundles everything a running command needs.
type appRuntime struct {
	cfg     *config.Config
	log     zerolog.Logger
	engine  *engine.Engine
	fridges *fridge.Registry
	store   preference.Store
}

func (rt *appRuntime) Close() {
	if rt.store != nil {
		_ = rt.store.Close()
	}
}

// buildRuntime assembles the engine from config: corpus, preference
// store, fridge registry and the text generator. withGenerator is off
// for commands that never chat, so they run without an API key.
func buildRuntime(cfg *config.Config, withGenerator bool) (*appRuntime, error) {
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	embedder := embedding.New(cfg.Embedding.Model)

	index, err := recipe.NewIndex(embedder)
	if err != nil {
		return nil, err
	}
	if path := cfg.RecipesPath(); path != "" {
		n, err := index.LoadFile(path)
		switch {
		case err == nil:
			log.Info().Int("recipes", n).Str("path", path).Msg("recipe corpus loaded")
		case errors.Is(err, os.ErrNotExist):
			log.Warn().Str("path", path).Msg("no recipe file, corpus starts empty")
		default:
			return nil, err
		}
	}

	store, err := preference.NewSQLiteStore(cfg.StorePath(), embedder)
	if err != nil {
		return nil, err
	}

	fridges := fridge.NewRegistry(fridge.Mode(cfg.Fridge.DefaultMode))
	if err := fridges.LoadFile(cfg.FridgeSnapshotPath()); err != nil {
		_ = store.Close()
		return nil, err
	}

	var generator providers.TextGenerator
	var summarizer *session.Summarizer
	if withGenerator {
		generator, err = providers.NewHTTPProvider(providers.Options{
			APIKey:      cfg.Provider.APIKey,
			APIBase:     cfg.Provider.APIBase,
			Model:       cfg.Provider.Model,
			Temperature: cfg.Provider.Temperature,
			Proxy:       cfg.Provider.Proxy,
			Timeout:     providerTimeout(cfg),
		})
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		if cfg.Session.SummaryEnabled {
			summarizer = session.NewSummarizer(summaryFunc(generator))
		}
	}

	e, err := engine.New(engine.Options{
		Index:           index,
		Preferences:     store,
		Fridges:         fridges,
		Generator:       generator,
		Summarizer:      summarizer,
		Logger:          log,
		WindowSize:      cfg.Session.WindowSize,
		RetrieveK:       cfg.Engine.RetrieveK,
		TopN:            cfg.Engine.TopN,
		GenerateTimeout: providerTimeout(cfg),
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &appRuntime{cfg: cfg, log: log, engine: e, fridges: fridges, store: store}, nil
}

func providerTimeout(cfg *config.Config) time.Duration {
	return time.Duration(cfg.Provider.TimeoutSeconds) * time.Second
}

// summaryFunc folds evicted turns into the running summary with one
// generator call.
func summaryFunc(generator providers.TextGenerator) session.SummaryFunc {
	return func(ctx context.Context, existing, transcript string) (string, error) {
		var b strings.Builder
		b.WriteString("请把以下对话压缩成一段简短的中文摘要，保留用户的口味、忌口和约定。\n")
		if existing != "" {
			b.WriteString("\n[已有摘要]\n" + existing + "\n")
		}
		b.WriteString("\n[新增对话]\n" + transcript + "\n\n摘要:")
		return generator.Generate(ctx, b.String())
	}
}

func runServe(debug bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if debug {
		cfg.Log.Level = "debug"
	}
	if strings.TrimSpace(cfg.Provider.APIKey) == "" {
		return fmt.Errorf("provider.api_key is required in %s or CHEFMATE_PROVIDER_API_KEY", getConfigPath())
	}

	rt, err := buildRuntime(cfg, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Periodic fridge snapshots, plus a final save on shutdown.
	autosaver, err := fridge.NewAutosaver(rt.fridges, cfg.FridgeSnapshotPath(), cfg.Fridge.AutosaveSchedule, func(err error) {
		rt.log.Warn().Err(err).Msg("fridge autosave failed")
	})
	if err != nil {
		return err
	}
	go autosaver.Run(ctx)

	msgBus := bus.New(256)
	go msgBus.Dispatch(ctx, func(ctx context.Context, msg bus.Inbound) (string, error) {
		return rt.engine.Chat(ctx, msg.UserID, msg.Text)
	}, func(msg bus.Inbound, err error) {
		rt.log.Warn().Err(err).Str("user", msg.UserID).Msg("chat dispatch failed")
	})

	if cfg.Channels.Discord.Enabled {
		discord, err := channels.NewDiscord(cfg.Channels.Discord.Token, cfg.Channels.Discord.AllowFrom, msgBus, rt.log)
		if err != nil {
			return err
		}
		go func() {
			if err := discord.Run(ctx); err != nil {
				rt.log.Error().Err(err).Msg("discord channel stopped")
			}
		}()
	}

	fmt.Printf("%s gateway on %s:%d (Ctrl+C to stop)\n", appName, cfg.Gateway.Host, cfg.Gateway.Port)
	return gateway.New(rt.engine, rt.log).Serve(ctx, cfg.Gateway.Host, cfg.Gateway.Port)
}

func runChat(userID, message string, debug bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if debug {
		cfg.Log.Level = "debug"
	}
	if strings.TrimSpace(cfg.Provider.APIKey) == "" {
		return fmt.Errorf("provider.api_key is required in %s or CHEFMATE_PROVIDER_API_KEY", getConfigPath())
	}
	if userID == "" {
		userID = "cli:" + uuid.NewString()[:8]
	}

	rt, err := buildRuntime(cfg, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := context.Background()
	if strings.TrimSpace(message) != "" {
		reply, err := rt.engine.Chat(ctx, userID, message)
		if err != nil {
			return err
		}
		fmt.Printf("\n小厨神: %s\n", reply)
		return saveFridges(rt)
	}

	fmt.Printf("%s interactive mode, user %s (exit to quit)\n\n", appName, userID)
	if err := interactiveChat(ctx, rt, userID); err != nil {
		return err
	}
	return saveFridges(rt)
}

func interactiveChat(ctx context.Context, rt *appRuntime, userID string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "你: ",
		HistoryFile:     filepath.Join(os.TempDir(), ".chefmate_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				fmt.Println("\n下次见！")
				return nil
			}
			return err
		}
		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Println("下次见！")
			return nil
		}

		fmt.Print("\n小厨神: ")
		if _, err := rt.engine.ChatStream(ctx, userID, input, func(fragment string) {
			fmt.Print(fragment)
		}); err != nil {
			fmt.Printf("出错了: %v\n\n", err)
			continue
		}
		fmt.Print("\n\n")
	}
}

func saveFridges(rt *appRuntime) error {
	return rt.fridges.SaveFile(rt.cfg.FridgeSnapshotPath())
}

func runRecipesLoad(path string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read recipe file: %w", err)
	}
	// Validate before installing as the seed corpus.
	index, err := recipe.NewIndex(embedding.New(cfg.Embedding.Model))
	if err != nil {
		return err
	}
	n, err := index.LoadJSON(strings.NewReader(string(data)))
	if err != nil {
		return err
	}

	target := cfg.RecipesPath()
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("create recipes dir: %w", err)
	}
	if err := os.WriteFile(target, data, 0644); err != nil {
		return fmt.Errorf("install recipe file: %w", err)
	}
	fmt.Printf("✓ Loaded %d recipes into %s\n", n, target)
	return nil
}

func runRecipesSearch(query string, k int, cuisine string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	index, err := recipe.NewIndex(embedding.New(cfg.Embedding.Model))
	if err != nil {
		return err
	}
	n, err := index.LoadFile(cfg.RecipesPath())
	if err != nil {
		return fmt.Errorf("no recipe corpus at %s, run 'chefmate recipes load' first: %w", cfg.RecipesPath(), err)
	}

	found, err := index.Search(query, k, recipe.Filter{Cuisine: cuisine})
	if err != nil {
		return err
	}
	if len(found) == 0 {
		fmt.Printf("No matches in %d recipes.\n", n)
		return nil
	}
	for _, r := range found {
		fmt.Printf("  %s (%s, %s, %d 分钟)\n", r.Name, r.Cuisine, r.Difficulty, r.CookingTime)
		fmt.Printf("    食材: %s\n", strings.Join(r.Ingredients, ", "))
	}
	return nil
}

func runFridgeOp(userID, action string, ingredients []string, mode string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	rt, err := buildRuntime(cfg, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	state, err := rt.engine.FridgeOp(context.Background(), userID, engine.FridgeRequest{
		Action:      action,
		Ingredients: ingredients,
		Mode:        mode,
	})
	if err != nil {
		return err
	}
	if err := saveFridges(rt); err != nil {
		return err
	}

	fmt.Printf("Fridge for %s (%s mode):\n", state.UserID, state.Mode)
	if len(state.Ingredients) == 0 {
		fmt.Println("  (empty)")
		return nil
	}
	for _, name := range state.Ingredients {
		fmt.Printf("  - %s\n", name)
	}
	return nil
}

func runOnboard() error {
	configPath := getConfigPath()
	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("Config already exists at %s\n", configPath)
		return nil
	}

	cfg := config.DefaultConfig()
	if err := config.SaveConfig(configPath, cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Printf("%s is ready!\n", appName)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Add your API key to", configPath)
	fmt.Println("  2. Load a recipe corpus: chefmate recipes load ./recipes.json")
	fmt.Println("  3. Chat locally: chefmate chat -m \"今晚吃什么\"")
	fmt.Println("  4. Run the gateway: chefmate serve")
	return nil
}

func runStatus() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	configPath := getConfigPath()

	fmt.Printf("%s Status\n", appName)
	fmt.Printf("Version: %s\n\n", formatVersion())

	check := func(path string) string {
		if _, err := os.Stat(path); err == nil {
			return "✓"
		}
		return "✗"
	}
	fmt.Println("Config:", configPath, check(configPath))
	fmt.Println("Recipes:", cfg.RecipesPath(), check(cfg.RecipesPath()))
	fmt.Println("Preference DB:", cfg.StorePath(), check(cfg.StorePath()))
	fmt.Println("Fridge snapshot:", cfg.FridgeSnapshotPath(), check(cfg.FridgeSnapshotPath()))
	fmt.Println()

	status := func(ok bool) string {
		if ok {
			return "✓"
		}
		return "not set"
	}
	apiReady := strings.TrimSpace(cfg.Provider.APIKey) != ""
	discordReady := strings.TrimSpace(cfg.Channels.Discord.Token) != ""
	fmt.Printf("Model: %s\n", cfg.Provider.Model)
	fmt.Println("Provider API key:", status(apiReady))
	fmt.Println("Discord token:", status(discordReady))
	fmt.Println("Chat ready:", status(apiReady))
	fmt.Println("Gateway ready:", status(apiReady))
	return nil
}
