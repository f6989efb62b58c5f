package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func executeCLI() error {
	return buildRootCommand().Execute()
}

func buildRootCommand() *cobra.Command {
	var showVersion bool

	root := &cobra.Command{
		Use:   "chefmate",
		Short: "AI recipe assistant with per-user taste memory and a virtual fridge",
		Long: strings.TrimSpace(`chefmate (小厨神) recommends recipes from what is actually in your fridge.

It keeps a taste profile and a virtual ingredient inventory per user, chats
through a local REPL, an HTTP/WebSocket gateway, or Discord, and ranks every
recommendation by how much of the recipe you can cook right now.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				printVersion()
				return nil
			}
			_ = cmd.Help()
			return fmt.Errorf("a subcommand is required")
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.Flags().BoolVarP(&showVersion, "version", "v", false, "Show build/version metadata")

	root.AddCommand(newOnboardCommand())
	root.AddCommand(newChatCommand())
	root.AddCommand(newServeCommand())
	root.AddCommand(newRecipesCommand())
	root.AddCommand(newFridgeCommand())
	root.AddCommand(newStatusCommand())
	root.AddCommand(newVersionCommand())
	return root
}

func newOnboardCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "onboard",
		Short:   "Initialize ~/.chefmate configuration",
		Example: "  chefmate onboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnboard()
		},
	}
}

func newChatCommand() *cobra.Command {
	var (
		message string
		user    string
		debug   bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with 小厨神 locally (REPL or one-shot)",
		Example: strings.Join([]string{
			"  chefmate chat",
			"  chefmate chat --user alice",
			"  chefmate chat -m \"冰箱里有鸡蛋和番茄，晚饭吃什么\"",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(strings.TrimSpace(user), message, debug)
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "One-shot message instead of the REPL")
	cmd.Flags().StringVarP(&user, "user", "u", "", "User id for memory continuity (random when empty)")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func newServeCommand() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Run the HTTP/WebSocket gateway and optional Discord channel",
		Example: "  chefmate serve --debug",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(debug)
		},
	}
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func newRecipesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recipes",
		Short: "Manage the shared recipe corpus",
	}
	cmd.AddCommand(&cobra.Command{
		Use:     "load <file>",
		Short:   "Validate a recipe JSON file and install it as the corpus",
		Example: "  chefmate recipes load ./recipes.json",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecipesLoad(args[0])
		},
	})

	var (
		k       int
		cuisine string
	)
	search := &cobra.Command{
		Use:     "search <query>",
		Short:   "Search the corpus by similarity",
		Example: "  chefmate recipes search 番茄 --cuisine 家常菜",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecipesSearch(strings.Join(args, " "), k, cuisine)
		},
	}
	search.Flags().IntVarP(&k, "limit", "k", 5, "Maximum results")
	search.Flags().StringVar(&cuisine, "cuisine", "", "Exact cuisine filter")
	cmd.AddCommand(search)
	return cmd
}

func newFridgeCommand() *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "fridge",
		Short: "Manage a user's virtual fridge",
	}
	cmd.PersistentFlags().StringVarP(&user, "user", "u", "cli:default", "User id owning the fridge")

	cmd.AddCommand(&cobra.Command{
		Use:     "add <ingredient>...",
		Short:   "Add ingredients",
		Example: "  chefmate fridge add 鸡蛋 番茄 盐",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFridgeOp(user, "add", args, "")
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "remove <ingredient>...",
		Short: "Remove ingredients",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFridgeOp(user, "remove", args, "")
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Show current contents and mode",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFridgeOp(user, "list", nil, "")
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Empty the fridge",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFridgeOp(user, "clear", nil, "")
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:       "mode <strict|flexible>",
		Short:     "Switch the compatibility mode",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"strict", "flexible"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFridgeOp(user, "set_mode", nil, args[0])
		},
	})
	return cmd
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Short:   "Show configuration and runtime readiness",
		Example: "  chefmate status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus()
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   "Show build/version metadata",
		Example: "  chefmate version",
		RunE: func(cmd *cobra.Command, args []string) error {
			printVersion()
			return nil
		},
	}
}
