package main

import (
	"os"

	"github.com/spf13/cobra"

	"studydeck/pkg/logger"
)

// --- Global Command Variables ---
var (
	serverURL string
	token     string
	tabID     string
	logLevel  string

	rootCmd = &cobra.Command{
		Use:   "studyctl",
		Short: "Edit and watch studydeck content from the terminal",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if logLevel != "" {
				logger.Init(logLevel)
			}
		},
		SilenceUsage: true,
	}

	loginCmd = &cobra.Command{
		Use:   "login [password]",
		Short: "Exchange the admin password for a token",
		Args:  cobra.ExactArgs(1),
		RunE:  runLogin, // Defined in cmd_tabs.go
	}

	// --- Tabs ---
	tabsCmd = &cobra.Command{
		Use:   "tabs",
		Short: "List subject tabs",
		RunE:  runTabs, // Defined in cmd_tabs.go
	}
	addTabCmd = &cobra.Command{
		Use:   "add-tab [name]",
		Short: "Create a tab (admin)",
		Args:  cobra.ExactArgs(1),
		RunE:  runAddTab, // Defined in cmd_tabs.go
	}

	// --- Cards ---
	addCmd = &cobra.Command{
		Use:   "add [concept|mcq|saq|image]",
		Short: "Append a default card to the tab (admin)",
		Args:  cobra.ExactArgs(1),
		RunE:  runAdd, // Defined in cmd_cards.go
	}
	editCmd = &cobra.Command{
		Use:   "edit [itemId] [field=value...]",
		Short: "Lock a card, commit the changed fields and release it",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runEdit, // Defined in cmd_cards.go
	}
	reorderCmd = &cobra.Command{
		Use:   "reorder [itemId...]",
		Short: "Rewrite the card order of the tab (admin)",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runReorder, // Defined in cmd_cards.go
	}
	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Print the card list of the tab whenever it changes",
		RunE:  runWatch, // Defined in cmd_cards.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("STUDYDECK_URL", "http://localhost:8080"), "studydeck server address")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("STUDYDECK_TOKEN"), "admin token (see login)")
	rootCmd.PersistentFlags().StringVar(&tabID, "tab", "", "tab id (defaults to the first tab)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "enable logging at this level")

	rootCmd.AddCommand(loginCmd, tabsCmd, addTabCmd, addCmd, editCmd, reorderCmd, watchCmd)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
