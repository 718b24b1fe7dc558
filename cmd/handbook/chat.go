package main

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"handbook/internal/tui"
)

var chatDetailed bool

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive terminal chat",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		svc, c, err := newChatService(cmd.Context())
		if err != nil {
			return err
		}
		defer c.Close()

		m := tui.New(svc, tui.Options{
			Concise:      !chatDetailed,
			HistoryTurns: cfg.Retrieval.HistoryTurns,
			Timeout:      secs(cfg.Server.RequestTimeoutSecs),
		})
		_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
		return err
	},
}

func init() {
	chatCmd.Flags().BoolVar(&chatDetailed, "detailed", false, "ask for comprehensive answers")
	rootCmd.AddCommand(chatCmd)
}
