package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"lightbot/internal/app/scenario"
)

var (
	scenarioHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("212")).
				Padding(0, 1).
				MarginBottom(1)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	botStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("135")).
			Bold(true)

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")).
			Italic(true)
)

var replayCmd = &cobra.Command{
	Use:   "replay <scenario.yaml>",
	Short: "Replay a scripted conversation through the engine",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		scen, err := scenario.LoadScenario(args[0])
		if err != nil {
			return fmt.Errorf("failed to load scenario: %w", err)
		}

		a, err := buildApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, scenarioHeaderStyle.Render(scen.Name))
		fmt.Fprintln(out, metaStyle.Render(fmt.Sprintf("session %s, search %s", scen.SessionID, scen.Mode())))

		var onFragment func(string)
		if scen.Stream {
			onFragment = func(f string) { fmt.Fprint(out, f) }
		}

		for i, msg := range scen.Messages {
			fmt.Fprintf(out, "\n%s %s\n%s ", userStyle.Render("you:"), msg, botStyle.Render("bot:"))
			t, err := scenario.RunTurn(cmd.Context(), a.engine, scen, i, onFragment)
			if err != nil {
				return err
			}
			if !scen.Stream {
				fmt.Fprint(out, t.Answer)
			}
			fmt.Fprintln(out, "\n"+metaStyle.Render(t.Duration.String()))
		}
		return nil
	},
}
