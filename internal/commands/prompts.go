package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/RichardoC/relaychat/internal/prompts"
)

func newPromptsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prompts",
		Short: "List the built-in system prompt presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, titleStyle.Render("System prompt presets"))
			for _, p := range prompts.All() {
				label := p.Label
				if p.ID == prompts.DefaultID {
					label += " " + dimStyle.Render("(default)")
				}
				fmt.Fprintf(out, "\n%s%s\n", labelStyle.Render(p.ID), label)
				fmt.Fprintln(out, dimStyle.Render(p.Content))
			}
			return nil
		},
	}
}
