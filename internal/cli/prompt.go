package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/exsim/internal/prompt"
)

func init() {
	cmd := &cobra.Command{
		Use:   "prompt [profile] [message]",
		Short: "Print the prompt a message would produce",
		Long:  "Assemble the model prompt from the profile's persona, memory and recent history, then print it without calling a model.",
		Args:  cobra.MinimumNArgs(2),
		Run:   runPrompt,
	}

	cmd.Flags().IntP("budget", "b", 0, "History budget in characters (default from config)")

	RootCmd.AddCommand(cmd)
}

func runPrompt(cmd *cobra.Command, args []string) {
	budget, _ := cmd.Flags().GetInt("budget")
	if budget <= 0 {
		budget = cfg.Prompt.HistoryBudget
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	st, err := s.Get(cmd.Context(), args[0])
	if err != nil {
		exitErr("prompt", err)
	}

	fmt.Println(prompt.Build(prompt.Input{
		Persona:       st.Persona,
		Memory:        st.Memory,
		UserMessage:   strings.Join(args[1:], " "),
		History:       st.Messages,
		HistoryBudget: budget,
	}))
}
