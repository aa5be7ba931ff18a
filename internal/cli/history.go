package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/exsim/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "history [profile]",
		Short: "Show a profile's messages",
		Args:  cobra.ExactArgs(1),
		Run:   runHistory,
	}

	cmd.Flags().IntP("limit", "l", 50, "Show only the last N messages (0 for all)")
	cmd.Flags().Bool("memory", false, "Print the conversation memory instead")

	RootCmd.AddCommand(cmd)
}

func runHistory(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")
	memory, _ := cmd.Flags().GetBool("memory")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	st, err := s.Get(cmd.Context(), args[0])
	if err != nil {
		exitErr("history", err)
	}

	if memory {
		fmt.Println(st.Memory)
		return
	}

	msgs := st.Messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}

	if formatFlag == "json" {
		b, _ := json.MarshalIndent(msgs, "", "  ")
		fmt.Println(string(b))
		return
	}
	name := displayName(st.Persona.Name, st.ProfileID)
	for _, m := range msgs {
		who, mark := "you", ""
		if m.Role != model.RoleUser {
			who = name
			if m.Seen {
				mark = " ✓"
			}
		}
		fmt.Printf("[%s] %s: %s%s\n", m.Timestamp.Local().Format("15:04:05"), who, m.Content, mark)
	}
}

func displayName(name, profileID string) string {
	if name != "" {
		return name
	}
	return profileID
}
