package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show database statistics",
		Run:   runStats,
	}

	RootCmd.AddCommand(cmd)
}

func runStats(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	stats, err := s.Stats(cmd.Context(), getDBPath())
	if err != nil {
		exitErr("stats", err)
	}

	if formatFlag == "json" {
		b, _ := json.MarshalIndent(stats, "", "  ")
		fmt.Println(string(b))
		return
	}
	fmt.Printf("db:       %s (%d bytes)\n", stats.DBPath, stats.DBSizeBytes)
	fmt.Printf("profiles: %d\n", stats.Profiles)
	fmt.Printf("messages: %d (%d unseen)\n", stats.TotalMessages, stats.UnseenMessages)
	for _, p := range stats.PerProfile {
		fmt.Printf("  %-16s user %d, ex %d\n", p.ProfileID, p.User, p.Assistant)
	}
}
