package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/exsim/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search messages by keyword",
		Long:  "Full-text search over message content, newest first.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runSearch,
	}

	cmd.Flags().StringP("profile", "p", "", "Filter by profile")
	cmd.Flags().IntP("limit", "l", 20, "Max results")

	RootCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	profileID, _ := cmd.Flags().GetString("profile")
	limit, _ := cmd.Flags().GetInt("limit")
	query := strings.Join(args, " ")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	results, err := s.Search(cmd.Context(), store.SearchParams{
		ProfileID: profileID,
		Query:     query,
		Limit:     limit,
	})
	if err != nil {
		exitErr("search", err)
	}

	if formatFlag == "json" {
		if len(results) == 0 {
			fmt.Println("[]")
			return
		}
		b, _ := json.MarshalIndent(results, "", "  ")
		fmt.Println(string(b))
		return
	}
	for _, m := range results {
		fmt.Printf("%s  %-10s %-9s %s\n", m.Timestamp.Local().Format("2006-01-02 15:04"), m.ProfileID, m.Role, m.Content)
	}
}
