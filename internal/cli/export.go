package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export [profile]",
		Short: "Export conversations as JSON",
		Long:  "Export the full state (persona, messages, memory) of one profile or of all profiles.",
		Args:  cobra.MaximumNArgs(1),
		Run:   runExport,
	}

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	var profileID string
	if len(args) > 0 {
		profileID = args[0]
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	states, err := s.ExportAll(cmd.Context(), profileID)
	if err != nil {
		exitErr("export", err)
	}

	b, _ := json.MarshalIndent(states, "", "  ")
	fmt.Println(string(b))
}
