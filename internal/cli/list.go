package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List profiles",
		Run:   runList,
	}

	cmd.Flags().Bool("ids-only", false, "Only output profile IDs")

	RootCmd.AddCommand(cmd)
}

func runList(cmd *cobra.Command, args []string) {
	idsOnly, _ := cmd.Flags().GetBool("ids-only")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	profiles, err := s.List(cmd.Context())
	if err != nil {
		exitErr("list", err)
	}

	if idsOnly {
		for _, p := range profiles {
			fmt.Println(p.ID)
		}
		return
	}

	if formatFlag == "json" {
		b, _ := json.MarshalIndent(profiles, "", "  ")
		fmt.Println(string(b))
		return
	}
	for _, p := range profiles {
		fmt.Printf("%-16s %-12s %-10s %4d msgs  %s\n",
			p.ID, orDash(string(p.Persona.AttachmentStyle)), orDash(string(p.Persona.EmotionalTone)), p.Messages, p.UpdatedAt)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
