package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rcliao/exsim/internal/model"
)

func init() {
	personaCmd := &cobra.Command{
		Use:   "persona",
		Short: "Manage simulated contacts",
	}

	setCmd := &cobra.Command{
		Use:   "set [profile]",
		Short: "Create a profile or replace its persona",
		Long:  "Create a profile or replace its persona. The persona is read as YAML or JSON from --file or stdin; flags override individual fields. Messages and memory are kept.",
		Args:  cobra.ExactArgs(1),
		Run:   runPersonaSet,
	}
	setCmd.Flags().String("file", "", "Persona file (YAML or JSON)")
	setCmd.Flags().String("name", "", "Display name")
	setCmd.Flags().String("style", "", "Attachment style: anxious, avoidant, secure, disorganized")
	setCmd.Flags().String("tone", "", "Emotional tone: warm, cold, hurt, angry, playful, nostalgic, neutral")
	setCmd.Flags().StringSlice("phrase", nil, "Common phrase (repeatable)")

	getCmd := &cobra.Command{
		Use:   "get [profile]",
		Short: "Show a profile's persona",
		Args:  cobra.ExactArgs(1),
		Run:   runPersonaGet,
	}

	personaCmd.AddCommand(setCmd, getCmd)
	RootCmd.AddCommand(personaCmd)
}

func runPersonaSet(cmd *cobra.Command, args []string) {
	profileID := args[0]
	file, _ := cmd.Flags().GetString("file")
	name, _ := cmd.Flags().GetString("name")
	style, _ := cmd.Flags().GetString("style")
	tone, _ := cmd.Flags().GetString("tone")
	phrases, _ := cmd.Flags().GetStringSlice("phrase")

	var data []byte
	var err error
	switch {
	case file != "":
		data, err = os.ReadFile(file)
		if err != nil {
			exitErr("read persona file", err)
		}
	default:
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			data, err = io.ReadAll(os.Stdin)
			if err != nil {
				exitErr("read stdin", err)
			}
		}
	}

	var p model.Persona
	if strings.TrimSpace(string(data)) != "" {
		if p, err = model.ParsePersona(data); err != nil {
			exitErr("parse persona", err)
		}
	}
	if name != "" {
		p.Name = name
	}
	if style != "" {
		p.AttachmentStyle = model.AttachmentStyle(strings.ToLower(style))
	}
	if tone != "" {
		p.EmotionalTone = model.EmotionalTone(strings.ToLower(tone))
	}
	if len(phrases) > 0 {
		p.CommonPhrases = phrases
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if err := s.PutPersona(cmd.Context(), profileID, p); err != nil {
		exitErr("persona set", err)
	}

	b, _ := json.Marshal(p)
	fmt.Printf(`{"ok":true,"profile":%q,"persona":%s}`+"\n", profileID, b)
}

func runPersonaGet(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	st, err := s.Get(cmd.Context(), args[0])
	if err != nil {
		exitErr("persona get", err)
	}

	if formatFlag == "json" {
		b, _ := json.MarshalIndent(st.Persona, "", "  ")
		fmt.Println(string(b))
		return
	}
	b, _ := yaml.Marshal(st.Persona)
	fmt.Print(string(b))
}
