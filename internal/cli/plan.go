package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/exsim/internal/fragment"
	"github.com/rcliao/exsim/internal/model"
	"github.com/rcliao/exsim/internal/pacing"
)

func init() {
	cmd := &cobra.Command{
		Use:   "plan [reply]",
		Short: "Show how a reply would be split and paced",
		Long:  "Fragment a reply and print its delivery schedule without calling a model. The reply is a positional arg or stdin. The persona comes from --profile or from --style/--tone.",
		Run:   runPlan,
	}

	cmd.Flags().StringP("profile", "p", "", "Use this profile's persona")
	cmd.Flags().String("style", "", "Attachment style (overrides profile)")
	cmd.Flags().String("tone", "", "Emotional tone (overrides profile)")
	cmd.Flags().StringP("message", "m", "", "The user message being answered")

	RootCmd.AddCommand(cmd)
}

func runPlan(cmd *cobra.Command, args []string) {
	profileID, _ := cmd.Flags().GetString("profile")
	style, _ := cmd.Flags().GetString("style")
	tone, _ := cmd.Flags().GetString("tone")
	message, _ := cmd.Flags().GetString("message")

	var reply string
	if len(args) > 0 {
		reply = strings.Join(args, " ")
		// Let "\n" typed on the command line act as a line break
		reply = strings.ReplaceAll(reply, `\n`, "\n")
	} else {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				exitErr("read stdin", err)
			}
			reply = string(b)
		}
	}

	persona, err := planPersona(cmd.Context(), profileID)
	if err != nil {
		exitErr("plan", err)
	}
	if style != "" {
		persona.AttachmentStyle = model.AttachmentStyle(strings.ToLower(style))
	}
	if tone != "" {
		persona.EmotionalTone = model.EmotionalTone(strings.ToLower(tone))
	}
	if err := persona.Validate(); err != nil {
		exitErr("plan", err)
	}

	pacer := newPacer()
	frags := fragment.Split(reply, persona.AttachmentStyle, cfg.FragmentOptions())
	sched := pacer.Plan(frags, pacer.InitialDelay(message, persona.AttachmentStyle, persona.EmotionalTone))

	if formatFlag == "json" {
		b, _ := json.MarshalIndent(sched, "", "  ")
		fmt.Println(string(b))
		return
	}
	printSchedule(sched)
}

func planPersona(ctx context.Context, profileID string) (model.Persona, error) {
	if profileID == "" {
		return model.Persona{}, nil
	}
	s, err := openStore()
	if err != nil {
		return model.Persona{}, err
	}
	defer s.Close()

	st, err := s.Get(ctx, profileID)
	if err != nil {
		return model.Persona{}, err
	}
	return st.Persona, nil
}

func printSchedule(s pacing.Schedule) {
	fmt.Printf("initial delay %s\n", s.Initial.Round(time.Millisecond))
	for _, e := range s.Entries {
		fmt.Printf("#%d  deliver +%-8s seen +%-8s gap %-8s %q\n",
			e.Index,
			e.DeliverAt.Round(time.Millisecond),
			e.SeenAt.Round(time.Millisecond),
			e.Fragment.Delay.Round(time.Millisecond),
			e.Fragment.Content())
	}
	fmt.Printf("done +%s\n", s.Done().Round(time.Millisecond))
}
