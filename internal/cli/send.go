package cli

import (
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "send [profile] [message]",
		Short: "Send one message and wait for the reply",
		Long:  "Send one message to a profile and print each reply bubble as it arrives. The message is positional or piped via stdin. Returns once every bubble was delivered and seen.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runSend,
	}

	RootCmd.AddCommand(cmd)
}

func runSend(cmd *cobra.Command, args []string) {
	profileID := args[0]

	var text string
	if len(args) > 1 {
		text = strings.Join(args[1:], " ")
	} else {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				exitErr("read stdin", err)
			}
			text = string(b)
		}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		exitErr("send", errEmptyMessage)
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	st, err := s.Get(cmd.Context(), profileID)
	if err != nil {
		exitErr("send", err)
	}

	out := newConsole(os.Stdout, os.Stderr, formatFlag == "json")
	out.setName(profileID, st.Persona.Name)

	e, sched, err := newEngine(s, out)
	if err != nil {
		exitErr("provider", err)
	}
	defer sched.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	r, err := e.Send(ctx, profileID, text)
	if err != nil {
		// Already reported by the listener
		sched.Close()
		s.Close()
		os.Exit(1)
	}

	select {
	case <-r.Done():
	case <-ctx.Done():
		e.Activate("")
	}
}
