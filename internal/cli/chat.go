package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/exsim/internal/engine"
	"github.com/rcliao/exsim/internal/store"
)

var errEmptyMessage = errors.New("message is required (positional arg or stdin)")

func init() {
	cmd := &cobra.Command{
		Use:   "chat [profile]",
		Short: "Interactive chat",
		Long: `Chat with a profile line by line. Replies keep arriving while you type.

Commands:
  /switch <profile>  talk to another profile (pending bubbles are dropped)
  /quit              leave`,
		Args: cobra.ExactArgs(1),
		Run:  runChat,
	}

	RootCmd.AddCommand(cmd)
}

func runChat(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	out := newConsole(os.Stdout, os.Stderr, formatFlag == "json")
	e, sched, err := newEngine(s, out)
	if err != nil {
		exitErr("provider", err)
	}
	defer sched.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	active := args[0]
	if err := switchTo(cmd, s, e, out, active); err != nil {
		exitErr("chat", err)
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	var pending []*engine.Reply
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				waitReplies(ctx, pending)
				return
			}
			line = strings.TrimSpace(line)
			switch {
			case line == "":
			case line == "/quit":
				return
			case strings.HasPrefix(line, "/switch"):
				next := strings.TrimSpace(strings.TrimPrefix(line, "/switch"))
				if next == "" {
					fmt.Fprintln(os.Stderr, "usage: /switch <profile>")
					continue
				}
				if err := switchTo(cmd, s, e, out, next); err != nil {
					fmt.Fprintf(os.Stderr, "error: %v\n", err)
					continue
				}
				active = next
				pending = nil
			default:
				r, err := e.Send(ctx, active, line)
				if err != nil {
					continue
				}
				pending = append(pending, r)
			}
		}
	}
}

func switchTo(cmd *cobra.Command, s store.ConversationStore, e *engine.Engine, out *console, profileID string) error {
	st, err := s.Get(cmd.Context(), profileID)
	if err != nil {
		return err
	}
	out.setName(profileID, st.Persona.Name)
	e.Activate(profileID)
	fmt.Fprintf(os.Stderr, "chatting with %s\n", displayName(st.Persona.Name, profileID))
	return nil
}

func waitReplies(ctx context.Context, replies []*engine.Reply) {
	for _, r := range replies {
		select {
		case <-r.Done():
		case <-ctx.Done():
			return
		}
	}
}
