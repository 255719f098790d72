package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tOgg1/bazaar/internal/inbox"
	"github.com/tOgg1/bazaar/internal/market"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "history <user-id> <product-id>",
		Aliases: []string{"thread"},
		Short:   "Show a chat thread and mark it read",
		Args:    cobra.ExactArgs(2),
		RunE:    withRuntime(runHistory),
	}
	cmd.Flags().BoolP("follow", "f", false, "keep polling and print new messages until interrupted")
	cmd.Flags().Duration("interval", 0, "override poll.thread_interval")
	return cmd
}

func runHistory(cmd *cobra.Command, args []string, rt *Runtime) error {
	session, err := rt.RequireSession(cmd.Context())
	if err != nil {
		return err
	}
	interval := rt.Config.Poll.ThreadInterval
	if d, _ := cmd.Flags().GetDuration("interval"); d > 0 {
		interval = d
	}
	th := inbox.NewThread(rt.Client, args[0], args[1], interval)
	if follow, _ := cmd.Flags().GetBool("follow"); follow {
		return followThread(cmd, rt, th, session)
	}

	th.SetSession(session)
	if err := th.Refresh(cmd.Context()); err != nil {
		return exitFor(err, "history")
	}

	msgs := th.Messages()
	if rt.JSON {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(msgs)
	}
	return writeThread(cmd.OutOrStdout(), msgs, session.User.ID)
}

// followThread polls the thread and prints each message once, as a JSON
// line per message in JSON mode.
func followThread(cmd *cobra.Command, rt *Runtime, th *inbox.Thread, session market.Session) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	defer rt.Auth.OnChange(th.SetSession)()
	if err := th.Start(session); err != nil {
		return exitFor(err, "history")
	}
	defer func() {
		th.Stop()
		<-th.Done()
	}()

	out := cmd.OutOrStdout()
	enc := json.NewEncoder(out)
	seen := make(map[string]bool)
	printNew := func() error {
		for _, m := range th.Messages() {
			key := m.ID
			if key == "" {
				key = m.CreatedAt.String() + "\x00" + m.Content
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			var err error
			if rt.JSON {
				err = enc.Encode(m)
			} else {
				err = writeThread(out, []market.Message{m}, session.User.ID)
			}
			if err != nil {
				return err
			}
		}
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-th.Done():
			if err := printNew(); err != nil {
				return err
			}
			return exitFor(th.Err(), "history")
		case <-th.Changed():
			if err := printNew(); err != nil {
				return err
			}
		}
	}
}

func newSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <user-id> <product-id> [message]",
		Short: "Send a message about a product",
		Long:  "Send a message about a product. Without a message argument the body is read from stdin.",
		Args:  cobra.RangeArgs(2, 3),
		RunE:  withRuntime(runSend),
	}
	cmd.Flags().String("draft-file", "", "save the message here if sending fails")
	return cmd
}

func runSend(cmd *cobra.Command, args []string, rt *Runtime) error {
	session, err := rt.RequireSession(cmd.Context())
	if err != nil {
		return err
	}

	body := ""
	if len(args) == 3 {
		body = args[2]
	} else {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return Exitf(ExitCodeFailure, "read stdin: %v", err)
		}
		body = string(data)
	}

	th := inbox.NewThread(rt.Client, args[0], args[1], rt.Config.Poll.ThreadInterval)
	th.SetSession(session)
	msg, err := th.Send(cmd.Context(), body)
	if err != nil {
		if draft := th.Draft(); draft != "" {
			if path, _ := cmd.Flags().GetString("draft-file"); strings.TrimSpace(path) != "" {
				if werr := os.WriteFile(path, []byte(draft), 0o600); werr == nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "Draft saved to %s\n", path)
				}
			}
		}
		return exitFor(err, "send")
	}

	if rt.JSON {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(msg)
	}
	fmt.Fprintln(cmd.OutOrStdout(), msg.ID)
	return nil
}
