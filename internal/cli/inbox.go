package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tOgg1/bazaar/internal/inbox"
	"github.com/tOgg1/bazaar/internal/logging"
	"github.com/tOgg1/bazaar/internal/market"
	"github.com/tOgg1/bazaar/internal/metrics"
)

const previewWidth = 48

func newInboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "inbox",
		Aliases: []string{"conversations"},
		Short:   "List conversations, newest first",
		Args:    cobra.NoArgs,
		RunE:    withRuntime(runInbox),
	}
	cmd.Flags().Bool("clear", false, "clear the new-message notice after listing")
	return cmd
}

func runInbox(cmd *cobra.Command, _ []string, rt *Runtime) error {
	session, err := rt.RequireSession(cmd.Context())
	if err != nil {
		return err
	}

	in := inbox.New(rt.Client, rt.Config.Poll.InboxInterval)
	in.SetSession(session)
	if err := in.CheckMessages(cmd.Context()); err != nil {
		return exitFor(err, "inbox")
	}
	if clearNotice, _ := cmd.Flags().GetBool("clear"); clearNotice {
		in.ClearMessageNotification()
	}

	update := inbox.Update{
		Conversations: in.Conversations(),
		Unread:        in.UnreadCounts(),
		HasNewMessage: in.HasNewMessage(),
	}
	if rt.JSON {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(newWatchEvent(update))
	}
	return writeConversations(cmd.OutOrStdout(), update)
}

func writeConversations(out io.Writer, update inbox.Update) error {
	if len(update.Conversations) == 0 {
		_, err := fmt.Fprintln(out, "No conversations")
		return err
	}
	rows := make([][]string, 0, len(update.Conversations))
	for _, c := range update.Conversations {
		unread := ""
		if n := update.Unread[c.Key]; n > 0 {
			unread = strconv.Itoa(n)
		}
		rows = append(rows, []string{
			c.Key,
			displayName(c.OtherUser.ID, c.OtherUser.Name),
			displayName(c.Product.ID, c.Product.Name),
			truncate(c.LastMessage, previewWidth),
			c.Timestamp.Local().Format("2006-01-02 15:04"),
			unread,
		})
	}
	if err := writeTable(out, []string{"KEY", "WITH", "PRODUCT", "LAST MESSAGE", "AT", "UNREAD"}, rows); err != nil {
		return err
	}
	if update.HasNewMessage {
		_, err := fmt.Fprintln(out, "\nYou have new messages.")
		return err
	}
	return nil
}

type watchEvent struct {
	At            time.Time             `json:"at"`
	HasNewMessage bool                  `json:"hasNewMessage"`
	Conversations []market.Conversation `json:"conversations"`
	Unread        map[string]int        `json:"unread"`
}

func newWatchEvent(u inbox.Update) watchEvent {
	return watchEvent{
		At:            u.At,
		HasNewMessage: u.HasNewMessage,
		Conversations: u.Conversations,
		Unread:        u.Unread,
	}
}

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll the inbox and print updates until interrupted",
		Args:  cobra.NoArgs,
		RunE:  withRuntime(runWatch),
	}
	cmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().Duration("interval", 0, "override poll.inbox_interval")
	return cmd
}

func runWatch(cmd *cobra.Command, _ []string, rt *Runtime) error {
	session, err := rt.RequireSession(cmd.Context())
	if err != nil {
		return err
	}

	interval := rt.Config.Poll.InboxInterval
	if d, _ := cmd.Flags().GetDuration("interval"); d > 0 {
		interval = d
	}
	addr := rt.Config.Metrics.Addr
	if v, _ := cmd.Flags().GetString("metrics-addr"); v != "" {
		addr = v
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := logging.Component("watch")
	if addr != "" {
		srv := &http.Server{Addr: addr, Handler: metricsMux(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Err(logger.Error(), err).Str("addr", addr).Msg("metrics server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		logger.Info().Str("addr", addr).Msg("serving metrics")
	}

	in := inbox.New(rt.Client, interval)
	updates, unsubscribe := in.Subscribe()
	defer unsubscribe()
	defer rt.Auth.OnChange(in.SetSession)()
	if err := in.Start(session); err != nil {
		return exitFor(err, "watch")
	}
	defer func() {
		in.Stop()
		<-in.Done()
	}()

	streamCtx, cancel := untilDone(ctx, in.Done())
	defer cancel()
	if err := streamUpdates(streamCtx, cmd.OutOrStdout(), updates, rt.JSON); err != nil {
		return err
	}
	if err := in.Err(); err != nil {
		return exitFor(err, "watch")
	}
	return nil
}

// untilDone derives a context that also ends when done closes.
func untilDone(ctx context.Context, done <-chan struct{}) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

// streamUpdates writes each inbox update until ctx ends. A nil return means
// a clean interrupt.
func streamUpdates(ctx context.Context, out io.Writer, updates <-chan inbox.Update, jsonOut bool) error {
	enc := json.NewEncoder(out)
	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			if jsonOut {
				if err := enc.Encode(newWatchEvent(u)); err != nil {
					return err
				}
				continue
			}
			fmt.Fprintf(out, "-- %s --\n", u.At.Local().Format("15:04:05"))
			if err := writeConversations(out, u); err != nil {
				return err
			}
		}
	}
}
