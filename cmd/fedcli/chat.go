package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/joss/fedcli/internal/audit"
	"github.com/joss/fedcli/internal/chat"
	"github.com/joss/fedcli/internal/config"
	"github.com/joss/fedcli/internal/domain"
	"github.com/joss/fedcli/internal/logging"
	"github.com/joss/fedcli/internal/relay"
	"github.com/joss/fedcli/internal/render"
	rt "github.com/joss/fedcli/internal/runtime"
	"github.com/joss/fedcli/internal/store"
)

func chatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Support chat operations",
		Long: `One-shot support chat operations.

For the interactive screens use 'fedcli inbox' (federation managers)
or 'fedcli support' (club managers).`,
	}
	cmd.AddCommand(
		chatSummariesCmd(),
		chatHistoryCmd(),
		chatAssignCmd(),
		chatReleaseCmd(),
		chatSendCmd(),
		chatWatchCmd(),
	)
	return cmd
}

func chatSummariesCmd() *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "summaries",
		Short: "List support conversations",
		Long: `List support conversations, waiting ones first.

Examples:
  fedcli chat summaries
  fedcli chat summaries --offline   # last list seen, from the local cache
  fedcli chat summaries --json`,
		Run: func(cmd *cobra.Command, args []string) {
			event := auditLogger.StartWithCommand(audit.CategoryChat, "summaries", commandLine(cmd, args))
			mgr, sess := requireSession(event, domain.RoleFederationManager)

			ctx, cancel := timeoutCtx()
			defer cancel()

			var list []domain.ChatSummary
			if offline {
				if cache == nil {
					exitOnError(event, errors.New("local cache unavailable"))
				}
				cached, fetchedAt, err := cache.Summaries(ctx)
				if err != nil {
					exitOnError(event, err)
				}
				if !jsonOut && !fetchedAt.IsZero() {
					fmt.Fprintf(os.Stderr, "cached %s ago\n", render.FormatDuration(time.Since(fetchedAt).Round(time.Second)))
				}
				list = cached
			} else {
				snap := chat.NewFeed(client(mgr)).Fetch(ctx)
				if snap.Err != nil {
					exitOnError(event, snap.Err)
				}
				cacheSummaries(ctx, snap)
				list = snap.Summaries
			}

			auditLogger.LogSuccess(event)
			emit(list, func(r *render.Renderer) string {
				return r.Summaries(list, sess.UserID())
			})
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "Read from the local cache")
	return cmd
}

func cacheSummaries(ctx context.Context, snap chat.Snapshot) {
	if cache == nil || snap.Err != nil {
		return
	}
	if err := cache.ReplaceSummaries(ctx, snap.Summaries, snap.FetchedAt); err != nil {
		fmt.Fprintf(os.Stderr, "warning: cache not updated: %v\n", err)
	}
}

func chatHistoryCmd() *cobra.Command {
	var offline bool
	var limit int

	cmd := &cobra.Command{
		Use:   "history [conversation-id]",
		Short: "Show the messages of a conversation",
		Long: `Show a conversation transcript.

Club managers read their own conversation and may omit the id.`,
		Args: cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			event := auditLogger.StartWithCommand(audit.CategoryChat, "history", commandLine(cmd, args))
			mgr, sess := requireSession(event, domain.RoleFederationManager, domain.RoleClubManager)

			id := sess.UserID()
			if len(args) == 1 {
				id = args[0]
			} else if sess.Role() != domain.RoleClubManager {
				exitOnError(event, errors.New("conversation id required"))
			}
			event.ForConversation(id)

			ctx, cancel := timeoutCtx()
			defer cancel()

			var msgs []domain.ChatMessage
			var err error
			if offline {
				if cache == nil {
					exitOnError(event, errors.New("local cache unavailable"))
				}
				filter := store.DefaultFilter()
				if limit > 0 {
					filter = filter.WithLimit(limit)
				}
				msgs, err = cache.Messages(ctx, id, filter)
			} else {
				msgs, err = client(mgr).History(ctx, id)
				if err == nil && cache != nil {
					if cErr := cache.SaveMessages(ctx, msgs...); cErr != nil {
						fmt.Fprintf(os.Stderr, "warning: cache not updated: %v\n", cErr)
					}
				}
				if limit > 0 && len(msgs) > limit {
					msgs = msgs[len(msgs)-limit:]
				}
			}
			if err != nil {
				exitOnError(event, err)
			}

			auditLogger.LogSuccess(event)
			emit(msgs, func(r *render.Renderer) string {
				return r.Messages(msgs, sess.UserID())
			})
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "Read from the local cache")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Show only the last N messages")
	return cmd
}

func chatAssignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assign <conversation-id>",
		Short: "Take charge of a conversation",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			runAction(cmd, args, "take_charge")
		},
	}
}

func chatReleaseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "release <conversation-id>",
		Short: "Release a conversation",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			runAction(cmd, args, "release")
		},
	}
}

// noRefresh satisfies chat.Refresher for one-shot commands with no feed.
type noRefresh struct{}

func (noRefresh) Refresh() {}

func runAction(cmd *cobra.Command, args []string, op string) {
	event := auditLogger.StartWithCommand(audit.CategoryChat, op, commandLine(cmd, args))
	event.ForConversation(args[0])
	mgr, _ := requireSession(event, domain.RoleFederationManager)

	ctx, cancel := timeoutCtx()
	defer cancel()

	actions := chat.NewActions(client(mgr), noRefresh{})
	call := actions.TakeCharge
	if op == "release" {
		call = actions.Release
	}
	msg, err := call(ctx, args[0])
	if err != nil {
		exitOnError(event, err)
	}
	auditLogger.LogSuccess(event)
	emit(map[string]string{"conversationId": args[0], "message": msg}, func(*render.Renderer) string {
		return msg
	})
}

func chatSendCmd() *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "send [conversation-id] <message...>",
		Short: "Send one message over the live channel",
		Long: `Send a message and wait for the broker to echo it back.

Federation managers give the conversation id and must hold the
conversation. Club managers write to their own conversation:

  fedcli chat send "Hello, we need help with an enrollment"
  fedcli chat send 3f1c... "Done, you can retry now"`,
		Args: cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			event := auditLogger.StartWithCommand(audit.CategoryChat, "send", commandLine(cmd, args))
			mgr, sess := requireSession(event, domain.RoleFederationManager, domain.RoleClubManager)

			id := sess.UserID()
			if sess.Role() == domain.RoleFederationManager {
				if len(args) < 2 {
					exitOnError(event, errors.New("conversation id and message required"))
				}
				id, args = args[0], args[1:]
			}
			event.ForConversation(id)
			text := strings.Join(args, " ")
			if strings.TrimSpace(text) == "" {
				exitOnError(event, errors.New("empty message"))
			}

			ctx, cancel := context.WithTimeout(context.Background(), config.Env().HTTPTimeout+wait)
			defer cancel()

			dialer := &chat.StompDialer{URL: config.Env().WebSocketURL(), Tokens: mgr}
			stream, err := dialer.Dial(ctx, id)
			if err != nil {
				exitOnError(event, err)
			}
			defer stream.Close()

			if err := stream.Send(domain.OutgoingMessage{ConversationID: id, Message: text}); err != nil {
				exitOnError(event, err)
			}

			echo, err := awaitEcho(ctx, stream, sess.UserID(), text, wait)
			if err != nil {
				// The broker drops messages it refuses without telling the sender.
				auditLogger.LogWarning(event, err.Error())
				fmt.Fprintln(os.Stderr, render.New(pretty).Failure(err))
				return
			}
			if cache != nil {
				cache.SaveMessages(ctx, echo)
			}
			auditLogger.LogSuccess(event)
			emit(echo, func(r *render.Renderer) string {
				return r.Messages([]domain.ChatMessage{echo}, sess.UserID())
			})
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 5*time.Second, "How long to wait for the echo")
	return cmd
}

func awaitEcho(ctx context.Context, s chat.Stream, userID, text string, wait time.Duration) (domain.ChatMessage, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		select {
		case m, ok := <-s.Messages():
			if !ok {
				return domain.ChatMessage{}, errors.New("connection closed before delivery")
			}
			if m.SenderID == userID && m.Content == text {
				return m, nil
			}
		case <-timer.C:
			return domain.ChatMessage{}, errors.New("no delivery confirmation: the conversation may not be assigned to you")
		case <-ctx.Done():
			return domain.ChatMessage{}, ctx.Err()
		}
	}
}

func chatWatchCmd() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print assignment changes as they happen",
		Long: `Poll the inbox and print one JSON line per assignment change,
in the same envelope format the relay publishes. Stops on Ctrl+C.`,
		Run: func(cmd *cobra.Command, args []string) {
			event := auditLogger.StartWithCommand(audit.CategoryChat, "watch", commandLine(cmd, args))
			mgr, _ := requireSession(event, domain.RoleFederationManager)

			sm := rt.Global()
			sm.ListenForSignals()
			ctx := sm.Context()

			feed := chat.NewFeed(client(mgr), chat.WithInterval(interval))
			feed.OnSnapshot(func(s chat.Snapshot) { cacheSummaries(ctx, s) })

			pub := relay.NewLinePublisher(os.Stdout)
			sm.Register("publisher", func(context.Context) error { return pub.Close() })

			logging.SafeGo("feed", func() { feed.Run(ctx) })
			err := relay.New(pub).Run(ctx, feed.Snapshots())
			sm.Shutdown()
			if err != nil && !errors.Is(err, context.Canceled) {
				exitOnError(event, err)
			}
			auditLogger.LogSuccess(event)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", config.Env().PollInterval, "Poll interval")
	return cmd
}
