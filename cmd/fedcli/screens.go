package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/joss/fedcli/internal/audit"
	"github.com/joss/fedcli/internal/chat"
	"github.com/joss/fedcli/internal/config"
	"github.com/joss/fedcli/internal/domain"
	"github.com/joss/fedcli/internal/logging"
	"github.com/joss/fedcli/internal/metrics"
	rt "github.com/joss/fedcli/internal/runtime"
	"github.com/joss/fedcli/internal/tui"
)

func inboxCmd() *cobra.Command {
	var interval time.Duration
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "Open the support inbox (federation managers)",
		Long: `Full-screen support inbox.

The conversation list refreshes every --interval and after every
take-charge or release. Open a conversation with enter, take charge
with t, reply with tab. Logs go to ~/.fedcli/fedcli.log.`,
		Run: func(cmd *cobra.Command, args []string) {
			event := auditLogger.StartWithCommand(audit.CategoryChat, "inbox", commandLine(cmd, args))
			mgr, sess := requireSession(event, domain.RoleFederationManager)

			sm := screenSetup(event, metricsAddr)
			ctx := sm.Context()
			api := client(mgr)

			feed := chat.NewFeed(api, chat.WithInterval(interval))
			feed.OnSnapshot(func(s chat.Snapshot) { cacheSummaries(ctx, s) })

			window := chat.NewWindow(&chat.StompDialer{URL: config.Env().WebSocketURL(), Tokens: mgr}, api, chat.ReadOnly(true))
			sm.Register("window", func(context.Context) error {
				saveTranscript(window)
				return window.Close()
			})

			model := tui.NewInbox(ctx, tui.InboxConfig{
				UserID:    sess.UserID(),
				Snapshots: feed.Snapshots(),
				Actions:   chat.NewActions(api, feed),
				Window:    window,
			})

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return ignoreCancel(feed.Run(gctx))
			})
			g.Go(func() error {
				defer sm.Shutdown()
				return tui.Run(gctx, model)
			})
			if err := g.Wait(); err != nil {
				exitOnError(event, err)
			}
			auditLogger.LogSuccess(event)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", config.Env().PollInterval, "Inbox refresh interval")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	return cmd
}

func supportCmd() *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "support",
		Short: "Chat with the federation (club managers)",
		Run: func(cmd *cobra.Command, args []string) {
			event := auditLogger.StartWithCommand(audit.CategoryChat, "support", commandLine(cmd, args))
			mgr, sess := requireSession(event, domain.RoleClubManager)
			event.ForConversation(sess.UserID())

			sm := screenSetup(event, metricsAddr)
			api := client(mgr)

			window := chat.NewWindow(&chat.StompDialer{URL: config.Env().WebSocketURL(), Tokens: mgr}, api)
			sm.Register("window", func(context.Context) error {
				saveTranscript(window)
				return window.Close()
			})
			if err := window.Open(sess.UserID()); err != nil {
				sm.Shutdown()
				exitOnError(event, err)
			}

			err := tui.Run(sm.Context(), tui.NewSupport(tui.SupportConfig{UserID: sess.UserID(), Window: window}))
			sm.Shutdown()
			if err != nil {
				exitOnError(event, err)
			}
			auditLogger.LogSuccess(event)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	return cmd
}

// screenSetup moves logging to the log file, starts the optional metrics
// endpoint and returns the shutdown manager the screen registers with.
func screenSetup(event *audit.AuditEvent, metricsAddr string) *rt.ShutdownManager {
	sm := rt.Global()
	sm.ListenForSignals()

	paths := config.GetPaths()
	if closeLog, err := logging.OpenFile(paths.Log); err == nil {
		sm.Register("log", func(context.Context) error { return closeLog() })
	}

	if metricsAddr != "" {
		srv := metrics.NewServer(metricsAddr, metrics.Global())
		if err := srv.Start(); err != nil {
			sm.Shutdown()
			exitOnError(event, err)
		}
		sm.Register("metrics", srv.Stop)
	}
	return sm
}

// saveTranscript keeps what the window showed for 'chat history --offline'.
func saveTranscript(w *chat.Window) {
	if cache == nil {
		return
	}
	v := w.View()
	if len(v.Messages) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := cache.SaveMessages(ctx, v.Messages...); err != nil {
		logging.New("cli").WithConversation(v.ConversationID).Warn("transcript_not_cached", nil, err)
	}
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
