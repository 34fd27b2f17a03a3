package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/joss/fedcli/internal/audit"
	"github.com/joss/fedcli/internal/chat"
	"github.com/joss/fedcli/internal/config"
	"github.com/joss/fedcli/internal/domain"
	"github.com/joss/fedcli/internal/metrics"
	"github.com/joss/fedcli/internal/mockserver"
	"github.com/joss/fedcli/internal/relay"
	"github.com/joss/fedcli/internal/render"
	rt "github.com/joss/fedcli/internal/runtime"
	"github.com/joss/fedcli/internal/selftest"
)

var errNoBroker = errors.New("FED_AMQP_URL is not set")

func relayCmd() *cobra.Command {
	var interval time.Duration
	var metricsAddr, producer string

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Publish assignment changes to RabbitMQ",
		Long: `Poll the support inbox and publish one message per assignment change
to the FED_AMQP_EXCHANGE topic exchange, routing key chat.assignment.v1.
Requires a federation manager session and FED_AMQP_URL.`,
		Run: func(cmd *cobra.Command, args []string) {
			event := auditLogger.StartWithCommand(audit.CategoryRuntime, "relay", commandLine(cmd, args))
			mgr, _ := requireSession(event, domain.RoleFederationManager)

			env := config.Env()
			if env.AMQPURL == "" {
				exitOnError(event, errNoBroker)
			}

			sm := rt.Global()
			sm.ListenForSignals()
			ctx := sm.Context()

			m := metrics.Global()
			if metricsAddr != "" {
				srv := metrics.NewServer(metricsAddr, m)
				srv.Handle("/health/full", selftest.HealthHandler(healthChecker()))
				if err := srv.Start(); err != nil {
					exitOnError(event, err)
				}
				sm.Register("metrics", srv.Stop)
			}

			pub := relay.NewAMQPPublisher(env.AMQPURL, env.AMQPExchange)
			if err := pub.Connect(ctx); err != nil {
				sm.Shutdown()
				exitOnError(event, err)
			}
			sm.Register("amqp", func(context.Context) error { return pub.Close() })

			feed := chat.NewFeed(client(mgr), chat.WithInterval(interval), chat.WithMetrics(m))
			feed.OnSnapshot(func(s chat.Snapshot) {
				if s.Err != nil {
					selftest.SetLastError(s.Err)
				}
				cacheSummaries(ctx, s)
			})
			r := relay.New(pub, relay.WithProducer(producer), relay.WithMetrics(m))

			fmt.Printf("Relaying to %s (exchange %s), Ctrl+C to stop\n", redactURL(env.AMQPURL), env.AMQPExchange)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return ignoreCancel(feed.Run(gctx)) })
			g.Go(func() error { return ignoreCancel(r.Run(gctx, feed.Snapshots())) })
			err := g.Wait()
			sm.Shutdown()
			if err != nil {
				exitOnError(event, err)
			}
			auditLogger.LogSuccess(event)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", config.Env().PollInterval, "Poll interval")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	cmd.Flags().StringVar(&producer, "producer", relay.DefaultProducer, "Producer name stamped on every envelope")
	return cmd
}

// redactURL hides the password of an amqp URL.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Redacted()
}

func mockCmd() *cobra.Command {
	var addr, metricsAddr string
	var empty bool

	cmd := &cobra.Command{
		Use:   "mock",
		Short: "Run a local backend with demo data",
		Long: `Serve the REST API and the chat broker locally.

Point the client at it with:
  export FED_BASE_URL=http://127.0.0.1:8080
Every demo account uses the password "password".`,
		Run: func(cmd *cobra.Command, args []string) {
			event := auditLogger.StartWithCommand(audit.CategoryRuntime, "mock", commandLine(cmd, args))

			sm := rt.Global()
			sm.ListenForSignals()

			srv := mockserver.New(mockserver.WithSecret(config.Env().MockSecret))
			if !empty {
				if _, err := mockserver.Seed(srv.State()); err != nil {
					exitOnError(event, err)
				}
			}
			if err := srv.Start(addr); err != nil {
				exitOnError(event, err)
			}
			sm.Register("mock", srv.Shutdown)

			if metricsAddr != "" {
				ms := metrics.NewServer(metricsAddr, metrics.Global())
				if err := ms.Start(); err != nil {
					sm.Shutdown()
					exitOnError(event, err)
				}
				sm.Register("metrics", ms.Stop)
			}

			w := render.Stdout()
			w.Header("Mock backend")
			w.Item("Base URL: %s", srv.BaseURL())
			w.Item("API:      %s", srv.APIURL())
			w.Item("Broker:   %s", (&config.FedEnv{BaseURL: srv.BaseURL()}).WebSocketURL())
			if !empty {
				w.Section("Demo accounts")
				for _, email := range []string{
					"admin@fedcli.dev", "admin2@fedcli.dev",
					"manager1@fedcli.dev", "manager2@fedcli.dev", "manager3@fedcli.dev",
					"athlete1@fedcli.dev",
				} {
					w.Nested("%s / %s", email, mockserver.DemoPassword)
				}
			}
			w.Line()
			w.Println("Export FED_BASE_URL=%s and log in. Ctrl+C to stop.", srv.BaseURL())

			<-sm.Done()
			if err := sm.Err(); err != nil {
				exitOnError(event, err)
			}
			auditLogger.LogSuccess(event)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "Listen address")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	cmd.Flags().BoolVar(&empty, "empty", false, "Start without demo data")
	return cmd
}

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the local audit log",
	}
	cmd.AddCommand(auditLogCmd(), auditErrorsCmd(), auditStatsCmd())
	return cmd
}

func auditStore() *audit.Store {
	if cache == nil {
		fatalError(errors.New("local cache unavailable"))
	}
	return audit.NewStore(cache)
}

func auditLogCmd() *cobra.Command {
	var category, status, conversation string
	var since time.Duration
	var limit, offset int
	var oldest bool

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show recent audited commands",
		Run: func(cmd *cobra.Command, args []string) {
			filter := audit.QueryFilter{
				Category:       audit.Category(category),
				Status:         audit.Status(status),
				ConversationID: conversation,
				Limit:          limit,
				Offset:         offset,
				OldestFirst:    oldest,
			}
			if since > 0 {
				filter.Since = time.Now().Add(-since)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			events, err := auditStore().Query(ctx, filter)
			if err != nil {
				fatalError(err)
			}
			if jsonOut {
				emit(events, nil)
				return
			}
			render.NewAudit().Events(events)
		},
	}
	cmd.Flags().StringVarP(&category, "category", "c", "", "auth, chat, federation, runtime or system")
	cmd.Flags().StringVarP(&status, "status", "s", "", "success, error or warning")
	cmd.Flags().StringVar(&conversation, "conversation", "", "Only events about this conversation")
	cmd.Flags().DurationVar(&since, "since", 0, "Only events newer than this (e.g. 2h)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum events")
	cmd.Flags().IntVar(&offset, "offset", 0, "Skip the first N matching events")
	cmd.Flags().BoolVar(&oldest, "oldest", false, "Oldest events first")
	return cmd
}

func auditErrorsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "errors",
		Short: "Show recent failures",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			events, err := auditStore().GetErrors(ctx, limit)
			if err != nil {
				fatalError(err)
			}
			if jsonOut {
				emit(events, nil)
				return
			}
			render.NewAudit().Errors(events)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum events")
	return cmd
}

func auditStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize the audit log",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			stats, err := auditStore().Stats(ctx)
			if err != nil {
				fatalError(err)
			}
			if jsonOut {
				emit(stats, nil)
				return
			}
			render.NewAudit().Stats(stats)
		},
	}
}

// healthChecker probes the backend, the chat broker, RabbitMQ and the cache.
func healthChecker() *selftest.Checker {
	env := config.Env()
	httpClient := &http.Client{Timeout: env.HTTPTimeout}

	c := selftest.NewChecker().
		Add("api", env.APIURL, selftest.HTTPProbe(httpClient, env.APIURL)).
		Add("broker", env.WebSocketURL(), selftest.WebSocketProbe(env.WebSocketURL())).
		Add("amqp", redactURL(env.AMQPURL), selftest.AMQPProbe(env.AMQPURL))
	if cache != nil {
		c.Add("cache", cache.Path(), selftest.PingProbe(cache))
	} else {
		c.Add("cache", config.GetPaths().Cache, selftest.PingProbe(nil))
	}
	return c
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and reachability of the backend",
		Run: func(cmd *cobra.Command, args []string) {
			event := auditLogger.StartWithCommand(audit.CategorySystem, "doctor", commandLine(cmd, args))

			info := selftest.SessionInfo{}
			if sess, err := sessionManager().Current(); err != nil {
				info.Err = err
			} else {
				info.Role = string(sess.Role())
			}
			envReport := selftest.Inspect(config.Env(), config.GetPaths(), info)

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			health := healthChecker().CheckHealth(ctx)

			if jsonOut {
				emit(struct {
					Environment *selftest.Environment `json:"environment"`
					Health      *selftest.HealthStatus `json:"health"`
				}{envReport, health}, nil)
			} else {
				w := render.Stdout()
				w.Header("fedcli doctor")
				w.Println("%s", envReport.Summary())
				w.Item("%s terminal   %s inbox   %s relay",
					render.BoolIcon(envReport.HasTTY), render.BoolIcon(envReport.CanUseInbox()), render.BoolIcon(envReport.CanRelay()))
				w.Section("Services")
				for _, name := range health.Names() {
					c := health.Components[name]
					line := fmt.Sprintf("%s %-7s %s", render.StatusIcon(doctorIcon(c.Status)), name, c.Target)
					if c.Status != selftest.StatusSkipped {
						line += fmt.Sprintf(" (%dms)", c.Latency)
					}
					w.Item("%s", line)
					if c.Error != "" {
						w.Nested("%s", c.Error)
					}
				}
				w.Line()
				w.Println("Overall: %s", health.Status)
			}

			if !envReport.IsHealthy() || health.Status == selftest.Unhealthy {
				auditLogger.LogWarning(event, health.Status)
				closeCache()
				os.Exit(1)
			}
			auditLogger.LogSuccess(event)
		},
	}
}

func doctorIcon(status string) string {
	switch status {
	case selftest.StatusOK:
		return "success"
	case selftest.StatusError:
		return "error"
	case selftest.StatusDegraded:
		return "warning"
	}
	return ""
}
