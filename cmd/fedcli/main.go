// Package main provides the fedcli entrypoint.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/joss/fedcli/internal/audit"
	"github.com/joss/fedcli/internal/config"
	"github.com/joss/fedcli/internal/logging"
	"github.com/joss/fedcli/internal/store"
)

var (
	version     = "0.1.0"
	pretty      = true
	jsonOut     bool
	cache       *store.Cache
	auditLogger *audit.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "fedcli",
		Short: "Sports federation client",
		Long: `fedcli: terminal client for the sports federation backend.

Federation managers work the support inbox with 'fedcli inbox';
club managers talk to the federation with 'fedcli support'.

Use 'fedcli login' first. 'fedcli mock' runs a local backend with demo data.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			env := config.Env()
			logging.SetLevel(env.LogLevel)

			if !cmd.Flags().Changed("pretty") {
				pretty = term.IsTerminal(int(os.Stdout.Fd()))
			}

			// The cache is optional: commands work online without it.
			paths := config.GetPaths()
			if err := config.EnsureDir(paths.Home); err == nil {
				if c, err := store.Open(paths.Cache); err == nil {
					cache = c
				} else {
					logging.New("cli").Warn("cache_unavailable", map[string]interface{}{"path": paths.Cache}, err)
				}
			}

			opts := []audit.LoggerOption{}
			if cache != nil {
				opts = append(opts, audit.WithSink(audit.NewStore(cache)))
			}
			auditLogger = audit.NewLogger(opts...)
			audit.SetGlobal(auditLogger)
			if sess, err := sessionManager().Current(); err == nil {
				auditLogger.SetUser(sess.UserID(), string(sess.Role()))
			}
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if cache != nil {
				cache.Close()
			}
		},
	}

	rootCmd.PersistentFlags().BoolVar(&pretty, "pretty", true, "Pretty print output")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "auth", Title: "Authentication:"},
		&cobra.Group{ID: "chat", Title: "Support chat:"},
		&cobra.Group{ID: "federation", Title: "Federation:"},
		&cobra.Group{ID: "runtime", Title: "Runtime:"},
	)

	for _, c := range []*cobra.Command{loginCmd(), logoutCmd(), whoamiCmd()} {
		c.GroupID = "auth"
		rootCmd.AddCommand(c)
	}
	for _, c := range []*cobra.Command{inboxCmd(), supportCmd(), chatCmd()} {
		c.GroupID = "chat"
		rootCmd.AddCommand(c)
	}
	for _, c := range []*cobra.Command{userCmd(), clubCmd(), eventCmd(), athleteCmd()} {
		c.GroupID = "federation"
		rootCmd.AddCommand(c)
	}
	for _, c := range []*cobra.Command{relayCmd(), mockCmd(), auditCmd(), doctorCmd()} {
		c.GroupID = "runtime"
		rootCmd.AddCommand(c)
	}
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("fedcli %s\n", version)
		},
	}
}

// commandLine is the audited form of the invocation.
func commandLine(cmd *cobra.Command, args []string) string {
	return strings.TrimSpace(cmd.CommandPath() + " " + strings.Join(args, " "))
}
