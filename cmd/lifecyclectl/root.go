package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/moodcycle/internal/client"
	"github.com/dmitrijs2005/moodcycle/internal/server/auth"
	"github.com/dmitrijs2005/moodcycle/internal/server/config"
	gs "github.com/dmitrijs2005/moodcycle/internal/server/grpc"
	"github.com/dmitrijs2005/moodcycle/internal/server/repositories/repomanager"
)

type options struct {
	serverURL  string
	grpcAddr   string
	token      string
	configFile string
	envFile    string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:           "lifecyclectl",
		Short:         "Operate the daily lifecycle engine",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.serverURL, "server", "http://localhost:8080", "base URL of the HTTP API")
	pf.StringVar(&opts.grpcAddr, "grpc", "localhost:50051", "address of the gRPC health service")
	pf.StringVar(&opts.token, "token", "", "bearer token; minted from the server secret when empty")
	pf.StringVarP(&opts.configFile, "config", "c", "", "server config file (JSON or YAML)")
	pf.StringVar(&opts.envFile, "env-file", "", "dotenv file with server settings")

	rootCmd.AddCommand(tokenCmd(opts))
	rootCmd.AddCommand(resetCmd(opts))
	rootCmd.AddCommand(notifyCheckCmd(opts))
	rootCmd.AddCommand(enrollCmd(opts))
	rootCmd.AddCommand(progressCmd(opts))
	rootCmd.AddCommand(taskCmd(opts))
	rootCmd.AddCommand(healthCmd(opts))
	rootCmd.AddCommand(migrateCmd(opts))

	return rootCmd
}

func (o *options) loadConfig() (*config.Config, error) {
	var args []string
	if o.configFile != "" {
		args = append(args, "-c", o.configFile)
	}
	if o.envFile != "" {
		args = append(args, "-env-file", o.envFile)
	}
	return config.Load(args)
}

func (o *options) mintToken(subject string) (string, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return "", err
	}
	return auth.GenerateToken(subject, "operator", []byte(cfg.SecretKey), cfg.AccessTokenValidityDuration, time.Now())
}

func (o *options) client() (*client.Client, error) {
	token := o.token
	if token == "" {
		var err error
		if token, err = o.mintToken("lifecyclectl"); err != nil {
			return nil, err
		}
	}
	return client.New(o.serverURL, token, nil), nil
}

type apiCall func(ctx context.Context, c *client.Client, args []string) (json.RawMessage, error)

// apiCmd builds a subcommand that performs one API call and prints the
// server's JSON answer, including on error statuses.
func apiCmd(opts *options, use, short string, nargs cobra.PositionalArgs, call apiCall) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  nargs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			out, err := call(cmd.Context(), c, args)
			if len(out) > 0 {
				printJSON(cmd.OutOrStdout(), out)
			}
			return err
		},
	}
}

func printJSON(w io.Writer, raw json.RawMessage) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		fmt.Fprintln(w, string(raw))
		return
	}
	fmt.Fprintln(w, buf.String())
}

func tokenCmd(opts *options) *cobra.Command {
	var subject string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token signed with the server secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := opts.mintToken(subject)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "lifecyclectl", "token subject")
	return cmd
}

func resetCmd(opts *options) *cobra.Command {
	return apiCmd(opts, "reset [userId]", "Run the daily reset for a user", cobra.ExactArgs(1),
		func(ctx context.Context, c *client.Client, args []string) (json.RawMessage, error) {
			return c.Reset(ctx, args[0])
		})
}

func notifyCheckCmd(opts *options) *cobra.Command {
	return apiCmd(opts, "notify-check [userId]", "Send an inactivity nudge if one is due", cobra.ExactArgs(1),
		func(ctx context.Context, c *client.Client, args []string) (json.RawMessage, error) {
			return c.NotifyCheck(ctx, args[0])
		})
}

func enrollCmd(opts *options) *cobra.Command {
	return apiCmd(opts, "enroll [userId] [email]", "Create a user's progress record", cobra.RangeArgs(1, 2),
		func(ctx context.Context, c *client.Client, args []string) (json.RawMessage, error) {
			email := ""
			if len(args) > 1 {
				email = args[1]
			}
			return c.Enroll(ctx, args[0], email)
		})
}

func progressCmd(opts *options) *cobra.Command {
	return apiCmd(opts, "progress [userId]", "Show a user's points, mood and reset countdown", cobra.ExactArgs(1),
		func(ctx context.Context, c *client.Client, args []string) (json.RawMessage, error) {
			return c.Progress(ctx, args[0])
		})
}

func taskCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Create and complete tasks",
	}

	var sustainable bool
	add := apiCmd(opts, "add [userId] [title]", "Create a task", cobra.ExactArgs(2),
		func(ctx context.Context, c *client.Client, args []string) (json.RawMessage, error) {
			return c.CreateTask(ctx, args[0], args[1], sustainable)
		})
	add.Flags().BoolVarP(&sustainable, "sustainable", "s", false, "mark the task as sustainable")

	complete := apiCmd(opts, "complete [userId] [taskId]", "Mark a task completed", cobra.ExactArgs(2),
		func(ctx context.Context, c *client.Client, args []string) (json.RawMessage, error) {
			return c.CompleteTask(ctx, args[0], args[1])
		})

	cmd.AddCommand(add, complete)
	return cmd
}

func healthCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Query the gRPC health service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			st, err := client.Health(ctx, opts.grpcAddr, gs.ServiceName)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), st.String())
			return nil
		},
	}
}

func migrateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if cfg.DatabaseDSN == config.MemoryDSN {
				return fmt.Errorf("nothing to migrate for the %q store", config.MemoryDSN)
			}

			db, err := sql.Open("pgx", cfg.DatabaseDSN)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := repomanager.NewPostgresRepositoryManager().RunMigrations(cmd.Context(), db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}
