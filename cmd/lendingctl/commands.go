package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"mediaLending/internal/accounts"
	"mediaLending/internal/auth"
	"mediaLending/internal/db"
	grpcserver "mediaLending/internal/grpc"
	"mediaLending/internal/lending"
	"mediaLending/repository"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				_, d, err := opts.open()
				if err != nil {
					return err
				}
				defer d.Close()
				return printVersion(cmd, d)
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			RunE: func(cmd *cobra.Command, _ []string) error {
				_, d, err := opts.open()
				if err != nil {
					return err
				}
				defer d.Close()
				if err := db.RollbackLast(d); err != nil {
					return err
				}
				return printVersion(cmd, d)
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			RunE: func(cmd *cobra.Command, _ []string) error {
				_, d, err := opts.open()
				if err != nil {
					return err
				}
				defer d.Close()
				return printVersion(cmd, d)
			},
		},
	)
	return cmd
}

func printVersion(cmd *cobra.Command, d *sqlx.DB) error {
	v, dirty, err := db.Version(d)
	if err != nil {
		return err
	}
	cmd.Printf("schema version %d (dirty=%t)\n", v, dirty)
	return nil
}

func newCreateAdminCmd(opts *rootOptions) *cobra.Command {
	var in accounts.RegisterInput
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an ADMIN account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if in.Password == "" {
				pw, err := readPassword(cmd, "Password: ")
				if err != nil {
					return err
				}
				in.Password = pw
			}
			cfg, d, err := opts.open()
			if err != nil {
				return err
			}
			defer d.Close()

			svc := accounts.NewService(repository.NewStore(d), auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL))
			u, err := svc.CreateAdmin(cmd.Context(), in)
			if err != nil {
				return err
			}
			cmd.Printf("created admin %s with id %d\n", u.Email, u.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.Email, "email", "", "admin email")
	cmd.Flags().StringVar(&in.Password, "password", "", "admin password (prompted when empty)")
	cmd.Flags().StringVar(&in.FirstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&in.LastName, "last-name", "", "last name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// readPassword reads a password without echo when stdin is a terminal.
func readPassword(cmd *cobra.Command, prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("--password is required when stdin is not a terminal")
	}
	cmd.Print(prompt)
	b, err := term.ReadPassword(fd)
	cmd.Println()
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token USER_ID",
		Short: "Mint an access token for an existing user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user id %q", args[0])
			}
			cfg, d, err := opts.open()
			if err != nil {
				return err
			}
			defer d.Close()

			u, err := repository.NewUserRepository(d).GetByID(cmd.Context(), id)
			if err != nil {
				return err
			}
			if u == nil {
				return fmt.Errorf("user %d not found", id)
			}
			if ttl <= 0 {
				ttl = cfg.Auth.TokenTTL
			}
			token, exp, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, ttl).Issue(u)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			cmd.PrintErrf("role %s, expires %s\n", u.Role, exp.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to JWT_TTL)")
	return cmd
}

func newReconcileCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Recompute borrowing counters and copy availability",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, d, err := opts.open()
			if err != nil {
				return err
			}
			defer d.Close()

			svc := lending.NewService(repository.NewStore(d), lending.PolicyFromConfig(cfg.Lending))
			res, err := svc.Reconcile(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("reconciled %d users and %d copies\n", res.Users, res.Copies)
			return nil
		},
	}
}

func newSweepCmd() *cobra.Command {
	var addr, token string
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Ask a running server to mark overdue borrowings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if token == "" {
				token = os.Getenv("LENDING_TOKEN")
			}
			if token == "" {
				return errors.New("an admin token is required (--token or LENDING_TOKEN)")
			}
			if addr == "" {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				addr = cfg.GRPC.Address
			}
			conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx := metadata.AppendToOutgoingContext(cmd.Context(), "authorization", "Bearer "+token)
			n, err := grpcserver.NewMaintenanceClient(conn).CheckOverdue(ctx)
			if err != nil {
				return err
			}
			cmd.Printf("marked %d borrowings overdue\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "gRPC address (defaults to GRPC_ADDRESS)")
	cmd.Flags().StringVar(&token, "token", "", "admin bearer token")
	return cmd
}
