package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"github.com/rub-lamp/oracle_layer/internal/hoard"
	"github.com/rub-lamp/oracle_layer/internal/middleware"
	"github.com/rub-lamp/oracle_layer/internal/payout"
	"github.com/rub-lamp/oracle_layer/internal/platform/migrations"
	"github.com/rub-lamp/oracle_layer/internal/store"
)

func tierCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tier <score>",
		Short: "Show the payout band for a score",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			score, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("score must be an integer: %w", err)
			}
			band, ok := payout.BandFor(score)
			if !ok {
				printer(cmd).Warning("score %d does not pay", score)
				return nil
			}
			printer(cmd).KV(map[string]interface{}{
				"tier":    band.Tier,
				"range":   fmt.Sprintf("%d-%d", band.MinScore, band.MaxScore),
				"payout":  fmt.Sprintf("%d-%d", band.Min, band.Max),
				"jackpot": band.Jackpot,
			})
			return nil
		},
	}
}

func rentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rent [size]",
		Short: "Show the rent-exempt deposit for an account (default: the hoard account)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			space := hoard.AccountSpace()
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n < 0 {
					return fmt.Errorf("size must be a non-negative integer")
				}
				space = n
			}
			printer(cmd).KV(map[string]interface{}{
				"space":    space,
				"lamports": hoard.RentExemptionLamports(space),
			})
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	var driver, dsn string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dsn == "" {
				dsn = os.Getenv("DATABASE_URL")
			}
			if dsn == "" {
				return fmt.Errorf("--dsn or DATABASE_URL is required")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			st, err := store.Open(ctx, driver, dsn)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := migrations.Up(ctx, st.DB().DB, driver); err != nil {
				return err
			}
			printer(cmd).Success("%s schema is up to date", driver)
			return nil
		},
	}
	cmd.Flags().StringVar(&driver, "driver", migrations.DialectPostgres, "database driver (postgres or sqlite)")
	cmd.Flags().StringVar(&dsn, "dsn", "", "connection string (defaults to DATABASE_URL)")
	return cmd
}

func tokenCmd() *cobra.Command {
	var (
		user    string
		role    string
		secret  string
		keyFile string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an admin bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			var issuer *middleware.TokenIssuer
			switch {
			case keyFile != "":
				pem, err := os.ReadFile(keyFile)
				if err != nil {
					return err
				}
				key, err := jwt.ParseRSAPrivateKeyFromPEM(pem)
				if err != nil {
					return fmt.Errorf("parse private key: %w", err)
				}
				issuer = middleware.NewRSATokenIssuer(key, ttl)
			default:
				if secret == "" {
					secret = os.Getenv("ADMIN_JWT_SECRET")
				}
				if secret == "" {
					return fmt.Errorf("--secret, --key or ADMIN_JWT_SECRET is required")
				}
				issuer = middleware.NewHMACTokenIssuer([]byte(secret), ttl)
			}

			token, err := issuer.Issue(user, role)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "operator", "user id placed in the token")
	cmd.Flags().StringVar(&role, "role", middleware.RoleAdmin, "role claim")
	cmd.Flags().StringVar(&secret, "secret", "", "HMAC secret (defaults to ADMIN_JWT_SECRET)")
	cmd.Flags().StringVar(&keyFile, "key", "", "RSA private key PEM for RS256 tokens")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	return cmd
}
