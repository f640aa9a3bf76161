package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/habedi/gauth/auth"
	"github.com/habedi/gauth/pkg/clierr"
	"github.com/habedi/gauth/pkg/pool"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// retryWindow bounds the backoff retries of a single command.
const retryWindow = 30 * time.Second

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Inspect and manage saved tokens",
	}
	cmd.AddCommand(
		tokenPrintCmd(),
		tokenRefreshCmd(),
		tokenListCmd(),
		tokenDeleteCmd(),
	)
	return cmd
}

func tokenPrintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "print",
		Short: "Print a valid access token, refreshing it if needed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, provider, closeFn, err := setup(cmd, auth.WithURLOpener(loginOpener(cmd.ErrOrStderr(), false, false)))
			if err != nil {
				return err
			}
			defer closeFn()

			var tok *auth.Token
			err = withRetry(cmd.Context(), retryWindow, func() error {
				var err error
				tok, err = provider.CurrentToken(cmd.Context())
				return err
			})
			if err != nil {
				return toCLIError(err)
			}
			// stdout, so that $(gauth token print) works
			fmt.Fprintln(cmd.OutOrStdout(), tok.AccessToken)
			return nil
		},
	}
}

func tokenRefreshCmd() *cobra.Command {
	var all bool
	var workers int
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Force a new grant exchange",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if all {
				return refreshAll(cmd, workers)
			}
			cfg, _, provider, closeFn, err := setup(cmd, auth.WithURLOpener(loginOpener(cmd.ErrOrStderr(), false, false)))
			if err != nil {
				return err
			}
			defer closeFn()

			var tok *auth.Token
			err = withRetry(cmd.Context(), retryWindow, func() error {
				var err error
				tok, err = provider.RefreshToken(cmd.Context())
				return err
			})
			if err != nil {
				return toCLIError(err)
			}
			log.Info().Str("name", cfg.Name).Msg("Token refreshed")
			cmd.Printf("Token %q refreshed, %s.\n", cfg.Name, describeExpiry(tok, time.Now()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Refresh every saved token that has a refresh token")
	cmd.Flags().IntVarP(&workers, "workers", "w", 4, "Number of concurrent refreshes with --all")
	return cmd
}

// refreshAll runs the refresh grant for every saved token that carries a
// refresh token. Tokens without one would need an interactive sign-in and
// are skipped.
func refreshAll(cmd *cobra.Command, workers int) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Provider == "service-account" {
		return clierr.New(clierr.Validation, "The service-account provider does not use saved tokens.", nil)
	}
	store, closeFn, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	lister, ok := store.(tokenLister)
	if !ok {
		return clierr.New(clierr.Validation, fmt.Sprintf("The %s store cannot list tokens.", cfg.Store.Backend), nil)
	}
	names, err := lister.ListTokens(cmd.Context())
	if err != nil {
		return clierr.New(clierr.Internal, "Failed to list tokens.", err)
	}

	var refreshable []string
	for _, name := range names {
		tok, err := store.LoadToken(cmd.Context(), name)
		if err != nil {
			return clierr.New(clierr.Internal, fmt.Sprintf("Failed to read token %q.", name), err)
		}
		if tok.HasRefreshToken() {
			refreshable = append(refreshable, name)
		} else {
			cmd.Printf("Skipping %q: no refresh token.\n", name)
		}
	}
	if len(refreshable) == 0 {
		cmd.Println("No tokens to refresh.")
		return nil
	}

	errs := pool.Run(cmd.Context(), refreshable, workers, func(ctx context.Context, name string) error {
		named := cfg
		named.Name = name
		provider, err := buildProvider(ctx, named, store, auth.WithURLOpener(refusingOpener{}))
		if err != nil {
			return err
		}
		return withRetry(ctx, retryWindow, func() error {
			_, err := provider.RefreshToken(ctx)
			return err
		})
	})

	for i, name := range refreshable {
		if errs[i] != nil {
			log.Error().Err(errs[i]).Str("name", name).Msg("Token refresh failed")
			cmd.Printf("Token %q: %v\n", name, errs[i])
			continue
		}
		cmd.Printf("Token %q refreshed.\n", name)
	}
	if failed := pool.Failed(errs); len(failed) > 0 {
		return toCLIError(failed[0])
	}
	return nil
}

// refusingOpener keeps batch refreshes from starting an interactive sign-in.
type refusingOpener struct{}

func (refusingOpener) Open(ctx context.Context, authURL string) error {
	return errors.New("interactive sign-in is not available during a batch refresh")
}

func tokenListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			store, closeFn, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			lister, ok := store.(tokenLister)
			if !ok {
				return clierr.New(clierr.Validation, fmt.Sprintf("The %s store cannot list tokens.", cfg.Store.Backend), nil)
			}
			names, err := lister.ListTokens(cmd.Context())
			if err != nil {
				return clierr.New(clierr.Internal, "Failed to list tokens.", err)
			}
			if len(names) == 0 {
				cmd.Println("No saved tokens. Use `gauth login` to sign in.")
				return nil
			}
			return renderTokenTable(cmd, store, names)
		},
	}
}

func renderTokenTable(cmd *cobra.Command, store auth.TokenStorer, names []string) error {
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"Name", "Type", "Expiry", "Refresh Token", "Scopes"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	table.SetRowLine(false)

	now := time.Now()
	for _, name := range names {
		tok, err := store.LoadToken(cmd.Context(), name)
		if err != nil {
			return clierr.New(clierr.Internal, fmt.Sprintf("Failed to read token %q.", name), err)
		}
		if tok == nil {
			continue
		}
		refresh := "no"
		if tok.HasRefreshToken() {
			refresh = "yes"
		}
		table.Append([]string{name, tok.Type(), describeExpiry(tok, now), refresh, strings.Join(tok.Scope, " ")})
	}
	table.Render()
	return nil
}

func tokenDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a saved token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			store, closeFn, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			if err := store.DeleteToken(cmd.Context(), args[0]); err != nil {
				return toCLIError(err)
			}
			cmd.Printf("Token %q deleted.\n", args[0])
			return nil
		},
	}
}

func describeExpiry(tok *auth.Token, now time.Time) string {
	switch {
	case tok.Expiry.IsZero():
		return "no known expiry"
	case !tok.Valid(now):
		return "expired " + tok.Expiry.Local().Format(time.RFC3339)
	default:
		return "expires in " + tok.Expiry.Sub(now).Round(time.Second).String()
	}
}
