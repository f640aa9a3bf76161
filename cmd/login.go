package cmd

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/habedi/gauth/auth"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// loginCmd runs the interactive browser sign-in and saves the token.
func loginCmd() *cobra.Command {
	var noBrowser, chrome bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in through the browser and save the token",
		Long:  "Open the Google sign-in page, wait for the redirect to a local listener, and save the issued token.",
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

			opener := loginOpener(cmd.OutOrStdout(), noBrowser, chrome)
			p, err := auth.NewBrowserTokenProviderFromFile(cmd.Context(), cfg.ClientCredentials, cfg.Scopes,
				providerOptions(cfg, store, auth.WithURLOpener(opener))...)
			if err != nil {
				return toCLIError(err)
			}

			log.Info().Str("name", cfg.Name).Msg("Starting browser sign-in")
			tok, err := p.SignIn(cmd.Context())
			if err != nil {
				return toCLIError(err)
			}
			cmd.Printf("Signed in. Token saved as %q", cfg.Name)
			if !tok.Expiry.IsZero() {
				cmd.Printf(" (expires %s)", tok.Expiry.Local().Format(time.RFC1123))
			}
			cmd.Println()
			return nil
		},
	}

	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "Print the sign-in URL instead of opening a browser")
	cmd.Flags().BoolVar(&chrome, "chrome", false, "Open the sign-in page in a dedicated Chrome window")
	return cmd
}

// loginOpener always prints the URL as a fallback, and shows a spinner
// while waiting when stdout is a terminal.
func loginOpener(out io.Writer, noBrowser, chrome bool) auth.URLOpener {
	var opener auth.URLOpener
	switch {
	case noBrowser:
		opener = auth.PrintURL{W: out}
	case chrome:
		opener = auth.MultiOpener{auth.ChromeBrowser{}, auth.PrintURL{W: out}}
	default:
		opener = auth.MultiOpener{auth.SystemBrowser{}, auth.PrintURL{W: out}}
	}
	if term.IsTerminal(int(os.Stdout.Fd())) {
		return spinnerOpener{next: opener, w: os.Stderr}
	}
	return opener
}

// spinnerOpener runs next, then spins until the sign-in context ends.
type spinnerOpener struct {
	next auth.URLOpener
	w    io.Writer
}

func (s spinnerOpener) Open(ctx context.Context, url string) error {
	if err := s.next.Open(ctx, url); err != nil {
		return err
	}
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(s.w),
		progressbar.OptionSetDescription("Waiting for browser sign-in..."),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = bar.Finish()
				return
			case <-ticker.C:
				_ = bar.Add(1)
			}
		}
	}()
	return nil
}
