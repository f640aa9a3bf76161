package auth

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"runtime"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"
)

// URLOpener presents the authorization URL to the user. ctx stays alive for
// the duration of the sign-in and is cancelled when the flow ends.
type URLOpener interface {
	Open(ctx context.Context, url string) error
}

// OpenerFunc adapts a function to URLOpener.
type OpenerFunc func(ctx context.Context, url string) error

func (f OpenerFunc) Open(ctx context.Context, url string) error { return f(ctx, url) }

// SystemBrowser opens the URL with the platform's default browser.
type SystemBrowser struct{}

func (SystemBrowser) Open(_ context.Context, url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

// PrintURL writes the URL for the user to open manually.
type PrintURL struct {
	W io.Writer
}

func (p PrintURL) Open(_ context.Context, url string) error {
	_, err := fmt.Fprintf(p.W, "Open the following URL in your browser:\n%s\n", url)
	return err
}

// MultiOpener runs every opener in order and succeeds if any of them does.
type MultiOpener []URLOpener

func (m MultiOpener) Open(ctx context.Context, url string) error {
	var lastErr error
	ok := false
	for _, o := range m {
		if err := o.Open(ctx, url); err != nil {
			log.Warn().Err(err).Msg("URL opener failed")
			lastErr = err
			continue
		}
		ok = true
	}
	if !ok && lastErr != nil {
		return lastErr
	}
	return nil
}

// ChromeBrowser drives a dedicated Chrome or Chromium window with chromedp.
// The window closes when the sign-in context ends.
type ChromeBrowser struct {
	// ExecPath overrides the browser binary lookup.
	ExecPath string
	Headless bool
}

func (c ChromeBrowser) Open(ctx context.Context, url string) error {
	execPath, err := c.lookPath()
	if err != nil {
		return err
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.ExecPath(execPath))
	if !c.Headless {
		opts = append(opts, chromedp.Flag("headless", false), chromedp.Flag("disable-gpu", false))
	}
	allocatorCtx, cancelAllocator := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocatorCtx, chromedp.WithLogf(log.Debug().Msgf))
	cancel := func() {
		cancelBrowser()
		cancelAllocator()
	}

	if err := chromedp.Run(browserCtx, chromedp.Navigate(url)); err != nil {
		cancel()
		return fmt.Errorf("failed to navigate to authorization URL: %w", err)
	}
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return nil
}

func (c ChromeBrowser) lookPath() (string, error) {
	if c.ExecPath != "" {
		return c.ExecPath, nil
	}
	for _, name := range []string{"google-chrome", "chromium", "chromium-browser", "chrome"} {
		if p, err := exec.LookPath(name); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("no Chrome or Chromium executable found in PATH")
}
