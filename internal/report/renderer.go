package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

const (
	DefaultRenderTimeout = 30 * time.Second

	a4WidthInches  = 8.27
	a4HeightInches = 11.69
	marginInches   = 0.787 // 20mm
)

const (
	StrategyExplicit = "explicit"
	StrategyChannel  = "channel"
	StrategyPlatform = "platform"
	StrategyBundled  = "bundled"
)

type PDFRenderer interface {
	RenderPDF(ctx context.Context, html string) ([]byte, error)
}

// RenderError is returned once every launch strategy failed or the render
// deadline passed.
type RenderError struct {
	Attempts []string
	Err      error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("pdf render failed after %s: %v", strings.Join(e.Attempts, ", "), e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

type LaunchStrategy struct {
	Name     string
	ExecPath string
}

// PrintFunc launches one browser at execPath (empty means let chromedp find
// one), loads html and returns the printed PDF.
type PrintFunc func(ctx context.Context, execPath, html string) ([]byte, error)

var chromeChannelBinaries = []string{
	"google-chrome-stable",
	"google-chrome",
	"chromium",
	"chromium-browser",
	"chrome",
}

type ChromeRendererOptions struct {
	ExecutablePath string
	Timeout        time.Duration
	Logger         *slog.Logger
}

type ChromeRenderer struct {
	explicitPath string
	timeout      time.Duration
	logger       *slog.Logger
	print        PrintFunc
	lookPath     func(string) (string, error)
	fileExists   func(string) bool
	getenv       func(string) string
	goos         string
}

func NewChromeRenderer(opts ChromeRendererOptions) *ChromeRenderer {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultRenderTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &ChromeRenderer{
		explicitPath: strings.TrimSpace(opts.ExecutablePath),
		timeout:      opts.Timeout,
		logger:       opts.Logger,
		print:        chromePrint,
		lookPath:     exec.LookPath,
		fileExists:   fileExists,
		getenv:       os.Getenv,
		goos:         runtime.GOOS,
	}
}

// Strategies lists launch attempts in order: the configured executable,
// the first Chrome found on PATH, well-known install locations for the
// platform, then chromedp's own discovery.
func (r *ChromeRenderer) Strategies() []LaunchStrategy {
	var out []LaunchStrategy
	seen := map[string]bool{}
	add := func(name, path string) {
		if seen[path] {
			return
		}
		seen[path] = true
		out = append(out, LaunchStrategy{Name: name, ExecPath: path})
	}
	if r.explicitPath != "" && r.fileExists(r.explicitPath) {
		add(StrategyExplicit, r.explicitPath)
	}
	for _, bin := range chromeChannelBinaries {
		if path, err := r.lookPath(bin); err == nil && path != "" {
			add(StrategyChannel, path)
			break
		}
	}
	for _, path := range r.platformPaths() {
		if r.fileExists(path) {
			add(StrategyPlatform, path)
		}
	}
	add(StrategyBundled, "")
	return out
}

func (r *ChromeRenderer) platformPaths() []string {
	switch r.goos {
	case "windows":
		programFiles := envOr(r.getenv, "PROGRAMFILES", `C:\Program Files`)
		programFilesX86 := envOr(r.getenv, "PROGRAMFILES(X86)", `C:\Program Files (x86)`)
		paths := []string{
			filepath.Join(programFiles, "Google", "Chrome", "Application", "chrome.exe"),
			filepath.Join(programFilesX86, "Google", "Chrome", "Application", "chrome.exe"),
		}
		if local := r.getenv("LOCALAPPDATA"); local != "" {
			paths = append(paths, filepath.Join(local, "Google", "Chrome", "Application", "chrome.exe"))
		}
		return paths
	case "darwin":
		return []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
		}
	default:
		return []string{
			"/usr/bin/google-chrome",
			"/usr/bin/chromium",
			"/usr/bin/chromium-browser",
			"/snap/bin/chromium",
		}
	}
}

func (r *ChromeRenderer) RenderPDF(ctx context.Context, html string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var attempts []string
	var lastErr error
	for _, s := range r.Strategies() {
		attempts = append(attempts, s.Name)
		out, err := r.print(ctx, s.ExecPath, html)
		if err == nil {
			return out, nil
		}
		lastErr = err
		r.logger.WarnContext(ctx, "pdf launch strategy failed",
			"strategy", s.Name,
			"exec_path", s.ExecPath,
			"error", err,
		)
		if ctxErr := ctx.Err(); ctxErr != nil {
			lastErr = errors.Join(ctxErr, err)
			break
		}
	}
	return nil, &RenderError{Attempts: attempts, Err: lastErr}
}

func chromePrint(ctx context.Context, execPath, html string) ([]byte, error) {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts, chromedp.NoSandbox, chromedp.Flag("disable-setuid-sandbox", true))
	if execPath != "" {
		opts = append(opts, chromedp.ExecPath(execPath))
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	var pdf []byte
	err := chromedp.Run(browserCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, html).Do(ctx)
		}),
		emulation.SetEmulatedMedia().WithMedia("screen"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(a4WidthInches).
				WithPaperHeight(a4HeightInches).
				WithMarginTop(marginInches).
				WithMarginBottom(marginInches).
				WithMarginLeft(marginInches).
				WithMarginRight(marginInches).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = buf
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}
	return pdf, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func envOr(getenv func(string) string, key, fallback string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return fallback
}
