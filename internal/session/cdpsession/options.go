// internal/session/cdpsession/options.go
package cdpsession

import (
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/kwdriver/internal/config"
)

// Options configure the Chrome process behind a Session.
type Options struct {
	Headless          bool
	Args              []string
	WindowWidth       int
	WindowHeight      int
	NavigationTimeout time.Duration
	// ExecPath overrides Chrome discovery.
	ExecPath string
}

// OptionsFrom converts the browser configuration section.
func OptionsFrom(cfg config.BrowserConfig) Options {
	return Options{
		Headless:          cfg.Headless,
		Args:              cfg.Args,
		WindowWidth:       cfg.WindowWidth,
		WindowHeight:      cfg.WindowHeight,
		NavigationTimeout: cfg.NavigationTimeout,
	}
}

func (o Options) allocatorOptions() []chromedp.ExecAllocatorOption {
	// Start with chromedp defaults. They include headless mode.
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if !o.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if o.WindowWidth > 0 && o.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(o.WindowWidth, o.WindowHeight))
	}
	if o.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(o.ExecPath))
	}

	// Additional flags from the config file's 'args' slice.
	for _, arg := range o.Args {
		name, value := parseFlag(arg)
		if name == "" {
			continue
		}
		opts = append(opts, chromedp.Flag(name, value))
	}
	return opts
}

// parseFlag splits "--name=value" into a chromedp flag. Flags without a value are booleans.
// chromedp adds the leading dashes itself.
func parseFlag(arg string) (string, any) {
	arg = strings.TrimLeft(strings.TrimSpace(arg), "-")
	name, value, ok := strings.Cut(arg, "=")
	if !ok {
		return name, true
	}
	return name, value
}
