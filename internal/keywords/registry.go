// internal/keywords/registry.go
package keywords

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/xkilldash9x/kwdriver/internal/execution"
	"github.com/xkilldash9x/kwdriver/internal/fault"
	"github.com/xkilldash9x/kwdriver/internal/locate"
	"github.com/xkilldash9x/kwdriver/internal/retry"
	"github.com/xkilldash9x/kwdriver/internal/wait"
)

// Args are the named string arguments of a scripted step.
type Args map[string]string

// Required returns a non-empty argument or a validation error.
func (a Args) Required(name string) (string, error) {
	v := a[name]
	if err := fault.RequireNonEmpty(name, v); err != nil {
		return "", err
	}
	return v, nil
}

// Locator returns the required "locator" argument.
func (a Args) Locator() (locate.Locator, error) {
	v, err := a.Required("locator")
	return locate.Locator(v), err
}

// Int parses a required integer argument.
func (a Args) Int(name string) (int, error) {
	v, err := a.Required(name)
	if err != nil {
		return 0, err
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return 0, fault.Validation("argument %s: %q is not an integer", name, v)
	}
	return n, nil
}

// Bool parses an optional boolean argument.
func (a Args) Bool(name string, def bool) (bool, error) {
	v, ok := a[name]
	if !ok || v == "" {
		return def, nil
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return def, fault.Validation("argument %s: %q is not a boolean", name, v)
	}
	return b, nil
}

// WaitOptions reads the optional "timeout" and "interval" arguments. Plain numbers are
// seconds for the timeout and milliseconds for the interval; Go durations such as "1.5s"
// are accepted for both.
func (a Args) WaitOptions() ([]wait.Option, error) {
	var opts []wait.Option
	if v := a["timeout"]; v != "" {
		d, err := parseDuration(v, time.Second)
		if err != nil {
			return nil, fault.Validation("argument timeout: %v", err)
		}
		opts = append(opts, wait.Timeout(d))
	}
	if v := a["interval"]; v != "" {
		d, err := parseDuration(v, time.Millisecond)
		if err != nil {
			return nil, fault.Validation("argument interval: %v", err)
		}
		opts = append(opts, wait.Interval(d))
	}
	return opts, nil
}

func parseDuration(v string, unit time.Duration) (time.Duration, error) {
	if f, err := cast.ToFloat64E(v); err == nil {
		return time.Duration(f * float64(unit)), nil
	}
	return time.ParseDuration(v)
}

// Result is the uniform outcome of a registered keyword.
type Result struct {
	Succeeded bool
	Value     string
}

// Func runs one keyword.
type Func func(ctx context.Context, k *Keywords, ch execution.Channel, args Args) (Result, error)

// Definition describes a registered keyword.
type Definition struct {
	Name        string
	Description string
	Args        []string
	Run         Func
}

// Registry maps keyword names to definitions. Names are matched case-insensitively, with
// spaces and underscores treated as hyphens.
type Registry struct {
	defs map[string]Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

func normalize(name string) string {
	return strings.NewReplacer(" ", "-", "_", "-").Replace(strings.ToLower(strings.TrimSpace(name)))
}

// Register adds def. Registering a name twice is an error.
func (r *Registry) Register(def Definition) error {
	key := normalize(def.Name)
	if key == "" || def.Run == nil {
		return fmt.Errorf("keyword definition needs a name and a Run function")
	}
	if _, dup := r.defs[key]; dup {
		return fmt.Errorf("keyword %q already registered", key)
	}
	def.Name = key
	r.defs[key] = def
	return nil
}

// MustRegister is Register for package initialization.
func (r *Registry) MustRegister(defs ...Definition) *Registry {
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			panic(err)
		}
	}
	return r
}

// Lookup finds a keyword by name.
func (r *Registry) Lookup(name string) (Definition, bool) {
	def, ok := r.defs[normalize(name)]
	return def, ok
}

// Definitions returns every keyword sorted by name.
func (r *Registry) Definitions() []Definition {
	out := make([]Definition, 0, len(r.defs))
	for _, def := range r.defs {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Run executes the named keyword. Unknown names are validation errors.
func (r *Registry) Run(ctx context.Context, k *Keywords, name string, ch execution.Channel, args Args) (Result, error) {
	def, ok := r.Lookup(name)
	if !ok {
		return Result{}, fault.Validation("unknown keyword %q", name)
	}
	return def.Run(ctx, k, ch, args)
}

func boolResult(ok bool, err error) (Result, error) {
	return Result{Succeeded: ok}, err
}

func valueResult(out execution.Outcome[string], err error) (Result, error) {
	return Result{Succeeded: out.Succeeded, Value: out.Value}, err
}

// locatorStep adapts keywords taking a locator and wait options.
func locatorStep(fn func(ctx context.Context, k *Keywords, ch execution.Channel, loc locate.Locator, args Args, opts []wait.Option) (bool, error)) Func {
	return func(ctx context.Context, k *Keywords, ch execution.Channel, args Args) (Result, error) {
		loc, err := args.Locator()
		if err != nil {
			return Result{}, err
		}
		opts, err := args.WaitOptions()
		if err != nil {
			return Result{}, err
		}
		return boolResult(fn(ctx, k, ch, loc, args, opts))
	}
}

// withArg adapts a locator keyword that takes one more required string argument.
func withArg(name string, fn func(k *Keywords, ctx context.Context, ch execution.Channel, loc locate.Locator, v string, opts ...wait.Option) (bool, error)) Func {
	return locatorStep(func(ctx context.Context, k *Keywords, ch execution.Channel, loc locate.Locator, args Args, opts []wait.Option) (bool, error) {
		v, ok := args[name]
		if !ok {
			return false, fault.Validation("%s is required", name)
		}
		return fn(k, ctx, ch, loc, v, opts...)
	})
}

func simple(fn func(k *Keywords, ctx context.Context, ch execution.Channel, loc locate.Locator, opts ...wait.Option) (bool, error)) Func {
	return locatorStep(func(ctx context.Context, k *Keywords, ch execution.Channel, loc locate.Locator, _ Args, opts []wait.Option) (bool, error) {
		return fn(k, ctx, ch, loc, opts...)
	})
}

// Default returns a registry holding every built-in keyword.
func Default() *Registry {
	return NewRegistry().MustRegister(
		Definition{Name: "navigate", Description: "Load a URL in the current window.", Args: []string{"url"},
			Run: func(ctx context.Context, k *Keywords, ch execution.Channel, args Args) (Result, error) {
				return boolResult(k.Navigate(ctx, ch, args["url"]))
			}},
		Definition{Name: "back", Description: "Go back one page.",
			Run: func(ctx context.Context, k *Keywords, ch execution.Channel, _ Args) (Result, error) {
				return boolResult(k.Back(ctx, ch))
			}},
		Definition{Name: "refresh", Description: "Reload the current page.",
			Run: func(ctx context.Context, k *Keywords, ch execution.Channel, _ Args) (Result, error) {
				return boolResult(k.Refresh(ctx, ch))
			}},
		Definition{Name: "click", Description: "Click the first clickable match.", Args: []string{"locator", "timeout?"},
			Run: simple((*Keywords).Click)},
		Definition{Name: "click-with-retry", Description: "Re-acquire and click until it works.", Args: []string{"locator", "attempts?", "delay?", "timeout?"},
			Run: locatorStep(func(ctx context.Context, k *Keywords, ch execution.Channel, loc locate.Locator, args Args, opts []wait.Option) (bool, error) {
				policy, err := policyArgs(args, k.policy)
				if err != nil {
					return false, err
				}
				return k.ClickWithRetry(ctx, ch, loc, policy, opts...)
			})},
		Definition{Name: "click-each", Description: "Click every match in order.", Args: []string{"locator", "timeout?"},
			Run: simple((*Keywords).ClickEach)},
		Definition{Name: "type", Description: "Replace the content of a field.", Args: []string{"locator", "text", "timeout?"},
			Run: withArg("text", (*Keywords).Type)},
		Definition{Name: "clear", Description: "Empty a field.", Args: []string{"locator", "timeout?"},
			Run: simple((*Keywords).Clear)},
		Definition{Name: "select-by-text", Description: "Pick a select option by its text.", Args: []string{"locator", "text", "timeout?"},
			Run: withArg("text", (*Keywords).SelectByText)},
		Definition{Name: "check", Description: "Tick a checkbox.", Args: []string{"locator", "timeout?"},
			Run: locatorStep(func(ctx context.Context, k *Keywords, ch execution.Channel, loc locate.Locator, _ Args, opts []wait.Option) (bool, error) {
				return k.SetChecked(ctx, ch, loc, true, opts...)
			})},
		Definition{Name: "uncheck", Description: "Untick a checkbox.", Args: []string{"locator", "timeout?"},
			Run: locatorStep(func(ctx context.Context, k *Keywords, ch execution.Channel, loc locate.Locator, _ Args, opts []wait.Option) (bool, error) {
				return k.SetChecked(ctx, ch, loc, false, opts...)
			})},
		Definition{Name: "verify-visible", Description: "Check an element becomes visible.", Args: []string{"locator", "timeout?"},
			Run: simple((*Keywords).VerifyVisible)},
		Definition{Name: "verify-not-visible", Description: "Check no match is displayed.", Args: []string{"locator", "timeout?"},
			Run: simple((*Keywords).VerifyNotVisible)},
		Definition{Name: "verify-enabled", Description: "Check an element becomes enabled.", Args: []string{"locator", "timeout?"},
			Run: simple((*Keywords).VerifyEnabled)},
		Definition{Name: "verify-selected", Description: "Check an element becomes selected.", Args: []string{"locator", "timeout?"},
			Run: simple((*Keywords).VerifySelected)},
		Definition{Name: "verify-text", Description: "Check the text of an element.", Args: []string{"locator", "text", "timeout?"},
			Run: withArg("text", (*Keywords).VerifyText)},
		Definition{Name: "verify-text-contains", Description: "Check an element's text contains a string.", Args: []string{"locator", "text", "timeout?"},
			Run: withArg("text", (*Keywords).VerifyTextContains)},
		Definition{Name: "verify-value", Description: "Check the value of a form field.", Args: []string{"locator", "value", "timeout?"},
			Run: withArg("value", (*Keywords).VerifyValue)},
		Definition{Name: "verify-attribute", Description: "Check an attribute value.", Args: []string{"locator", "name", "value", "timeout?"},
			Run: locatorStep(func(ctx context.Context, k *Keywords, ch execution.Channel, loc locate.Locator, args Args, opts []wait.Option) (bool, error) {
				name, err := args.Required("name")
				if err != nil {
					return false, err
				}
				return k.VerifyAttribute(ctx, ch, loc, name, args["value"], opts...)
			})},
		Definition{Name: "verify-count", Description: "Check the number of matches.", Args: []string{"locator", "count", "timeout?"},
			Run: locatorStep(func(ctx context.Context, k *Keywords, ch execution.Channel, loc locate.Locator, args Args, opts []wait.Option) (bool, error) {
				n, err := args.Int("count")
				if err != nil {
					return false, err
				}
				return k.VerifyCount(ctx, ch, loc, n, opts...)
			})},
		Definition{Name: "verify-title", Description: "Check the page title.", Args: []string{"title", "timeout?"},
			Run: func(ctx context.Context, k *Keywords, ch execution.Channel, args Args) (Result, error) {
				opts, err := args.WaitOptions()
				if err != nil {
					return Result{}, err
				}
				return boolResult(k.VerifyTitle(ctx, ch, args["title"], opts...))
			}},
		Definition{Name: "verify-url-contains", Description: "Check the current URL.", Args: []string{"text", "timeout?"},
			Run: func(ctx context.Context, k *Keywords, ch execution.Channel, args Args) (Result, error) {
				opts, err := args.WaitOptions()
				if err != nil {
					return Result{}, err
				}
				return boolResult(k.VerifyURLContains(ctx, ch, args["text"], opts...))
			}},
		Definition{Name: "wait-for-visible", Description: "Wait until an element is visible.", Args: []string{"locator", "timeout?"},
			Run: locatorStep(func(ctx context.Context, k *Keywords, ch execution.Channel, loc locate.Locator, _ Args, opts []wait.Option) (bool, error) {
				return k.WaitFor(ctx, ch, loc, locate.Visible, opts...)
			})},
		Definition{Name: "wait-for-clickable", Description: "Wait until an element is visible and enabled.", Args: []string{"locator", "timeout?"},
			Run: locatorStep(func(ctx context.Context, k *Keywords, ch execution.Channel, loc locate.Locator, _ Args, opts []wait.Option) (bool, error) {
				return k.WaitFor(ctx, ch, loc, locate.Clickable, opts...)
			})},
		Definition{Name: "wait-for-not-visible", Description: "Wait until no match is displayed.", Args: []string{"locator", "timeout?"},
			Run: simple((*Keywords).VerifyNotVisible)},
		Definition{Name: "get-text", Description: "Read the text of an element.", Args: []string{"locator", "timeout?"},
			Run: func(ctx context.Context, k *Keywords, ch execution.Channel, args Args) (Result, error) {
				loc, opts, err := locatorAndOptions(args)
				if err != nil {
					return Result{}, err
				}
				return valueResult(k.GetText(ctx, ch, loc, opts...))
			}},
		Definition{Name: "get-attribute", Description: "Read an attribute of an element.", Args: []string{"locator", "name", "timeout?"},
			Run: func(ctx context.Context, k *Keywords, ch execution.Channel, args Args) (Result, error) {
				loc, opts, err := locatorAndOptions(args)
				if err != nil {
					return Result{}, err
				}
				return valueResult(k.GetAttribute(ctx, ch, loc, args["name"], opts...))
			}},
		Definition{Name: "switch-frame", Description: "Enter a frame.", Args: []string{"locator", "timeout?"},
			Run: simple((*Keywords).SwitchFrame)},
		Definition{Name: "switch-parent-frame", Description: "Leave the innermost frame.",
			Run: func(ctx context.Context, k *Keywords, ch execution.Channel, _ Args) (Result, error) {
				return boolResult(k.SwitchParentFrame(ctx, ch))
			}},
		Definition{Name: "switch-default-content", Description: "Return to the top-level document.",
			Run: func(ctx context.Context, k *Keywords, ch execution.Channel, _ Args) (Result, error) {
				return boolResult(k.SwitchDefaultContent(ctx, ch))
			}},
		Definition{Name: "switch-window", Description: "Switch window by title or index.", Args: []string{"title|index", "timeout?"},
			Run: func(ctx context.Context, k *Keywords, ch execution.Channel, args Args) (Result, error) {
				opts, err := args.WaitOptions()
				if err != nil {
					return Result{}, err
				}
				if _, ok := args["index"]; ok {
					i, err := args.Int("index")
					if err != nil {
						return Result{}, err
					}
					return boolResult(k.SwitchWindowByIndex(ctx, ch, i, opts...))
				}
				return boolResult(k.SwitchWindowByTitle(ctx, ch, args["title"], opts...))
			}},
		Definition{Name: "accept-alert", Description: "Accept the open dialog.", Args: []string{"timeout?"},
			Run: alertStep((*Keywords).AcceptAlert)},
		Definition{Name: "dismiss-alert", Description: "Dismiss the open dialog.", Args: []string{"timeout?"},
			Run: alertStep((*Keywords).DismissAlert)},
		Definition{Name: "get-alert-text", Description: "Read the open dialog's message.", Args: []string{"timeout?"},
			Run: func(ctx context.Context, k *Keywords, ch execution.Channel, args Args) (Result, error) {
				opts, err := args.WaitOptions()
				if err != nil {
					return Result{}, err
				}
				return valueResult(k.AlertText(ctx, ch, opts...))
			}},
		Definition{Name: "execute-script", Description: "Run JavaScript in the current context.", Args: []string{"script"},
			Run: func(ctx context.Context, k *Keywords, ch execution.Channel, args Args) (Result, error) {
				out, err := k.ExecuteScript(ctx, ch, args["script"])
				res := Result{Succeeded: out.Succeeded}
				if out.Value != nil {
					res.Value = cast.ToString(out.Value)
				}
				return res, err
			}},
	)
}

func locatorAndOptions(args Args) (locate.Locator, []wait.Option, error) {
	loc, err := args.Locator()
	if err != nil {
		return "", nil, err
	}
	opts, err := args.WaitOptions()
	return loc, opts, err
}

func alertStep(fn func(k *Keywords, ctx context.Context, ch execution.Channel, opts ...wait.Option) (bool, error)) Func {
	return func(ctx context.Context, k *Keywords, ch execution.Channel, args Args) (Result, error) {
		opts, err := args.WaitOptions()
		if err != nil {
			return Result{}, err
		}
		return boolResult(fn(k, ctx, ch, opts...))
	}
}

func policyArgs(args Args, base retry.Policy) (retry.Policy, error) {
	p := base
	if _, ok := args["attempts"]; ok {
		n, err := args.Int("attempts")
		if err != nil {
			return p, err
		}
		p.MaxAttempts = n
	}
	if v := args["delay"]; v != "" {
		d, err := parseDuration(v, time.Millisecond)
		if err != nil {
			return p, fault.Validation("argument delay: %v", err)
		}
		p.BaseDelay = d
	}
	return p, nil
}
