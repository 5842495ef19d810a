package main

import (
	"context"
	"errors"
	"runtime"
	"time"

	"github.com/goKeySwap/config"
	"github.com/goKeySwap/logging"
	"github.com/goKeySwap/tap"
)

type controlSignal int

const (
	sigShutdown controlSignal = iota
	sigReload
	sigToggle
)

// daemon owns the lifecycle from the host side: it reacts to signals and
// config changes and retries a failed start when asked to.
type daemon struct {
	opts   *rootOptions
	loader *config.Loader
	log    *logging.Logger
	tap    *tap.Lifecycle

	// device settings the current hook was built with
	hookCfg tap.HookConfig
	newHook func(tap.HookConfig, tap.Logger) tap.Hook

	// whether the user wants remapping on; the tap may still be stopped
	// when starting failed
	wanted bool
}

func runDaemon(ctx context.Context, opts *rootOptions) error {
	loader, err := config.NewLoader(opts.configPath)
	if err != nil {
		return err
	}
	cfg, created, err := loader.Load()
	if err != nil {
		return err
	}

	logger, err := newLogger(opts, cfg, loader.Path())
	if err != nil {
		return err
	}
	defer logger.Close()

	logger.Info("goKeySwap keyboard remapper", "os", runtime.GOOS)
	if created {
		logger.Info("default configuration created", "path", loader.Path())
	}
	logger.Info("configuration loaded", "path", loader.Path())
	if p := logger.Path(); p != "" {
		logger.Debug("log file", "path", p)
	}
	logMappings(logger, cfg)

	hook := tap.NewSystemHook(cfg.HookConfig(), logger)
	lc, err := tap.Open(cfg.Source(), hook, tap.WithLogger(logger))
	d := &daemon{
		opts:    opts,
		loader:  loader,
		log:     logger,
		tap:     lc,
		hookCfg: cfg.HookConfig(),
		newHook: tap.NewSystemHook,
		wanted:  cfg.Enabled,
	}
	// the hook must be released before the process exits
	defer d.shutdown()
	if err != nil {
		d.reportStartError(err)
	}

	return d.loop(ctx)
}

func (d *daemon) loop(ctx context.Context) error {
	control := make(chan controlSignal, 4)
	stopSignals := notifySignals(control)
	defer stopSignals()

	// the watcher only signals; the file is read here, on the loop
	changed := make(chan struct{}, 1)
	if !d.opts.noWatch {
		stopWatch, err := d.loader.Watch(func(err error) {
			if err != nil {
				d.log.Error("config watcher", "err", err)
				return
			}
			select {
			case changed <- struct{}{}:
			default:
			}
		})
		if err != nil {
			d.log.Error("config file will not be watched", "err", err)
		} else {
			defer stopWatch()
		}
	}

	var retry <-chan time.Time
	if d.opts.retry > 0 {
		ticker := time.NewTicker(d.opts.retry)
		defer ticker.Stop()
		retry = ticker.C
	}

	d.log.Info("application ready", "running", d.tap.IsRunning())
	for {
		select {
		case <-ctx.Done():
			return nil
		case sig := <-control:
			switch sig {
			case sigShutdown:
				d.log.Info("shutting down")
				return nil
			case sigReload:
				d.reload()
			case sigToggle:
				d.toggle()
			}
		case <-changed:
			d.log.Info("configuration file changed")
			d.reload()
		case <-retry:
			if d.wanted && !d.tap.IsRunning() {
				if err := d.tap.Start(); err != nil {
					d.log.Debug("retry failed", "err", err)
				}
			}
		}
	}
}

func (d *daemon) reload() {
	cfg, err := d.loader.Reload()
	if err != nil {
		d.log.Error("failed to reload configuration", "err", err)
		return
	}
	d.apply(cfg)
}

// apply makes cfg the active configuration. The enabled flag only matters at
// startup; a running tap stays running and a stopped one stays stopped.
// Changed device settings replace the hook before the tap restarts.
func (d *daemon) apply(cfg config.Config) {
	level := cfg.Log.Level
	if d.opts.logLevel != "" {
		level = d.opts.logLevel
	}
	if err := d.log.SetLevelString(level); err != nil {
		d.log.Error("invalid log level", "level", level, "err", err)
	}
	logMappings(d.log, cfg)
	if hc := cfg.HookConfig(); !hc.Equal(d.hookCfg) {
		d.log.Info("device settings changed", "uinput", hc.UinputPath, "names", hc.DeviceNames)
		d.tap.SetHook(d.newHook(hc, d.log))
		d.hookCfg = hc
	}
	if err := d.tap.Reload(cfg.Mappings()); err != nil {
		d.reportStartError(err)
		return
	}
	d.log.Info("configuration reloaded")
}

func (d *daemon) toggle() {
	if d.tap.IsRunning() {
		d.wanted = false
		d.tap.Stop()
		d.log.Info("mapping disabled by user")
		return
	}
	d.wanted = true
	d.log.Info("attempting to enable mapping")
	if err := d.tap.Start(); err != nil {
		d.reportStartError(err)
		return
	}
	d.log.Info("mapping enabled by user")
}

func (d *daemon) reportStartError(err error) {
	switch {
	case errors.Is(err, tap.ErrPermissionDenied):
		d.log.Error("event tap needs permissions", "hint", permissionHint(), "err", err)
	case errors.Is(err, tap.ErrResourceCreation):
		d.log.Error("system refused to create the event tap", "err", err)
	default:
		d.log.Error("failed to start event monitoring", "err", err)
	}
	if d.opts.retry > 0 {
		d.log.Info("will retry", "every", d.opts.retry)
	}
}

func (d *daemon) shutdown() {
	d.tap.Stop()
	st := d.tap.Filter().Stats()
	d.log.Info("application terminated", "seen", st.Seen, "remapped", st.Substituted, "failed", st.Failed)
}

func logMappings(log *logging.Logger, cfg config.Config) {
	named := cfg.Named()
	if len(named) == 0 {
		log.Info("no mappings configured")
		return
	}
	for _, m := range named {
		log.Info("mapping", "name", m.Name, "from", m.From, "to", m.To)
	}
}

func permissionHint() string {
	switch runtime.GOOS {
	case "darwin":
		return "grant Accessibility access in System Settings > Privacy & Security > Accessibility"
	case "linux":
		return "run as root or add the user to the input group and allow writes to /dev/uinput"
	default:
		return "this platform is not supported"
	}
}
