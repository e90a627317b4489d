package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"

	"github.com/cjeanneret/StaGo/internal/config"
	"github.com/cjeanneret/StaGo/internal/debug"
	"github.com/cjeanneret/StaGo/internal/hw/board"
	"github.com/cjeanneret/StaGo/internal/logic/control"
	"github.com/cjeanneret/StaGo/internal/web"
)

func main() {
	// CLI flags
	monitor := &portFlag{defaultPort: 8080}
	flag.Var(monitor, "monitor", "serve the status monitor on port; -monitor= for default 8080, -monitor 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	variant := flag.String("variant", "", "override motion variant (encoder or latching)")
	mock := &optionalBool{}
	flag.Var(mock, "mock", "use simulated hardware (-mock=false forces the real board)")
	debugLevel := flag.Int("debug", -1, "override debug level (0-4)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	if err := applyOverrides(cfg, overrides{
		variant: *variant,
		mock:    mock,
		debug:   *debugLevel,
		monitor: monitor.port(),
	}); err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}

	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Variant", cfg.Motion.Variant)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	debug.Value("Mock hardware", cfg.Defaults.MockHW)

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("stago: %v", err)
	}
}

// run opens the board and drives the stage until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config) error {
	debug.Step(1, "Opening hardware")
	b, err := board.Open(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := b.Close(); closeErr != nil {
			log.Printf("closing board failed: %v", closeErr)
		}
	}()

	debug.Step(2, "Building control loop")
	debug.PrintStruct("Motion config", cfg.Motion)
	loop, err := control.New(cfg, b.Hardware())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	// The monitor only exits once ctx is cancelled.
	defer func() {
		cancel()
		wg.Wait()
	}()
	if port := cfg.Monitor.Port; port > 0 {
		debug.Step(3, "Starting status monitor")
		broadcaster := web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))
		srv, err := web.NewServer(fmt.Sprintf(":%d", port), broadcaster, func() any { return loop.Snapshot() })
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Run(ctx); err != nil {
				log.Printf("status monitor: %v", err)
			}
		}()
	}

	debug.Summary("StaGo running")
	return loop.Run(ctx)
}

type overrides struct {
	variant string
	mock    *optionalBool
	debug   int // -1 = keep config
	monitor int // 0 = keep config
}

// applyOverrides applies CLI flags to cfg and validates the result. A
// variant override drops the settings whose defaults depend on the variant
// (tick, presets, homing and light enable) so they are re-defaulted.
func applyOverrides(cfg *config.Config, o overrides) error {
	if o.variant != "" && o.variant != cfg.Motion.Variant {
		cfg.Motion.Variant = o.variant
		cfg.Motion.TickMs = 0
		cfg.Motion.Presets = nil
		cfg.Homing.Enabled = nil
		cfg.Light.Enabled = nil
	}
	if o.mock != nil && o.mock.set {
		cfg.Defaults.MockHW = o.mock.val
	}
	if o.debug >= 0 {
		cfg.Defaults.DebugLevel = o.debug
	}
	if o.monitor > 0 {
		cfg.Monitor.Port = o.monitor
	}
	cfg.ApplyDefaults()
	return cfg.Validate()
}

// portFlag implements flag.Value for -monitor: 0 = disabled, -monitor= or -monitor 8080 → 8080, -monitor 8980 → 8980.
type portFlag struct {
	val         int
	defaultPort int
}

func (p *portFlag) String() string {
	if p.val == 0 {
		return "0"
	}
	return strconv.Itoa(p.val)
}

func (p *portFlag) Set(s string) error {
	if s == "" {
		p.val = p.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	p.val = v
	return nil
}

func (p *portFlag) port() int { return p.val }

// optionalBool is a boolean flag that remembers whether it was given.
type optionalBool struct {
	val, set bool
}

func (b *optionalBool) String() string {
	if b == nil || !b.set {
		return ""
	}
	return strconv.FormatBool(b.val)
}

func (b *optionalBool) Set(s string) error {
	v, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	b.val, b.set = v, true
	return nil
}

func (b *optionalBool) IsBoolFlag() bool { return true }
