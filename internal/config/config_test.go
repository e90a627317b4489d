package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"periph.io/x/conn/v3/physic"

	"github.com/cjeanneret/StaGo/internal/hw/adc"
	"github.com/cjeanneret/StaGo/internal/hw/encoder"
	"github.com/cjeanneret/StaGo/internal/hw/motor"
	"github.com/cjeanneret/StaGo/internal/hw/pca9685"
	"github.com/cjeanneret/StaGo/internal/hw/seesaw"
)

// ---------- ValidateConfigPath ----------

func TestValidateConfigPath_Valid(t *testing.T) {
	// Create a real configs/ directory so filepath.Abs resolves correctly.
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "default.yaml")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := ValidateConfigPath(path); err != nil {
		t.Errorf("expected valid path, got error: %v", err)
	}
}

func TestValidateConfigPath_PathTraversal(t *testing.T) {
	cases := []string{
		"../../etc/passwd",
		"configs/../../../etc/shadow",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for traversal path %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_WrongExtension(t *testing.T) {
	cases := []string{
		"configs/default.json",
		"configs/default.yml",
		"configs/default.txt",
		"configs/default",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for extension in %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_NotInConfigsDir(t *testing.T) {
	cases := []string{
		"other/default.yaml",
		"default.yaml",
		"/tmp/default.yaml",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for path outside configs/ %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_EmptyPath(t *testing.T) {
	if err := ValidateConfigPath(""); err == nil {
		t.Error("expected error for empty path, got nil")
	}
}

func TestValidateConfigPath_VeryLongPath(t *testing.T) {
	long := "configs/" + strings.Repeat("a", 1000) + ".yaml"
	// Should not panic; error or success is OS-dependent, but must not crash.
	_ = ValidateConfigPath(long)
}

func TestValidateConfigPath_SpecialChars(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name    string
		wantErr bool
	}{
		{"con fig.yaml", false},
		{"café.yaml", false},
	}
	for _, tc := range cases {
		path := filepath.Join(cfgDir, tc.name)
		err := ValidateConfigPath(path)
		if tc.wantErr && err == nil {
			t.Errorf("expected error for %q, got nil", tc.name)
		}
		if !tc.wantErr && err != nil {
			t.Errorf("unexpected error for %q: %v", tc.name, err)
		}
	}
}

func TestValidateConfigPath_DoubleTraversal(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	// Try to escape via ../../configs/ok.yaml; filepath.Clean resolves this
	// and the parent must still be "configs".
	path := filepath.Join(cfgDir, "../../configs/ok.yaml")
	err := ValidateConfigPath(path)
	// After Clean the parent may or may not be "configs" depending on resolution.
	// The important thing is it either succeeds with a valid parent or fails.
	_ = err
}

// ---------- Load ----------

// writeConfig creates a temporary configs/ dir with the given YAML content and returns the path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "test.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validYAML = `
hardware:
  i2c_bus: "1"
  gamepad_addr: 80
  adc_addr: 72
  mux_pins: [5, 6, 13]
  mux_base: 2
  pwm:
    backend: pca9685
    frequency_hz: 1000
motion:
  variant: encoder
  tick_ms: 20
  presets:
    - button: Y
      speed: 0.3
    - button: A
      speed: 0.9
  axes:
    - {name: Y, motor: 2, channel: 2, stick: x, group: xy, min: 0, max: 30000}
    - {name: X, motor: 3, channel: 3, stick: y, group: xy, min: 0, max: 30000}
    - {name: Z, motor: 1, channel: 1, stick: y, group: z, min: 0, max: 18000}
homing:
  timeout_ms: 20000
light:
  mode: momentary
monitor:
  port: 8080
defaults:
  debug_level: 2
  mock_hw: true
`

func TestLoad_ValidFullConfig(t *testing.T) {
	path := writeConfig(t, validYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Hardware.GamepadAddr != 0x50 {
		t.Errorf("gamepad_addr = %#x, want 0x50", cfg.Hardware.GamepadAddr)
	}
	if cfg.Hardware.MuxPins != [3]int{5, 6, 13} {
		t.Errorf("mux_pins = %v, want [5 6 13]", cfg.Hardware.MuxPins)
	}
	if cfg.Hardware.PWM.Backend != PWMPCA9685 {
		t.Errorf("pwm.backend = %q, want pca9685", cfg.Hardware.PWM.Backend)
	}
	if cfg.Tick() != 20*time.Millisecond {
		t.Errorf("Tick() = %v, want 20ms", cfg.Tick())
	}
	if len(cfg.Motion.Presets) != 2 || cfg.Motion.Presets[1].Speed != 0.9 {
		t.Errorf("presets = %+v, want the two configured ones", cfg.Motion.Presets)
	}
	if cfg.Motion.Axes[2].Max != 18000 {
		t.Errorf("Z max = %d, want 18000", cfg.Motion.Axes[2].Max)
	}
	if cfg.Homing.Timeout() != 20*time.Second {
		t.Errorf("homing timeout = %v, want 20s", cfg.Homing.Timeout())
	}
	if cfg.Light.Mode != LightMomentary {
		t.Errorf("light.mode = %q, want momentary", cfg.Light.Mode)
	}
	if cfg.Monitor.Port != 8080 {
		t.Errorf("monitor.port = %d, want 8080", cfg.Monitor.Port)
	}
	if !cfg.Defaults.MockHW || cfg.Defaults.DebugLevel != 2 {
		t.Errorf("defaults = %+v", cfg.Defaults)
	}
}

func TestLoad_MissingVariant(t *testing.T) {
	yaml := `
defaults:
  mock_hw: true
`
	path := writeConfig(t, yaml)
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for missing motion.variant, got nil")
	}
}

func TestLoad_UnknownVariant(t *testing.T) {
	path := writeConfig(t, "motion:\n  variant: pid\n")
	if _, err := Load(path); err == nil {
		t.Error("expected error for unknown variant, got nil")
	}
}

func TestLoad_EncoderDefaults(t *testing.T) {
	path := writeConfig(t, "motion:\n  variant: encoder\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Tick() != 10*time.Millisecond {
		t.Errorf("Tick() = %v, want 10ms", cfg.Tick())
	}
	if cfg.Motion.JoyHigh != 675 || cfg.Motion.JoyLow != 375 || cfg.Motion.Deadband != 2 {
		t.Errorf("joystick thresholds = %d/%d/%d, want 675/375/2",
			cfg.Motion.JoyHigh, cfg.Motion.JoyLow, cfg.Motion.Deadband)
	}
	if cfg.Motion.CurrentThreshold != 0.425 {
		t.Errorf("current_threshold = %v, want 0.425", cfg.Motion.CurrentThreshold)
	}
	wantSpeeds := map[string]float64{"Y": 0.275, "X": 0.625, "A": 1.0}
	if len(cfg.Motion.Presets) != len(wantSpeeds) {
		t.Fatalf("presets = %+v", cfg.Motion.Presets)
	}
	for _, p := range cfg.Motion.Presets {
		if wantSpeeds[p.Button] != p.Speed {
			t.Errorf("preset %s speed = %v, want %v", p.Button, p.Speed, wantSpeeds[p.Button])
		}
	}
	if !cfg.HomingEnabled() || !cfg.LightEnabled() {
		t.Error("encoder variant should home and drive the light by default")
	}
	if cfg.Homing.SpinUp() != 750*time.Millisecond || cfg.Homing.Poll() != 100*time.Millisecond ||
		cfg.Homing.Settle() != 500*time.Millisecond || cfg.Homing.BackOff() != 875*time.Millisecond {
		t.Errorf("homing timing = %+v", cfg.Homing)
	}
	if cfg.Homing.Threshold != 0.175 || cfg.Homing.Timeout() != 0 {
		t.Errorf("homing threshold/timeout = %v/%v, want 0.175/0", cfg.Homing.Threshold, cfg.Homing.Timeout())
	}
	if cfg.Light.Button != "B" || cfg.Light.Motor != 0 || cfg.Light.Throttle != 0.5 || cfg.Light.Mode != LightToggle {
		t.Errorf("light = %+v", cfg.Light)
	}
	if cfg.Hardware.PWM.FrequencyHz != 25000 || cfg.Hardware.PWM.Decay != "slow" {
		t.Errorf("pwm = %+v", cfg.Hardware.PWM)
	}
	if len(cfg.Motion.Axes) != 3 || cfg.Motion.Axes[0].Name != "Y" {
		t.Errorf("axes = %+v", cfg.Motion.Axes)
	}
}

func TestLoad_LatchingDefaults(t *testing.T) {
	path := writeConfig(t, "motion:\n  variant: latching\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Tick() != 50*time.Millisecond {
		t.Errorf("Tick() = %v, want 50ms", cfg.Tick())
	}
	if cfg.HomingEnabled() || cfg.LightEnabled() {
		t.Error("latching variant has no homing and no light by default")
	}
	if len(cfg.Motion.Presets) != 4 {
		t.Fatalf("presets = %d, want 4 tiers", len(cfg.Motion.Presets))
	}
	y := cfg.Motion.Presets[0]
	if y.Button != "Y" || y.Speed != 1.0 || y.Thresholds["X"] != 0.1125 || y.Thresholds["Y"] != 0.1675 || y.Thresholds["Z"] != 0.1425 {
		t.Errorf("Y tier = %+v", y)
	}
}

func TestLoad_LightButtonConflictsWithTier(t *testing.T) {
	yaml := `
motion:
  variant: latching
light:
  enabled: true
`
	path := writeConfig(t, yaml)
	if _, err := Load(path); err == nil {
		t.Error("expected error: B is both a tier and the light button")
	}
}

func TestLoad_LightMotorConflictsWithAxis(t *testing.T) {
	yaml := `
motion:
  variant: encoder
light:
  motor: 2
`
	path := writeConfig(t, yaml)
	if _, err := Load(path); err == nil {
		t.Error("expected error: light on the Y axis motor")
	}
}

func TestLoad_InvalidAxes(t *testing.T) {
	cases := map[string]string{
		"bad motor":    "{name: Y, motor: 4, channel: 2, stick: x, group: xy, max: 10}",
		"bad channel":  "{name: Y, motor: 2, channel: -1, stick: x, group: xy, max: 10}",
		"bad stick":    "{name: Y, motor: 2, channel: 2, stick: z, group: xy, max: 10}",
		"bad group":    "{name: Y, motor: 2, channel: 2, stick: x, group: all, max: 10}",
		"empty bounds": "{name: Y, motor: 2, channel: 2, stick: x, group: xy, min: 10, max: 10}",
		"missing name": "{motor: 2, channel: 2, stick: x, group: xy, max: 10}",
	}
	for name, axis := range cases {
		t.Run(name, func(t *testing.T) {
			yaml := "motion:\n  variant: encoder\n  axes:\n    - " + axis + "\nhoming:\n  enabled: false\n"
			path := writeConfig(t, yaml)
			if _, err := Load(path); err == nil {
				t.Errorf("expected error for %s", name)
			}
		})
	}
}

func TestLoad_DuplicateMotor(t *testing.T) {
	yaml := `
motion:
  variant: encoder
  axes:
    - {name: Y, motor: 2, channel: 2, stick: x, group: xy, max: 10}
    - {name: X, motor: 2, channel: 3, stick: y, group: xy, max: 10}
homing:
  enabled: false
`
	path := writeConfig(t, yaml)
	if _, err := Load(path); err == nil {
		t.Error("expected error for two axes on one motor")
	}
}

func TestLoad_PresetSpeedOutOfRange(t *testing.T) {
	for _, speed := range []float64{0, -0.5, 1.5} {
		yaml := "motion:\n  variant: encoder\n  presets:\n    - button: Y\n      speed: " + formatFloat(speed) + "\n"
		path := writeConfig(t, yaml)
		if _, err := Load(path); err == nil {
			t.Errorf("expected error for speed %v", speed)
		}
	}
}

func TestLoad_PresetOnReservedButton(t *testing.T) {
	yaml := "motion:\n  variant: encoder\n  presets:\n    - button: Start\n      speed: 0.5\n"
	path := writeConfig(t, yaml)
	if _, err := Load(path); err == nil {
		t.Error("expected error: Start toggles the axis group")
	}
}

func TestLoad_LatchingTierMissingThreshold(t *testing.T) {
	yaml := `
motion:
  variant: latching
  presets:
    - button: Y
      speed: 1.0
      thresholds: {X: 0.1, Y: 0.1}
`
	path := writeConfig(t, yaml)
	if _, err := Load(path); err == nil {
		t.Error("expected error for tier without a Z threshold")
	}
}

func TestLoad_HomingUnknownAxis(t *testing.T) {
	yaml := `
motion:
  variant: encoder
homing:
  order: [Z, W]
`
	path := writeConfig(t, yaml)
	if _, err := Load(path); err == nil {
		t.Error("expected error for unknown homing axis")
	}
}

func TestLoad_JoystickThresholdsInverted(t *testing.T) {
	yaml := `
motion:
  variant: encoder
  joy_high: 300
  joy_low: 700
`
	path := writeConfig(t, yaml)
	if _, err := Load(path); err == nil {
		t.Error("expected error for joy_low above joy_high")
	}
}

func TestLoad_FileTooLarge(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "big.yaml")
	data := make([]byte, MaxConfigFileBytes+1)
	for i := range data {
		data[i] = '#'
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for oversized config file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "{{{{invalid yaml!!!!")
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for invalid YAML, got nil")
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	path := writeConfig(t, "")
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for empty config (motion.variant missing), got nil")
	}
}

func TestLoad_UnknownFields(t *testing.T) {
	yaml := `
motion:
  variant: encoder
unknown_section:
  foo: bar
`
	path := writeConfig(t, yaml)
	_, err := Load(path)
	if err != nil {
		t.Errorf("unknown fields should be ignored, got error: %v", err)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "nonexistent.yaml")
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for nonexistent file, got nil")
	}
}

func TestLoad_RepoDefaultConfig(t *testing.T) {
	chdir(t, filepath.Join("..", ".."))
	cfg, err := Load(filepath.Join("configs", "default.yaml"))
	if err != nil {
		t.Fatalf("configs/default.yaml: %v", err)
	}
	if cfg.Motion.Variant != VariantEncoder {
		t.Errorf("variant = %q, want encoder", cfg.Motion.Variant)
	}
	if !cfg.Defaults.MockHW {
		t.Error("shipped config should default to simulated hardware")
	}
}

func TestLoad_RepoDefaultBoundsCountSingleEdges(t *testing.T) {
	chdir(t, filepath.Join("..", ".."))
	cfg, err := Load(filepath.Join("configs", "default.yaml"))
	if err != nil {
		t.Fatalf("configs/default.yaml: %v", err)
	}
	if cfg.Hardware.Encoders.Divisor != 1 {
		t.Errorf("encoders.divisor = %d, want 1", cfg.Hardware.Encoders.Divisor)
	}

	// One edge per quadrature transition, positive direction.
	edges := [][2]bool{{false, true}, {true, true}, {true, false}, {false, false}}
	for _, ax := range cfg.Motion.Axes {
		q := encoder.NewQuadrature(cfg.Hardware.Encoders.Divisor, false, false)
		for i := int64(0); i < ax.Max; i++ {
			e := edges[i%int64(len(edges))]
			q.Update(e[0], e[1])
		}
		if got := q.Position(); got != ax.Max {
			t.Errorf("axis %s: position after %d edges = %d, want %d", ax.Name, ax.Max, got, ax.Max)
		}
	}
}

func TestApplyDefaults_HardwareMatchesDrivers(t *testing.T) {
	cfg := &Config{Motion: MotionConfig{Variant: VariantEncoder}}
	cfg.ApplyDefaults()
	h := cfg.Hardware
	if h.GamepadAddr != int(seesaw.DefaultAddr) || h.ADCAddr != int(adc.DefaultAddr) {
		t.Errorf("i2c addresses = %#x/%#x, want %#x/%#x", h.GamepadAddr, h.ADCAddr, seesaw.DefaultAddr, adc.DefaultAddr)
	}
	if h.PWM.Address != pca9685.DefaultAddr {
		t.Errorf("pwm.address = %#x, want %#x", h.PWM.Address, pca9685.DefaultAddr)
	}
	if physic.Frequency(h.PWM.FrequencyHz)*physic.Hertz != motor.DefaultFrequency {
		t.Errorf("pwm.frequency_hz = %d, want %s", h.PWM.FrequencyHz, motor.DefaultFrequency)
	}
	if h.Encoders.Divisor != encoder.DefaultDivisor {
		t.Errorf("encoders.divisor = %d, want %d", h.Encoders.Divisor, encoder.DefaultDivisor)
	}
}

// ---------- Helper methods ----------

func TestHomingConfig_Durations(t *testing.T) {
	h := HomingConfig{SpinUpMs: 1, PollMs: 2, SettleMs: 3, BackOffMs: 4, TimeoutMs: 5}
	got := []time.Duration{h.SpinUp(), h.Poll(), h.Settle(), h.BackOff(), h.Timeout()}
	for i, d := range got {
		if want := time.Duration(i+1) * time.Millisecond; d != want {
			t.Errorf("duration %d = %v, want %v", i, d, want)
		}
	}
}

func TestConfig_EnabledFlagsNil(t *testing.T) {
	cfg := &Config{}
	if cfg.HomingEnabled() || cfg.LightEnabled() {
		t.Error("unset flags should read as disabled")
	}
}

// formatFloat is a test helper for embedding floats into YAML strings.
func formatFloat(f float64) string {
	return fmt.Sprintf("%g", f)
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}
