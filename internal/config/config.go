package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/physic"

	"github.com/cjeanneret/StaGo/internal/hw/adc"
	"github.com/cjeanneret/StaGo/internal/hw/encoder"
	"github.com/cjeanneret/StaGo/internal/hw/motor"
	"github.com/cjeanneret/StaGo/internal/hw/pca9685"
	"github.com/cjeanneret/StaGo/internal/hw/seesaw"
)

// MaxConfigFileBytes bounds the size of a configuration file.
const MaxConfigFileBytes = 64 * 1024

// Motion control variants.
const (
	VariantEncoder  = "encoder"  // encoder-bounded axes, homing, light toggle
	VariantLatching = "latching" // current-latching axes, four speed tiers
)

// Accessory light modes.
const (
	LightToggle    = "toggle"
	LightMomentary = "momentary"
)

// PWM backends.
const (
	PWMPeriph  = "periph"
	PWMPCA9685 = "pca9685"
)

// Axis groups selected by Start.
const (
	GroupXY = "xy"
	GroupZ  = "z"
)

// NumMotors is the number of motor outputs on the board (A-D).
const NumMotors = 4

// PWMConfig describes the motor half-bridge outputs.
type PWMConfig struct {
	Backend     string      `yaml:"backend"`      // "periph" or "pca9685"
	FrequencyHz int         `yaml:"frequency_hz"` // carrier, default 25000
	Decay       string      `yaml:"decay"`        // "slow" (default) or "fast"
	Pins        [][2]string `yaml:"pins"`         // periph: [positive, negative] pin names per motor A-D
	Device      string      `yaml:"device"`       // pca9685: i2c-dev file, e.g. /dev/i2c-1
	Address     int         `yaml:"address"`      // pca9685: bus address (default 0x40)
	Channels    [][2]int    `yaml:"channels"`     // pca9685: [positive, negative] channel per motor A-D
}

// EncoderConfig describes the quadrature encoder lines.
type EncoderConfig struct {
	Chip    string   `yaml:"chip"`    // GPIO character device, e.g. gpiochip0
	Divisor int      `yaml:"divisor"` // edges per count, default 1
	Lines   [][2]int `yaml:"lines"`   // [A, B] line offsets per motor A-D
}

// HardwareConfig describes the board wiring.
type HardwareConfig struct {
	I2CBus      string        `yaml:"i2c_bus"`      // periph.io bus name, "" for the first bus
	GamepadAddr int           `yaml:"gamepad_addr"` // seesaw gamepad, default 0x50
	ADCAddr     int           `yaml:"adc_addr"`     // ADS1115, default 0x48
	ADCChannel  int           `yaml:"adc_channel"`  // ADS1115 input wired to the mux output
	MuxPins     [3]int        `yaml:"mux_pins"`     // BCM pins of mux address bit0..bit2
	MuxBase     int           `yaml:"mux_base"`     // mux address of current channel 0
	PWM         PWMConfig     `yaml:"pwm"`
	Encoders    EncoderConfig `yaml:"encoders"`
}

// PresetConfig binds a button to a speed (encoder variant) or a speed tier
// with per-axis current thresholds (latching variant).
type PresetConfig struct {
	Button     string             `yaml:"button"`
	Speed      float64            `yaml:"speed"`
	Thresholds map[string]float64 `yaml:"thresholds,omitempty"` // latching: axis name -> amperes
}

// AxisConfig describes one driven axis.
type AxisConfig struct {
	Name    string `yaml:"name"`
	Motor   int    `yaml:"motor"`   // 0-3 (A-D)
	Channel int    `yaml:"channel"` // current-sense channel
	Stick   string `yaml:"stick"`   // joystick coordinate: x or y
	Group   string `yaml:"group"`   // xy or z
	Min     int64  `yaml:"min"`     // encoder bounds, counts from home
	Max     int64  `yaml:"max"`
}

// MotionConfig holds the control policy parameters.
type MotionConfig struct {
	Variant          string         `yaml:"variant"`
	TickMs           int            `yaml:"tick_ms"`           // control period; default 10 (encoder) or 50 (latching)
	JoyHigh          int            `yaml:"joy_high"`          // positive deflection above this
	JoyLow           int            `yaml:"joy_low"`           // negative deflection below this
	Deadband         int            `yaml:"deadband"`          // joystick jitter filter, counts
	CurrentThreshold float64        `yaml:"current_threshold"` // encoder variant, amperes
	Presets          []PresetConfig `yaml:"presets"`
	Axes             []AxisConfig   `yaml:"axes"`
}

// HomingConfig holds the homing sequence parameters.
type HomingConfig struct {
	Enabled   *bool    `yaml:"enabled,omitempty"` // default: true for the encoder variant
	Order     []string `yaml:"order"`             // axis names, default Z, Y, X
	SpinUpMs  int      `yaml:"spin_up_ms"`
	PollMs    int      `yaml:"poll_ms"`
	SettleMs  int      `yaml:"settle_ms"`
	BackOffMs int      `yaml:"back_off_ms"`
	Threshold float64  `yaml:"threshold"`  // hard-stop current, amperes
	TimeoutMs int      `yaml:"timeout_ms"` // 0 = wait forever
}

// LightConfig describes the accessory output on a spare motor channel.
type LightConfig struct {
	Enabled  *bool   `yaml:"enabled,omitempty"` // default: true for the encoder variant
	Button   string  `yaml:"button"`
	Motor    int     `yaml:"motor"`
	Throttle float64 `yaml:"throttle"`
	Mode     string  `yaml:"mode"` // toggle or momentary
}

// MonitorConfig configures the read-only status page.
type MonitorConfig struct {
	Port int `yaml:"port"` // 0 = disabled
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int  `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockHW     bool `yaml:"mock_hw"`     // simulated hardware (true=dev/test, false=real board)
}

// Config aggregates all application configuration.
type Config struct {
	Hardware HardwareConfig `yaml:"hardware"`
	Motion   MotionConfig   `yaml:"motion"`
	Homing   HomingConfig   `yaml:"homing"`
	Light    LightConfig    `yaml:"light"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// ValidateConfigPath rejects paths that are not a .yaml file directly inside
// a directory named configs.
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if strings.Contains(filepath.ToSlash(path), "..") {
		return fmt.Errorf("config path %q must not contain '..'", path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if filepath.Ext(abs) != ".yaml" {
		return fmt.Errorf("config path %q must end in .yaml", path)
	}
	if filepath.Base(filepath.Dir(abs)) != "configs" {
		return fmt.Errorf("config file %q must be in a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file, applies defaults and validates the result.
func Load(path string) (*Config, error) {
	if err := ValidateConfigPath(path); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if len(data) > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file larger than %d bytes", MaxConfigFileBytes)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	if cfg.Motion.Variant == "" {
		return nil, fmt.Errorf("motion.variant is required (%s or %s)", VariantEncoder, VariantLatching)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills every unset field. It is called by Load and again after
// CLI overrides change the variant.
func (c *Config) ApplyDefaults() {
	h := &c.Hardware
	if h.GamepadAddr == 0 {
		h.GamepadAddr = int(seesaw.DefaultAddr)
	}
	if h.ADCAddr == 0 {
		h.ADCAddr = int(adc.DefaultAddr)
	}
	if h.MuxPins == [3]int{} {
		h.MuxPins = [3]int{22, 23, 24}
	}
	if h.PWM.Backend == "" {
		h.PWM.Backend = PWMPeriph
	}
	if h.PWM.FrequencyHz <= 0 {
		h.PWM.FrequencyHz = int(motor.DefaultFrequency / physic.Hertz)
	}
	if h.PWM.Decay == "" {
		h.PWM.Decay = "slow"
	}
	if h.PWM.Device == "" {
		h.PWM.Device = "/dev/i2c-1"
	}
	if h.PWM.Address == 0 {
		h.PWM.Address = pca9685.DefaultAddr
	}
	if len(h.PWM.Pins) == 0 {
		h.PWM.Pins = [][2]string{{"GPIO12", "GPIO13"}, {"GPIO18", "GPIO19"}, {"GPIO20", "GPIO21"}, {"GPIO26", "GPIO16"}}
	}
	if len(h.PWM.Channels) == 0 {
		h.PWM.Channels = [][2]int{{0, 1}, {2, 3}, {4, 5}, {6, 7}}
	}
	if h.Encoders.Chip == "" {
		h.Encoders.Chip = "gpiochip0"
	}
	if h.Encoders.Divisor <= 0 {
		h.Encoders.Divisor = encoder.DefaultDivisor
	}
	if len(h.Encoders.Lines) == 0 {
		h.Encoders.Lines = [][2]int{{4, 17}, {27, 5}, {6, 25}, {8, 7}}
	}

	m := &c.Motion
	if m.TickMs <= 0 {
		m.TickMs = 10
		if m.Variant == VariantLatching {
			m.TickMs = 50
		}
	}
	if m.JoyHigh == 0 {
		m.JoyHigh = 675
	}
	if m.JoyLow == 0 {
		m.JoyLow = 375
	}
	if m.Deadband <= 0 {
		m.Deadband = 2
	}
	if m.CurrentThreshold <= 0 {
		m.CurrentThreshold = 0.425
	}
	if len(m.Presets) == 0 {
		m.Presets = DefaultPresets(m.Variant)
	}
	if len(m.Axes) == 0 {
		m.Axes = DefaultAxes()
	}

	hm := &c.Homing
	if hm.Enabled == nil {
		hm.Enabled = boolPtr(m.Variant == VariantEncoder)
	}
	if len(hm.Order) == 0 {
		hm.Order = []string{"Z", "Y", "X"}
	}
	if hm.SpinUpMs <= 0 {
		hm.SpinUpMs = 750
	}
	if hm.PollMs <= 0 {
		hm.PollMs = 100
	}
	if hm.SettleMs <= 0 {
		hm.SettleMs = 500
	}
	if hm.BackOffMs <= 0 {
		hm.BackOffMs = 875
	}
	if hm.Threshold <= 0 {
		hm.Threshold = 0.175
	}

	l := &c.Light
	if l.Enabled == nil {
		l.Enabled = boolPtr(m.Variant == VariantEncoder)
	}
	if l.Button == "" {
		l.Button = "B"
	}
	if l.Throttle == 0 {
		l.Throttle = 0.5
	}
	if l.Mode == "" {
		l.Mode = LightToggle
	}
}

// DefaultPresets returns the button presets of a variant.
func DefaultPresets(variant string) []PresetConfig {
	if variant == VariantLatching {
		return []PresetConfig{
			{Button: "Y", Speed: 1.0, Thresholds: map[string]float64{"X": 0.1125, "Y": 0.1675, "Z": 0.1425}},
			{Button: "X", Speed: 0.675, Thresholds: map[string]float64{"X": 0.1925, "Y": 0.1875, "Z": 0.1875}},
			{Button: "A", Speed: 0.425, Thresholds: map[string]float64{"X": 0.25, "Y": 0.25, "Z": 0.25}},
			{Button: "B", Speed: 0.275, Thresholds: map[string]float64{"X": 0.2875, "Y": 0.2875, "Z": 0.2875}},
		}
	}
	return []PresetConfig{
		{Button: "Y", Speed: 0.275},
		{Button: "X", Speed: 0.625},
		{Button: "A", Speed: 1.0},
	}
}

// DefaultAxes returns the stage wiring: Y on motor C, X on motor D, Z on
// motor B. Motor A is left for the accessory light.
func DefaultAxes() []AxisConfig {
	return []AxisConfig{
		{Name: "Y", Motor: 2, Channel: 2, Stick: "x", Group: GroupXY, Min: 0, Max: 32500},
		{Name: "X", Motor: 3, Channel: 3, Stick: "y", Group: GroupXY, Min: 0, Max: 32500},
		{Name: "Z", Motor: 1, Channel: 1, Stick: "y", Group: GroupZ, Min: 0, Max: 18750},
	}
}

func boolPtr(b bool) *bool { return &b }

var buttonNames = map[string]bool{"Select": true, "B": true, "Y": true, "A": true, "X": true, "Start": true}

// Validate checks cross-field constraints after defaults are applied.
func (c *Config) Validate() error {
	m := c.Motion
	if m.Variant != VariantEncoder && m.Variant != VariantLatching {
		return fmt.Errorf("motion.variant must be %s or %s, got %q", VariantEncoder, VariantLatching, m.Variant)
	}
	if m.JoyLow < 0 || m.JoyHigh > 1023 || m.JoyLow >= m.JoyHigh {
		return fmt.Errorf("motion.joy_low (%d) must be below motion.joy_high (%d) within 0-1023", m.JoyLow, m.JoyHigh)
	}

	axes := map[string]AxisConfig{}
	motors := map[int]string{}
	for _, ax := range m.Axes {
		if ax.Name == "" {
			return errors.New("motion.axes: name is required")
		}
		if _, dup := axes[ax.Name]; dup {
			return fmt.Errorf("motion.axes: duplicate axis %q", ax.Name)
		}
		if ax.Motor < 0 || ax.Motor >= NumMotors {
			return fmt.Errorf("motion.axes[%s].motor must be 0-%d, got %d", ax.Name, NumMotors-1, ax.Motor)
		}
		if other, used := motors[ax.Motor]; used {
			return fmt.Errorf("motion.axes[%s].motor %d already used by axis %s", ax.Name, ax.Motor, other)
		}
		if ax.Channel < 0 || ax.Channel >= NumMotors {
			return fmt.Errorf("motion.axes[%s].channel must be 0-%d, got %d", ax.Name, NumMotors-1, ax.Channel)
		}
		if ax.Stick != "x" && ax.Stick != "y" {
			return fmt.Errorf("motion.axes[%s].stick must be x or y, got %q", ax.Name, ax.Stick)
		}
		if ax.Group != GroupXY && ax.Group != GroupZ {
			return fmt.Errorf("motion.axes[%s].group must be %s or %s, got %q", ax.Name, GroupXY, GroupZ, ax.Group)
		}
		if m.Variant == VariantEncoder && ax.Min >= ax.Max {
			return fmt.Errorf("motion.axes[%s]: min (%d) must be below max (%d)", ax.Name, ax.Min, ax.Max)
		}
		axes[ax.Name] = ax
		motors[ax.Motor] = ax.Name
	}

	used := map[string]string{"Select": "reset", "Start": "group toggle"}
	for _, p := range m.Presets {
		if !buttonNames[p.Button] {
			return fmt.Errorf("motion.presets: unknown button %q", p.Button)
		}
		if owner, taken := used[p.Button]; taken {
			return fmt.Errorf("motion.presets: button %s already bound to %s", p.Button, owner)
		}
		used[p.Button] = "preset"
		if p.Speed <= 0 || p.Speed > 1 {
			return fmt.Errorf("motion.presets[%s].speed must be in (0, 1], got %g", p.Button, p.Speed)
		}
		if m.Variant == VariantLatching {
			for name := range axes {
				if p.Thresholds[name] <= 0 {
					return fmt.Errorf("motion.presets[%s].thresholds.%s must be > 0", p.Button, name)
				}
			}
		}
	}

	if c.LightEnabled() {
		l := c.Light
		if !buttonNames[l.Button] {
			return fmt.Errorf("light.button: unknown button %q", l.Button)
		}
		if owner, taken := used[l.Button]; taken {
			return fmt.Errorf("light.button %s already bound to %s", l.Button, owner)
		}
		if l.Motor < 0 || l.Motor >= NumMotors {
			return fmt.Errorf("light.motor must be 0-%d, got %d", NumMotors-1, l.Motor)
		}
		if name, taken := motors[l.Motor]; taken {
			return fmt.Errorf("light.motor %d already drives axis %s", l.Motor, name)
		}
		if l.Throttle < -1 || l.Throttle > 1 {
			return fmt.Errorf("light.throttle must be in [-1, 1], got %g", l.Throttle)
		}
		if l.Mode != LightToggle && l.Mode != LightMomentary {
			return fmt.Errorf("light.mode must be %s or %s, got %q", LightToggle, LightMomentary, l.Mode)
		}
	}

	if c.HomingEnabled() {
		for _, name := range c.Homing.Order {
			if _, ok := axes[name]; !ok {
				return fmt.Errorf("homing.order: unknown axis %q", name)
			}
		}
	}
	if c.Homing.TimeoutMs < 0 {
		return fmt.Errorf("homing.timeout_ms must be >= 0, got %d", c.Homing.TimeoutMs)
	}

	h := c.Hardware
	if h.PWM.Backend != PWMPeriph && h.PWM.Backend != PWMPCA9685 {
		return fmt.Errorf("hardware.pwm.backend must be %s or %s, got %q", PWMPeriph, PWMPCA9685, h.PWM.Backend)
	}
	if h.PWM.Decay != "slow" && h.PWM.Decay != "fast" {
		return fmt.Errorf("hardware.pwm.decay must be slow or fast, got %q", h.PWM.Decay)
	}
	if len(h.PWM.Pins) != NumMotors || len(h.PWM.Channels) != NumMotors || len(h.Encoders.Lines) != NumMotors {
		return fmt.Errorf("hardware: pwm.pins, pwm.channels and encoders.lines need %d entries", NumMotors)
	}
	if h.ADCChannel < 0 || h.ADCChannel > 3 {
		return fmt.Errorf("hardware.adc_channel must be 0-3, got %d", h.ADCChannel)
	}
	if h.MuxBase < 0 || h.MuxBase+NumMotors > 8 {
		return fmt.Errorf("hardware.mux_base %d leaves no room for %d channels on a 3-bit mux", h.MuxBase, NumMotors)
	}
	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be 0-4, got %d", c.Defaults.DebugLevel)
	}
	if c.Monitor.Port < 0 || c.Monitor.Port > 65535 {
		return fmt.Errorf("monitor.port must be 0-65535, got %d", c.Monitor.Port)
	}
	return nil
}

// Tick returns the control loop period.
func (c *Config) Tick() time.Duration {
	return time.Duration(c.Motion.TickMs) * time.Millisecond
}

// HomingEnabled reports whether axes are homed at startup and on Select.
func (c *Config) HomingEnabled() bool {
	return c.Homing.Enabled != nil && *c.Homing.Enabled
}

// LightEnabled reports whether a button drives the accessory light.
func (c *Config) LightEnabled() bool {
	return c.Light.Enabled != nil && *c.Light.Enabled
}

// SpinUp returns the reverse drive time before the first current check.
func (h HomingConfig) SpinUp() time.Duration {
	return time.Duration(h.SpinUpMs) * time.Millisecond
}

// Poll returns the current polling period while seeking the hard stop.
func (h HomingConfig) Poll() time.Duration {
	return time.Duration(h.PollMs) * time.Millisecond
}

// Settle returns the pause after the hard stop is hit.
func (h HomingConfig) Settle() time.Duration {
	return time.Duration(h.SettleMs) * time.Millisecond
}

// BackOff returns the forward drive time away from the hard stop.
func (h HomingConfig) BackOff() time.Duration {
	return time.Duration(h.BackOffMs) * time.Millisecond
}

// Timeout returns the maximum seek time, 0 for none.
func (h HomingConfig) Timeout() time.Duration {
	return time.Duration(h.TimeoutMs) * time.Millisecond
}
