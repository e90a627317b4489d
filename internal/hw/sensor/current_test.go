package sensor

import (
	"errors"
	"math"
	"testing"

	"github.com/cjeanneret/StaGo/internal/hw/gpio"
)

// muxInput answers with a code chosen by the address currently on the pins.
type muxInput struct {
	drv   *gpio.MockDriver
	pins  [3]int
	codes map[int]uint16
	err   error
}

func (m *muxInput) ReadRaw() (uint16, error) {
	if m.err != nil {
		return 0, m.err
	}
	addr := 0
	for bit, pin := range m.pins {
		if level, _ := m.drv.ReadPin(pin); level == gpio.High {
			addr |= 1 << bit
		}
	}
	return m.codes[addr], nil
}

func newTestSensor(t *testing.T, base int, codes map[int]uint16) (*Current, *muxInput) {
	t.Helper()
	drv := &gpio.MockDriver{}
	pins := [3]int{22, 23, 24}
	in := &muxInput{drv: drv, pins: pins, codes: codes}
	c, err := NewCurrent(drv, in, Config{AddressPins: pins, Base: base})
	if err != nil {
		t.Fatalf("NewCurrent: %v", err)
	}
	return c, in
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestAmps_Calibration(t *testing.T) {
	cases := []struct {
		code uint16
		want float64
	}{
		{0, -0.005 / 0.47},
		{32768, (1.65 - 0.005) / 0.47},
		{65535, (65535*3.3/65536 - 0.005) / 0.47},
	}
	for _, tc := range cases {
		if got := Amps(Volts(tc.code)); !approx(got, tc.want) {
			t.Errorf("Amps(Volts(%d)) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestReadCurrent_SelectsAddressWithBase(t *testing.T) {
	c, _ := newTestSensor(t, 4, map[int]uint16{
		6: 10000, // channel 2 + base 4
	})

	got, err := c.ReadCurrent(2)
	if err != nil {
		t.Fatalf("ReadCurrent: %v", err)
	}
	if want := Amps(Volts(10000)); !approx(got, want) {
		t.Errorf("ReadCurrent(2) = %v, want %v", got, want)
	}
}

func TestReadCurrent_RejectsBadChannel(t *testing.T) {
	c, _ := newTestSensor(t, 0, nil)
	if _, err := c.ReadCurrent(4); err == nil {
		t.Error("expected error for channel 4")
	}
}

func TestReadAll_OrderedSnapshot(t *testing.T) {
	codes := map[int]uint16{0: 100, 1: 2000, 2: 30000, 3: 65535}
	c, _ := newTestSensor(t, 0, codes)

	s, err := c.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	for ch := 0; ch < NumChannels; ch++ {
		if want := Amps(Volts(codes[ch])); !approx(s[ch], want) {
			t.Errorf("channel %d = %v, want %v", ch, s[ch], want)
		}
	}
}

func TestReadAll_PropagatesInputError(t *testing.T) {
	c, in := newTestSensor(t, 0, nil)
	in.err = errors.New("adc offline")
	if _, err := c.ReadAll(); !errors.Is(err, in.err) {
		t.Errorf("expected wrapped input error, got %v", err)
	}
}
