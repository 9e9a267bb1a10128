package sensor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultW1Dir is where the kernel exposes one-wire slave devices.
const DefaultW1Dir = "/sys/bus/w1/devices"

var ErrNoProbe = errors.New("no one-wire temperature probe found")

// W1Sampler reads a DS18B20-family probe through the sysfs w1 interface.
type W1Sampler struct {
	slavePath string
}

// DiscoverW1 finds the first 28-* family slave under dir.
func DiscoverW1(dir string) (*W1Sampler, error) {
	if dir == "" {
		dir = DefaultW1Dir
	}
	matches, err := filepath.Glob(filepath.Join(dir, "28-*", "w1_slave"))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, ErrNoProbe
	}
	return &W1Sampler{slavePath: matches[0]}, nil
}

// NewW1Sampler reads the given w1_slave file directly.
func NewW1Sampler(slavePath string) *W1Sampler {
	return &W1Sampler{slavePath: slavePath}
}

func (s *W1Sampler) Sample(ctx context.Context) (Celsius, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	raw, err := os.ReadFile(s.slavePath)
	if err != nil {
		return 0, err
	}
	return parseW1Slave(string(raw))
}

// parseW1Slave decodes the two-line w1_slave format:
//
//	31 01 4b 46 7f ff 0c 10 71 : crc=71 YES
//	31 01 4b 46 7f ff 0c 10 71 t=19062
func parseW1Slave(raw string) (Celsius, error) {
	lines := strings.Split(strings.TrimSpace(raw), "\n")
	if len(lines) < 2 {
		return 0, fmt.Errorf("malformed w1_slave output")
	}
	if !strings.HasSuffix(strings.TrimSpace(lines[0]), "YES") {
		return 0, fmt.Errorf("sensor crc check failed")
	}
	idx := strings.LastIndex(lines[1], "t=")
	if idx < 0 {
		return 0, fmt.Errorf("missing temperature field")
	}
	milli, err := strconv.Atoi(strings.TrimSpace(lines[1][idx+2:]))
	if err != nil {
		return 0, fmt.Errorf("parse temperature: %w", err)
	}
	return Celsius(float64(milli) / 1000.0), nil
}
