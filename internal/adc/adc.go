// Package adc reads the analog channels of the node: the power-source sense
// channel and the supply voltage.
package adc

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Reader reads raw analog values.
type Reader interface {
	// Channel returns the raw reading of the sense channel.
	Channel() (uint16, error)

	// ChannelMv returns the sense channel reading in millivolts.
	ChannelMv() (uint16, error)

	// Supply returns the supply voltage in millivolts.
	Supply() (uint16, error)
}

// DefaultDevice is the IIO device directory used when none is configured.
const DefaultDevice = "/sys/bus/iio/devices/iio:device0"

// IIO reads channels from a Linux Industrial I/O device through sysfs.
type IIO struct {
	senseFile  string
	supplyFile string

	// Scales convert raw counts to millivolts.
	senseScale  float64
	supplyScale float64
}

// NewIIO creates a reader for device using the given channel indices.
// A non-zero scale applies to both channels of the converter. Zero falls back
// to each channel's in_voltageN_scale attribute, or 1 if that is missing.
func NewIIO(device string, senseChannel, supplyChannel int, scale float64) (*IIO, error) {
	r := &IIO{
		senseFile:   filepath.Join(device, fmt.Sprintf("in_voltage%d_raw", senseChannel)),
		supplyFile:  filepath.Join(device, fmt.Sprintf("in_voltage%d_raw", supplyChannel)),
		senseScale:  scale,
		supplyScale: scale,
	}
	if _, err := os.Stat(r.senseFile); err != nil {
		return nil, fmt.Errorf("adc sense channel: %w", err)
	}
	if scale == 0 {
		r.senseScale = channelScale(device, senseChannel)
		r.supplyScale = channelScale(device, supplyChannel)
	}
	return r, nil
}

func channelScale(device string, channel int) float64 {
	b, err := os.ReadFile(filepath.Join(device, fmt.Sprintf("in_voltage%d_scale", channel)))
	if err != nil {
		return 1
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(b)), 64)
	if err != nil || v <= 0 {
		return 1
	}
	return v
}

// Channel returns the raw reading of the sense channel.
func (r *IIO) Channel() (uint16, error) {
	return readRaw(r.senseFile)
}

// ChannelMv returns the sense channel reading in millivolts.
func (r *IIO) ChannelMv() (uint16, error) {
	return readScaled(r.senseFile, r.senseScale)
}

// Supply returns the supply voltage in millivolts.
func (r *IIO) Supply() (uint16, error) {
	return readScaled(r.supplyFile, r.supplyScale)
}

func readScaled(path string, scale float64) (uint16, error) {
	raw, err := readRaw(path)
	if err != nil {
		return 0, err
	}
	return ClampMv(float64(raw) * scale), nil
}

// ClampMv truncates a millivolt value into the uint16 range.
func ClampMv(mv float64) uint16 {
	if mv > 0xFFFF {
		return 0xFFFF
	}
	if mv < 0 {
		return 0
	}
	return uint16(mv)
}

func readRaw(path string) (uint16, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(b)), 10, 16)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return uint16(v), nil
}
