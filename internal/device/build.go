package device

import (
	"github.com/tphakala/biosync/internal/conf"
	"github.com/tphakala/biosync/internal/dsp"
	"github.com/tphakala/biosync/internal/errors"
	"github.com/tphakala/biosync/internal/sensor"
)

// FromSettings builds a device and its sensors from configuration. Every
// configured sensor is an output sensor, numbered in configuration order.
func FromSettings(dc *conf.DeviceConfig, defaults *conf.SensorSettings, env sensor.Environment) (*Device, error) {
	mode, err := dsp.ParseResampleMode(defaults.ResampleMode)
	if err != nil {
		return nil, errors.New(err).
			Component("device").
			Category(errors.CategoryConfiguration).
			Context("device", dc.Name).
			Build()
	}

	power := PowerUnknown
	if dc.Type == conf.DeviceTypeSimulated {
		power = PowerBattery
	}

	d := New(Config{
		Name:        dc.Name,
		Type:        dc.Type,
		Enabled:     dc.Enabled,
		Latency:     dc.Latency,
		Jitter:      dc.Jitter,
		Timeout:     dc.Timeout,
		PowerSupply: power,
	})

	for i := range dc.Sensors {
		sc := &dc.Sensors[i]
		s, err := sensor.New(sensor.Config{
			Name:            sc.Name,
			Info:            dsp.ChannelInfo{Name: sc.Name, Unit: sc.Unit, Min: sc.Min, Max: sc.Max},
			InputRate:       sc.SampleRate,
			OutputRate:      sc.OutputRate,
			HardwareChannel: i,
			BufferSize:      defaults.BufferSize,
			BurstWindow:     defaults.BurstWindow,
			InboxCapacity:   defaults.InboxCapacity,
			ResampleMode:    mode,
		}, env)
		if err != nil {
			return nil, err
		}
		if err := d.AddSensor(s, SensorOutput); err != nil {
			return nil, err
		}
	}

	return d, nil
}
