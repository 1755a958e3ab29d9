// Package run implements the acquisition command: it connects the configured
// devices, drives the engine and optionally serves Prometheus metrics.
package run

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/biosync/internal/buildinfo"
	"github.com/tphakala/biosync/internal/conf"
	"github.com/tphakala/biosync/internal/device"
	"github.com/tphakala/biosync/internal/driver"
	"github.com/tphakala/biosync/internal/engine"
	"github.com/tphakala/biosync/internal/logger"
	"github.com/tphakala/biosync/internal/observability"
)

// Command creates the run command.
func Command(settings *conf.Settings, info *buildinfo.Context) *cobra.Command {
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Acquire and synchronize sensor data",
		Long:  "Connect the configured devices and keep their sensor streams aligned to engine time until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}
			GetLogger().Info("biosync starting",
				logger.String("version", info.Version()),
				logger.String("instance", info.InstanceID()))
			return Acquire(ctx, settings, cmd.OutOrStdout())
		},
	}

	if err := setupFlags(cmd, &duration); err != nil {
		panic(err)
	}
	return cmd
}

func setupFlags(cmd *cobra.Command, duration *time.Duration) error {
	cmd.Flags().Bool("telemetry", false, "Enable Prometheus telemetry endpoint")
	cmd.Flags().String("listen", conf.DefaultTelemetryListen, "Listen address and port of telemetry endpoint")
	cmd.Flags().Bool("autosync", true, "Resync devices when drift exceeds the sync limit")
	cmd.Flags().DurationVar(duration, "duration", 0, "Stop after this long, 0 runs until interrupted")

	for key, flag := range map[string]string{
		"telemetry.enabled": "telemetry",
		"telemetry.listen":  "listen",
		"engine.autosync":   "autosync",
	} {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flags: %w", err)
		}
	}
	return nil
}

// Acquire runs the engine, one simulated driver per enabled device and the
// optional telemetry endpoint until ctx is done, then writes a summary to out.
func Acquire(ctx context.Context, settings *conf.Settings, out io.Writer) error {
	log := GetLogger()

	metrics, err := observability.NewMetrics()
	if err != nil {
		return err
	}
	metrics.InstallErrorHook()

	eng := engine.New(&settings.Engine, engine.WithRecorder(metrics.Acquisition))

	var drivers []*driver.Simulator
	for i := range settings.Devices {
		dc := &settings.Devices[i]
		if !dc.Enabled {
			log.Info("device disabled, skipping", logger.String("device", dc.Name))
			continue
		}

		dev, err := device.FromSettings(dc, &settings.Sensor, eng)
		if err != nil {
			return err
		}
		// connect before the driver starts; device state belongs to the tick goroutine afterwards
		dev.Connect()
		if err := eng.AddDevice(dev); err != nil {
			return err
		}

		sim, err := driver.New(dev, dc)
		if err != nil {
			return err
		}
		drivers = append(drivers, sim)
	}

	log.Info("acquisition started",
		logger.Int("devices", len(drivers)),
		logger.Duration("tick_interval", eng.TickInterval()),
		logger.Bool("telemetry", settings.Telemetry.Enabled))

	var endpoint *observability.Endpoint
	if settings.Telemetry.Enabled {
		if endpoint, err = observability.NewEndpoint(&settings.Telemetry, metrics); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Run(gctx) })
	for _, sim := range drivers {
		g.Go(func() error { return sim.Run(gctx) })
	}
	if endpoint != nil {
		g.Go(func() error { return endpoint.Run(gctx) })
	}

	err = g.Wait()
	eng.Publish()
	writeSummary(out, eng.Stats(), drivers)
	return err
}

func writeSummary(out io.Writer, st engine.Stats, drivers []*driver.Simulator) {
	fmt.Fprintf(out, "engine: elapsed %s, %s syncs, %s sync requests\n",
		st.Elapsed.Round(time.Millisecond), humanize.Comma(int64(st.Syncs)), humanize.Comma(int64(st.SyncRequests)))

	for _, d := range st.Devices {
		fmt.Fprintf(out, "device %s: %s, battery %.0f%%, %s samples delivered, %s overruns\n",
			d.Name, d.State, d.Battery*100, humanize.Comma(int64(d.Delivered)), humanize.Comma(int64(d.Overruns)))
		for _, s := range d.Sensors {
			fmt.Fprintf(out, "  %s: %s, latency %s, %s lost\n",
				s.Name, humanize.SIWithDigits(s.RealSampleRate, 2, "Hz"),
				s.Latency.Round(time.Microsecond), humanize.Comma(int64(s.LostSamples)))
		}
	}

	for _, sim := range drivers {
		ds := sim.Stats()
		fmt.Fprintf(out, "driver %s: %s frames sent, %s decoded, %s dropped, %s overflow\n",
			sim.Session(), humanize.Comma(int64(ds.FramesSent)), humanize.Comma(int64(ds.FramesDecoded)),
			humanize.Comma(int64(ds.FramesDropped)), humanize.Comma(int64(ds.FramesOverflow)))
	}
}
