package replay

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mpapenbr/lapsync/log"
	"github.com/mpapenbr/lapsync/pkg/cmd/util"
	"github.com/mpapenbr/lapsync/pkg/config"
	"github.com/mpapenbr/lapsync/pkg/dashboard"
	"github.com/mpapenbr/lapsync/pkg/laptime"
	"github.com/mpapenbr/lapsync/pkg/playback"
	"github.com/mpapenbr/lapsync/pkg/playback/sim"
	"github.com/mpapenbr/lapsync/pkg/telemetry"
	utils "github.com/mpapenbr/lapsync/pkg/utils"
)

var ErrNoLaps = errors.New("session has no laps")

func NewReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "replays a lap against a telemetry API with a simulated video player",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&config.APIURL,
		"api-url",
		"http://localhost:8090",
		"base URL of the telemetry API")
	cmd.Flags().StringVarP(&config.SessionID,
		"session", "s", "", "session to replay")
	cmd.Flags().IntVarP(&config.Lap,
		"lap", "l", 0, "lap to replay (0 means: first lap of the session)")
	cmd.Flags().StringVar(&config.Channel,
		"channel", dashboard.DefaultChannels.Chart, "channel shown in the chart")
	cmd.Flags().StringVar(&config.LatChannel,
		"lat-channel", dashboard.DefaultChannels.Lat, "channel holding the latitude")
	cmd.Flags().StringVar(&config.LngChannel,
		"lng-channel", dashboard.DefaultChannels.Lng, "channel holding the longitude")
	cmd.Flags().StringVar(&config.SpeedChannel,
		"speed-channel", dashboard.DefaultChannels.Speed,
		"channel used to color the track (empty disables coloring)")
	cmd.Flags().Float64Var(&config.Rate,
		"rate", 1, "playback rate of the simulated player")
	cmd.Flags().StringVar(&config.PollInterval,
		"poll-interval",
		playback.DefaultPollInterval.String(),
		"interval of the playback position polling")
	cmd.Flags().StringVar(&config.APITimeout,
		"api-timeout", "0", "timeout for API requests (0 means: none)")
	cmd.Flags().StringVar(&config.ChartPNG,
		"chart-png", "", "write a PNG of the chart with the final cursor to this file")
	cmd.Flags().BoolVar(&config.PairByIndex,
		"pair-by-index", false,
		"pair lat/lng samples by position (only for channels sharing their sample times)")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

//nolint:funlen,cyclop // linear setup
func runReplay(ctx context.Context) error {
	if _, err := util.SetupLogger(); err != nil {
		return err
	}
	log.Debug("Config:",
		log.String("apiUrl", config.APIURL),
		log.String("session", config.SessionID),
		log.Int("lap", config.Lap),
		log.Float64("rate", config.Rate),
	)
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if tel := util.SetupTelemetry(ctx); tel != nil {
		defer tel.Shutdown()
	}
	if err := waitForRequiredServices(ctx); err != nil {
		return err
	}

	client, err := newClient()
	if err != nil {
		return err
	}

	logger := log.Default().Named("replay")
	sess := dashboard.New(ctx, client, config.SessionID,
		dashboard.WithChannels(dashboard.Channels{
			Chart: config.Channel,
			Lat:   config.LatChannel,
			Lng:   config.LngChannel,
			Speed: config.SpeedChannel,
		}),
		dashboard.WithPlayerFactory(sim.Factory(sim.WithRate(config.Rate))),
		dashboard.WithMapFactory(func(ctx context.Context) (dashboard.MapWidget, error) {
			return &consoleMap{l: logger.Named("map")}, nil
		}),
		dashboard.WithCursorSink(&consoleCursor{l: logger.Named("chart")}),
		dashboard.WithDriverOptions(
			playback.WithAutoPlay(true),
			playback.WithPollInterval(util.ParseDuration("poll-interval",
				config.PollInterval, playback.DefaultPollInterval)),
		),
	)
	defer sess.Close()
	updates := sess.SubscribeStatus()

	if err := sess.Load(ctx); err != nil {
		log.Error("session could not be loaded", log.ErrorField(err))
		return err
	}
	lapNumber, err := pickLap(sess)
	if err != nil {
		return err
	}
	if err := sess.SelectLap(ctx, lapNumber); err != nil {
		// the other views keep working, only report the broken ones
		log.Warn("lap data incomplete", log.Int("lap", lapNumber), log.ErrorField(err))
	}
	window, err := lapWindow(sess, lapNumber)
	if err != nil {
		return err
	}
	log.Info("replaying lap",
		log.Int("lap", lapNumber),
		log.String("from", laptime.FormatSyncTime(window.Start)),
		log.String("to", laptime.FormatSyncTime(window.End)),
		log.Duration("duration", time.Duration(window.Duration()*float64(time.Second))))

	st, err := waitForLapEnd(ctx, updates, sess.Driver().Status)
	switch {
	case errors.Is(err, context.Canceled):
		log.Info("replay interrupted")
		return nil
	case err != nil:
		return err
	case st.Err != nil:
		log.Error("video failed", log.ErrorField(st.Err))
		return st.Err
	}
	g, _ := sess.State().GraphTime()
	videoTime := sess.State().VideoTime()
	log.Info("lap replayed",
		log.Int("lap", lapNumber),
		log.String("state", st.PlayerState.String()),
		log.String("videoTime", laptime.FormatSyncTime(videoTime)),
		log.Bool("withinLap", window.Contains(videoTime)),
		log.Float64("graphTime", g))
	if config.ChartPNG != "" {
		if err := writeChartSnapshot(config.ChartPNG, sess.Chart()); err != nil {
			log.Error("chart snapshot failed", log.ErrorField(err))
			return err
		}
		log.Info("chart snapshot written", log.String("file", config.ChartPNG))
	}
	return nil
}

func newClient() (*telemetry.Client, error) {
	opts := []telemetry.Option{telemetry.WithLogger(log.Default().Named("api"))}
	if timeout := util.ParseDuration("api-timeout", config.APITimeout, 0); timeout > 0 {
		opts = append(opts, telemetry.WithTimeout(timeout))
	}
	if config.PairByIndex {
		opts = append(opts, telemetry.WithIndexPairing())
	}
	return telemetry.NewClient(config.APIURL, opts...)
}

func pickLap(sess *dashboard.Session) (int, error) {
	meta := sess.Meta()
	if config.Lap != 0 {
		return config.Lap, nil
	}
	if len(meta.Laps) == 0 {
		return 0, fmt.Errorf("%s: %w", meta.ID, ErrNoLaps)
	}
	return meta.Laps[0].Number, nil
}

func lapWindow(sess *dashboard.Session, lapNumber int) (laptime.Window, error) {
	meta := sess.Meta()
	lap, ok := meta.FindLap(lapNumber)
	if !ok {
		return laptime.Window{}, fmt.Errorf("%w: %d", dashboard.ErrUnknownLap, lapNumber)
	}
	return meta.LapWindow(lap), nil
}

func waitForRequiredServices(ctx context.Context) error {
	timeout := util.ParseDuration("wait-for-services", config.WaitForServices, 0)
	if timeout == 0 {
		return nil
	}
	if addr := utils.AddrFromURL(config.APIURL); addr != "" {
		if err := utils.WaitForTCP(ctx, addr, timeout); err != nil {
			log.Error("required services not ready", log.ErrorField(err))
			return err
		}
	}
	// the port may be open before the API answers
	if err := utils.WaitForHTTPResponse(ctx, config.APIURL, timeout); err != nil {
		log.Error("required services not ready", log.ErrorField(err))
		return err
	}
	log.Debug("Required services are available")
	return nil
}

// lapEnd detects the player stopping after having played, or failing.
type lapEnd struct {
	started bool
}

func (e *lapEnd) observe(st playback.Status) bool {
	switch st.PlayerState {
	case playback.StatePlaying:
		e.started = true
	case playback.StatePaused, playback.StateEnded:
		return e.started
	case playback.StateError:
		return true
	case playback.StateUnstarted, playback.StateReady:
	}
	return false
}

// statusPoll is the interval at which waitForLapEnd checks the driver status
// directly, a slow reader may miss updates.
var statusPoll = time.Second

//nolint:whitespace // can't make both editor and linter happy
func waitForLapEnd(
	ctx context.Context, updates <-chan playback.Status, current func() playback.Status,
) (playback.Status, error) {
	var e lapEnd
	ticker := time.NewTicker(statusPoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return playback.Status{}, ctx.Err()
		case st, ok := <-updates:
			if !ok {
				return playback.Status{}, dashboard.ErrClosed
			}
			if e.observe(st) {
				return st, nil
			}
		case <-ticker.C:
			if st := current(); e.observe(st) {
				return st, nil
			}
		}
	}
}
