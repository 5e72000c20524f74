// Command pour-kiosk runs the payment-gated dispensing kiosk: it counts
// flow sensor pulses, bills the active pour, drives the screen state
// machine, and exchanges commands and events with the broker.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/precisionpour/pour-kiosk/internal/config"
	"github.com/precisionpour/pour-kiosk/internal/flow"
	"github.com/precisionpour/pour-kiosk/internal/ingress"
	"github.com/precisionpour/pour-kiosk/internal/logger"
	"github.com/precisionpour/pour-kiosk/internal/mqtt"
	"github.com/precisionpour/pour-kiosk/internal/pulse"
	"github.com/precisionpour/pour-kiosk/internal/screen"
	"github.com/precisionpour/pour-kiosk/internal/session"
	"github.com/precisionpour/pour-kiosk/internal/status"
	"github.com/precisionpour/pour-kiosk/internal/web"
)

// restartExitCode tells the supervisor (systemd Restart=on-failure) to
// bring the process back up after the fault policy gives up on recovery.
const restartExitCode = 3

func main() {
	configPath := flag.String("config", "", "config file path (default: ./config/config.yaml)")
	broker := flag.String("broker", "", "MQTT broker address (overrides config)")
	deviceID := flag.String("device-id", "", "device identity for MQTT topics (overrides config)")
	httpAddr := flag.String("http", "", "HTTP status address (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *broker != "" {
		cfg.MQTT.Broker = *broker
	}
	if *deviceID != "" {
		cfg.Device.ID = *deviceID
	}
	if *httpAddr != "" {
		cfg.HTTP.Addr = *httpAddr
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	restart, err := run(cfg, log)
	if err != nil {
		log.Fatal("fatal", zap.Error(err))
	}
	if restart {
		log.Warn("exiting for supervisor restart")
		log.Sync()
		os.Exit(restartExitCode)
	}
}

func run(cfg *config.Config, log *zap.Logger) (bool, error) {
	deviceID := cfg.Device.ID
	if deviceID == "" {
		deviceID = "kiosk-" + uuid.NewString()[:8]
		log.Info("no device id configured, derived one", zap.String("device_id", deviceID))
	}
	payURL := cfg.Screen.PayURL + "?id=" + deviceID

	// One monotonic millisecond clock for the whole daemon.
	startWall := time.Now()
	nowMillis := func() int64 { return time.Since(startWall).Milliseconds() }

	counter := pulse.NewCounter()
	engine := flow.NewEngine(counter, flow.Calibration{
		PulsesPerLiter: cfg.Sensor.PulsesPerLiter,
		PulsesPerLPM:   cfg.Sensor.PulsesPerLPM,
	}, log.Named("flow"))
	sess := session.New(engine, log.Named("session"))
	faults := ingress.NewFaultWindow(cfg.Fault.Threshold, cfg.Fault.WindowMs)
	decoder := ingress.NewDecoder(faults, log.Named("ingress"))

	var rejected atomic.Int64
	var mgrRef atomic.Pointer[screen.Manager]
	onCommand := func(raw []byte) {
		cmd, err := decoder.DecodeAndValidate(raw, nowMillis())
		if err != nil {
			rejected.Add(1)
			return
		}
		if m := mgrRef.Load(); m != nil {
			m.HandleCommand(cmd)
		}
	}

	// MQTT client (optional). Built before the manager so the manager can
	// read connection status for the shared icons.
	var pub mqtt.Publisher
	var conn mqtt.ConnectionStatus
	if cfg.MQTT.Enabled {
		clientID := cfg.MQTT.ClientID
		if clientID == "" {
			clientID = deviceID
		}
		client, err := mqtt.NewRealClient(mqtt.Options{
			Broker:         cfg.MQTT.Broker,
			ClientID:       clientID,
			Username:       cfg.MQTT.Username,
			Password:       cfg.MQTT.Password,
			Topics:         mqtt.NewTopics(cfg.MQTT.TopicPrefix, deviceID),
			OnCommand:      onCommand,
			BufferCapacity: cfg.MQTT.BufferSize,
			RSSI:           rssiFromEnv,
		}, log.Named("mqtt"))
		if err != nil {
			return false, fmt.Errorf("init mqtt: %w", err)
		}
		defer client.Close()
		pub = client
		conn = client
	}

	var connStatus screen.ConnStatus
	if conn != nil {
		connStatus = conn
	}
	presenter := screen.NewLogPresenter(log.Named("screen"))
	manager := screen.NewManager(presenter, connStatus, engine, sess, faults, screen.Config{
		PayURL:                payURL,
		FinishedTimeoutMillis: cfg.Screen.FinishedTimeoutMs,
		Debug: screen.DebugOptions{
			TapToPour:   cfg.Screen.Debug.TapToPour,
			TapToFinish: cfg.Screen.Debug.TapToFinish,
		},
	}, log.Named("screen"))
	if err := manager.Start(); err != nil {
		return false, fmt.Errorf("init screen: %w", err)
	}
	defer manager.Close()
	mgrRef.Store(manager)

	manager.BootStage(20, "Starting flow sensor")
	source, err := pulse.NewRealSource(cfg.Sensor.Chip, cfg.Sensor.Pin)
	if err != nil {
		return false, fmt.Errorf("init flow sensor: %w", err)
	}
	defer source.Close()

	aligner := pulse.NewAligner(nowMillis)
	if err := source.Start(func(tsMillis int64) {
		counter.OnEdge(aligner.Align(tsMillis))
	}); err != nil {
		return false, fmt.Errorf("start flow sensor: %w", err)
	}

	manager.BootStage(50, "Connecting")

	tracker := status.NewTracker(time.Now(), status.Config{
		DeviceID:       deviceID,
		TickMs:         cfg.Loop.TickMs,
		Broker:         cfg.MQTT.Broker,
		HTTPPort:       cfg.HTTP.Addr,
		PayURL:         payURL,
		PulsesPerLiter: cfg.Sensor.PulsesPerLiter,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	if pub != nil {
		snap := tracker.Snapshot()
		startupEvent := mqtt.SystemEvent{
			Timestamp:  snap.Now,
			Event:      "STARTUP",
			Retained:   true,
			RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
		}
		if err := pub.PublishSystem(startupEvent); err != nil {
			log.Warn("startup event publish failed", zap.Error(err))
		} else {
			log.Info("published startup event")
		}
	}

	manager.BootStage(80, "Starting status server")
	if cfg.HTTP.Enabled {
		srv := web.New(cfg.HTTP.Addr, tracker)
		srv.SetTapHandler(manager.Tap)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("http server error", zap.Error(err))
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Info("http status server listening", zap.String("addr", cfg.HTTP.Addr))
	}

	manager.BootStage(100, "Ready")
	manager.BootComplete()

	log.Info("started",
		zap.String("device_id", deviceID),
		zap.Int64("tick_ms", cfg.Loop.TickMs),
		zap.String("broker", cfg.MQTT.Broker),
		zap.Float32("pulses_per_liter", cfg.Sensor.PulsesPerLiter))

	ticker := time.NewTicker(time.Duration(cfg.Loop.TickMs) * time.Millisecond)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	l := &loop{
		engine:          engine,
		manager:         manager,
		sess:            sess,
		pub:             pub,
		conn:            conn,
		tracker:         tracker,
		faults:          faults,
		rejected:        &rejected,
		heartbeatMillis: cfg.MQTT.HeartbeatMs,
		nowMillis:       nowMillis,
		now:             time.Now,
		logger:          log,
	}
	return l.run(ticker.C, sigCh), nil
}

// loop is the daemon's main loop state. Everything it touches is owned by
// the loop goroutine; collaborators hand work over through channels and
// the manager's event queue.
type loop struct {
	engine          *flow.Engine
	manager         *screen.Manager
	sess            *session.Session
	pub             mqtt.Publisher        // nil when MQTT is disabled
	conn            mqtt.ConnectionStatus // nil when MQTT is disabled
	tracker         *status.Tracker
	faults          *ingress.FaultWindow
	rejected        *atomic.Int64
	heartbeatMillis int64 // 0 disables heartbeats
	nowMillis       func() int64
	now             func() time.Time
	logger          *zap.Logger

	counts        status.Counts
	lifetime      uint64
	lastPulses    uint64
	lastHeartbeat int64
}

// run drives the loop until a shutdown signal or a fault-policy restart.
// Returns true when the process should exit with the restart code.
func (l *loop) run(tick <-chan time.Time, sig <-chan os.Signal) bool {
	for {
		select {
		case s := <-sig:
			l.logger.Info("received signal, shutting down", zap.String("signal", s.String()))
			l.shutdown(signalName(s))
			return false

		case <-tick:
			l.step()
			if l.manager.RestartRequested() {
				l.shutdown("FAULT_LIMIT")
				return true
			}
		}
	}
}

func (l *loop) step() {
	t := l.nowMillis()
	l.engine.Tick(t)

	for _, n := range l.manager.Update(t) {
		switch n.Kind {
		case screen.NotifyPourStarted:
			l.counts.Started++
		case screen.NotifyPourFinished:
			l.counts.Finished++
		case screen.NotifyPourCancelled:
			l.counts.Cancelled++
		}

		if l.pub == nil {
			continue
		}
		event := mqtt.PourEvent{
			Timestamp: l.now(),
			Event:     string(n.Kind),
			PourID:    n.PourID,
			VolumeML:  n.VolumeML,
			Cost:      n.Cost,
			Currency:  n.Currency,
		}
		if err := l.pub.PublishPour(event); err != nil {
			// Publish failures must not interrupt an active pour; the
			// client has buffered the event for replay.
			l.logger.Warn("pour event publish failed", zap.Error(err))
		}
	}

	l.updateTracker()
	l.maybeHeartbeat(t)
}

// maybeHeartbeat publishes a periodic status snapshot so the backend can
// tell a quiet kiosk from a dead one.
func (l *loop) maybeHeartbeat(nowMillis int64) {
	if l.pub == nil || l.tracker == nil || l.heartbeatMillis <= 0 {
		return
	}
	if nowMillis-l.lastHeartbeat < l.heartbeatMillis {
		return
	}
	l.lastHeartbeat = nowMillis

	snap := l.tracker.Snapshot()
	event := mqtt.SystemEvent{
		Timestamp:  l.now(),
		Event:      "HEARTBEAT",
		RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
	}
	if err := l.pub.PublishSystem(event); err != nil {
		l.logger.Warn("heartbeat publish failed", zap.Error(err))
	}
}

func (l *loop) updateTracker() {
	if l.tracker == nil {
		return
	}

	// The per-pour pulse count resets with each session; integrate it into
	// a lifetime figure for diagnostics.
	cur := l.engine.PulsesSinceReset()
	if cur >= l.lastPulses {
		l.lifetime += cur - l.lastPulses
	} else {
		l.lifetime += cur
	}
	l.lastPulses = cur

	var pour status.PourInfo
	if l.sess.Active() {
		pour = status.PourInfo{
			Active:       true,
			ID:           l.sess.ID(),
			VolumeML:     l.sess.VolumeML(),
			RateMLPerMin: l.engine.Rate() * 1000,
			Cost:         l.sess.CurrentCost(),
			Currency:     l.sess.Currency().Display(),
		}
	}

	if l.rejected != nil {
		l.counts.Rejected = int(l.rejected.Load())
	}
	l.tracker.Update(string(l.manager.State()), pour, l.counts, l.lifetime)
	if l.conn != nil {
		l.tracker.SetMQTTConnected(l.conn.IsConnected())
	}
	if l.faults != nil {
		l.tracker.SetFaultCount(l.faults.Count())
	}
}

func (l *loop) shutdown(reason string) {
	if l.pub == nil {
		return
	}
	event := mqtt.SystemEvent{
		Timestamp: l.now(),
		Event:     "SHUTDOWN",
		Reason:    reason,
		Retained:  true,
	}
	if l.tracker != nil {
		snap := l.tracker.Snapshot()
		event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", reason)
	}
	if err := l.pub.PublishSystem(event); err != nil {
		l.logger.Warn("shutdown event publish failed", zap.Error(err))
	} else {
		l.logger.Info("published shutdown event", zap.String("reason", reason))
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType     = "NETWORK_TYPE"
	envNetworkIP       = "NETWORK_IP"
	envNetworkStatus   = "NETWORK_STATUS"
	envNetworkWifiSSID = "NETWORK_WIFI_SSID"
	envNetworkWifiRSSI = "NETWORK_WIFI_RSSI"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	rssi := rssiFromEnv()
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		SSID:       os.Getenv(envNetworkWifiSSID),
		RSSI:       rssi,
		SignalBars: screen.SignalBars(true, rssi),
	}
}

// rssiFromEnv reads the wifi RSSI pi-helper exports, 0 when absent.
func rssiFromEnv() int {
	v := os.Getenv(envNetworkWifiRSSI)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}
