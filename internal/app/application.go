// Package app wires the decoder, trackers and transports into a running
// service.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"aviator/internal/capture"
	"aviator/internal/config"
	"aviator/internal/dedup"
	"aviator/internal/flightinfo"
	"aviator/internal/natsio"
	"aviator/internal/rawlog"
	"aviator/internal/sbs"
	"aviator/internal/sim"
	"aviator/internal/storage"
	"aviator/internal/tracker"
	"aviator/internal/weather"
	"aviator/internal/web"
)

// Application owns every component for one run of the service.
type Application struct {
	cfg    *config.Config
	logger *logrus.Logger

	flights   *tracker.Tracker
	ref       *tracker.Reference
	simulator *sim.Simulator
	capture   *capture.Capture
	nats      *natsio.Client
	deduper   *dedup.Deduper
	store     *storage.DB
	rotator   *rawlog.Rotator
	sbsWriter *sbs.Writer
	webSrv    *web.Server

	duplicates uint64
	dupMu      sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewApplication creates an application from loaded configuration.
func NewApplication(cfg *config.Config) *Application {
	ctx, cancel := context.WithCancel(context.Background())

	logger := logrus.New()
	if cfg.Verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	return &Application{
		cfg:    cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start runs the application until SIGINT or SIGTERM.
func (app *Application) Start() error {
	app.logger.WithFields(logrus.Fields{
		"version":    Version,
		"build_time": BuildTime,
		"git_commit": GitCommit,
		"mode":       app.cfg.Mode,
	}).Info("starting aviator")

	if err := app.initializeComponents(); err != nil {
		return fmt.Errorf("initialize components: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	app.run()

	<-sigChan
	app.logger.Info("received shutdown signal")
	app.shutdown()
	return nil
}

func (app *Application) initializeComponents() error {
	app.flights = tracker.New(app.logger)

	if app.cfg.HasRef {
		app.ref = &tracker.Reference{Lat: app.cfg.RefLat, Lon: app.cfg.RefLon}
	}

	switch app.cfg.Mode {
	case config.ModeSim:
		ref := tracker.Reference{}
		if app.ref != nil {
			ref = *app.ref
		}
		if app.cfg.ScenarioPath != "" {
			scenario, err := sim.LoadScenario(app.cfg.ScenarioPath)
			if err != nil {
				return fmt.Errorf("load scenario: %w", err)
			}
			app.simulator = sim.FromScenario(scenario, ref)
		} else {
			app.simulator = sim.New(ref)
		}

	case config.ModeRaw:
		if len(app.cfg.Sources) > 0 {
			app.capture = capture.New(app.cfg.Sources, app.logger)
		}
		if app.cfg.NATSURL != "" {
			nc, err := natsio.New(app.cfg.NATSURL)
			if err != nil {
				return fmt.Errorf("connect nats: %w", err)
			}
			app.nats = nc
		}
	}

	if app.cfg.RedisAddr != "" {
		d, err := dedup.New(app.cfg.RedisAddr, time.Minute)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		app.deduper = d
	}

	if app.cfg.DBPath != "" {
		db, err := storage.Open(app.cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open sighting store: %w", err)
		}
		app.store = db
	}

	if app.cfg.LogDir != "" {
		rot, err := rawlog.NewRotator(app.cfg.LogDir, "basestation", app.logger)
		if err != nil {
			return fmt.Errorf("open basestation log: %w", err)
		}
		app.rotator = rot
		app.sbsWriter = sbs.NewWriter(rot, app.logger)
	}

	app.webSrv = web.NewServer(app.cfg.HTTPAddr, app.flights,
		weather.NewClient(app.logger), flightinfo.NewClient(app.logger),
		app.ref, app.cfg.Mode, app.logger)

	return nil
}

func (app *Application) run() {
	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		if err := app.webSrv.Run(app.ctx); err != nil {
			app.logger.WithError(err).Error("http api failed")
		}
	}()

	if app.rotator != nil {
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			app.rotator.Run(app.ctx)
		}()
	}

	switch app.cfg.Mode {
	case config.ModeSim:
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			app.runSimulation()
		}()

	case config.ModeRaw:
		if app.capture != nil {
			app.capture.Start()
			app.wg.Add(1)
			go func() {
				defer app.wg.Done()
				app.consumeCapture()
			}()
		} else if app.nats != nil {
			// No direct sources, frames arrive over the bus.
			err := app.nats.SubscribeFrames(func(rf *natsio.RawFrame) {
				app.handleFrame(rf.Hex, rf.Source)
			})
			if err != nil {
				app.logger.WithError(err).Error("nats subscription failed")
			}
		}
	}

	if app.cfg.ExpireAfter > 0 {
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			app.runExpiry()
		}()
	}

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		app.reportStatistics()
	}()

	app.logger.Info("all components started")
}

// runSimulation advances the synthetic flights once a second.
func (app *Application) runSimulation() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-app.ctx.Done():
			return
		case now := <-ticker.C:
			for _, f := range app.simulator.Advance(now.UTC()) {
				app.flights.UpsertSynthetic(f)
				app.recordSighting(f.ICAO)
			}
		}
	}
}

func (app *Application) consumeCapture() {
	for {
		select {
		case <-app.ctx.Done():
			return
		case frame, ok := <-app.capture.Frames():
			if !ok {
				return
			}
			app.handleFrame(frame.Hex, frame.Source)
		}
	}
}

// handleFrame is the single path every raw frame takes: dedup, bus
// publish, decode, export, persist.
func (app *Application) handleFrame(hex, source string) {
	if app.deduper != nil {
		seen, err := app.deduper.Seen(app.ctx, hex)
		if err != nil {
			app.logger.WithError(err).Debug("dedup check failed, processing frame anyway")
		} else if seen {
			app.dupMu.Lock()
			app.duplicates++
			app.dupMu.Unlock()
			return
		}
	}

	// Frames read from TCP sources are republished for other consumers.
	if app.nats != nil && app.capture != nil {
		err := app.nats.PublishFrame(&natsio.RawFrame{
			Hex:       hex,
			Source:    source,
			Timestamp: time.Now().UTC(),
		})
		if err != nil {
			app.logger.WithError(err).Debug("nats publish failed")
		}
	}

	upd, err := app.flights.Ingest(hex, app.ref)
	if err != nil {
		return
	}

	if app.sbsWriter != nil {
		if err := app.sbsWriter.WriteUpdate(upd, time.Now().UTC()); err != nil {
			app.logger.WithError(err).Debug("basestation export failed")
		}
	}
	app.recordSighting(upd.ICAO)
}

func (app *Application) recordSighting(icao string) {
	if app.store == nil {
		return
	}
	f, ok := app.flights.Get(icao, app.ref)
	if !ok {
		return
	}
	if err := app.store.RecordSighting(f); err != nil {
		app.logger.WithError(err).Debug("sighting insert failed")
	}
}

func (app *Application) runExpiry() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-app.ctx.Done():
			return
		case <-ticker.C:
			if removed := app.flights.Expire(app.cfg.ExpireAfter); removed > 0 {
				app.logger.WithField("removed", removed).Info("expired stale flights")
			}
		}
	}
}

func (app *Application) reportStatistics() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-app.ctx.Done():
			return
		case <-ticker.C:
			rejected, lastReject := app.flights.Rejected()
			app.dupMu.Lock()
			dupes := app.duplicates
			app.dupMu.Unlock()

			fields := logrus.Fields{
				"aircraft":   app.flights.Len(),
				"accepted":   app.flights.Accepted(),
				"rejected":   rejected,
				"duplicates": dupes,
			}
			if lastReject != "" {
				fields["last_reject"] = lastReject
			}
			app.logger.WithFields(fields).Info("tracking statistics")
		}
	}
}

func (app *Application) shutdown() {
	app.logger.Info("shutting down")
	app.cancel()

	if app.capture != nil {
		app.capture.Stop()
	}

	done := make(chan struct{})
	go func() {
		app.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		app.logger.Info("all goroutines finished")
	case <-time.After(5 * time.Second):
		app.logger.Warn("shutdown timeout, forcing exit")
	}

	if app.nats != nil {
		app.nats.Close()
	}
	if app.deduper != nil {
		_ = app.deduper.Close()
	}
	if app.store != nil {
		_ = app.store.Close()
	}
	if app.rotator != nil {
		_ = app.rotator.Close()
	}

	app.logger.Info("shutdown completed")
}
