package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/samuelfneumann/pointmass/advisor"
	"github.com/samuelfneumann/pointmass/experiment"
	"github.com/samuelfneumann/pointmass/experiment/tracker"
	"github.com/samuelfneumann/pointmass/server"
	"go.uber.org/zap"
)

func main() {
	configFile := flag.String("config", "", "JSON experiment configuration")
	steps := flag.Int("steps", 0, "steps to train for, 0 for no limit")
	addr := flag.String("addr", "", "serve the HTTP API on this address "+
		"instead of training headless")
	dbPath := flag.String("db", "", "store metrics in this SQLite database")
	plotFile := flag.String("plot", "", "save learning curves to this PNG")
	returnsFile := flag.String("returns", "", "save episodic returns to "+
		"this gob file")
	advisorURL := flag.String("advisor", "", "advisory service URL, or "+
		"\"summary\" for the offline advisor")
	adviseEvery := flag.Int("advise-every", 100, "steps between requests "+
		"for advice")
	interval := flag.Int("interval", 0, "milliseconds between ticks")
	seed := flag.Uint64("seed", 0, "random seed")
	debug := flag.Bool("debug", false, "log at debug level")
	flag.Parse()

	logger, err := newLogger(*debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Load the configuration, letting flags override its values
	config := experiment.DefaultConfig()
	if *configFile != "" {
		if config, err = experiment.LoadConfig(*configFile); err != nil {
			logger.Fatal("could not load config", zap.Error(err))
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "steps":
			config.MaxSteps = *steps
		case "interval":
			config.TickIntervalMs = *interval
		case "seed":
			config.Seed = *seed
		}
	})

	session, err := experiment.NewSession(config)
	if err != nil {
		logger.Fatal("could not create session", zap.Error(err))
	}
	defer session.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Trackers
	window := tracker.NewWindow(config.WindowSize)
	trackers := []tracker.Tracker{window, tracker.NewLogger(logger, 1000)}
	var savers []tracker.Saver

	if *dbPath != "" {
		store := tracker.NewSQLite(*dbPath, logger)
		if err := store.Init(ctx); err != nil {
			logger.Fatal("could not open metric database", zap.Error(err))
		}
		defer store.Close()
		trackers = append(trackers, store)
	}
	if *plotFile != "" {
		p := tracker.NewPlot(*plotFile, 100)
		trackers = append(trackers, p)
		savers = append(savers, p)
	}
	if *returnsFile != "" {
		r := tracker.NewReturn(*returnsFile)
		trackers = append(trackers, r)
		savers = append(savers, r)
	}

	var dispatcher *advisor.Dispatcher
	if *advisorURL != "" {
		var a advisor.Advisor = advisor.NewSummary()
		if !strings.EqualFold(*advisorURL, "summary") {
			a = advisor.NewHTTPClient(*advisorURL,
				&http.Client{Timeout: 30 * time.Second})
		}
		dispatcher = advisor.NewDispatcher(a, *adviseEvery, 30*time.Second,
			logger)
		trackers = append(trackers, dispatcher)
	}

	var progress *tracker.Progress
	if *addr == "" && !*debug {
		progress = tracker.NewProgress(os.Stdout, config.MaxSteps, 50)
		trackers = append(trackers, progress)
	}

	runner := experiment.NewRunner(session, logger, trackers...)

	if *addr != "" {
		srv := server.New(runner, window, dispatcher, logger)
		if err := srv.Run(ctx, *addr); err != nil {
			logger.Error("server failed", zap.Error(err))
		}
	} else {
		if config.MaxSteps == 0 {
			logger.Info("training until interrupted")
		}
		runner.Start()
		go func() {
			<-ctx.Done()
			runner.Stop()
		}()
		if err := runner.Wait(); err != nil {
			logger.Error("training failed", zap.Error(err))
		}
	}
	runner.Stop()

	if progress != nil {
		progress.Close()
	}
	if dispatcher != nil {
		dispatcher.Wait()
		if report, ok := dispatcher.Report(); ok {
			logger.Info("advice", zap.Int("step", report.Step),
				zap.String("report", report.Text))
		}
	}
	for _, s := range savers {
		if err := s.Save(); err != nil {
			logger.Error("could not save data", zap.Error(err))
		}
	}

	status := runner.Status()
	logger.Info("finished", zap.String("run", status.RunID),
		zap.Int("steps", status.Step), zap.Int("episodes", status.Episode))
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
