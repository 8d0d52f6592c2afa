package commands

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sampleforge/mhrw/pkg/binning"
	"github.com/sampleforge/mhrw/pkg/collector"
	"github.com/sampleforge/mhrw/pkg/config"
	"github.com/sampleforge/mhrw/pkg/controller"
	"github.com/sampleforge/mhrw/pkg/dispatcher"
	"github.com/sampleforge/mhrw/pkg/histogram"
	"github.com/sampleforge/mhrw/pkg/mhrw"
	"github.com/sampleforge/mhrw/pkg/mhrwutil"
	"github.com/sampleforge/mhrw/pkg/observability"
	"github.com/sampleforge/mhrw/pkg/status"
	"github.com/sampleforge/mhrw/pkg/task"
	"github.com/sampleforge/mhrw/pkg/valuecalc"
	"github.com/sampleforge/mhrw/pkg/walker"
)

// runOptions collects the run subcommand's flags.
type runOptions struct {
	configPath  string
	format      string
	outFile     string
	otlp        string
	logJSON     bool
	metricsAddr string
}

// NewRunCommand builds the "run" subcommand: it wires a toy Gaussian
// walker through the full dispatcher/driver stack and renders the
// resulting averaged histogram, per SPEC_FULL.md §10.
func NewRunCommand() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the demo Gaussian random walk and print the resulting histogram",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDemo(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.configPath, "config", "", "path to a YAML config file (defaults: ./mhrw.yaml, env MHRW_*)")
	cmd.Flags().StringVar(&opts.format, "format", "table", "output format for the final histogram: table or plot")
	cmd.Flags().StringVar(&opts.outFile, "out", "mhrw_histogram.html", "HTML output path when --format plot")
	cmd.Flags().StringVar(&opts.otlp, "otlp-endpoint", "", "OTLP gRPC collector endpoint (unset falls back to an in-process Prometheus registry)")
	cmd.Flags().BoolVar(&opts.logJSON, "log-json", true, "emit logs as JSON")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "address to serve the in-process Prometheus registry on (e.g. :9090); unset disables it")

	return cmd
}

func runDemo(cmd *cobra.Command, opts *runOptions) error {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	obsCfg := observability.DefaultConfig()
	obsCfg.Mode = observability.ModeDemo
	obsCfg.ServiceName = cfg.Observability.ServiceName
	obsCfg.ServiceVersion = cfg.Observability.ServiceVersion
	obsCfg.Environment = cfg.Observability.Environment
	obsCfg.OTLPEndpoint = opts.otlp
	obsCfg.OTLPInsecure = cfg.Observability.OTLPInsecure
	obsCfg.DebugTrace = cfg.Observability.DebugTrace
	obsCfg.SampleRatio = cfg.Observability.SampleRatio
	obsCfg.LogJSON = opts.logJSON

	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(cfg.Observability.LogLevel)); err == nil {
		obsCfg.LogLevel = lvl
	}

	providers, err := observability.Init(obsCfg)
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}

	defer func() {
		if shutdownErr := providers.Shutdown(cmd.Context()); shutdownErr != nil {
			slog.Error("observability shutdown failed", "error", shutdownErr)
		}
	}()

	if opts.metricsAddr != "" && providers.PrometheusHandler != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", providers.PrometheusHandler)

		metricsSrv := &http.Server{Addr: opts.metricsAddr, Handler: mux}

		go func() {
			if srvErr := metricsSrv.ListenAndServe(); srvErr != nil && srvErr != http.ErrServerClosed {
				slog.Error("metrics server failed", "error", srvErr)
			}
		}()

		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if shutdownErr := metricsSrv.Shutdown(shutdownCtx); shutdownErr != nil {
				slog.Error("metrics server shutdown failed", "error", shutdownErr)
			}
		}()

		color.Cyan("mhrwdemo: serving Prometheus metrics on %s/metrics", opts.metricsAddr)
	}

	taskMetrics, err := observability.NewTaskMetrics(providers.Meter)
	if err != nil {
		return fmt.Errorf("init task metrics: %w", err)
	}

	cdata := buildCData(cfg, providers, taskMetrics)

	disp, err := dispatcher.New(cdata, cfg.Dispatcher.NumWorkers)
	if err != nil {
		return fmt.Errorf("build dispatcher: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		if _, ok := <-sigCh; ok {
			color.Yellow("mhrwdemo: interrupt received, requesting cooperative shutdown...")
			disp.RequestInterrupt()
		}
	}()
	defer signal.Stop(sigCh)

	avg, _, runErr := disp.Run(cfg.Dispatcher.NumTasks, dispatcher.Options{
		PeriodicInterval: cfg.Dispatcher.StatusReportInterval,
		OnReport: func(r status.FullStatusReport) {
			fmt.Fprint(os.Stderr, r.Render(mhrwutil.FormatDuration(time.Duration(r.ElapsedSeconds*float64(time.Second)))))
		},
	})
	close(sigCh)

	if runErr != nil {
		return fmt.Errorf("run: %w", runErr)
	}

	return renderResult(avg, opts)
}

// buildCData assembles the shared, read-only task.CData template: the
// Gaussian walker, the binning-analysis-backed value histogram, and
// the step-size/bins-converged controller pipeline, per SPEC_FULL.md
// §10 steps 1-2.
func buildCData(
	cfg *config.EngineConfig, providers observability.Providers, taskMetrics *observability.TaskMetrics,
) *task.CData[float64, *gaussianWalkerParams] {
	histParams := histogram.Params{Min: cfg.Histogram.Min, Max: cfg.Histogram.Max, NumBins: cfg.Histogram.NumBins}
	binParams := binning.Params{
		NumTracked: cfg.Histogram.NumBins,
		NumLevels:  cfg.Binning.NumLevels,
		TailLevels: cfg.Binning.TailLevels,
		RelTol:     cfg.Binning.RelTol,
	}

	calc := valuecalc.Func[float64](func(pt float64) float64 { return pt })

	// handoff passes the moving-average acceptance-ratio collector and
	// the binning-backed value histogram created alongside the task's
	// domain collector to that same task's controller closure, keyed
	// by the task's own *rand.Rand (created exactly once per Task.Run
	// and passed unchanged to both NewCollector and NewController, so
	// the key never collides across concurrently running tasks).
	var handoff sync.Map

	return &task.CData[float64, *gaussianWalkerParams]{
		BaseSeed: cfg.Dispatcher.BaseSeed,
		Params: &mhrw.Params[*gaussianWalkerParams]{
			Walker:  &gaussianWalkerParams{Step: cfg.Walk.InitialStepSize},
			NSweepV: cfg.Walk.NSweep,
			NThermV: cfg.Walk.NTherm,
			NRunV:   cfg.Walk.NRun,
		},
		NewWalker: func(rng *rand.Rand) walker.Walker[float64, *gaussianWalkerParams] {
			return newGaussianWalker(rng)
		},
		NewCollector: func(rng *rand.Rand) collector.Collector[float64] {
			binColl, err := collector.NewValueHistogramWithBinningCollector(histParams, binParams, calc)
			if err != nil {
				panic(fmt.Sprintf("mhrwdemo: %v", err))
			}

			maBuf := collector.NewMovingAverageAcceptanceRatioCollector[float64](int(cfg.Walk.NSweep) * 16)
			handoff.Store(rng, &taskHandoff{maBuf: maBuf, binColl: binColl})

			return &demoCollector{
				Multiple: collector.NewMultiple[float64](binColl, maBuf),
				binning:  binColl,
			}
		},
		NewController: func(rng *rand.Rand) controller.Pipeline {
			h, _ := handoff.LoadAndDelete(rng)
			hooks := h.(*taskHandoff)

			stepAdj := controller.NewStepSizeAdjuster(hooks.maBuf, cfg.StepAdjuster.Period).
				WithBand(cfg.StepAdjuster.RLo, cfg.StepAdjuster.RHi)

			binsConv := controller.NewBinsConvergedController(
				controller.ConvergenceSourceFunc(hooks.binColl.ConvergenceCounts),
			).
				WithThresholds(cfg.BinsConverged.MaxUnknown, cfg.BinsConverged.MaxUnknownIsolated, cfg.BinsConverged.MaxNotConverged).
				WithPollPeriod(cfg.BinsConverged.PollPeriodSweeps)

			return controller.NewMultiple(stepAdj, binsConv)
		},
		StartPoint: func(rng *rand.Rand) float64 { return 0 },
		Tracer:     providers.Tracer,
		Metrics:    taskMetrics,
	}
}

// taskHandoff carries the per-task objects NewCollector builds that
// NewController's closure also needs a reference to: the moving-average
// acceptance-ratio buffer StepSizeAdjuster reads, and the binning
// collector BinsConvergedController polls.
type taskHandoff struct {
	maBuf   *collector.MovingAverageAcceptanceRatioCollector[float64]
	binColl *collector.ValueHistogramWithBinningCollector[float64]
}

// demoCollector composes the binning-backed value histogram with the
// moving-average acceptance-ratio collector the step-size controller
// reads from, while still exposing FinalHistogram so the dispatcher
// can aggregate this task's result.
type demoCollector struct {
	*collector.Multiple[float64]
	binning *collector.ValueHistogramWithBinningCollector[float64]
}

func (c *demoCollector) FinalHistogram() *histogram.WithErrorBars {
	return c.binning.FinalHistogram()
}

// renderResult prints the final averaged histogram as a table, or
// writes it as an HTML chart when --format plot is set.
func renderResult(avg *histogram.Averaged, opts *runOptions) error {
	if avg == nil {
		color.Red("mhrwdemo: no tasks completed, nothing to report")

		return nil
	}

	switch opts.format {
	case "plot":
		page := histogram.FormatHistogramHTML(avg.AsHistogram(), avg.Delta, "mhrwdemo final histogram")

		f, err := os.Create(opts.outFile)
		if err != nil {
			return fmt.Errorf("create %s: %w", opts.outFile, err)
		}
		defer f.Close()

		if err := page.Render(f); err != nil {
			return fmt.Errorf("render plot: %w", err)
		}

		color.Green("mhrwdemo: wrote %s", opts.outFile)

		return nil
	default:
		color.Cyan("=== Final averaged histogram (%d runs) ===", avg.NumHistograms())
		fmt.Println(histogram.FormatTable(avg.AsHistogram(), avg.Delta))

		return nil
	}
}
