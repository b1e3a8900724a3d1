package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/bleadv/internal/advertise"
	"github.com/srg/bleadv/internal/controller/sim"
	"github.com/srg/bleadv/internal/manager"
	"github.com/srg/bleadv/pkg/config"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <scenario.yaml>",
	Short: "Run an advertising scenario against the simulated controller",
	Long: `Run a YAML scenario of start, stop and clear requests through the advertise
manager against a simulated multi-instance controller, then print every
reported start result and the clients left advertising.

Controller faults (nack, drop, reject) can be injected per command kind to
exercise timeouts and failure handling.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

var (
	runFormat string
	runTrace  bool
)

func init() {
	runCmd.Flags().StringVarP(&runFormat, "format", "f", "", "Output format (table, json); defaults to output_format from config")
	runCmd.Flags().BoolVar(&runTrace, "trace", false, "Include the controller command trace with HCI packets")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	format := cfg.OutputFormat
	if runFormat != "" {
		format = runFormat
	}
	if format != "table" && format != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", format)
	}

	sc, err := LoadScenario(args[0])
	if err != nil {
		return err
	}

	logger := configureLogger(cmd, cfg)

	ctx, cancel := signal.NotifyContext(contextOf(cmd), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	report, err := runScenario(ctx, cfg, logger, sc)
	if err != nil {
		return err
	}

	if format == "json" {
		return writeReportJSON(cmd.OutOrStdout(), report, runTrace)
	}
	return writeReportTable(cmd.OutOrStdout(), report, runTrace)
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// runReport is what a scenario run produced.
type runReport struct {
	Results []manager.Result
	Active  []int
	Trace   []sim.Record
	Dropped int64
}

// runScenario wires a simulated controller to a manager, plays the steps
// and collects every start result.
func runScenario(ctx context.Context, cfg *config.Config, logger *logrus.Logger, sc *Scenario) (*runReport, error) {
	ctrl := sim.New(sim.Options{
		MaxInstances: cfg.Controller.MaxInstances,
		AckLatency:   cfg.Controller.AckLatency,
		DeviceName:   cfg.Controller.DeviceName,
		Logger:       logger,
	})
	defer ctrl.Close()

	for _, f := range sc.Faults {
		ctrl.Inject(f.Op, sim.Fault(f.Fault))
	}

	starts := 0
	for _, step := range sc.Steps {
		if step.Start != nil {
			starts++
		}
	}

	feed := manager.NewFeed(starts + 1)
	mgr := manager.New(ctrl, manager.Reporters(feed, &manager.LogReporter{Logger: logger}), &manager.Options{
		OperationTimeout:      cfg.OperationTimeout,
		QueueSize:             cfg.QueueSize,
		ConfirmStop:           cfg.ConfirmStop,
		DisableOnPartialStart: cfg.DisableOnPartialStart,
		OrphanAckWindow:       cfg.OrphanAckWindow,
		Logger:                logger,
	})
	ctrl.OnAck(mgr.OnControllerAck)

	if err := mgr.Open(); err != nil {
		return nil, err
	}
	defer mgr.Close()

	report := &runReport{}
	pending := 0

	collect := func() error {
		// Each start takes at most three round trips; a confirmed stop one.
		budget := time.Duration(4*(pending+mgr.Pending()+1)) * cfg.OperationTimeout
		waitCtx, cancel := context.WithTimeout(ctx, budget)
		defer cancel()

		for pending > 0 {
			res, err := feed.Next(waitCtx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("%w: %d start(s) unreported after %s", ErrResultsMissing, pending, budget)
			}
			report.Results = append(report.Results, res)
			pending--
		}
		return nil
	}

	for i, step := range sc.Steps {
		log := logger.WithField("step", i+1)
		switch {
		case step.Start != nil:
			client := step.Start.Client()
			log.WithField("client", client).Debug("Submitting start")
			if err := mgr.StartAdvertising(ctx, client); err != nil {
				return nil, fmt.Errorf("step %d: %w", i+1, err)
			}
			pending++
		case step.Stop != nil:
			log.WithField("client_id", *step.Stop).Debug("Submitting stop")
			if err := mgr.StopAdvertising(ctx, &advertise.Client{ID: *step.Stop}); err != nil {
				return nil, fmt.Errorf("step %d: %w", i+1, err)
			}
		case step.Clear:
			if err := mgr.Clear(ctx); err != nil {
				return nil, fmt.Errorf("step %d: %w", i+1, err)
			}
		case step.Wait > 0:
			select {
			case <-time.After(step.Wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		case step.Sync:
			if err := collect(); err != nil {
				return nil, err
			}
		}
	}

	if err := collect(); err != nil {
		return nil, err
	}
	// Trailing stops and clears report nothing.
	if err := mgr.Flush(ctx); err != nil {
		return nil, err
	}

	report.Active = mgr.Active()
	report.Trace = ctrl.Records()
	report.Dropped = feed.Dropped()
	log := logger.WithFields(logrus.Fields{
		"reported": feed.Reported(),
		"dropped":  report.Dropped,
		"active":   len(report.Active),
	})
	if report.Dropped > 0 {
		log.Warn("Result feed overflowed, oldest results lost")
	} else {
		log.Debug("Scenario finished")
	}
	return report, nil
}

func statusColor(s advertise.Status) *color.Color {
	switch s {
	case advertise.StatusSuccess:
		return color.New(color.FgGreen)
	case advertise.StatusInternalError:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgYellow)
	}
}

func writeReportTable(out io.Writer, r *runReport, trace bool) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CLIENT\tSTATUS")
	for _, res := range r.Results {
		fmt.Fprintf(w, "%d\t%s\n", res.ClientID, statusColor(res.Status).Sprint(res.Status))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nActive clients: %s\n", joinIDs(r.Active))

	if !trace {
		return nil
	}
	fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "OP\tCLIENT\tHCI")
	for _, rec := range r.Trace {
		packets := hexPackets(rec.Packets)
		if len(packets) == 0 {
			packets = []string{"-"}
		}
		fmt.Fprintf(w, "%s\t%d\t%s\n", rec.Op, rec.ClientID, packets[0])
		for _, p := range packets[1:] {
			fmt.Fprintf(w, "\t\t%s\n", p)
		}
	}
	return w.Flush()
}

type resultJSON struct {
	ClientID int       `json:"client_id"`
	Status   string    `json:"status"`
	At       time.Time `json:"at"`
}

type traceJSON struct {
	Op       sim.Op   `json:"op"`
	ClientID int      `json:"client_id"`
	HCI      []string `json:"hci"`
}

type reportJSON struct {
	Results []resultJSON `json:"results"`
	Active  []int        `json:"active"`
	Trace   []traceJSON  `json:"trace,omitempty"`
}

func writeReportJSON(out io.Writer, r *runReport, trace bool) error {
	doc := reportJSON{
		Results: make([]resultJSON, 0, len(r.Results)),
		Active:  append([]int{}, r.Active...),
	}
	for _, res := range r.Results {
		doc.Results = append(doc.Results, resultJSON{ClientID: res.ClientID, Status: res.Status.String(), At: res.At})
	}
	if trace {
		for _, rec := range r.Trace {
			doc.Trace = append(doc.Trace, traceJSON{Op: rec.Op, ClientID: rec.ClientID, HCI: hexPackets(rec.Packets)})
		}
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(doc)
}

func hexPackets(packets [][]byte) []string {
	out := make([]string, len(packets))
	for i, p := range packets {
		out[i] = hex.EncodeToString(p)
	}
	return out
}

func joinIDs(ids []int) string {
	if len(ids) == 0 {
		return "none"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, ", ")
}
