// Package cmd wires the CLI entrypoint: flag and environment configuration,
// netlist loading, analysis execution and result output.
package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/envelab/macrospice/internal/logger"
	"github.com/envelab/macrospice/pkg/analysis"
	"github.com/envelab/macrospice/pkg/circuit"
	"github.com/envelab/macrospice/pkg/netlist"
	"github.com/envelab/macrospice/pkg/util"
	"github.com/envelab/macrospice/pkg/waveplot"
)

const longHelp = `
Run the analysis a netlist requests and print the results.

Each CLI argument has a corresponding environment variable in the form of the
CLI argument prefixed with MACROSPICE. If both the flag and environment
variable form are specified, the flag form takes precedence.

Examples
  --plot       MACROSPICE_PLOT
  --traces     MACROSPICE_TRACES
`

// EnvNamePrefix defines the environment variable prefix required for all environment configuration.
const EnvNamePrefix = "MACROSPICE"

// RootCommandOptions encompasses all the configurability of the RootCommand.
type RootCommandOptions struct {
	Plot    string `mapstructure:"plot"`
	Traces  string `mapstructure:"traces"`
	Verbose bool   `mapstructure:"verbose"`
}

// RootCommand is the entrypoint command.
type RootCommand struct {
	*cobra.Command
	vpr  *viper.Viper
	Opts RootCommandOptions
}

// NewRootCommand creates new RootCommand instance.
func NewRootCommand() (*RootCommand, error) {
	rootCmd := &RootCommand{
		Command: &cobra.Command{
			Use:          "macrospice <netlist>",
			Long:         longHelp,
			Args:         cobra.ExactArgs(1),
			SilenceUsage: true,
		},
	}

	rootCmd.PreRunE = rootCmd.PreRun
	rootCmd.RunE = rootCmd.Run
	rootCmd.Flags().SortFlags = false

	// Ensure keys with `-` use `_` for env keys else Viper won't match them.
	rootCmd.vpr = viper.NewWithOptions(viper.EnvKeyReplacer(strings.NewReplacer("-", "_")))
	rootCmd.vpr.SetEnvPrefix(EnvNamePrefix)

	if err := rootCmd.configureFlags(); err != nil {
		return nil, err
	}

	return rootCmd, nil
}

// PreRun satisfies cobra.Command.PreRunE and unmarshalls. Its responsible for populating c.Opts.
func (c *RootCommand) PreRun(*cobra.Command, []string) error {
	return c.vpr.Unmarshal(&c.Opts)
}

// Run executes the requested analysis.
func (c *RootCommand) Run(_ *cobra.Command, args []string) error {
	log, err := logger.New(c.Opts.Verbose)
	if err != nil {
		return errors.Errorf("initialize logger: %v", err)
	}
	defer log.Sync() //nolint:errcheck // stderr sync failure is uninteresting

	source, err := os.ReadFile(args[0])
	if err != nil {
		return errors.Wrapf(err, "reading netlist %s", args[0])
	}

	deck, err := netlist.Parse(string(source))
	if err != nil {
		return errors.Wrapf(err, "parsing netlist %s", args[0])
	}
	log.Debug("netlist parsed",
		zap.String("title", deck.Title),
		zap.Int("elements", len(deck.Elements)),
		zap.Int("subckts", len(deck.Subckts)),
	)

	ckt, err := circuit.FromDeck(deck, deck.Analysis == netlist.AnalysisAC)
	if err != nil {
		return errors.Wrap(err, "building circuit")
	}
	defer ckt.Destroy()

	an, err := analysis.FromDeck(deck)
	if err != nil {
		return err
	}
	if err := an.Setup(ckt); err != nil {
		return errors.Wrap(err, "analysis setup")
	}
	if err := an.Execute(); err != nil {
		return errors.Wrap(err, "analysis")
	}

	results := an.GetResults()
	printResults(deck.Title, results)

	if c.Opts.Plot != "" {
		if err := c.renderPlot(results); err != nil {
			return err
		}
		log.Info("plot written", zap.String("path", c.Opts.Plot))
	}
	return nil
}

func (c *RootCommand) renderPlot(results map[string][]float64) error {
	xKey := "TIME"
	switch {
	case len(results["FREQ"]) > 0:
		xKey = "FREQ"
	case len(results["SWEEP"]) > 0:
		xKey = "SWEEP"
	}

	var traces []string
	if c.Opts.Traces != "" {
		for _, t := range strings.Split(c.Opts.Traces, ",") {
			traces = append(traces, strings.TrimSpace(t))
		}
	} else {
		for name := range results {
			if strings.HasPrefix(name, "V(") {
				traces = append(traces, name)
			}
		}
		sort.Strings(traces)
	}

	return waveplot.Render(results, xKey, traces, "", c.Opts.Plot)
}

func (c *RootCommand) configureFlags() error {
	c.Flags().String("plot", "", "Write traces to an image file (.png, .svg or .pdf)")
	c.Flags().String("traces", "", "Comma separated result names to plot; defaults to all node voltages")
	c.Flags().BoolP("verbose", "v", false, "Enable debug logging")

	if err := c.vpr.BindPFlags(c.Flags()); err != nil {
		return err
	}

	var err error
	c.Flags().VisitAll(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		err = c.vpr.BindEnv(f.Name)
	})

	return err
}

// sortedTraceNames splits result names into node voltages and branch currents.
func sortedTraceNames(results map[string][]float64, skip ...string) (voltages, currents []string) {
	skipSet := make(map[string]bool, len(skip))
	for _, s := range skip {
		skipSet[s] = true
	}
	for name := range results {
		if skipSet[name] {
			continue
		}
		switch {
		case strings.HasPrefix(name, "V("):
			voltages = append(voltages, name)
		case strings.HasPrefix(name, "I("):
			currents = append(currents, name)
		}
	}
	sort.Strings(voltages)
	sort.Strings(currents)
	return voltages, currents
}

func printResults(title string, results map[string][]float64) {
	if title != "" {
		fmt.Printf("Circuit: %s\n", title)
	}

	// AC sweep
	if freqs, isAC := results["FREQ"]; isAC {
		fmt.Printf("\nAC Analysis Results (%d frequency points):\n", len(freqs))
		var magNames []string
		for name := range results {
			if strings.HasSuffix(name, "_MAG") {
				magNames = append(magNames, strings.TrimSuffix(name, "_MAG"))
			}
		}
		sort.Strings(magNames)

		for i, freq := range freqs {
			fmt.Printf("%s  ", util.FormatFrequency(freq))
			for _, name := range magNames {
				fmt.Printf("%s=%s<%sdeg  ", name,
					util.FormatMagnitude(results[name+"_MAG"][i]),
					util.FormatPhase(results[name+"_PHASE"][i]))
			}
			fmt.Println()
		}
		return
	}

	// DC sweep
	if sweep, isDC := results["SWEEP"]; isDC {
		fmt.Printf("\nDC Sweep Analysis Results (%d points):\n", len(sweep))
		fmt.Println("Sweep Values    Node Voltages        Branch Currents")
		fmt.Println("------------------------------------------------")

		voltageNames, currentNames := sortedTraceNames(results, "SWEEP")
		for i := range sweep {
			fmt.Printf("V=%-9s  ", util.FormatValueFactor(sweep[i], "V"))
			for _, name := range voltageNames {
				fmt.Printf("%s=%s  ", name, util.FormatValueFactor(results[name][i], "V"))
			}
			for _, name := range currentNames {
				fmt.Printf("%s=%s  ", name, util.FormatValueFactor(results[name][i], "A"))
			}
			fmt.Println()
		}
		return
	}

	// Operating point
	if len(results["TIME"]) <= 1 {
		voltageNames, currentNames := sortedTraceNames(results)
		fmt.Println("\nNode Voltages:")
		for _, name := range voltageNames {
			fmt.Printf("%s = %s\n", name, util.FormatValueFactor(results[name][0], "V"))
		}
		fmt.Println("\nBranch Currents:")
		for _, name := range currentNames {
			fmt.Printf("%s = %s\n", name, util.FormatValueFactor(results[name][0], "A"))
		}
		return
	}

	// Transient
	times := results["TIME"]
	fmt.Printf("\nTransient Analysis Results (%d time points):\n", len(times))
	fmt.Println("Time        Node Voltages        Branch Currents")
	fmt.Println("------------------------------------------------")

	voltageNames, currentNames := sortedTraceNames(results, "TIME")
	for i, t := range times {
		fmt.Printf("%9s  ", util.FormatValueFactor(t, "s"))
		for _, name := range voltageNames {
			fmt.Printf("%s=%s  ", name, util.FormatValueFactor(results[name][i], "V"))
		}
		for _, name := range currentNames {
			fmt.Printf("%s=%s  ", name, util.FormatValueFactor(results[name][i], "A"))
		}
		fmt.Println()
	}
}
