// Package macromodel loads vendor behavioral macro-model netlists and wraps
// them in a simulation harness. A macro-model file is an ordinary netlist
// whose payload is one or more .subckt blocks; the harness adds an input
// source, an instance and a load so the model can be driven through a
// transient analysis.
package macromodel

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/envelab/macrospice/pkg/netlist"
)

//go:embed models/logamp.cir
var logampSource string

// Model is one .subckt macro-model together with the file text it came
// from. The text is kept verbatim so harness decks re-parse the vendor
// cards untouched.
type Model struct {
	Name  string
	Ports []string
	text  string
}

// HarnessOptions control the circuit built around a model instance.
type HarnessOptions struct {
	Load      float64            // load resistance at the output port; 1Meg when zero
	TStep     float64            // transient step; derived from the stimulus when zero
	TStop     float64            // transient stop; last stimulus time when zero
	Overrides map[string]float64 // instance parameter overrides
}

// Harness builds a deck that drives the model's first port with a PWL
// source, loads its second port, and requests a transient analysis.
// Ports beyond the second are tied to ground.
func (m *Model) Harness(times, values []float64, opts HarnessOptions) (*netlist.Deck, error) {
	if len(m.Ports) < 2 {
		return nil, errors.Errorf("model %s has %d port(s), need an input and an output", m.Name, len(m.Ports))
	}
	if len(times) < 2 || len(times) != len(values) {
		return nil, errors.Errorf("stimulus needs matching time/value slices with at least two points, got %d/%d", len(times), len(values))
	}

	load := opts.Load
	if load == 0 {
		load = 1e6
	}
	tstop := opts.TStop
	if tstop == 0 {
		tstop = times[len(times)-1]
	}
	tstep := opts.TStep
	if tstep == 0 {
		tstep = (times[len(times)-1] - times[0]) / float64(len(times)-1)
	}
	if tstep <= 0 || tstop <= 0 {
		return nil, errors.Errorf("harness needs positive tstep/tstop, got %g/%g", tstep, tstop)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "* harness for %s\n", m.Name)
	b.WriteString(m.text)
	if !strings.HasSuffix(m.text, "\n") {
		b.WriteByte('\n')
	}

	b.WriteString("vin in 0 pwl(")
	for i := range times {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(formatFloat(times[i]))
		b.WriteByte(' ')
		b.WriteString(formatFloat(values[i]))
	}
	b.WriteString(")\n")

	fmt.Fprintf(&b, "x1 in out%s %s%s\n", strings.Repeat(" 0", len(m.Ports)-2), m.Name, formatOverrides(opts.Overrides))
	fmt.Fprintf(&b, "rload out 0 %s\n", formatFloat(load))
	fmt.Fprintf(&b, ".tran %s %s uic\n", formatFloat(tstep), formatFloat(tstop))
	b.WriteString(".end\n")

	deck, err := netlist.Parse(b.String())
	if err != nil {
		return nil, errors.Wrapf(err, "assembling harness for %s", m.Name)
	}
	return deck, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatOverrides(overrides map[string]float64) string {
	if len(overrides) == 0 {
		return ""
	}
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%s", k, formatFloat(overrides[k]))
	}
	return b.String()
}

// Library holds macro-models loaded from vendor files, keyed by subckt name.
type Library struct {
	models map[string]*Model
}

func NewLibrary() *Library {
	return &Library{models: make(map[string]*Model)}
}

// Load reads one macro-model file and registers every .subckt it defines.
func (l *Library) Load(r io.Reader) error {
	text, err := io.ReadAll(r)
	if err != nil {
		return errors.Wrap(err, "reading macro-model")
	}
	return l.loadText(string(text))
}

func (l *Library) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "opening macro-model %s", path)
	}
	defer f.Close()

	if err := l.Load(f); err != nil {
		return errors.Wrapf(err, "loading macro-model %s", path)
	}
	return nil
}

func (l *Library) loadText(text string) error {
	deck, err := netlist.Parse(text)
	if err != nil {
		return err
	}
	if len(deck.Subckts) == 0 {
		return errors.New("macro-model file defines no .subckt")
	}

	for name, sub := range deck.Subckts {
		if _, exists := l.models[name]; exists {
			return errors.Errorf("duplicate macro-model %s", name)
		}
		l.models[name] = &Model{
			Name:  name,
			Ports: append([]string(nil), sub.Ports...),
			text:  text,
		}
	}
	return nil
}

// Get returns a loaded model by its subckt name (case-insensitive).
func (l *Library) Get(name string) (*Model, error) {
	m, ok := l.models[strings.ToLower(name)]
	if !ok {
		return nil, errors.Errorf("macro-model %q not loaded", name)
	}
	return m, nil
}

// Names lists the loaded models in sorted order.
func (l *Library) Names() []string {
	names := make([]string, 0, len(l.models))
	for name := range l.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LogAmp returns the bundled logarithmic amplifier macro-model.
func LogAmp() *Model {
	lib := NewLibrary()
	if err := lib.loadText(logampSource); err != nil {
		panic("embedded logamp model: " + err.Error())
	}
	m, err := lib.Get("logamp")
	if err != nil {
		panic("embedded logamp model: " + err.Error())
	}
	return m
}
