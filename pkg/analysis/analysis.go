// Package analysis implements the solver drivers: operating point,
// transient, AC sweep and DC sweep over an assembled circuit.
package analysis

import (
	"math"
	"math/cmplx"

	"github.com/pkg/errors"

	"github.com/envelab/macrospice/pkg/circuit"
	"github.com/envelab/macrospice/pkg/netlist"
	"github.com/envelab/macrospice/pkg/util"
)

type Analysis interface {
	Setup(ckt *circuit.Circuit) error
	Execute() error
	GetResults() map[string][]float64
}

// FromDeck constructs the analysis the deck's directive asks for.
func FromDeck(deck *netlist.Deck) (Analysis, error) {
	switch deck.Analysis {
	case AnalysisKindOP:
		return NewOP(), nil
	case AnalysisKindTRAN:
		return NewTransient(deck.Tran.TStart, deck.Tran.TStop, deck.Tran.TStep, deck.Tran.TMax, deck.Tran.UIC), nil
	case AnalysisKindAC:
		return NewAC(deck.AC.FStart, deck.AC.FStop, deck.AC.Points, deck.AC.Sweep), nil
	case AnalysisKindDC:
		return NewDCSweep(deck.DC.Source, deck.DC.Start, deck.DC.Stop, deck.DC.Increment), nil
	}
	return nil, errors.Errorf("unknown analysis type %d", deck.Analysis)
}

// Aliases keep the dispatch switch readable without importing netlist
// constants everywhere.
const (
	AnalysisKindOP   = netlist.AnalysisOP
	AnalysisKindTRAN = netlist.AnalysisTRAN
	AnalysisKindAC   = netlist.AnalysisAC
	AnalysisKindDC   = netlist.AnalysisDC
)

type BaseAnalysis struct {
	Circuit     *circuit.Circuit
	results     map[string][]float64
	convergence struct {
		maxIter int
		abstol  float64
		reltol  float64
		gmin    float64
	}
}

func NewBaseAnalysis() *BaseAnalysis {
	ba := &BaseAnalysis{results: make(map[string][]float64)}

	ba.convergence.maxIter = 100
	ba.convergence.abstol = 1e-12
	ba.convergence.reltol = 1e-6
	ba.convergence.gmin = 1e-12

	return ba
}

// StoreTimeResult appends a timepoint, skipping duplicates that arise when a
// rejected step lands back on the same rounded time.
func (a *BaseAnalysis) StoreTimeResult(time float64, solution map[string]float64) {
	if n := len(a.results["TIME"]); n > 0 {
		lastTime := a.results["TIME"][n-1]
		if time == lastTime || util.FormatValueFactor(time, "s") == util.FormatValueFactor(lastTime, "s") {
			return
		}
	}

	a.results["TIME"] = append(a.results["TIME"], time)
	for name, value := range solution {
		a.results[name] = append(a.results[name], value)
	}
}

func (a *BaseAnalysis) StoreACResult(freq float64, solution map[string]complex128) {
	a.results["FREQ"] = append(a.results["FREQ"], freq)

	for name, value := range solution {
		a.results[name+"_MAG"] = append(a.results[name+"_MAG"], cmplx.Abs(value))
		a.results[name+"_PHASE"] = append(a.results[name+"_PHASE"], cmplx.Phase(value)*180.0/math.Pi)
	}
}

func (a *BaseAnalysis) GetResults() map[string][]float64 {
	return a.results
}

func (a *BaseAnalysis) storeResults(solution []float64) {
	for name, idx := range a.Circuit.GetNodeMap() {
		a.results["V("+name+")"] = append(a.results["V("+name+")"], solution[idx])
	}
	for name, idx := range a.Circuit.GetBranchMap() {
		a.results["I("+name+")"] = append(a.results["I("+name+")"], -solution[idx])
	}
}
