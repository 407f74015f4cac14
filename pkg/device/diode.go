package device

import (
	"fmt"
	"math"

	"github.com/envelab/macrospice/internal/consts"
	"github.com/envelab/macrospice/pkg/matrix"
)

// Diode implements the Shockley equation with temperature-adjusted
// saturation current. Macro-model detector stages are built from these.
type Diode struct {
	BaseDevice
	Is   float64 // saturation current
	N    float64 // emission coefficient
	Cj0  float64 // zero-bias junction capacitance
	M    float64 // grading coefficient
	Vj   float64 // junction potential
	Bv   float64 // breakdown voltage
	Eg   float64 // energy gap (eV)
	Xti  float64 // saturation current temperature exponent
	Tt   float64 // transit time
	Gmin float64

	vd float64 // present junction voltage iterate
	id float64
	gd float64

	vdOld      float64
	idOld      float64
	capCurrent float64
}

var (
	_ NonLinear     = (*Diode)(nil)
	_ TimeDependent = (*Diode)(nil)
)

func NewDiode(name string, nodeNames []string) *Diode {
	d := &Diode{
		BaseDevice: BaseDevice{
			Name:      name,
			Nodes:     make([]int, len(nodeNames)),
			NodeNames: nodeNames,
		},
	}
	d.setDefaultParameters()
	return d
}

func (d *Diode) GetType() string { return "D" }

func (d *Diode) setDefaultParameters() {
	d.Is = 1e-14
	d.N = 1.0
	d.Cj0 = 0.0
	d.M = 0.5
	d.Vj = 1.0
	d.Bv = 100.0
	d.Eg = 1.11 // silicon
	d.Xti = 3.0
	d.Tt = 0.0
	d.Gmin = 1e-12
}

func (d *Diode) SetModelParameters(params map[string]float64) {
	if v, ok := params["is"]; ok {
		d.Is = v
	}
	if v, ok := params["n"]; ok {
		d.N = v
	}
	if v, ok := params["cj0"]; ok {
		d.Cj0 = v
	}
	if v, ok := params["m"]; ok {
		d.M = v
	}
	if v, ok := params["vj"]; ok {
		d.Vj = v
	}
	if v, ok := params["bv"]; ok {
		d.Bv = v
	}
	if v, ok := params["eg"]; ok {
		d.Eg = v
	}
	if v, ok := params["xti"]; ok {
		d.Xti = v
	}
	if v, ok := params["tt"]; ok {
		d.Tt = v
	}
}

func thermalVoltage(temp float64) float64 {
	if temp <= 0 {
		temp = consts.TNOM
	}
	return consts.BOLTZMANN * temp / consts.CHARGE
}

// temperatureAdjustedIs follows the SPICE saturation current scaling:
// Is(T) = Is * (T/Tnom)^(XTI/N) * exp(Eg/Vt * (T/Tnom - 1) / N).
func (d *Diode) temperatureAdjustedIs(temp float64) float64 {
	ratio := temp / consts.TNOM
	vt := thermalVoltage(temp)
	return d.Is * math.Pow(ratio, d.Xti/d.N) * math.Exp(d.Eg/(d.N*vt)*(ratio-1))
}

func (d *Diode) calculateCurrent(vd, temp float64) float64 {
	vt := d.N * thermalVoltage(temp)
	is := d.temperatureAdjustedIs(temp)

	if vd < -d.Bv {
		return -is * (math.Exp(-(d.Bv+vd)/vt) - 1 + d.Bv/vt)
	}
	// Exponent clamp keeps Newton iterates finite.
	arg := vd / vt
	if arg > 80 {
		arg = 80
	}
	return is * (math.Exp(arg) - 1)
}

func (d *Diode) calculateConductance(vd, id, temp float64) float64 {
	vt := d.N * thermalVoltage(temp)
	is := d.temperatureAdjustedIs(temp)

	var gd float64
	if vd < -d.Bv {
		gd = is / vt * math.Exp(-(d.Bv+vd)/vt)
	} else {
		gd = (id + is) / vt
	}
	if gd < d.Gmin {
		gd = d.Gmin
	}
	return gd
}

func (d *Diode) junctionCap(vd float64) float64 {
	if d.Cj0 == 0 {
		return 0
	}
	if vd < 0.5*d.Vj {
		return d.Cj0 / math.Pow(1-vd/d.Vj, d.M)
	}
	// Linear extrapolation above Fc*Vj to avoid the singularity at Vj.
	cHalf := d.Cj0 / math.Pow(0.5, d.M)
	slope := d.M * cHalf / d.Vj / 0.5
	return cHalf + slope*(vd-0.5*d.Vj)
}

func (d *Diode) Stamp(matrix matrix.DeviceMatrix, status *CircuitStatus) error {
	if status.Mode == ACAnalysis {
		return d.StampAC(matrix, status)
	}
	if len(d.Nodes) != 2 {
		return fmt.Errorf("diode %s: requires exactly 2 nodes", d.Name)
	}

	n1, n2 := d.Nodes[0], d.Nodes[1]
	temp := status.TempOrDefault()

	d.id = d.calculateCurrent(d.vd, temp)
	d.gd = d.calculateConductance(d.vd, d.id, temp)

	if status.Mode == TransientAnalysis && status.TimeStep > 0 {
		cd := d.junctionCap(d.vd) + d.Tt*d.gd
		d.capCurrent = cd * (d.vd - d.vdOld) / status.TimeStep
		d.id += d.capCurrent
	}

	// Linearized companion: gd in parallel with ieq = id - gd*vd.
	ieq := d.id - d.gd*d.vd
	if n1 != 0 {
		matrix.AddElement(n1, n1, d.gd)
		if n2 != 0 {
			matrix.AddElement(n1, n2, -d.gd)
		}
		matrix.AddRHS(n1, -ieq)
	}
	if n2 != 0 {
		if n1 != 0 {
			matrix.AddElement(n2, n1, -d.gd)
		}
		matrix.AddElement(n2, n2, d.gd)
		matrix.AddRHS(n2, ieq)
	}

	return nil
}

func (d *Diode) StampAC(matrix matrix.DeviceMatrix, status *CircuitStatus) error {
	n1, n2 := d.Nodes[0], d.Nodes[1]
	omega := 2 * math.Pi * status.Frequency

	// Small-signal admittance around the operating point: gd + jwCj.
	b := omega * d.junctionCap(d.vd)
	if n1 != 0 {
		matrix.AddComplexElement(n1, n1, d.gd, b)
		if n2 != 0 {
			matrix.AddComplexElement(n1, n2, -d.gd, -b)
		}
	}
	if n2 != 0 {
		if n1 != 0 {
			matrix.AddComplexElement(n2, n1, -d.gd, -b)
		}
		matrix.AddComplexElement(n2, n2, d.gd, b)
	}

	return nil
}

func (d *Diode) UpdateVoltages(voltages []float64) error {
	if len(d.Nodes) != 2 {
		return fmt.Errorf("diode %s: requires exactly 2 nodes", d.Name)
	}

	vnew := nodePairVoltage(voltages, d.Nodes[0], d.Nodes[1])

	// Junction voltage limiting damps Newton overshoot.
	vt := d.N * thermalVoltage(consts.TNOM)
	vcrit := vt * math.Log(vt/(math.Sqrt2*d.Is))
	if vnew > vcrit && math.Abs(vnew-d.vd) > 2*vt {
		if d.vd > 0 {
			arg := (vnew - d.vd) / vt
			if arg > 0 {
				vnew = d.vd + vt*math.Log(1+arg)
			} else {
				vnew = vcrit
			}
		} else {
			vnew = vt * math.Log(vnew/vt)
		}
	}

	d.vd = vnew
	return nil
}

func (d *Diode) SetTimeStep(dt float64) {}

func (d *Diode) UpdateState(voltages []float64, status *CircuitStatus) {
	d.vdOld = d.vd
	d.idOld = d.id - d.capCurrent // DC portion only
	d.capCurrent = 0
}

func (d *Diode) CalculateLTE(voltages map[string]float64, status *CircuitStatus) float64 {
	return math.Abs(d.vd-d.vdOld) / 10
}
