package consts

const (
	CHARGE    = 1.6021918e-19 // Elementary charge (C)
	BOLTZMANN = 1.3806226e-23 // Boltzmann constant (J/K)
	KELVIN    = 273.15        // 0 degC in Kelvin (K)
	TNOM      = 300.15        // Nominal temperature, 27 degC (K)
)
