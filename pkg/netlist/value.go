package netlist

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/envelab/macrospice/pkg/expr"
)

var unitMap = map[string]float64{
	"t":   1e12,
	"g":   1e9,
	"meg": 1e6,
	"k":   1e3,
	"m":   1e-3,
	"u":   1e-6,
	"n":   1e-9,
	"p":   1e-12,
	"f":   1e-15,
}

var valueRe = regexp.MustCompile(`^([-+]?\d*\.?\d+(?:[eE][-+]?\d+)?)(meg|[tgkmunpf])?[a-z]*$`)

// ParseValue converts an engineering-notation literal, e.g. "1k" -> 1000,
// "3n" -> 3e-9, "2.5meg" -> 2.5e6. A trailing unit letter is tolerated.
func ParseValue(val string) (float64, error) {
	matches := valueRe.FindStringSubmatch(strings.ToLower(strings.TrimSpace(val)))
	if matches == nil {
		return 0, errors.Errorf("invalid value format: %s", val)
	}

	num, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, err
	}

	if matches[2] != "" {
		num *= unitMap[matches[2]]
	}
	return num, nil
}

// evalValueToken resolves a value field that is either a literal or a brace
// expression over parameters, e.g. "{rload*2}".
func evalValueToken(tok string, params map[string]float64) (float64, error) {
	if !strings.HasPrefix(tok, "{") {
		return ParseValue(tok)
	}
	src := strings.TrimSuffix(strings.TrimPrefix(tok, "{"), "}")
	compiled, err := expr.Compile(src)
	if err != nil {
		return 0, err
	}
	return compiled.Eval(&expr.Env{Params: params})
}
