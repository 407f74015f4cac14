// Package netlist parses SPICE-style circuit decks: elements, sources,
// models, subcircuits and analysis directives. The grammar follows the
// common simulator dialect that vendor macro-model files are written in.
package netlist

import (
	"bufio"
	"strings"

	"github.com/pkg/errors"

	"github.com/envelab/macrospice/internal/consts"
	"github.com/envelab/macrospice/pkg/device"
)

type AnalysisType int

const (
	AnalysisOP AnalysisType = iota
	AnalysisTRAN
	AnalysisAC
	AnalysisDC
)

// Element is one parsed circuit element. Nodes and names are lowercased so
// behavioral expressions can reference them case-insensitively.
type Element struct {
	Type     string            // R, C, L, V, I, D, E, G, B, X
	Name     string
	Nodes    []string
	Value    float64
	ValueStr string            // brace expression for the value, "" if literal
	Params   map[string]string
	Scope    map[string]float64 // parameter scope, set by subckt expansion
	Aliases  map[string]string  // subckt port -> instance node, set by expansion
	Prefix   string             // owning instance name, "" at top level
}

type TranSpec struct {
	TStep  float64
	TStop  float64
	TStart float64
	TMax   float64
	UIC    bool
}

type ACSpec struct {
	Sweep  string // DEC, OCT, LIN
	Points int
	FStart float64
	FStop  float64
}

type DCSpec struct {
	Source    string
	Start     float64
	Stop      float64
	Increment float64
}

// Deck is a fully parsed netlist.
type Deck struct {
	Title    string
	Elements []Element
	Models   map[string]device.ModelParam
	Params   map[string]float64
	Subckts  map[string]*Subckt
	Temp     float64 // Kelvin; TNOM unless .temp was given
	Analysis AnalysisType
	Tran     TranSpec
	AC       ACSpec
	DC       DCSpec

	current *Subckt // non-nil while inside .subckt/.ends
}

// Parse reads a netlist. The first line is the title, `*` starts a comment,
// `+` continues the previous line.
func Parse(input string) (*Deck, error) {
	deck := &Deck{
		Models:  make(map[string]device.ModelParam),
		Params:  make(map[string]float64),
		Subckts: make(map[string]*Subckt),
		Temp:    consts.TNOM,
	}

	scanner := bufio.NewScanner(strings.NewReader(input))
	if scanner.Scan() {
		deck.Title = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(scanner.Text()), "*"))
	}

	lineNo := 1
	pendingNo := 0
	var pending string

	flush := func() error {
		if pending == "" {
			return nil
		}
		err := deck.parseLine(pending)
		pending = ""
		if err != nil {
			return errors.Wrapf(err, "line %d", pendingNo)
		}
		return nil
	}

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		// Trailing comments start with ';'. An in-line '*' stays untouched
		// because behavioral expressions multiply with it.
		if idx := strings.Index(line, ";"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}

		if line == "" || strings.HasPrefix(line, "*") {
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		}

		if strings.HasPrefix(line, "+") {
			if pending == "" {
				return nil, errors.Errorf("line %d: continuation with no preceding line", lineNo)
			}
			pending += " " + strings.TrimSpace(line[1:])
			continue
		}

		if err := flush(); err != nil {
			return nil, err
		}
		pending = line
		pendingNo = lineNo
	}
	if err := flush(); err != nil {
		return nil, err
	}

	if deck.current != nil {
		return nil, errors.Errorf("unterminated .subckt %s", deck.current.Name)
	}
	return deck, nil
}

func (d *Deck) parseLine(line string) error {
	line = strings.Join(strings.Fields(line), " ")

	if strings.HasPrefix(line, ".") {
		return d.parseDotCommand(line)
	}

	elem, err := parseElement(line)
	if err != nil {
		return err
	}

	if d.current != nil {
		d.current.Elements = append(d.current.Elements, *elem)
		return nil
	}
	d.Elements = append(d.Elements, *elem)
	return nil
}

func (d *Deck) parseDotCommand(line string) error {
	fields := strings.Fields(line)
	cmd := strings.ToLower(fields[0])

	switch cmd {
	case ".subckt":
		return d.beginSubckt(fields[1:])
	case ".ends":
		return d.endSubckt()
	}

	if d.current != nil {
		// Macro-model files commonly embed models inside the subcircuit;
		// those are hoisted to the deck. Other directives are rejected.
		if cmd == ".model" {
			return d.parseModel(fields[1:])
		}
		return errors.Errorf("%s not allowed inside .subckt", cmd)
	}

	switch cmd {
	case ".model":
		return d.parseModel(fields[1:])
	case ".param":
		return d.parseParam(fields[1:])
	case ".temp":
		if len(fields) < 2 {
			return errors.New(".temp requires a temperature")
		}
		celsius, err := ParseValue(fields[1])
		if err != nil {
			return errors.Wrap(err, "invalid .temp value")
		}
		d.Temp = celsius + consts.KELVIN
		return nil
	case ".op":
		d.Analysis = AnalysisOP
		return nil
	case ".tran":
		return d.parseTran(fields[1:])
	case ".ac":
		return d.parseAC(fields[1:])
	case ".dc":
		return d.parseDC(fields[1:])
	case ".end":
		return nil
	}
	return errors.Errorf("unsupported directive: %s", fields[0])
}

func (d *Deck) parseParam(fields []string) error {
	for _, field := range fields {
		name, valStr, ok := strings.Cut(field, "=")
		if !ok {
			return errors.Errorf("malformed .param entry %q", field)
		}
		val, err := evalValueToken(strings.TrimSpace(valStr), d.Params)
		if err != nil {
			return errors.Wrapf(err, "parameter %s", name)
		}
		d.Params[strings.ToLower(strings.TrimSpace(name))] = val
	}
	return nil
}

func (d *Deck) parseTran(fields []string) error {
	d.Analysis = AnalysisTRAN
	if len(fields) < 2 {
		return errors.New(".tran requires at least tstep and tstop")
	}

	var err error
	if d.Tran.TStep, err = ParseValue(fields[0]); err != nil {
		return errors.Wrap(err, "invalid tstep")
	}
	if d.Tran.TStop, err = ParseValue(fields[1]); err != nil {
		return errors.Wrap(err, "invalid tstop")
	}

	pos := 0
	for _, field := range fields[2:] {
		if strings.EqualFold(field, "uic") {
			d.Tran.UIC = true
			continue
		}
		switch pos {
		case 0:
			if d.Tran.TStart, err = ParseValue(field); err != nil {
				return errors.Wrap(err, "invalid tstart")
			}
		case 1:
			if d.Tran.TMax, err = ParseValue(field); err != nil {
				return errors.Wrap(err, "invalid tmax")
			}
		}
		pos++
	}
	if d.Tran.TMax == 0 {
		d.Tran.TMax = d.Tran.TStep
	}
	return nil
}

func (d *Deck) parseAC(fields []string) error {
	d.Analysis = AnalysisAC
	if len(fields) < 4 {
		return errors.New(".ac requires sweep type, points, fstart and fstop")
	}

	d.AC.Sweep = strings.ToUpper(fields[0])
	switch d.AC.Sweep {
	case "DEC", "OCT", "LIN":
	default:
		return errors.Errorf("invalid sweep type: %s", d.AC.Sweep)
	}

	points, err := ParseValue(fields[1])
	if err != nil {
		return errors.Wrap(err, "invalid points count")
	}
	d.AC.Points = int(points)

	if d.AC.FStart, err = ParseValue(fields[2]); err != nil {
		return errors.Wrap(err, "invalid fstart")
	}
	if d.AC.FStop, err = ParseValue(fields[3]); err != nil {
		return errors.Wrap(err, "invalid fstop")
	}
	return nil
}

func (d *Deck) parseDC(fields []string) error {
	d.Analysis = AnalysisDC
	if len(fields) < 4 {
		return errors.New(".dc requires source, start, stop and increment")
	}

	d.DC.Source = strings.ToLower(fields[0])
	var err error
	if d.DC.Start, err = ParseValue(fields[1]); err != nil {
		return errors.Wrap(err, "invalid start value")
	}
	if d.DC.Stop, err = ParseValue(fields[2]); err != nil {
		return errors.Wrap(err, "invalid stop value")
	}
	if d.DC.Increment, err = ParseValue(fields[3]); err != nil {
		return errors.Wrap(err, "invalid increment value")
	}
	return nil
}

func (d *Deck) parseModel(fields []string) error {
	if len(fields) < 2 {
		return errors.New(".model requires a name and a type")
	}

	modelName := strings.ToLower(fields[0])

	// The type may open a parenthesized parameter list: .model dx D(is=...).
	typeField := fields[1]
	rest := fields[2:]
	if name, tail, found := strings.Cut(typeField, "("); found {
		typeField = name
		if tail != "" {
			rest = append([]string{tail}, rest...)
		}
	}
	modelType := strings.ToUpper(typeField)
	if modelType != "D" {
		return errors.Errorf("unsupported model type: %s", modelType)
	}

	paramStr := strings.TrimSuffix(strings.Join(rest, " "), ")")

	params := make(map[string]float64)
	for _, pair := range strings.Fields(paramStr) {
		name, valStr, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		val, err := ParseValue(valStr)
		if err != nil {
			return errors.Wrapf(err, "invalid model parameter %s", pair)
		}
		params[strings.ToLower(name)] = val
	}

	d.Models[modelName] = device.ModelParam{
		Type:   modelType,
		Name:   modelName,
		Params: params,
	}
	return nil
}

// parseElement dispatches on the first letter of the element name.
func parseElement(line string) (*Element, error) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) < 3 {
		return nil, errors.Errorf("invalid element line: %s", line)
	}

	elem := &Element{
		Name:   fields[0],
		Type:   strings.ToUpper(fields[0][:1]),
		Params: make(map[string]string),
	}

	switch elem.Type {
	case "V", "I":
		return parseSource(elem, fields)
	case "B":
		return parseBehavioral(elem, fields)
	case "E", "G":
		return parseControlled(elem, fields)
	case "D":
		elem.Nodes = fields[1:3]
		if len(fields) > 3 {
			elem.Params["model"] = fields[3]
		}
		return elem, nil
	case "X":
		return parseSubcktInstance(elem, fields)
	case "R", "C", "L":
		return parseTwoTerminal(elem, fields)
	}
	return nil, errors.Errorf("unsupported element type: %s", elem.Type)
}

func parseTwoTerminal(elem *Element, fields []string) (*Element, error) {
	if len(fields) < 4 {
		return nil, errors.Errorf("%s: requires two nodes and a value", elem.Name)
	}
	elem.Nodes = fields[1:3]

	haveValue := false
	for _, field := range fields[3:] {
		if name, valStr, ok := strings.Cut(field, "="); ok {
			elem.Params[name] = valStr
			continue
		}
		if haveValue {
			return nil, errors.Errorf("%s: multiple values", elem.Name)
		}
		haveValue = true
		if strings.HasPrefix(field, "{") {
			elem.ValueStr = field
			continue
		}
		value, err := ParseValue(field)
		if err != nil {
			return nil, errors.Wrapf(err, "%s", elem.Name)
		}
		elem.Value = value
	}
	if !haveValue {
		return nil, errors.Errorf("%s: missing value", elem.Name)
	}
	return elem, nil
}

func parseControlled(elem *Element, fields []string) (*Element, error) {
	if len(fields) < 6 {
		return nil, errors.Errorf("%s: requires out+, out-, ctrl+, ctrl- and a gain", elem.Name)
	}
	elem.Nodes = fields[1:5]

	gainTok := fields[5]
	if strings.HasPrefix(gainTok, "{") {
		elem.ValueStr = gainTok
		return elem, nil
	}
	gain, err := ParseValue(gainTok)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: invalid gain", elem.Name)
	}
	elem.Value = gain
	return elem, nil
}

func parseBehavioral(elem *Element, fields []string) (*Element, error) {
	if len(fields) < 4 {
		return nil, errors.Errorf("%s: requires two nodes and V=/I=", elem.Name)
	}
	elem.Nodes = fields[1:3]

	rest := strings.Join(fields[3:], " ")
	switch {
	case strings.HasPrefix(rest, "v="):
		elem.Params["output"] = "v"
	case strings.HasPrefix(rest, "i="):
		elem.Params["output"] = "i"
	default:
		return nil, errors.Errorf("%s: behavioral source needs V= or I=", elem.Name)
	}
	elem.Params["expr"] = strings.TrimSpace(rest[2:])
	if elem.Params["expr"] == "" {
		return nil, errors.Errorf("%s: empty behavioral expression", elem.Name)
	}
	return elem, nil
}

func parseSubcktInstance(elem *Element, fields []string) (*Element, error) {
	// Xname n1 n2 ... subcktName [param=value ...]
	var paramStart int
	for paramStart = 1; paramStart < len(fields); paramStart++ {
		if strings.Contains(fields[paramStart], "=") {
			break
		}
	}
	if paramStart < 3 {
		return nil, errors.Errorf("%s: requires nodes and a subcircuit name", elem.Name)
	}

	elem.Nodes = fields[1 : paramStart-1]
	elem.Params["subckt"] = fields[paramStart-1]
	for _, field := range fields[paramStart:] {
		name, valStr, ok := strings.Cut(field, "=")
		if !ok {
			return nil, errors.Errorf("%s: malformed parameter %q", elem.Name, field)
		}
		elem.Params[name] = valStr
	}
	return elem, nil
}

func parseSource(elem *Element, fields []string) (*Element, error) {
	if len(fields) < 4 {
		return nil, errors.Errorf("%s: requires two nodes and a source spec", elem.Name)
	}
	elem.Nodes = fields[1:3]

	remaining := strings.Join(fields[3:], " ")
	remaining = strings.ReplaceAll(remaining, "(", " ( ")
	remaining = strings.ReplaceAll(remaining, ")", " ) ")
	words := strings.Fields(remaining)

	trimParens := func(ws []string) string {
		return strings.Trim(strings.Join(ws, " "), "() ")
	}

	switch words[0] {
	case "dc":
		if len(words) < 2 {
			return nil, errors.Errorf("%s: missing DC value", elem.Name)
		}
		elem.Params["type"] = "dc"
		value, err := ParseValue(words[1])
		if err != nil {
			return nil, errors.Wrapf(err, "%s", elem.Name)
		}
		elem.Value = value

	case "sin":
		elem.Params["type"] = "sin"
		elem.Params["sin"] = trimParens(words[1:])

	case "pulse":
		elem.Params["type"] = "pulse"
		elem.Params["pulse"] = trimParens(words[1:])

	case "pwl":
		elem.Params["type"] = "pwl"
		elem.Params["pwl"] = trimParens(words[1:])

	case "ac":
		if len(words) < 2 {
			return nil, errors.Errorf("%s: missing AC magnitude", elem.Name)
		}
		elem.Params["type"] = "ac"
		magnitude, err := ParseValue(words[1])
		if err != nil {
			return nil, errors.Wrapf(err, "%s: invalid AC magnitude", elem.Name)
		}
		elem.Value = magnitude
		elem.Params["phase"] = "0"
		if len(words) > 2 {
			elem.Params["phase"] = words[2]
		}

	default:
		// A bare value is shorthand for DC.
		value, err := ParseValue(words[0])
		if err != nil {
			return nil, errors.Errorf("%s: unsupported source type %q", elem.Name, words[0])
		}
		elem.Params["type"] = "dc"
		elem.Value = value
	}

	return elem, nil
}
