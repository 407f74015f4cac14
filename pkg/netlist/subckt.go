package netlist

import (
	"strings"

	"github.com/pkg/errors"
)

// Subckt is a parsed .subckt/.ends block. Vendor macro-models ship as one of
// these plus a .model or two.
type Subckt struct {
	Name     string
	Ports    []string
	Defaults map[string]float64 // params: defaults on the .subckt line
	Elements []Element
}

func (d *Deck) beginSubckt(fields []string) error {
	if d.current != nil {
		return errors.Errorf("nested .subckt (%s inside %s)", fields[0], d.current.Name)
	}
	if len(fields) < 2 {
		return errors.New(".subckt requires a name and at least one port")
	}

	sub := &Subckt{
		Name:     strings.ToLower(fields[0]),
		Defaults: make(map[string]float64),
	}

	rest := fields[1:]
	for i, field := range rest {
		if strings.EqualFold(field, "params:") {
			rest = rest[i+1:]
			for _, pair := range rest {
				name, valStr, ok := strings.Cut(pair, "=")
				if !ok {
					return errors.Errorf("malformed subckt parameter %q", pair)
				}
				val, err := ParseValue(valStr)
				if err != nil {
					return errors.Wrapf(err, "subckt parameter %s", name)
				}
				sub.Defaults[strings.ToLower(name)] = val
			}
			break
		}
		if name, valStr, ok := strings.Cut(field, "="); ok {
			val, err := ParseValue(valStr)
			if err != nil {
				return errors.Wrapf(err, "subckt parameter %s", name)
			}
			sub.Defaults[strings.ToLower(name)] = val
			continue
		}
		sub.Ports = append(sub.Ports, strings.ToLower(field))
	}

	if len(sub.Ports) == 0 {
		return errors.Errorf(".subckt %s has no ports", sub.Name)
	}
	if _, exists := d.Subckts[sub.Name]; exists {
		return errors.Errorf("duplicate .subckt %s", sub.Name)
	}

	d.Subckts[sub.Name] = sub
	d.current = sub
	return nil
}

func (d *Deck) endSubckt() error {
	if d.current == nil {
		return errors.New(".ends without .subckt")
	}
	d.current = nil
	return nil
}

// Flatten expands every X instance into the elements of its subcircuit.
// Internal nodes and element names gain the instance name as a prefix
// ("x1.det"), ports map positionally, and instance parameters override the
// subcircuit defaults. Behavioral expressions keep their local node names;
// the per-element alias scope lets the circuit resolve them.
func (d *Deck) Flatten() ([]Element, error) {
	out := make([]Element, 0, len(d.Elements))
	for _, elem := range d.Elements {
		if elem.Type != "X" {
			out = append(out, elem)
			continue
		}
		expanded, err := d.expandInstance(&elem)
		if err != nil {
			return nil, err
		}
		out = append(out, expanded...)
	}
	return out, nil
}

func (d *Deck) expandInstance(inst *Element) ([]Element, error) {
	subName := inst.Params["subckt"]
	sub, ok := d.Subckts[subName]
	if !ok {
		return nil, errors.Errorf("%s: undefined subcircuit %q", inst.Name, subName)
	}
	if len(inst.Nodes) != len(sub.Ports) {
		return nil, errors.Errorf("%s: subcircuit %s has %d ports, instance connects %d",
			inst.Name, sub.Name, len(sub.Ports), len(inst.Nodes))
	}

	// Parameter scope: deck params, overridden by subckt defaults,
	// overridden by instance assignments.
	scope := make(map[string]float64, len(d.Params)+len(sub.Defaults))
	for k, v := range d.Params {
		scope[k] = v
	}
	for k, v := range sub.Defaults {
		scope[k] = v
	}
	for k, v := range inst.Params {
		if k == "subckt" {
			continue
		}
		val, err := evalValueToken(v, scope)
		if err != nil {
			return nil, errors.Wrapf(err, "%s: parameter %s", inst.Name, k)
		}
		scope[k] = val
	}

	nodeMap := make(map[string]string, len(sub.Ports))
	for i, port := range sub.Ports {
		nodeMap[port] = inst.Nodes[i]
	}

	mapNode := func(local string) string {
		if isGround(local) {
			return local
		}
		if global, ok := nodeMap[local]; ok {
			return global
		}
		return inst.Name + "." + local
	}

	out := make([]Element, 0, len(sub.Elements))
	for _, tmpl := range sub.Elements {
		if tmpl.Type == "X" {
			// One level is all macro-model files need; nested instances
			// would require recursive scope threading.
			return nil, errors.Errorf("%s: nested subcircuit instance %s not supported", inst.Name, tmpl.Name)
		}

		elem := tmpl
		elem.Name = inst.Name + "." + tmpl.Name
		elem.Nodes = make([]string, len(tmpl.Nodes))
		for i, n := range tmpl.Nodes {
			elem.Nodes[i] = mapNode(n)
		}
		elem.Params = make(map[string]string, len(tmpl.Params))
		for k, v := range tmpl.Params {
			elem.Params[k] = v
		}
		elem.Scope = scope
		elem.Aliases = nodeMap
		elem.Prefix = inst.Name
		out = append(out, elem)
	}
	return out, nil
}

func isGround(node string) bool {
	return node == "0" || node == "gnd"
}

// ResolveNode maps a node name referenced from inside elem (for example by
// a behavioral expression) to the flattened global node name: ports resolve
// through the instance connection, internal names gain the instance prefix.
func (e *Element) ResolveNode(local string) string {
	if e.Prefix == "" || isGround(local) {
		return local
	}
	if global, ok := e.Aliases[local]; ok {
		return global
	}
	return e.Prefix + "." + local
}

// ResolveBranch maps a source name referenced by I(...) inside elem to the
// flattened element name.
func (e *Element) ResolveBranch(local string) string {
	if e.Prefix == "" {
		return local
	}
	return e.Prefix + "." + local
}
