package objective

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dyluth/paramscan/pkg/scan"
)

// Func adapts a plain loss function with no auxiliary data to scan.Objective.
type Func func(params []float64) float64

var _ scan.Objective = Func(nil)

// LossData implements scan.Objective.
func (f Func) LossData(context.Context) (any, error) { return nil, nil }

// Loss implements scan.Objective.
func (f Func) Loss(params []float64, _ any) float64 { return f(params) }

// Constant returns v for every point. Useful as a placeholder while wiring up
// a scan before the real model exists.
func Constant(v float64) Func {
	return func([]float64) float64 { return v }
}

// Sphere is the sum of squares of the parameters.
func Sphere(params []float64) float64 {
	var s float64
	for _, p := range params {
		s += p * p
	}
	return s
}

// Rosenbrock is the generalised Rosenbrock function. It is zero at (1, ..., 1).
func Rosenbrock(params []float64) float64 {
	var s float64
	for i := 0; i+1 < len(params); i++ {
		a := params[i+1] - params[i]*params[i]
		b := 1 - params[i]
		s += 100*a*a + b*b
	}
	return s
}

// Registry maps objective names usable in scan.yml to constructors.
var Registry = map[string]func() scan.Objective{
	"constant":   func() scan.Objective { return Constant(-1) },
	"sphere":     func() scan.Objective { return Func(Sphere) },
	"rosenbrock": func() scan.Objective { return Func(Rosenbrock) },
}

// New looks up an objective by name.
func New(name string) (scan.Objective, error) {
	ctor, ok := Registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown objective: %s (available: %s)", name, strings.Join(Names(), ", "))
	}
	return ctor(), nil
}

// Names lists registered objectives in sorted order.
func Names() []string {
	names := make([]string, 0, len(Registry))
	for name := range Registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
