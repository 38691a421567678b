package threshold

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/PaesslerAG/gval"

	"fxload/internal/metrics"
)

var (
	ErrParse           = errors.New("invalid threshold expression")
	ErrUnsupportedFunc = errors.New("unsupported threshold function")
)

// func[(arg)] op value
var exprRe = regexp.MustCompile(`^\s*([a-z]+)\s*(?:\(\s*([0-9]+(?:\.[0-9]+)?)\s*\))?\s*(===|==|!=|<=|>=|<|>)\s*(-?[0-9]+(?:\.[0-9]+)?(?:[eE][-+]?[0-9]+)?)\s*$`)

var language = gval.Full()

// Funcs lists the aggregation functions accepted for each metric type.
var Funcs = map[metrics.Type][]string{
	metrics.Trend:   {"avg", "min", "max", "med", "p", "count"},
	metrics.Rate:    {"rate"},
	metrics.Counter: {"count", "rate"},
	metrics.Gauge:   {"value", "min", "max"},
}

// Expr is one parsed comparison such as "p(95)<250".
type Expr struct {
	Source string
	Func   string
	Arg    float64
	Op     string
	Limit  float64

	eval gval.Evaluable
}

// Parse compiles src. It does not know the metric type; Supports checks that.
func Parse(src string) (*Expr, error) {
	m := exprRe.FindStringSubmatch(src)
	if m == nil {
		return nil, fmt.Errorf("%w: %q", ErrParse, src)
	}
	e := &Expr{Source: src, Func: m[1], Op: m[3]}

	hasArg := m[2] != ""
	switch {
	case e.Func == "p" && !hasArg:
		return nil, fmt.Errorf("%w: %q: p() needs a percentile", ErrParse, src)
	case e.Func != "p" && hasArg:
		return nil, fmt.Errorf("%w: %q: %s takes no argument", ErrParse, src, e.Func)
	}
	if hasArg {
		e.Arg, _ = strconv.ParseFloat(m[2], 64)
		if e.Arg > 100 {
			return nil, fmt.Errorf("%w: %q: percentile above 100", ErrParse, src)
		}
	}
	e.Limit, _ = strconv.ParseFloat(m[4], 64)

	op := e.Op
	if op == "===" {
		op = "=="
	}
	eval, err := language.NewEvaluable("value " + op + " limit")
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrParse, src, err)
	}
	e.eval = eval
	return e, nil
}

// Supports reports whether the function applies to metrics of type t.
func (e *Expr) Supports(t metrics.Type) bool {
	for _, f := range Funcs[t] {
		if f == e.Func {
			return true
		}
	}
	return false
}

// Value extracts the function's input from an aggregate.
func (e *Expr) Value(a metrics.Aggregate) float64 {
	switch e.Func {
	case "avg":
		return a.Avg
	case "min":
		return a.Min
	case "max":
		return a.Max
	case "med":
		return a.Med
	case "p":
		return a.P(e.Arg)
	case "count":
		if a.Type == metrics.Counter {
			return a.Sum
		}
		return float64(a.Count)
	case "rate":
		return a.Rate
	case "value":
		return a.Value
	}
	return 0
}

// Compare applies the operator to v.
func (e *Expr) Compare(ctx context.Context, v float64) (bool, error) {
	return e.eval.EvalBool(ctx, map[string]any{"value": v, "limit": e.Limit})
}

func (e *Expr) String() string { return e.Source }
