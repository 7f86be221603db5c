package composer

import "strings"

// defaultOverlayColor is used when an overlay has neither a static color nor
// color rules.
var defaultOverlayColor = RGB{255, 255, 255}

// RenderedOverlay is the per-frame result of evaluating one overlay: the text
// to stamp, its color, and whether the overlay is visible at all.
type RenderedOverlay struct {
	Text    string
	Color   RGB
	Visible bool
}

// BuildContext layers the overlay's derived variables on top of the sensor
// variable set. Variables resolve in declaration order, so later variables
// see earlier results; a forward reference resolves as unresolved.
func BuildContext(sensor map[string]Value, vars VariableList) map[string]Value {
	ctx := make(map[string]Value, len(sensor)+len(vars))
	for name, v := range sensor {
		ctx[name] = v
	}
	for _, a := range vars {
		ctx[a.Name] = resolveVariable(a.Spec, ctx)
	}
	return ctx
}

func resolveVariable(spec VariableSpec, ctx map[string]Value) Value {
	switch spec.Kind {
	case VariableDirect:
		name := strings.Trim(spec.Expr, "{}")
		if v, ok := ctx[name]; ok {
			return v
		}
		return Unresolved()

	case VariableFormula:
		return EvalFormula(spec.Expr, ctx)

	case VariableConditional:
		for _, b := range spec.Branches {
			if !b.IsElse() && !EvalCondition(*b.When, ctx) {
				continue
			}
			switch {
			case b.Value != nil:
				return Str(*b.Value)
			case b.Format != nil:
				return Str(RenderTemplate(*b.Format, ctx))
			default:
				return Unresolved()
			}
		}
		// Validation guarantees a trailing else; an empty branch list can
		// only come from a hand-built spec.
		return Unresolved()
	}
	return Unresolved()
}

// EvalColorRules returns the color of the first rule whose predicate is
// truthy. The trailing else rule guarantees a match for validated configs;
// fallback is white.
func EvalColorRules(rules []ColorRule, ctx map[string]Value) RGB {
	for _, rule := range rules {
		if rule.When == nil || EvalCondition(*rule.When, ctx) {
			return rule.Color
		}
	}
	return defaultOverlayColor
}

// RenderOverlay evaluates one overlay against the sensor variable set:
// derived variables in declaration order, the visibility predicate, the text
// template, and the color chain. It never fails; misconfigured pieces
// surface as visible unresolved markers.
func RenderOverlay(o *OverlayConfig, sensor map[string]Value) RenderedOverlay {
	ctx := BuildContext(sensor, o.Variables)

	if o.VisibleWhen != "" && !EvalCondition(o.VisibleWhen, ctx) {
		return RenderedOverlay{Visible: false}
	}

	text := RenderTemplate(o.Template, ctx)

	color := defaultOverlayColor
	switch {
	case o.Color != nil:
		color = *o.Color
	case len(o.ColorRules) > 0:
		color = EvalColorRules(o.ColorRules, ctx)
	}

	return RenderedOverlay{Text: text, Color: color, Visible: true}
}
