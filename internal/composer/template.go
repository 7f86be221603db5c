package composer

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Placeholder grammar: {name} or {name:.2f}. Compiled once; the per-tick path
// only executes the matchers.
var (
	varPattern      = regexp.MustCompile(`\{(\w+)\}`)
	templatePattern = regexp.MustCompile(`\{(\w+)(:[^}]+)?\}`)
	fixedSpecPat    = regexp.MustCompile(`^:\.(\d+)f$`)
)

// Comparison operators, two-character forms first so "<=" is not split as "<".
var condOperators = []string{"==", "!=", "<=", ">=", "<", ">"}

// substituteVars replaces {name} tokens with the stringified variable value.
// Unknown or unresolved names keep the original token, which doubles as the
// visible unresolved marker.
func substituteVars(expr string, vars map[string]Value) string {
	return varPattern.ReplaceAllStringFunc(expr, func(tok string) string {
		name := tok[1 : len(tok)-1]
		if v, ok := vars[name]; ok && v.IsResolved() {
			return v.String()
		}
		return tok
	})
}

// parseOperand turns one side of a comparison into a Value: boolean literal,
// quoted string, numeric literal, or bare string in that order.
func parseOperand(s string) Value {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "true":
		return Bool(true)
	case "false":
		return Bool(false)
	}
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return Str(s[1 : len(s)-1])
		}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return Number(f)
	}
	return Str(s)
}

// compareValues applies a comparison operator. Ordering comparisons are
// defined for number/number and string/string pairs only; any other pairing
// is false, so a type-mismatched predicate simply never matches.
func compareValues(op string, left, right Value) bool {
	switch op {
	case "==":
		return left.Equal(right)
	case "!=":
		return !left.Equal(right)
	}

	if lf, ok := left.AsNumber(); ok {
		rf, ok := right.AsNumber()
		if !ok {
			return false
		}
		switch op {
		case "<":
			return lf < rf
		case "<=":
			return lf <= rf
		case ">":
			return lf > rf
		case ">=":
			return lf >= rf
		}
	}
	if left.Kind() == KindString && right.Kind() == KindString {
		ls, rs := left.String(), right.String()
		switch op {
		case "<":
			return ls < rs
		case "<=":
			return ls <= rs
		case ">":
			return ls > rs
		case ">=":
			return ls >= rs
		}
	}
	return false
}

// EvalCondition evaluates a predicate expression such as
// "{laser_distance} > 44", "{active} == false", or "{status} == 'ERROR'"
// against the variable set. An empty expression is true. Evaluation is total:
// unknown names and type mismatches yield false, never an error.
func EvalCondition(expr string, vars map[string]Value) bool {
	if expr == "" {
		return true
	}

	substituted := substituteVars(expr, vars)

	for _, op := range condOperators {
		idx := strings.Index(substituted, op)
		if idx < 0 {
			continue
		}
		left := parseOperand(substituted[:idx])
		right := parseOperand(substituted[idx+len(op):])
		return compareValues(op, left, right)
	}

	// No operator: a bare literal, a substituted boolean variable, or an
	// unbraced variable name looked up by truthiness.
	bare := strings.TrimSpace(substituted)
	switch strings.ToLower(bare) {
	case "true":
		return true
	case "false":
		return false
	}
	if v, ok := vars[bare]; ok {
		return truthy(v)
	}
	return false
}

// truthy follows the usual scripting rules: nonzero numbers and nonempty
// strings are true, unresolved is false.
func truthy(v Value) bool {
	switch v.Kind() {
	case KindBool:
		b, _ := v.AsBool()
		return b
	case KindNumber:
		f, _ := v.AsNumber()
		return f != 0 && !math.IsNaN(f)
	case KindString:
		return v.String() != ""
	default:
		return false
	}
}

// EvalFormula evaluates a restricted arithmetic expression (numeric literals,
// {name} variables, + - * /, unary minus, parentheses) over the variable set.
// Any non-numeric operand, malformed syntax, or division by zero yields the
// NaN sentinel rather than an error.
func EvalFormula(expr string, vars map[string]Value) Value {
	substituted := substituteVars(expr, vars)
	p := &formulaParser{input: substituted}
	result, ok := p.parseExpr()
	if !ok {
		return Number(math.NaN())
	}
	p.skipSpaces()
	if p.pos != len(p.input) {
		return Number(math.NaN())
	}
	return Number(result)
}

// formulaParser is a recursive-descent parser over the substituted formula.
type formulaParser struct {
	input string
	pos   int
}

func (p *formulaParser) skipSpaces() {
	for p.pos < len(p.input) && p.input[p.pos] == ' ' {
		p.pos++
	}
}

func (p *formulaParser) peek() byte {
	p.skipSpaces()
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

// parseExpr handles addition and subtraction.
func (p *formulaParser) parseExpr() (float64, bool) {
	left, ok := p.parseTerm()
	if !ok {
		return 0, false
	}
	for {
		switch p.peek() {
		case '+':
			p.pos++
			right, ok := p.parseTerm()
			if !ok {
				return 0, false
			}
			left += right
		case '-':
			p.pos++
			right, ok := p.parseTerm()
			if !ok {
				return 0, false
			}
			left -= right
		default:
			return left, true
		}
	}
}

// parseTerm handles multiplication and division.
func (p *formulaParser) parseTerm() (float64, bool) {
	left, ok := p.parseFactor()
	if !ok {
		return 0, false
	}
	for {
		switch p.peek() {
		case '*':
			p.pos++
			right, ok := p.parseFactor()
			if !ok {
				return 0, false
			}
			left *= right
		case '/':
			p.pos++
			right, ok := p.parseFactor()
			if !ok {
				return 0, false
			}
			if right == 0 {
				return math.NaN(), true
			}
			left /= right
		default:
			return left, true
		}
	}
}

// parseFactor handles numeric literals, unary minus, and parentheses.
func (p *formulaParser) parseFactor() (float64, bool) {
	switch p.peek() {
	case '-':
		p.pos++
		f, ok := p.parseFactor()
		return -f, ok
	case '(':
		p.pos++
		f, ok := p.parseExpr()
		if !ok || p.peek() != ')' {
			return 0, false
		}
		p.pos++
		return f, true
	}

	start := p.pos
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if (c < '0' || c > '9') && c != '.' {
			break
		}
		p.pos++
	}
	if p.pos == start {
		return 0, false
	}
	f, err := strconv.ParseFloat(p.input[start:p.pos], 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// RenderTemplate substitutes {name} and {name:.2f} placeholders in a template
// string. Unknown names keep the placeholder token verbatim so a misconfigured
// template is visible to the operator; a numeric format applied to a
// non-numeric value does the same.
func RenderTemplate(template string, vars map[string]Value) string {
	return templatePattern.ReplaceAllStringFunc(template, func(tok string) string {
		m := templatePattern.FindStringSubmatch(tok)
		name, spec := m[1], m[2]

		v, ok := vars[name]
		if !ok || !v.IsResolved() {
			return tok
		}

		if spec == "" {
			return v.String()
		}
		if fm := fixedSpecPat.FindStringSubmatch(spec); fm != nil {
			prec, _ := strconv.Atoi(fm[1])
			if s, ok := v.FormatFixed(prec); ok {
				return s
			}
			return tok
		}
		// Unsupported format specs fall back to plain substitution.
		return v.String()
	})
}
