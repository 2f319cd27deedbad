package formula

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"

	"github.com/ekaya-inc/ekaya-schema/pkg/coltype"
	sqlutil "github.com/ekaya-inc/ekaya-schema/pkg/sql"
)

// ErrorPrefix starts every inline failure value returned by Evaluate.
const ErrorPrefix = "ERROR: "

var fieldRefPattern = regexp.MustCompile(`\{([^{}]*)\}`)

// Field maps a user-facing display name to the record key holding its value.
type Field struct {
	DisplayName string
	ColumnName  string
}

// FieldRefs returns the display names referenced as {Name}, in order, without
// duplicates.
func FieldRefs(formula string) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range fieldRefPattern.FindAllStringSubmatch(formula, -1) {
		name := strings.TrimSpace(m[1])
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

// Bind rewrites every {Field Name} into a sanitized identifier and returns the
// variables those identifiers are bound to for this record. References that
// do not resolve to a field are replaced with the literal 0. Distinct fields
// whose names sanitize alike get numbered identifiers (unit_price, unit_price_2).
func Bind(formula string, record map[string]any, fields []Field) (string, map[string]any) {
	vars := make(map[string]any)
	idents := make(map[string]string) // display name -> identifier
	taken := make(map[string]bool)
	expr := fieldRefPattern.ReplaceAllStringFunc(formula, func(token string) string {
		name := strings.TrimSpace(token[1 : len(token)-1])
		field, ok := resolveField(name, fields)
		if !ok {
			return "0"
		}
		if ident, ok := idents[field.DisplayName]; ok {
			return ident
		}
		base := sqlutil.SanitizeIdentifier(field.DisplayName)
		ident := base
		for n := 2; taken[ident]; n++ {
			ident = fmt.Sprintf("%s_%d", base, n)
		}
		idents[field.DisplayName] = ident
		taken[ident] = true
		vars[ident] = coerce(record[field.ColumnName])
		return ident
	})
	return expr, vars
}

func resolveField(name string, fields []Field) (Field, bool) {
	for _, f := range fields {
		if f.DisplayName == name {
			return f, true
		}
	}
	for _, f := range fields {
		if strings.EqualFold(f.DisplayName, name) {
			return f, true
		}
	}
	return Field{}, false
}

// coerce turns a stored record value into an evaluation value: numeric-looking
// values become int64 or float64, blanks become 0, anything else a string.
func coerce(v any) any {
	if v == nil {
		return int64(0)
	}
	switch x := v.(type) {
	case int64, float64:
		return x
	case bool:
		return x
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		s = fmt.Sprint(v)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return int64(0)
	}
	if coltype.IsPlainNumber(s) {
		if !strings.Contains(s, ".") {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return n
			}
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return s
}

// Evaluate computes formula for one record. It never fails: any parse or
// evaluation problem is returned as a string starting with ErrorPrefix.
func Evaluate(formula string, record map[string]any, fields []Field) any {
	expr, vars := Bind(formula, record, fields)
	node, err := Parse(expr)
	if err != nil {
		return ErrorPrefix + err.Error()
	}
	v, err := Eval(node, vars)
	if err != nil {
		return ErrorPrefix + err.Error()
	}
	return finalize(v)
}

// EvaluateForRecords evaluates formula independently for each record and
// returns results in input order.
func EvaluateForRecords(formula string, records []map[string]any, fields []Field) []any {
	out := make([]any, len(records))
	for i, rec := range records {
		out[i] = Evaluate(formula, rec, fields)
	}
	return out
}

// IsError reports whether an Evaluate result is an inline error.
func IsError(v any) bool {
	s, ok := v.(string)
	return ok && strings.HasPrefix(s, ErrorPrefix)
}

func finalize(v any) any {
	if f, ok := v.(float64); ok {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return ErrorPrefix + "result is not a finite number"
		}
		return coltype.RoundMoney(f)
	}
	return v
}

// Eval evaluates a parsed expression. Bare identifiers and [column] references
// are looked up in vars.
func Eval(n Node, vars map[string]any) (any, error) {
	switch x := n.(type) {
	case *NumberLit:
		if x.IsInt {
			if i, err := strconv.ParseInt(x.Text, 10, 64); err == nil {
				return i, nil
			}
		}
		return x.Value, nil

	case *StringLit:
		return x.Value, nil

	case *VarRef:
		v, ok := vars[x.Name]
		if !ok {
			return nil, fmt.Errorf("unknown identifier %s", x.Name)
		}
		return v, nil

	case *ColumnRef:
		v, ok := vars[x.Name]
		if !ok {
			return nil, fmt.Errorf("unknown column %s", x.Name)
		}
		return coerce(v), nil

	case *FieldRef:
		return nil, fmt.Errorf("unresolved field {%s}", x.Name)

	case *Unary:
		v, err := Eval(x.X, vars)
		if err != nil {
			return nil, err
		}
		num, err := toNumber(v)
		if err != nil {
			return nil, err
		}
		return num.neg().value(), nil

	case *Binary:
		return evalBinary(x, vars)

	case *Call:
		return evalCall(x, vars)
	}
	return nil, fmt.Errorf("unsupported expression")
}

func evalBinary(b *Binary, vars map[string]any) (any, error) {
	lv, err := Eval(b.L, vars)
	if err != nil {
		return nil, err
	}
	rv, err := Eval(b.R, vars)
	if err != nil {
		return nil, err
	}

	switch b.Op {
	case AMP:
		return toString(lv) + toString(rv), nil
	case EQ, NEQ, LT, LTE, GT, GTE:
		return compare(b.Op, lv, rv), nil
	}

	l, err := toNumber(lv)
	if err != nil {
		return nil, err
	}
	r, err := toNumber(rv)
	if err != nil {
		return nil, err
	}

	switch b.Op {
	case PLUS:
		return l.add(r).value(), nil
	case MINUS:
		return l.add(r.neg()).value(), nil
	case STAR:
		return l.mul(r).value(), nil
	case SLASH:
		return l.div(r)
	}
	return nil, fmt.Errorf("unsupported operator %s", b.Op)
}

func evalCall(c *Call, vars map[string]any) (any, error) {
	// IF evaluates only the chosen branch.
	if c.Name == "IF" {
		cond, err := Eval(c.Args[0], vars)
		if err != nil {
			return nil, err
		}
		if truthy(cond) {
			return Eval(c.Args[1], vars)
		}
		return Eval(c.Args[2], vars)
	}

	args := make([]any, len(c.Args))
	for i, a := range c.Args {
		v, err := Eval(a, vars)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}

	switch c.Name {
	case "SUM", "AVG":
		total := number{isInt: true}
		for _, a := range args {
			n, err := toNumber(a)
			if err != nil {
				return nil, err
			}
			total = total.add(n)
		}
		if c.Name == "SUM" {
			return total.value(), nil
		}
		return total.div(number{i: int64(len(args)), isInt: true})

	case "MIN", "MAX":
		best, err := toNumber(args[0])
		if err != nil {
			return nil, err
		}
		for _, a := range args[1:] {
			n, err := toNumber(a)
			if err != nil {
				return nil, err
			}
			if (c.Name == "MIN" && n.float() < best.float()) || (c.Name == "MAX" && n.float() > best.float()) {
				best = n
			}
		}
		return best.value(), nil

	case "ROUND":
		n, err := toNumber(args[0])
		if err != nil {
			return nil, err
		}
		places := int64(0)
		if len(args) == 2 {
			p, err := toNumber(args[1])
			if err != nil {
				return nil, err
			}
			places = int64(p.float())
		}
		if n.isInt && places >= 0 {
			return n.i, nil
		}
		d := decimal.NewFromFloat(n.float()).Round(int32(places))
		if places <= 0 {
			return d.IntPart(), nil
		}
		r, _ := d.Float64()
		return r, nil

	case "ABS":
		n, err := toNumber(args[0])
		if err != nil {
			return nil, err
		}
		if n.float() < 0 {
			n = n.neg()
		}
		return n.value(), nil

	case "CONCAT":
		var b strings.Builder
		for _, a := range args {
			b.WriteString(toString(a))
		}
		return b.String(), nil

	case "LEN":
		return int64(utf8.RuneCountInString(toString(args[0]))), nil

	case "UPPER":
		return strings.ToUpper(toString(args[0])), nil

	case "LOWER":
		return strings.ToLower(toString(args[0])), nil
	}
	return nil, fmt.Errorf("unknown function %s", c.Name)
}

// number keeps integer arithmetic exact until a float enters the expression.
type number struct {
	i     int64
	f     float64
	isInt bool
}

func (n number) float() float64 {
	if n.isInt {
		return float64(n.i)
	}
	return n.f
}

func (n number) value() any {
	if n.isInt {
		return n.i
	}
	return n.f
}

func (n number) neg() number {
	if n.isInt {
		if n.i == math.MinInt64 {
			return number{f: -float64(n.i)}
		}
		return number{i: -n.i, isInt: true}
	}
	return number{f: -n.f}
}

// add and mul leave integer arithmetic for float64 on int64 overflow.
func (n number) add(o number) number {
	if n.isInt && o.isInt {
		sum := n.i + o.i
		if (sum > n.i) == (o.i > 0) {
			return number{i: sum, isInt: true}
		}
	}
	return number{f: n.float() + o.float()}
}

func (n number) mul(o number) number {
	if n.isInt && o.isInt {
		if n.i == 0 || o.i == 0 {
			return number{isInt: true}
		}
		p := n.i * o.i
		if p/o.i == n.i && !(o.i == -1 && n.i == math.MinInt64) {
			return number{i: p, isInt: true}
		}
	}
	return number{f: n.float() * o.float()}
}

func (n number) div(o number) (any, error) {
	if o.float() == 0 {
		return nil, fmt.Errorf("division by zero")
	}
	if n.isInt && o.isInt && n.i%o.i == 0 && !(n.i == math.MinInt64 && o.i == -1) {
		return n.i / o.i, nil
	}
	return n.float() / o.float(), nil
}

func toNumber(v any) (number, error) {
	switch x := v.(type) {
	case int64:
		return number{i: x, isInt: true}, nil
	case float64:
		return number{f: x}, nil
	case bool:
		if x {
			return number{i: 1, isInt: true}, nil
		}
		return number{isInt: true}, nil
	case string:
		c := coerce(x)
		if _, isStr := c.(string); isStr {
			return number{}, fmt.Errorf("cannot use %q as a number", x)
		}
		return toNumber(c)
	case nil:
		return number{isInt: true}, nil
	}
	return number{}, fmt.Errorf("cannot use %v as a number", v)
}

func toString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case string:
		return x
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return s
}

func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case int64:
		return x != 0
	case float64:
		return x != 0
	case string:
		return x != "" && !strings.EqualFold(x, "false")
	}
	return false
}

func compare(op TokenType, lv, rv any) bool {
	l, lerr := toNumber(lv)
	r, rerr := toNumber(rv)
	var c int
	if lerr == nil && rerr == nil {
		switch {
		case l.float() < r.float():
			c = -1
		case l.float() > r.float():
			c = 1
		}
	} else {
		c = strings.Compare(toString(lv), toString(rv))
	}

	switch op {
	case EQ:
		return c == 0
	case NEQ:
		return c != 0
	case LT:
		return c < 0
	case LTE:
		return c <= 0
	case GT:
		return c > 0
	case GTE:
		return c >= 0
	}
	return false
}
