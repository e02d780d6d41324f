package items

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Predicate is a (keypath, operator, value) triple, the query language
// used by the singleton resolver and applications (§4.2).
//
// Supported operators: =, <, >, <=, >=, startsWith, in, includes,
// matches. For "includes", Value must itself be a Predicate, evaluated
// against each element of the sequence found at KeyPath.
type Predicate struct {
	KeyPath  string
	Operator string
	Value    any
}

var relativeAgoPattern = regexp.MustCompile(`^(\d+)\.(days|hours)\.ago$`)

// resolveValue turns a relative-date string like "7.days.ago" into a
// concrete time.Time evaluated against now; every other value passes
// through unchanged.
func resolveValue(v any, now time.Time) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	m := relativeAgoPattern.FindStringSubmatch(s)
	if m == nil {
		return v
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return v
	}
	switch m[2] {
	case "days":
		return now.AddDate(0, 0, -n)
	case "hours":
		return now.Add(-time.Duration(n) * time.Hour)
	default:
		return v
	}
}

// view builds the generic keypath-addressable representation of an item
// used to evaluate predicates against it.
func (it *Item) view() map[string]any {
	return map[string]any{
		"uuid":         it.UUID,
		"content_type": it.ContentType,
		"created_at":   it.CreatedAt,
		"updated_at":   it.UpdatedAt,
		"deleted":      it.Deleted,
		"dirty":        it.Dirty,
		"content":      map[string]any(it.Content),
		"appData":      anyAppData(it.AppData),
	}
}

// Matches evaluates p against the item.
func (it *Item) Matches(p Predicate, now time.Time) bool {
	return EvaluatePredicate(p, it.view(), now)
}

// EvaluatePredicate evaluates p against an arbitrary subject, which must
// be a map[string]any (or a value reachable by KeyPath traversal from
// one). Used directly by Item.Matches and recursively by the "includes"
// operator against sequence elements.
func EvaluatePredicate(p Predicate, subject any, now time.Time) bool {
	val, ok := resolveKeyPath(subject, p.KeyPath)

	if p.Operator == "includes" {
		if !ok {
			return false
		}
		seq, ok := toSlice(val)
		if !ok {
			return false
		}
		nested, ok := p.Value.(Predicate)
		if !ok {
			return false
		}
		for _, elem := range seq {
			if EvaluatePredicate(nested, elem, now) {
				return true
			}
		}
		return false
	}

	if !ok {
		return false
	}
	return compareOp(p.Operator, val, resolveValue(p.Value, now))
}

func resolveKeyPath(subject any, path string) (any, bool) {
	if path == "" {
		return subject, true
	}
	segments := strings.Split(path, ".")
	cur := subject
	for _, seg := range segments {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[seg]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

func toSlice(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []map[string]any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = map[string]any(e)
		}
		return out, true
	default:
		return nil, false
	}
}

func compareOp(op string, left, right any) bool {
	switch op {
	case "=":
		return scalarEqual(left, right)
	case "<", ">", "<=", ">=":
		return ordCompare(op, left, right)
	case "startsWith":
		ls, lok := left.(string)
		rs, rok := right.(string)
		return lok && rok && strings.HasPrefix(ls, rs)
	case "matches":
		ls, lok := left.(string)
		rs, rok := right.(string)
		if !lok || !rok {
			return false
		}
		re, err := regexp.Compile(rs)
		if err != nil {
			return false
		}
		return re.MatchString(ls)
	case "in":
		seq, ok := toSlice(right)
		if !ok {
			return false
		}
		for _, e := range seq {
			if scalarEqual(left, e) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func scalarEqual(a, b any) bool {
	if at, ok := a.(time.Time); ok {
		if bt, ok := b.(time.Time); ok {
			return at.Equal(bt)
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func ordCompare(op string, a, b any) bool {
	if at, aok := a.(time.Time); aok {
		if bt, bok := b.(time.Time); bok {
			switch op {
			case "<":
				return at.Before(bt)
			case ">":
				return at.After(bt)
			case "<=":
				return at.Before(bt) || at.Equal(bt)
			case ">=":
				return at.After(bt) || at.Equal(bt)
			}
		}
	}

	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch op {
		case "<":
			return af < bf
		case ">":
			return af > bf
		case "<=":
			return af <= bf
		case ">=":
			return af >= bf
		}
	}

	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		switch op {
		case "<":
			return as < bs
		case ">":
			return as > bs
		case "<=":
			return as <= bs
		case ">=":
			return as >= bs
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}
