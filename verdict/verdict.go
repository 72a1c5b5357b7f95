// Package verdict - Boolean predicates over a detection set.
//
// A verdict reduces the output of the pipeline to a single yes/no answer, such as "was at
// least one object found" or "was exactly one face found". Predicates compose with All,
// Any and Not, and Parse builds them from short configuration strings.
package verdict

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-detect/models/postprocess"
)

// ErrInvalidExpression is returned by Parse for malformed expressions.
var ErrInvalidExpression = errors.New("invalid verdict expression")

// Predicate reports whether a detection set satisfies a condition.
type Predicate func(postprocess.DetectionSet) bool

// NonEmpty is satisfied by any set with at least one detection.
func NonEmpty() Predicate {
	return AtLeast(1)
}

// ExactlyOne is satisfied by a set with a single detection.
func ExactlyOne() Predicate {
	return func(s postprocess.DetectionSet) bool {
		return len(s) == 1
	}
}

// AtLeast is satisfied by a set with n or more detections.
func AtLeast(n int) Predicate {
	return func(s postprocess.DetectionSet) bool {
		return len(s) >= n
	}
}

// TopScoreAbove is satisfied when the best detection scores strictly above x.
func TopScoreAbove(x float32) Predicate {
	return func(s postprocess.DetectionSet) bool {
		top, ok := s.Top()
		return ok && top.Score > x
	}
}

// HasClass is satisfied when any detection carries label.
func HasClass(label int) Predicate {
	return func(s postprocess.DetectionSet) bool {
		for _, r := range s {
			if r.Class == label {
				return true
			}
		}
		return false
	}
}

// All is satisfied when every predicate is. All() is always true.
func All(ps ...Predicate) Predicate {
	return func(s postprocess.DetectionSet) bool {
		for _, p := range ps {
			if !p(s) {
				return false
			}
		}
		return true
	}
}

// Any is satisfied when at least one predicate is. Any() is always false.
func Any(ps ...Predicate) Predicate {
	return func(s postprocess.DetectionSet) bool {
		for _, p := range ps {
			if p(s) {
				return true
			}
		}
		return false
	}
}

// Not negates p.
func Not(p Predicate) Predicate {
	return func(s postprocess.DetectionSet) bool {
		return !p(s)
	}
}

// Parse builds a predicate from an expression.
//
// Terms:
//   - "non-empty"
//   - "exactly-one"
//   - "at-least:N"
//   - "top-score>X"
//   - "class:N"
//
// A term may be prefixed with "!" to negate it. Terms joined by "&&" must all hold and
// groups joined by "||" are alternatives; "&&" binds tighter.
//
// Example:
// ```go
//
//	p, err := verdict.Parse("class:0 && top-score>0.5 || exactly-one")
//
// ```
func Parse(expr string) (Predicate, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, errors.Wrap(ErrInvalidExpression, "empty expression")
	}

	var alternatives []Predicate
	for _, group := range strings.Split(expr, "||") {
		var terms []Predicate
		for _, term := range strings.Split(group, "&&") {
			p, err := parseTerm(strings.TrimSpace(term))
			if err != nil {
				return nil, err
			}
			terms = append(terms, p)
		}
		alternatives = append(alternatives, All(terms...))
	}

	if len(alternatives) == 1 {
		return alternatives[0], nil
	}

	return Any(alternatives...), nil
}

// MustParse is like Parse but panics on error.
func MustParse(expr string) Predicate {
	p, err := Parse(expr)
	if err != nil {
		panic(err)
	}

	return p
}

func parseTerm(term string) (Predicate, error) {
	if rest, ok := strings.CutPrefix(term, "!"); ok {
		p, err := parseTerm(strings.TrimSpace(rest))
		if err != nil {
			return nil, err
		}
		return Not(p), nil
	}

	switch {
	case term == "non-empty":
		return NonEmpty(), nil
	case term == "exactly-one":
		return ExactlyOne(), nil
	case strings.HasPrefix(term, "at-least:"):
		n, err := strconv.Atoi(strings.TrimPrefix(term, "at-least:"))
		if err != nil || n < 0 {
			return nil, errors.Wrapf(ErrInvalidExpression, "%q needs a non-negative count", term)
		}
		return AtLeast(n), nil
	case strings.HasPrefix(term, "top-score>"):
		x, err := strconv.ParseFloat(strings.TrimPrefix(term, "top-score>"), 32)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidExpression, "%q needs a score", term)
		}
		return TopScoreAbove(float32(x)), nil
	case strings.HasPrefix(term, "class:"):
		label, err := strconv.Atoi(strings.TrimPrefix(term, "class:"))
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidExpression, "%q needs a label id", term)
		}
		return HasClass(label), nil
	default:
		return nil, errors.Wrapf(ErrInvalidExpression, "unknown term %q", term)
	}
}
