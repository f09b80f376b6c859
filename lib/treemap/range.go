package treemap

import (
	"bytes"
	"fmt"
)

// Range is a key interval with independent inclusivity flags at both ends.
// An unbounded end ignores its key and inclusivity flag.
type Range struct {
	From          []byte
	To            []byte
	FromInclusive bool
	ToInclusive   bool
	FromUnbounded bool
	ToUnbounded   bool
}

// All returns the range covering the whole key space.
func All() Range {
	return Range{FromUnbounded: true, ToUnbounded: true}
}

// Closed returns the range [from, to].
func Closed(from, to []byte) Range {
	return Range{From: from, To: to, FromInclusive: true, ToInclusive: true}
}

// AtLeast returns the range [from, +inf).
func AtLeast(from []byte) Range {
	return Range{From: from, FromInclusive: true, ToUnbounded: true}
}

// AtMost returns the range (-inf, to].
func AtMost(to []byte) Range {
	return Range{To: to, ToInclusive: true, FromUnbounded: true}
}

// aboveLower reports whether key is on the inner side of the lower bound.
func (r Range) aboveLower(key []byte) bool {
	if r.FromUnbounded {
		return true
	}
	c := bytes.Compare(key, r.From)
	return c > 0 || (c == 0 && r.FromInclusive)
}

// belowUpper reports whether key is on the inner side of the upper bound.
func (r Range) belowUpper(key []byte) bool {
	if r.ToUnbounded {
		return true
	}
	c := bytes.Compare(key, r.To)
	return c < 0 || (c == 0 && r.ToInclusive)
}

// Contains reports whether key lies inside the range.
func (r Range) Contains(key []byte) bool {
	return r.aboveLower(key) && r.belowUpper(key)
}

// IsEmpty reports whether no key can lie inside the range.
func (r Range) IsEmpty() bool {
	if r.FromUnbounded || r.ToUnbounded {
		return false
	}
	c := bytes.Compare(r.From, r.To)
	return c > 0 || (c == 0 && !(r.FromInclusive && r.ToInclusive))
}

// Intersects reports whether the two ranges share at least one key.
func (r Range) Intersects(o Range) bool {
	if r.IsEmpty() || o.IsEmpty() {
		return false
	}
	lo := r
	if !o.FromUnbounded && (r.FromUnbounded || tighterLower(o, r)) {
		lo = o
	}
	hi := r
	if !o.ToUnbounded && (r.ToUnbounded || tighterUpper(o, r)) {
		hi = o
	}
	if lo.FromUnbounded || hi.ToUnbounded {
		return true
	}
	c := bytes.Compare(lo.From, hi.To)
	return c < 0 || (c == 0 && lo.FromInclusive && hi.ToInclusive)
}

// tighterLower reports whether a's lower bound excludes at least as much as b's. Both must be bounded.
func tighterLower(a, b Range) bool {
	c := bytes.Compare(a.From, b.From)
	return c > 0 || (c == 0 && !a.FromInclusive)
}

// tighterUpper reports whether a's upper bound excludes at least as much as b's. Both must be bounded.
func tighterUpper(a, b Range) bool {
	c := bytes.Compare(a.To, b.To)
	return c < 0 || (c == 0 && !a.ToInclusive)
}

func (r Range) String() string {
	lower, upper := "(-inf", "+inf)"
	if !r.FromUnbounded {
		lower = fmt.Sprintf("(%q", r.From)
		if r.FromInclusive {
			lower = fmt.Sprintf("[%q", r.From)
		}
	}
	if !r.ToUnbounded {
		upper = fmt.Sprintf("%q)", r.To)
		if r.ToInclusive {
			upper = fmt.Sprintf("%q]", r.To)
		}
	}
	return lower + ", " + upper
}
