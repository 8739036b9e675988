package pricing

import (
	"strings"

	"github.com/web3-frozen/position-fetchers/internal/position"
)

// Quote is the outcome of a price lookup: either Found with a positive price
// and the name of the source that produced it, or Missing.
type Quote struct {
	Price  float64
	Source string
	found  bool
}

// Found returns a resolved quote. A non-positive price is treated as missing.
func Found(price float64, source string) Quote {
	if price <= 0 {
		return Missing()
	}
	return Quote{Price: price, Source: source, found: true}
}

func Missing() Quote { return Quote{} }

func (q Quote) OK() bool { return q.found }

// Fallback is one step of a price resolution chain.
type Fallback struct {
	Name   string
	Lookup func() (float64, bool)
}

// FromMap returns a Fallback that looks key up in m.
func FromMap(name string, m map[string]float64, key string) Fallback {
	return Fallback{
		Name: name,
		Lookup: func() (float64, bool) {
			v, ok := m[key]
			return v, ok
		},
	}
}

// Resolve walks steps in order and returns the first usable quote.
func Resolve(steps ...Fallback) Quote {
	for _, s := range steps {
		v, ok := s.Lookup()
		if !ok {
			continue
		}
		if q := Found(v, s.Name); q.OK() {
			return q
		}
	}
	return Missing()
}

// FindByAddress returns the token whose address matches, ignoring case.
func FindByAddress(tokens []position.Token, address string) (position.Token, bool) {
	for _, t := range tokens {
		if strings.EqualFold(t.Address, address) {
			return t, true
		}
	}
	return position.Token{}, false
}
