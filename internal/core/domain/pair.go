package domain

// PairKey names an unordered pair of identities. Low is always the
// lexicographically smaller one, so {a, b} and {b, a} share a key.
type PairKey struct {
	Low  Identity
	High Identity
}

func NewPairKey(a, b Identity) PairKey {
	if b < a {
		a, b = b, a
	}
	return PairKey{Low: a, High: b}
}

func (k PairKey) Has(id Identity) bool {
	return k.Low == id || k.High == id
}

// Peer returns the other member of the pair.
func (k PairKey) Peer(id Identity) Identity {
	if id == k.Low {
		return k.High
	}
	return k.Low
}

func (k PairKey) String() string {
	return string(k.Low) + "|" + string(k.High)
}
