package transcript

import "time"

// signature is the cheap fingerprint of a stream: count plus the shape of
// the last bubble.
type signature struct {
	count   int
	source  Source
	isDraft bool
	textLen int
	at      time.Time
}

var emptySignature = signature{count: 0, source: "", textLen: -1}

func signatureOf(bubbles []Bubble) signature {
	if len(bubbles) == 0 {
		return emptySignature
	}
	last := bubbles[len(bubbles)-1]
	return signature{
		count:   len(bubbles),
		source:  last.Source,
		isDraft: last.IsDraft,
		textLen: len(last.Text),
		at:      last.Timestamp,
	}
}

// DiffDetector reports whether a stream materially changed since the last
// observation. It is called once per refresh tick and never walks the whole
// stream.
type DiffDetector struct {
	last signature
	seen bool
}

// HasChanged records the signature of bubbles and reports whether it differs
// from the previous call. The first call on an empty stream reports false.
func (d *DiffDetector) HasChanged(bubbles []Bubble) bool {
	sig := signatureOf(bubbles)
	prev := d.last
	if !d.seen {
		prev = emptySignature
	}
	d.last = sig
	d.seen = true
	return sig.count != prev.count || !sig.at.Equal(prev.at) ||
		sig.source != prev.source || sig.isDraft != prev.isDraft || sig.textLen != prev.textLen
}

// Reset forgets the remembered signature so the next non-empty observation
// reports a change.
func (d *DiffDetector) Reset() {
	d.last = emptySignature
	d.seen = false
}
