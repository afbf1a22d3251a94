package core

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/agoralabs/agora/fixed"
)

// constitutionEntry holds the pass thresholds for one destination. A zero
// fraction in either field is the "unset" sentinel, never a valid threshold.
type constitutionEntry struct {
	defaultThreshold fixed.Fraction
	functions        map[[4]byte]fixed.Fraction
}

// Constitution is the per-destination, per-function pass-threshold table.
// Lookups fall through selector override -> destination default -> simple
// majority.
type Constitution struct {
	entries map[common.Address]*constitutionEntry
}

// NewConstitution returns an empty constitution.
func NewConstitution() *Constitution {
	return &Constitution{entries: make(map[common.Address]*constitutionEntry)}
}

// Set writes a threshold for a destination, or for one of its function
// selectors when selector is nonzero. Thresholds must lie in [1/2, 1):
// never below simple majority, never full unanimity.
func (c *Constitution) Set(destination common.Address, selector [4]byte, threshold fixed.Fraction) error {
	if threshold.Lt(fixed.Half()) || threshold.Gte(fixed.One()) {
		return ErrInvalidThreshold
	}
	entry, ok := c.entries[destination]
	if !ok {
		entry = &constitutionEntry{functions: make(map[[4]byte]fixed.Fraction)}
		c.entries[destination] = entry
	}
	if selector == ([4]byte{}) {
		entry.defaultThreshold = threshold
	} else {
		entry.functions[selector] = threshold
	}
	return nil
}

// ThresholdFor resolves the pass threshold for a call.
func (c *Constitution) ThresholdFor(destination common.Address, selector [4]byte) fixed.Fraction {
	if entry, ok := c.entries[destination]; ok {
		if t, ok := entry.functions[selector]; ok && !t.IsZero() {
			return t
		}
		if !entry.defaultThreshold.IsZero() {
			return entry.defaultThreshold
		}
	}
	return fixed.Half()
}
