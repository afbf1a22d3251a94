package core

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agoralabs/agora/fixed"
)

func TestConstitutionThresholdPrecedence(t *testing.T) {
	c := NewConstitution()
	destination := common.HexToAddress("0x1100000000000000000000000000000000000011")
	selector := [4]byte{0xca, 0xfe, 0xba, 0xbe}

	// nothing set: simple majority
	assert.Zero(t, c.ThresholdFor(destination, selector).Cmp(fixed.Half()))

	require.Nil(t, c.Set(destination, [4]byte{}, fixed.MustFromString("0.6")))
	assert.Equal(t, "0.6", c.ThresholdFor(destination, selector).String())

	require.Nil(t, c.Set(destination, selector, fixed.MustFromString("0.9")))
	assert.Equal(t, "0.9", c.ThresholdFor(destination, selector).String())

	// other selectors still use the destination default
	assert.Equal(t, "0.6", c.ThresholdFor(destination, [4]byte{1, 2, 3, 4}).String())
	// other destinations are untouched
	other := common.HexToAddress("0x2200000000000000000000000000000000000022")
	assert.Zero(t, c.ThresholdFor(other, selector).Cmp(fixed.Half()))
}

func TestConstitutionSetValidatesRange(t *testing.T) {
	c := NewConstitution()
	destination := common.HexToAddress("0x1100000000000000000000000000000000000011")

	assert.ErrorIs(t, c.Set(destination, [4]byte{}, fixed.MustFromString("0.4")), ErrInvalidThreshold)
	assert.ErrorIs(t, c.Set(destination, [4]byte{}, fixed.One()), ErrInvalidThreshold)
	assert.ErrorIs(t, c.Set(destination, [4]byte{}, fixed.MustFromString("1.5")), ErrInvalidThreshold)

	// both ends of the valid range
	assert.Nil(t, c.Set(destination, [4]byte{}, fixed.Half()))
	assert.Nil(t, c.Set(destination, [4]byte{}, fixed.MustFromString("0.999999")))
}

func TestConstitutionOverwrite(t *testing.T) {
	c := NewConstitution()
	destination := common.HexToAddress("0x1100000000000000000000000000000000000011")

	require.Nil(t, c.Set(destination, [4]byte{}, fixed.MustFromString("0.6")))
	require.Nil(t, c.Set(destination, [4]byte{}, fixed.MustFromString("0.8")))
	assert.Equal(t, "0.8", c.ThresholdFor(destination, [4]byte{}).String())
}
