package rtt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeAdaptiveTarget_ShrinksAboveHighWatermark(t *testing.T) {
	target := computeAdaptiveTarget(10, 20, 85.0)
	assert.Equal(t, 7, target)
}

func TestComputeAdaptiveTarget_ShrinkNeverGoesBelowOne(t *testing.T) {
	target := computeAdaptiveTarget(1, 20, 95.0)
	assert.Equal(t, 1, target)
}

func TestComputeAdaptiveTarget_GrowsBelowLowWatermark(t *testing.T) {
	target := computeAdaptiveTarget(5, 20, 10.0)
	assert.Equal(t, 6, target)
}

func TestComputeAdaptiveTarget_GrowthClampsToConfiguredMax(t *testing.T) {
	target := computeAdaptiveTarget(19, 20, 5.0)
	assert.Equal(t, 20, target)
}

func TestComputeAdaptiveTarget_StaysPutInMidRange(t *testing.T) {
	target := computeAdaptiveTarget(10, 20, 50.0)
	assert.Equal(t, 10, target)
}

func TestAdaptiveConcurrency_CurrentClampsToAtLeastOne(t *testing.T) {
	a := NewAdaptiveConcurrency(0, 0)
	assert.Equal(t, 1, a.Current())
}

func TestAdaptiveConcurrency_CurrentStartsAtConfiguredMax(t *testing.T) {
	a := NewAdaptiveConcurrency(8, 0)
	assert.Equal(t, 8, a.Current())
}
