package waittime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "st marys hospital", normalizeName("St. Mary's  Hospital"))
	assert.Equal(t, "piedmont atlanta", normalizeName("Piedmont-Atlanta!"))
	assert.Equal(t, "", normalizeName("..."))
}

func TestBestMatchExactAfterNormalization(t *testing.T) {
	table := map[string]int{
		"st marys hospital":        25,
		"childrens medical center": 40,
	}

	minutes, ok := bestMatch("St. Mary's Hospital", table)
	assert.True(t, ok)
	assert.Equal(t, 25, minutes)
}

func TestBestMatchWordOverlap(t *testing.T) {
	table := map[string]int{
		"piedmont atlanta hospital": 35,
		"piedmont fayette hospital": 50,
	}

	minutes, ok := bestMatch("Piedmont Atlanta", table)
	assert.True(t, ok)
	assert.Equal(t, 35, minutes)
}

func TestBestMatchRejectsDisjointNames(t *testing.T) {
	table := map[string]int{"childrens medical center": 40}

	_, ok := bestMatch("St. Mary's Hospital", table)
	assert.False(t, ok, "zero word overlap must not match")
}

func TestBestMatchRespectsThreshold(t *testing.T) {
	// One shared word out of four distinct is 0.25, below the 0.5 threshold.
	table := map[string]int{"general county urgent care": 20}

	_, ok := bestMatch("general hospital", table)
	assert.False(t, ok)
}

func TestOverlapScore(t *testing.T) {
	assert.Equal(t, 1.0, overlapScore("st marys hospital", "st marys hospital"))
	assert.Equal(t, 0.0, overlapScore("st marys hospital", "childrens medical center"))
	assert.InDelta(t, 2.0/3.0, overlapScore("piedmont atlanta", "piedmont atlanta hospital"), 1e-9)
	assert.Equal(t, 0.0, overlapScore("", "anything"))
}
