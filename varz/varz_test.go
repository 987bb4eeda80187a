package varz

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var (
	testCounter = NewInt("testCounter")
	testGauge   = NewFloat("testGauge")
)

func TestNamesArePackageQualified(t *testing.T) {
	testCounter.Add(3)
	testGauge.Set(87.5)

	got := Snapshot("varz.test")
	assert.Equal(t, []Var{
		{Name: "varz.testCounter", Value: "3"},
		{Name: "varz.testGauge", Value: "87.5"},
	}, got)
}

func TestSnapshotMissingPrefix(t *testing.T) {
	assert.Empty(t, Snapshot("nosuchpackage."))
}
