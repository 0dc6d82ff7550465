package sysmsg

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReason_Abnormal(t *testing.T) {
	assert.False(t, NormalReason().Abnormal())
	assert.False(t, ShutdownReason("supervisor").Abnormal())
	assert.True(t, Reason{Type: Panic}.Abnormal())
	assert.True(t, Reason{Type: Error, Details: errors.New("boom")}.Abnormal())
	assert.True(t, Reason{Type: Kill}.Abnormal())
	assert.True(t, Reason{Type: Meltdown}.Abnormal())
	assert.True(t, Reason{Type: "custom"}.Abnormal())
}

func TestReason_String(t *testing.T) {
	assert.Equal(t, "normal", NormalReason().String())
	assert.Equal(t, "error: boom", Reason{Type: Error, Details: errors.New("boom")}.String())
}
