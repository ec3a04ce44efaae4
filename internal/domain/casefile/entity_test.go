package casefile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCase_IsActive(t *testing.T) {
	assert.True(t, Case{Status: CaseStatusActive}.IsActive())
	assert.False(t, Case{Status: CaseStatusClosed}.IsActive())
	assert.False(t, Case{Status: CaseStatusArchived}.IsActive())
	assert.False(t, Case{}.IsActive())
}

func TestApplyOptions_Defaults(t *testing.T) {
	opts := ApplyOptions()
	assert.Equal(t, 20, opts.Limit)
	assert.Equal(t, 0, opts.Offset)
	assert.Nil(t, opts.Status)
}

func TestApplyOptions_ClampsLimit(t *testing.T) {
	opts := ApplyOptions(WithLimit(500))
	assert.Equal(t, 100, opts.Limit)

	opts = ApplyOptions(WithLimit(-3))
	assert.Equal(t, 20, opts.Limit)

	opts = ApplyOptions(WithOffset(-10))
	assert.Equal(t, 0, opts.Offset)
}

func TestApplyOptions_Status(t *testing.T) {
	opts := ApplyOptions(WithStatus(CaseStatusArchived), WithLimit(5), WithOffset(10))
	if assert.NotNil(t, opts.Status) {
		assert.Equal(t, CaseStatusArchived, *opts.Status)
	}
	assert.Equal(t, 5, opts.Limit)
	assert.Equal(t, 10, opts.Offset)
}
