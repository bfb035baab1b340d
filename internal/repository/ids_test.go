package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidID(t *testing.T) {
	assert.True(t, validID("3f0c6a3e-8b0e-4d8e-9a57-9a4b5c1f2d10"))
	assert.False(t, validID(""))
	assert.False(t, validID("REQ-1A2B3C4D"))
	assert.False(t, validID("1; DROP TABLE requisitions"))
}
