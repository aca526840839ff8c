package app

import (
	"testing"

	"github.com/stretchr/testify/assert"

	_ "github.com/odyssey-erp/odyssey-authz/testing"
)

func TestInTestModeUnderTests(t *testing.T) {
	assert.True(t, InTestMode())
}
