package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePassphrase(t *testing.T) {
	assert.Error(t, ValidatePassphrase("short!"))
	assert.Error(t, ValidatePassphrase("longenoughbutplain"))
	assert.NoError(t, ValidatePassphrase("long enough passphrase"))
}

func TestContainsAtLeastNSpecial(t *testing.T) {
	assert.False(t, ContainsAtLeastNSpecial("abcXYZ123", 1))
	assert.True(t, ContainsAtLeastNSpecial("abc-def", 1))
	assert.False(t, ContainsAtLeastNSpecial("abc-def", 2))
	assert.True(t, ContainsAtLeastNSpecial("a!b@", 2))
}
