package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/teranos/ablation/errors"
)

func TestExitCode(t *testing.T) {
	assert.Equal(t, 2, exitCode(errors.Integrityf("truth conflict")))
	assert.Equal(t, 3, exitCode(errors.Connectivityf(errors.New("closed"), "ablate")))
	assert.Equal(t, 4, exitCode(errors.Configurationf("seed missing")))
	assert.Equal(t, 1, exitCode(errors.New("boom")))
	assert.Equal(t, 2, exitCode(errors.Wrap(errors.Integrityf("x"), "context")))
}
