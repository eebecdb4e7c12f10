package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindsSurviveWrapping(t *testing.T) {
	base := errors.New("broker unreachable")
	err := fmt.Errorf("starting session: %w", Source("subscribe", base))

	assert.True(t, Is(err, KindSource))
	assert.False(t, Is(err, KindDispatch))
	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), "source error: subscribe: broker unreachable")
}

func TestValidationFormatsMessage(t *testing.T) {
	err := Validation("normalize", "patient id is empty for device %s", "belt-7")

	assert.True(t, Is(err, KindValidation))
	assert.Equal(t, "validation error: normalize: patient id is empty for device belt-7", err.Error())
	assert.False(t, Is(errors.New("plain"), KindValidation))
}
