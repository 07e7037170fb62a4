package eureka

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyStatus_404IsNotFound(t *testing.T) {
	err := classifyStatus(404, "")
	var nf *NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestClassifyStatus_OtherIsBadStatus(t *testing.T) {
	err := classifyStatus(503, "unavailable")
	var bs *BadStatus
	assert.True(t, errors.As(err, &bs))
	assert.Equal(t, 503, bs.Code)
}

func TestNotFoundError_UnwrapsToBadStatus(t *testing.T) {
	err := NewNotFoundError()
	var bs *BadStatus
	assert.True(t, errors.As(err, &bs))
	assert.Equal(t, 404, bs.Code)
}
