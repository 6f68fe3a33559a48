package apperrors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("AddDriver: %w", Conflict("name", "Fahrer %q existiert bereits", "Max"))

	assert.True(t, errors.Is(err, ErrConflict))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, KindConflict, KindOf(err))
	assert.Equal(t, "name", FieldOf(err))
	assert.Contains(t, err.Error(), "Max")
}

func TestKindOfUnknownIsInternal(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestCancelledUnwrapsContextError(t *testing.T) {
	err := Cancelled(context.Canceled)

	assert.True(t, errors.Is(err, context.Canceled))
	assert.True(t, errors.Is(err, ErrCancelled))
}

func TestCheckError(t *testing.T) {
	cases := map[error]int{
		NotFound("Fahrer #%d", 1):                    http.StatusNotFound,
		Conflict("name", "doppelt"):                   http.StatusConflict,
		Validation("pickup_time", "leer"):             http.StatusBadRequest,
		MappingUnavailable(errors.New("timeout")):     http.StatusOK,
		ExportFailed(errors.New("disk"), "schreiben"): http.StatusInternalServerError,
		errors.New("unbekannt"):                       http.StatusInternalServerError,
	}
	for err, status := range cases {
		assert.Equal(t, status, CheckError(err), err.Error())
	}
}
