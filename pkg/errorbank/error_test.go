package errorbank

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
)

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		kind     Kind
		wantHTTP int
		wantGRPC codes.Code
	}{
		{KindBadRequest, http.StatusBadRequest, codes.InvalidArgument},
		{KindConflict, http.StatusConflict, codes.AlreadyExists},
		{KindNotFound, http.StatusNotFound, codes.NotFound},
		{KindUnprocessableEntity, http.StatusUnprocessableEntity, codes.FailedPrecondition},
		{KindInternal, http.StatusInternalServerError, codes.Internal},
	}
	for _, tc := range tests {
		err := New(tc.kind, "boom")
		require.Equal(t, tc.wantHTTP, err.StatusCode())
		require.Equal(t, tc.wantGRPC, err.GRPCCode())
	}
}

func TestOptionsAndUnwrap(t *testing.T) {
	cause := errors.New("underlying")
	err := BadRequest("too low",
		WithCode("bid_below_next_valid"),
		WithDetail("next_valid_bid", 45),
		WithCause(cause),
	)

	require.Equal(t, "bid_below_next_valid", err.Code())
	require.Equal(t, 45, err.Details()["next_valid_bid"])
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "too low")
	require.Contains(t, err.Error(), "underlying")
}

func TestFrom(t *testing.T) {
	app := NotFound("missing")
	require.Same(t, app, From(app))
	require.Same(t, app, From(fmt.Errorf("wrapped: %w", app)))

	plain := From(errors.New("plain"))
	require.Equal(t, KindInternal, plain.Kind())

	require.Nil(t, From(nil))
}
