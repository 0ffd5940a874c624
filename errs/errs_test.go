package errs_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/zebpay/errs"
)

func TestErrorStringIncludesFields(t *testing.T) {
	cause := errors.New("connection reset")
	err := errs.New("rest/delete-order", errs.CodeRequest,
		errs.WithHTTP(400),
		errs.WithRawCode("1042"),
		errs.WithMessage("delete rejected"),
		errs.WithCause(cause),
	)

	msg := err.Error()
	require.Contains(t, msg, "op=rest/delete-order")
	require.Contains(t, msg, "code=request_failed")
	require.Contains(t, msg, "http=400")
	require.Contains(t, msg, `raw_code="1042"`)
	require.Contains(t, msg, `cause="connection reset"`)
	require.ErrorIs(t, err, cause)
}

func TestIsOrderNotFound(t *testing.T) {
	notFound := errs.New("rest/get-order", errs.CodeRequest,
		errs.WithCanonicalCode(errs.CanonicalOrderNotFound))
	require.True(t, errs.IsOrderNotFound(notFound))

	plain404 := errs.New("rest/get-order", errs.CodeNotFound)
	require.True(t, errs.IsOrderNotFound(plain404))

	require.False(t, errs.IsOrderNotFound(errors.New("order not found")))
	require.False(t, errs.IsOrderNotFound(errs.New("rest/get-order", errs.CodeRequest)))
}

func TestCanonicalDefaultsToUnknown(t *testing.T) {
	err := errs.New("x", errs.CodeInvalid, errs.WithCanonicalCode(""))
	require.Equal(t, errs.CanonicalUnknown, err.Canonical)
	require.NotContains(t, err.Error(), "canonical=")
}
