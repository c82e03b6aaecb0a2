package errors_test

import (
	"errors"
	"fmt"
	"testing"

	berr "github.com/next-trace/scg-port-bridge/contract/errors"
)

func TestCodeAndVars(t *testing.T) {
	e := berr.Code(berr.ErrCodeSendFailed)
	if e.Error() != berr.ErrCodeSendFailed {
		t.Fatalf("unexpected error string: %s", e.Error())
	}

	// exported variables must carry their codes
	tests := []struct {
		err  error
		code string
	}{
		{berr.ErrPortClosed, berr.ErrCodePortClosed},
		{berr.ErrBridgeClosed, berr.ErrCodeBridgeClosed},
		{berr.ErrEngineNotConfigured, berr.ErrCodeEngineNotConfigured},
		{berr.ErrSendFailed, berr.ErrCodeSendFailed},
		{berr.ErrSubscribeFailed, berr.ErrCodeSubscribeFailed},
		{berr.ErrInvocationTimeout, berr.ErrCodeInvocationTimeout},
		{berr.ErrInvocationCanceled, berr.ErrCodeInvocationCanceled},
		{berr.ErrCorrelationFailed, berr.ErrCodeCorrelationFailed},
		{berr.ErrSerializationFailed, berr.ErrCodeSerializationFailed},
		{berr.ErrConnectFailed, berr.ErrCodeConnectFailed},
	}

	for _, tc := range tests {
		if !errors.Is(tc.err, berr.Code(tc.code)) {
			t.Fatalf("expected %s to be %s", tc.err, tc.code)
		}
	}
}

func TestCodeSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("invoke abc: %w", errors.Join(berr.ErrInvocationTimeout, errors.New("deadline")))
	if !errors.Is(err, berr.ErrInvocationTimeout) {
		t.Fatalf("want ErrInvocationTimeout in chain, got %v", err)
	}

	if errors.Is(err, berr.ErrInvocationCanceled) {
		t.Fatalf("unexpected ErrInvocationCanceled in %v", err)
	}
}
