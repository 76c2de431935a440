package tracing

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"example.com/eventreg/config"
)

func TestNewTracerWithoutLicenseKeyIsDisabled(t *testing.T) {
	tracer, err := NewTracer(config.TracingConfig{})
	require.NoError(t, err)
	require.NotNil(t, tracer)
	require.Nil(t, tracer.Application())
}

func TestDisabledTracerIsSafeToUse(t *testing.T) {
	tracer := Disabled()
	require.NotNil(t, tracer)

	txn := tracer.StartTransaction("noop")
	require.Nil(t, txn)

	// Every method must tolerate the nil transaction a disabled tracer hands out.
	segment := tracer.StartSpan("noop-span", txn)
	require.NotNil(t, segment)
	segment.End()

	tracer.AddAttribute(txn, "key", "value")
	tracer.RecordError(txn, errors.New("ignored"))
	tracer.EndTransaction(txn)
	require.Nil(t, tracer.Application())
}
