package database

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConnectionsTranslateDriverErrors(t *testing.T) {
	cfg := gormConfig()

	// Unique-violation translation into gorm.ErrDuplicatedKey is what lets
	// the webhook audit trail detect redelivered notifications; without it a
	// redelivery surfaces as a raw driver error and the gateway retries
	// forever.
	require.True(t, cfg.TranslateError)
}
