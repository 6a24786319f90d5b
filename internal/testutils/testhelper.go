// Package testutils provides in-memory fakes for the BLE layer so discovery
// and session code can be tested without a radio.
package testutils

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
)

type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
}

// NewTestHelper creates a test helper with a discarding logger.
func NewTestHelper(t *testing.T) *TestHelper {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return &TestHelper{
		T:      t,
		Logger: logger,
	}
}
