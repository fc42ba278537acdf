package testingutils

import (
	"testing"
	"time"

	"github.com/onsi/gomega"
)

const (
	eventuallyTimeout         = 5 * time.Second
	eventuallyPollingInterval = 20 * time.Millisecond
)

// NewGomegaWithT returns a gomega instance that reports failures through t without aborting the test. Eventually
// polls quickly since the fake servers used in tests answer immediately.
func NewGomegaWithT(t *testing.T) *gomega.WithT {
	g := gomega.NewWithT(t)
	g.Fail = func(message string, _ ...int) {
		t.Helper()
		t.Logf("\n%s", message)
		t.Fail()
	}
	g.SetDefaultEventuallyTimeout(eventuallyTimeout)
	g.SetDefaultEventuallyPollingInterval(eventuallyPollingInterval)
	return g
}
