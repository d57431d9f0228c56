package statemachine_test

import (
	"testing"

	sm "github.com/lni/dragonboat/v4/statemachine"

	"github.com/conflux-sh/conflux/internal/statemachine"
	"github.com/conflux-sh/conflux/internal/statemachine/smtest"
	"github.com/conflux-sh/conflux/internal/store"
	"github.com/conflux-sh/conflux/internal/watchhub"
)

func TestMachineConformance(t *testing.T) {
	smtest.RunConformanceTests(t, "Machine", func(t *testing.T) (sm.IConcurrentStateMachine, func()) {
		s, err := store.Open(t.TempDir())
		if err != nil {
			t.Fatalf("open store: %v", err)
		}
		m := statemachine.NewFactory(s, watchhub.New())(1, 1)
		return m, func() { _ = s.Close() }
	})
}
