package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/dmitrijs2005/datawallet/internal/client/processors"
)

type scenario struct {
	Description string `yaml:"description"`
	Policy      string `yaml:"policy"`
	Events      []struct {
		Type    string         `yaml:"type"`
		Payload map[string]any `yaml:"payload"`
	} `yaml:"events"`
}

func loadScenario(t *testing.T, path string) scenario {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var sc scenario
	require.NoError(t, yaml.Unmarshal(raw, &sc))
	return sc
}

// TestScenarios replays each event log under testdata/scenarios against a
// fresh client and compares the published events and run totals with the
// golden trace.
func TestScenarios(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), ".yaml")
		t.Run(name, func(t *testing.T) {
			sc := loadScenario(t, path)

			fb := newFakeBackbone()
			for _, ev := range sc.Events {
				payload, err := json.Marshal(ev.Payload)
				require.NoError(t, err)
				fb.addEvent(processors.EventType(ev.Type), string(payload))
			}

			cfg := Config{}
			if sc.Policy != "" {
				cfg.FailurePolicy = FailurePolicy(sc.Policy)
			}
			cl := newClient(t, fb, "dev-a", cfg)

			res, err := cl.coord.SyncEverything(context.Background(), nil)
			require.NoError(t, err, sc.Description)
			cursor, err := cl.st.Cursor(context.Background())
			require.NoError(t, err)

			var b strings.Builder
			for _, ev := range cl.bus.all() {
				fmt.Fprintf(&b, "%s %s\n", ev.Namespace, ev.ObjectID)
			}
			fmt.Fprintf(&b, "processed=%d skipped=%d failures=%d pushed=%d cursor=%d\n",
				res.Processed, res.Skipped, len(res.Failures), res.Pushed, cursor)

			g := goldie.New(t, goldie.WithFixtureDir(filepath.Join("testdata", "golden")), goldie.WithNameSuffix(".golden"))
			g.Assert(t, name, []byte(b.String()))
		})
	}
}
