package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWindow = 30 * time.Millisecond

func receive(t *testing.T, ch <-chan []FileEvent) []FileEvent {
	t.Helper()
	select {
	case batch := <-ch:
		return batch
	case <-time.After(2 * time.Second):
		t.Fatal("no batch received")
		return nil
	}
}

func TestDebouncer_Coalescing(t *testing.T) {
	tests := []struct {
		name string
		ops  []Operation
		want []Operation // empty means the events cancel out
	}{
		{"create then modify is create", []Operation{OpCreate, OpModify}, []Operation{OpCreate}},
		{"create then delete is nothing", []Operation{OpCreate, OpDelete}, nil},
		{"modify then delete is delete", []Operation{OpModify, OpDelete}, []Operation{OpDelete}},
		{"delete then create is modify", []Operation{OpDelete, OpCreate}, []Operation{OpModify}},
		{"modify twice is modify", []Operation{OpModify, OpModify}, []Operation{OpModify}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: a debouncer
			d := NewDebouncer(testWindow)
			defer d.Stop()

			// When: the sequence arrives for one path
			for _, op := range tt.ops {
				d.Add(FileEvent{Path: "a.json", Operation: op})
			}

			// Then: the merged result matches
			if tt.want == nil {
				assert.Zero(t, d.Pending())
				return
			}
			batch := receive(t, d.Output())
			require.Len(t, batch, 1)
			assert.Equal(t, tt.want[0], batch[0].Operation)
		})
	}
}

func TestDebouncer_BatchIsSortedByPath(t *testing.T) {
	d := NewDebouncer(testWindow)
	defer d.Stop()

	d.Add(FileEvent{Path: "c.json", Operation: OpModify})
	d.Add(FileEvent{Path: "a.json", Operation: OpCreate})
	d.Add(FileEvent{Path: "b.json", Operation: OpDelete})

	batch := receive(t, d.Output())
	require.Len(t, batch, 3)
	assert.Equal(t, "a.json", batch[0].Path)
	assert.Equal(t, "b.json", batch[1].Path)
	assert.Equal(t, "c.json", batch[2].Path)
}

func TestDebouncer_StopClosesOutput(t *testing.T) {
	d := NewDebouncer(testWindow)
	d.Add(FileEvent{Path: "a.json", Operation: OpCreate})

	d.Stop()
	d.Stop()
	d.Add(FileEvent{Path: "b.json", Operation: OpCreate})

	_, ok := <-d.Output()
	assert.False(t, ok)
}

func TestOperation_String(t *testing.T) {
	assert.Equal(t, "CREATE", OpCreate.String())
	assert.Equal(t, "MODIFY", OpModify.String())
	assert.Equal(t, "DELETE", OpDelete.String())
	assert.Equal(t, "UNKNOWN", Operation(9).String())
}

func TestOptions_WithDefaults(t *testing.T) {
	opts := Options{}.WithDefaults()
	assert.Equal(t, 200*time.Millisecond, opts.DebounceWindow)
	assert.Equal(t, 100, opts.EventBufferSize)
}
