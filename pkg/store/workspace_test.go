package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BYTE-6D65/liveboard/pkg/clock"
	"github.com/BYTE-6D65/liveboard/pkg/event"
	"github.com/BYTE-6D65/liveboard/pkg/widget"
)

func twoLights(t *testing.T) *MemoryStore {
	s := NewMemoryStore()
	seed(t, s,
		widget.New("timer", widget.TimeToolConfig{Mode: widget.ModeTimer}),
		widget.New("light-a", widget.TrafficConfig{}),
		widget.New("light-b", widget.TrafficConfig{}),
	)
	return s
}

func ids(ws []widget.Widget) []string {
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.ID)
	}
	return out
}

func TestWorkspace_FindByKind(t *testing.T) {
	ctx := context.Background()
	s := twoLights(t)

	tests := []struct {
		policy  TargetPolicy
		want    []string
		wantErr error
	}{
		{TargetAll, []string{"light-a", "light-b"}, nil},
		{TargetFirst, []string{"light-a"}, nil},
		{TargetUnique, nil, ErrAmbiguousTarget},
	}
	for _, tt := range tests {
		t.Run(tt.policy.String(), func(t *testing.T) {
			got, err := NewWorkspace(s, tt.policy).FindByKind(ctx, widget.KindTraffic)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestWorkspace_NoMatchIsEmpty(t *testing.T) {
	ctx := context.Background()
	ws := NewWorkspace(twoLights(t), TargetUnique)

	got, err := ws.FindByKind(ctx, widget.KindExpectations)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, ok, err := ws.FindFirstByKind(ctx, widget.KindSound)
	require.NoError(t, err)
	assert.False(t, ok)

	has, err := ws.Has(ctx, widget.KindTimeTool)
	require.NoError(t, err)
	assert.True(t, has)

	first, ok, err := ws.FindFirstByKind(ctx, widget.KindTraffic)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "light-a", first.ID)
}

func TestParseTargetPolicy(t *testing.T) {
	for _, p := range []TargetPolicy{TargetAll, TargetFirst, TargetUnique} {
		got, err := ParseTargetPolicy(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
	_, err := ParseTargetPolicy("random")
	assert.Error(t, err)
}

func TestJournal_OrderAndQueries(t *testing.T) {
	j := NewJournal(0)
	at := func(s int) clock.MonoTime { return clock.FromDuration(time.Duration(s) * time.Second) }

	j.Append(WriteRecord{Seq: 1, At: at(1), WidgetID: "a"})
	j.Append(WriteRecord{Seq: 2, At: at(3), WidgetID: "b"})
	j.Append(WriteRecord{Seq: 3, At: at(2), WidgetID: "a"}) // late arrival from a peer

	all := j.All()
	require.Len(t, all, 3)
	assert.Equal(t, []uint64{1, 3, 2}, []uint64{all[0].Seq, all[1].Seq, all[2].Seq})

	assert.Len(t, j.ForWidget("a"), 2)
	assert.Len(t, j.Range(at(2), at(3)), 1)
	assert.Nil(t, j.Range(at(3), at(2)))

	last, ok := j.Last()
	require.True(t, ok)
	assert.Equal(t, uint64(2), last.Seq)

	j.Clear()
	assert.Zero(t, j.Len())
	_, ok = j.Last()
	assert.False(t, ok)
}

func TestJournal_Limit(t *testing.T) {
	j := NewJournal(2)
	for i := 1; i <= 5; i++ {
		j.Append(WriteRecord{Seq: uint64(i), At: clock.MonoTime(i)})
	}
	all := j.All()
	require.Len(t, all, 2)
	assert.Equal(t, uint64(4), all[0].Seq)
	assert.Equal(t, uint64(5), all[1].Seq)
}

func TestAsyncWriter_AppliesInOrder(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seed(t, s, widget.New("sound", widget.SoundConfig{Sensitivity: 1}))

	a := NewAsyncWriter(s, nil, 0)
	for _, v := range []float64{2, 3, 4} {
		require.NoError(t, a.Write(ctx, "sound", widget.Sensitivity(v)))
	}
	a.Flush()

	w, err := s.Widget(ctx, "sound")
	require.NoError(t, err)
	assert.Equal(t, 4.0, w.Config.(widget.SoundConfig).Sensitivity)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	assert.ErrorIs(t, a.Write(ctx, "sound", widget.Sensitivity(1)), ErrClosed)
}

func TestAsyncWriter_ReportsFailures(t *testing.T) {
	errs := event.NewErrorBus(4)
	defer errs.Close()
	sub, err := errs.Subscribe(context.Background())
	require.NoError(t, err)

	a := NewAsyncWriter(NewMemoryStore(), errs, 0)
	defer a.Close()

	require.NoError(t, a.Write(context.Background(), "ghost", widget.VoiceLevel(1)))
	a.Flush()

	select {
	case evt := <-sub.Events():
		assert.Equal(t, event.CodeWriteFail, evt.Code)
		assert.Equal(t, "ghost", evt.Context["widget_id"])
	case <-time.After(time.Second):
		t.Fatal("expected WRITE_FAIL")
	}
}

func TestAsyncWriter_DropsOldestWhenFull(t *testing.T) {
	ctx := context.Background()
	gate := make(chan struct{})
	var applied []float64
	slow := WriterFunc(func(_ context.Context, _ string, p widget.Patch) error {
		<-gate
		applied = append(applied, p["sensitivity"].(float64))
		return nil
	})

	a := NewAsyncWriter(slow, nil, 1)
	require.NoError(t, a.Write(ctx, "s", widget.Sensitivity(1)))
	// wait for the goroutine to pick up the first write
	require.Eventually(t, func() bool {
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.busy
	}, time.Second, time.Millisecond)

	require.NoError(t, a.Write(ctx, "s", widget.Sensitivity(2)))
	require.NoError(t, a.Write(ctx, "s", widget.Sensitivity(3)))
	close(gate)
	a.Flush()
	require.NoError(t, a.Close())

	assert.Equal(t, 1, a.Dropped())
	assert.Equal(t, []float64{1, 3}, applied)
}
