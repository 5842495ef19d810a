package filter

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/goKeySwap/keymaps"
)

type recorder struct {
	events []Event
	err    error
	panics bool
}

func (r *recorder) Inject(ev Event) error {
	if r.panics {
		panic("boom")
	}
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, ev)
	return nil
}

func newFilter(pairs ...keymaps.KeyMapping) *Filter {
	return New(keymaps.NewTable(pairs), nil)
}

func TestMappedKeyDownAndUp(t *testing.T) {
	f := newFilter(keymaps.KeyMapping{From: 42, To: 51})

	for _, kind := range []Kind{KindKeyDown, KindKeyUp} {
		inj := &recorder{}
		_, forward := f.Handle(Event{Kind: kind, Code: 42, Flags: 0x20000}, inj)
		require.False(t, forward, "original must be suppressed")
		require.Equal(t, []Event{{Kind: kind, Code: 51, Flags: 0x20000}}, inj.events)
	}
}

func TestUnmappedPassesThroughUnchanged(t *testing.T) {
	f := newFilter(keymaps.KeyMapping{From: 42, To: 51})
	inj := &recorder{}
	ev := Event{Kind: KindKeyDown, Code: 7, Flags: 0x100108}

	out, forward := f.Handle(ev, inj)
	require.True(t, forward)
	require.Equal(t, ev, out)
	require.Empty(t, inj.events)
}

func TestNonKeyEventsAreIgnored(t *testing.T) {
	f := newFilter(keymaps.KeyMapping{From: 42, To: 51})
	inj := &recorder{}
	ev := Event{Kind: KindOther, Code: 42}

	out, forward := f.Handle(ev, inj)
	require.True(t, forward)
	require.Equal(t, ev, out)
	require.Empty(t, inj.events)
	require.Zero(t, f.Stats().Seen)
}

func TestSwapPairRoundTrip(t *testing.T) {
	f := newFilter(keymaps.KeyMapping{From: 42, To: 51}, keymaps.KeyMapping{From: 51, To: 42})
	inj := &recorder{}

	_, forward := f.Handle(Event{Kind: KindKeyDown, Code: 42}, inj)
	require.False(t, forward)
	_, forward = f.Handle(Event{Kind: KindKeyDown, Code: 51}, inj)
	require.False(t, forward)

	require.Equal(t, []Event{
		{Kind: KindKeyDown, Code: 51},
		{Kind: KindKeyDown, Code: 42},
	}, inj.events)
}

func TestRepeatIsPreserved(t *testing.T) {
	f := newFilter(keymaps.KeyMapping{From: 30, To: 48})
	inj := &recorder{}

	_, forward := f.Handle(Event{Kind: KindKeyDown, Code: 30, Repeat: true}, inj)
	require.False(t, forward)
	require.Equal(t, []Event{{Kind: KindKeyDown, Code: 48, Repeat: true}}, inj.events)
}

func TestInjectionFailureFallsBackToPassThrough(t *testing.T) {
	f := newFilter(keymaps.KeyMapping{From: 42, To: 51})
	ev := Event{Kind: KindKeyUp, Code: 42}

	out, forward := f.Handle(ev, &recorder{err: errors.New("no event source")})
	require.True(t, forward)
	require.Equal(t, ev, out)

	out, forward = f.Handle(ev, &recorder{panics: true})
	require.True(t, forward)
	require.Equal(t, ev, out)

	out, forward = f.Handle(ev, nil)
	require.True(t, forward)
	require.Equal(t, ev, out)

	require.Equal(t, Stats{Seen: 3, Failed: 3}, f.Stats())
}

func TestTableChangesAreSeenImmediately(t *testing.T) {
	table := keymaps.NewTable([]keymaps.KeyMapping{{From: 42, To: 51}})
	f := New(table, nil)
	table.Load([]keymaps.KeyMapping{{From: 7, To: 8}})

	inj := &recorder{}
	_, forward := f.Handle(Event{Kind: KindKeyDown, Code: 42}, inj)
	require.True(t, forward)
	_, forward = f.Handle(Event{Kind: KindKeyDown, Code: 7}, inj)
	require.False(t, forward)
	require.Equal(t, []Event{{Kind: KindKeyDown, Code: 8}}, inj.events)
	require.Equal(t, Stats{Seen: 2, Substituted: 1}, f.Stats())
}
