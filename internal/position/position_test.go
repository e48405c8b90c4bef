package position

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/yuanying/audiobook/internal/manifest"
	"github.com/yuanying/audiobook/internal/spine"
)

func buildSpine(t *testing.T, durations ...time.Duration) *spine.Spine {
	t.Helper()
	items := make([]manifest.ReadingOrderItem, len(durations))
	for i, d := range durations {
		items[i] = manifest.ReadingOrderItem{Href: fmt.Sprintf("t%d.mp3", i), Duration: d}
	}
	sp, err := spine.Build(items, spine.BuildOptions{Identifier: "test"})
	if err != nil {
		t.Fatalf("spine.Build failed: %v", err)
	}
	return sp
}

func mustNew(t *testing.T, sp *spine.Spine, index int, offset time.Duration) Position {
	t.Helper()
	p, err := New(sp, index, offset)
	if err != nil {
		t.Fatalf("New(%d, %v) failed: %v", index, offset, err)
	}
	return p
}

func TestNew_Validation(t *testing.T) {
	sp := buildSpine(t, time.Minute, time.Minute)
	if _, err := New(nil, 0, 0); !errors.Is(err, ErrNilSpine) {
		t.Errorf("New(nil) err = %v", err)
	}
	if _, err := New(sp, 2, 0); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("New(index 2) err = %v", err)
	}
	if _, err := New(sp, -1, 0); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("New(index -1) err = %v", err)
	}
	if _, err := New(sp, 0, -time.Second); !errors.Is(err, ErrNegativeOffset) {
		t.Errorf("New(negative) err = %v", err)
	}
	p := mustNew(t, sp, 1, 10*time.Second)
	if p.Track() != sp.Track(1) {
		t.Error("Track() does not reference the spine track at Index()")
	}
}

func TestAdvance_WithinTrack(t *testing.T) {
	sp := buildSpine(t, time.Minute, time.Minute)
	p, boundary := Start(sp).Advance(30 * time.Second)
	if boundary {
		t.Error("boundary = true")
	}
	if p.Index() != 0 || p.Offset() != 30*time.Second {
		t.Errorf("Advance = %v, want 0@30s", p)
	}
}

func TestAdvance_CrossesTracks(t *testing.T) {
	sp := buildSpine(t, time.Minute, 2*time.Minute, time.Minute)

	tests := []struct {
		name       string
		from       Position
		by         time.Duration
		wantIndex  int
		wantOffset time.Duration
	}{
		{"forward one boundary", mustNew(t, sp, 0, 50*time.Second), 20 * time.Second, 1, 10 * time.Second},
		{"forward two boundaries", mustNew(t, sp, 0, 0), 3*time.Minute + 5*time.Second, 2, 5 * time.Second},
		{"exact track end", mustNew(t, sp, 0, 0), time.Minute, 1, 0},
		{"backward one boundary", mustNew(t, sp, 1, 10*time.Second), -20 * time.Second, 0, 50 * time.Second},
		{"backward two boundaries", mustNew(t, sp, 2, 10*time.Second), -(2*time.Minute + 20*time.Second), 0, 50 * time.Second},
		{"overshoot normalized", mustNew(t, sp, 0, 90*time.Second), 0, 1, 30 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, boundary := tt.from.Advance(tt.by)
			if boundary {
				t.Error("boundary = true")
			}
			if got.Index() != tt.wantIndex || got.Offset() != tt.wantOffset {
				t.Errorf("Advance = %v, want %d@%v", got, tt.wantIndex, tt.wantOffset)
			}
		})
	}
}

func TestAdvance_ClampsAtBoundaries(t *testing.T) {
	sp := buildSpine(t, time.Minute, 2*time.Minute)

	end, boundary := mustNew(t, sp, 1, time.Minute).Advance(10 * time.Minute)
	if !boundary {
		t.Error("forward boundary not reported")
	}
	if end.Index() != 1 || end.Offset() != 2*time.Minute {
		t.Errorf("forward clamp = %v, want 1@2m", end)
	}

	start, boundary := mustNew(t, sp, 1, 10*time.Second).Advance(-10 * time.Minute)
	if !boundary {
		t.Error("backward boundary not reported")
	}
	if start.Index() != 0 || start.Offset() != 0 {
		t.Errorf("backward clamp = %v, want 0@0s", start)
	}
}

func TestAdvance_SkipsZeroLengthTracks(t *testing.T) {
	sp := buildSpine(t, time.Minute, 0, time.Minute)
	p, _ := mustNew(t, sp, 0, 50*time.Second).Advance(20 * time.Second)
	if p.Index() != 2 || p.Offset() != 10*time.Second {
		t.Errorf("Advance = %v, want 2@10s", p)
	}
	back, _ := p.Advance(-20 * time.Second)
	if back.Index() != 0 || back.Offset() != 50*time.Second {
		t.Errorf("Advance back = %v, want 0@50s", back)
	}
}

func TestAdvance_Composition(t *testing.T) {
	sp := buildSpine(t, 90*time.Second, 45*time.Second, 3*time.Minute, 30*time.Second)
	from := mustNew(t, sp, 1, 20*time.Second)

	deltas := []time.Duration{
		-100 * time.Second, -45 * time.Second, -20 * time.Second, -time.Second,
		0, time.Second, 25 * time.Second, 70 * time.Second, 200 * time.Second,
	}
	for _, d1 := range deltas {
		for _, d2 := range deltas {
			mid, b1 := from.Advance(d1)
			twoStep, b2 := mid.Advance(d2)
			oneStep, b3 := from.Advance(d1 + d2)
			if b1 || b2 || b3 {
				continue
			}
			if !twoStep.Equal(oneStep) {
				t.Errorf("Advance(%v).Advance(%v) = %v, Advance(%v) = %v", d1, d2, twoStep, d1+d2, oneStep)
			}
		}
	}
}

func TestEquality_Structural(t *testing.T) {
	a := buildSpine(t, time.Minute, time.Minute)
	b := buildSpine(t, time.Minute, time.Minute)

	p := mustNew(t, a, 1, 5*time.Second)
	q := mustNew(t, b, 1, 5*time.Second)
	r := mustNew(t, a, 1, 5*time.Second)

	if !p.Equal(p) {
		t.Error("not reflexive")
	}
	if !p.Equal(q) || !q.Equal(p) {
		t.Error("not symmetric across spine instances")
	}
	if !p.Equal(q) || !q.Equal(r) || !p.Equal(r) {
		t.Error("not transitive")
	}
	if p.Equal(mustNew(t, a, 1, 6*time.Second)) || p.Equal(mustNew(t, a, 0, 5*time.Second)) {
		t.Error("distinct positions compare equal")
	}
}

func TestCompare_Lexicographic(t *testing.T) {
	sp := buildSpine(t, time.Minute, time.Minute)
	ordered := []Position{
		mustNew(t, sp, 0, 0),
		mustNew(t, sp, 0, 59*time.Second),
		mustNew(t, sp, 1, 0),
		mustNew(t, sp, 1, time.Second),
	}
	for i := range ordered {
		for j := range ordered {
			want := 0
			if i < j {
				want = -1
			} else if i > j {
				want = 1
			}
			if got := Compare(ordered[i], ordered[j]); got != want {
				t.Errorf("Compare(%v, %v) = %d, want %d", ordered[i], ordered[j], got, want)
			}
		}
	}
}

func TestElapsedRemaining(t *testing.T) {
	sp := buildSpine(t, time.Minute, 2*time.Minute)
	p := mustNew(t, sp, 1, 30*time.Second)
	if p.Elapsed() != 90*time.Second {
		t.Errorf("Elapsed() = %v, want 1m30s", p.Elapsed())
	}
	if p.Remaining() != 90*time.Second {
		t.Errorf("Remaining() = %v, want 1m30s", p.Remaining())
	}
}

func TestRebase(t *testing.T) {
	old := buildSpine(t, time.Minute, time.Minute)
	rebuilt := buildSpine(t, time.Minute, time.Minute)
	p := mustNew(t, old, 1, 15*time.Second)

	q, err := p.Rebase(rebuilt)
	if err != nil {
		t.Fatalf("Rebase failed: %v", err)
	}
	if q.Spine() != rebuilt || !q.Equal(p) {
		t.Errorf("Rebase = %v on %p, want %v on %p", q, q.Spine(), p, rebuilt)
	}

	shorter := buildSpine(t, time.Minute)
	if _, err := p.Rebase(shorter); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("Rebase onto shorter spine err = %v", err)
	}
}
