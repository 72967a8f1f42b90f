package signal

import "quant-research/internal/dto"

// triggerSet holds the synthesized trigger tracks over result indices
// (0 = first bar after the lookback prefix).
type triggerSet struct {
	entryLong  []int
	exitLong   []int
	entryShort []int
	exitShort  []int
	positions  []dto.Signal
}

func newTriggerSet(n int) *triggerSet {
	return &triggerSet{
		entryLong:  make([]int, n),
		exitLong:   make([]int, n),
		entryShort: make([]int, n),
		exitShort:  make([]int, n),
		positions:  make([]dto.Signal, n),
	}
}

func (t *triggerSet) entry(r int, s dto.Signal) {
	if s == dto.SignalLong {
		t.entryLong[r] = 1
	} else if s == dto.SignalShort {
		t.entryShort[r] = 1
	}
}

func (t *triggerSet) exit(r int, s dto.Signal) {
	if s == dto.SignalLong {
		t.exitLong[r] = 1
	} else if s == dto.SignalShort {
		t.exitShort[r] = 1
	}
}

// synthesize converts the initial signal sequence into triggers and a final
// position track. W is the entry-confirmation width, H the fixed holding
// span; both zero selects the unconstrained diffing path.
func synthesize(signals []dto.Signal, w, h int) *triggerSet {
	if w <= 0 && h <= 0 {
		return synthesizeUnconstrained(signals)
	}
	return synthesizeConstrained(signals, w, h)
}

func synthesizeUnconstrained(signals []dto.Signal) *triggerSet {
	set := newTriggerSet(len(signals))
	prev := dto.SignalNeutral
	for r, s := range signals {
		if s != prev {
			set.exit(r, prev)
			set.entry(r, s)
			prev = s
		}
		set.positions[r] = prev
	}
	return set
}

// synthesizeConstrained runs the {Idle, Waiting, Holding} state machine. A
// signal change arms a confirmation tracker for W steps; a confirmed entry
// with H set schedules H held days followed by a forced exit, and evaluation
// resumes after the scheduled block.
func synthesizeConstrained(signals []dto.Signal, w, h int) *triggerSet {
	n := len(signals)
	set := newTriggerSet(n)
	pos := dto.SignalNeutral

	var (
		armed    bool
		expected dto.Signal
		counter  int
	)

	commit := func(r int, s dto.Signal) int {
		if pos != dto.SignalNeutral {
			set.exit(r, pos)
		}
		set.entry(r, s)
		pos = s
		set.positions[r] = pos
		if h <= 0 {
			return r
		}
		// Fill H held days, then force the exit. The schedule is truncated
		// at the series end.
		exitAt := r + h + 1
		if exitAt > n-1 {
			exitAt = n - 1
		}
		for j := r + 1; j < exitAt; j++ {
			set.positions[j] = pos
		}
		set.exit(exitAt, pos)
		pos = dto.SignalNeutral
		set.positions[exitAt] = pos
		return exitAt
	}

	for r := 0; r < n; r++ {
		s := signals[r]

		if armed {
			if counter < w {
				counter++
				set.positions[r] = pos
				continue
			}
			// counter = W: confirm or force neutral.
			armed = false
			if s == expected {
				r = commit(r, s)
			} else {
				if pos != dto.SignalNeutral {
					set.exit(r, pos)
					pos = dto.SignalNeutral
				}
				set.positions[r] = pos
			}
			continue
		}

		switch {
		case s == pos:
			set.positions[r] = pos
		case s == dto.SignalNeutral:
			set.positions[r] = pos
		case w > 0:
			armed = true
			expected = s
			counter = 1
			set.positions[r] = pos
		default:
			// H without W: immediate commit.
			r = commit(r, s)
		}
	}
	return set
}
