// internal/buffer/series.go
package buffer

// series is a ring of samples. Not safe for concurrent use; Buffer locks around it.
type series struct {
	ring []Sample
	head int // index of the oldest sample
	n    int // number of live samples
	next uint64
}

func newSeries(capacity int) *series {
	return &series{ring: make([]Sample, capacity)}
}

func (s *series) push(smp Sample) {
	c := len(s.ring)
	if s.n < c {
		s.ring[(s.head+s.n)%c] = smp
		s.n++
	} else {
		// full: overwrite the oldest
		s.ring[s.head] = smp
		s.head = (s.head + 1) % c
	}
	s.next = smp.Seq + 1
}

func (s *series) at(i int) Sample {
	return s.ring[(s.head+i)%len(s.ring)]
}

func (s *series) each(fn func(Sample)) {
	for i := 0; i < s.n; i++ {
		fn(s.at(i))
	}
}

func (s *series) copy() []Sample {
	out := make([]Sample, s.n)
	for i := 0; i < s.n; i++ {
		out[i] = s.at(i)
	}
	return out
}

func (s *series) dropBefore(minSeq uint64) int {
	dropped := 0
	for s.n > 0 && s.ring[s.head].Seq < minSeq {
		s.ring[s.head] = Sample{}
		s.head = (s.head + 1) % len(s.ring)
		s.n--
		dropped++
	}
	return dropped
}
