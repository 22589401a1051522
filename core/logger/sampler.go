package logger

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// sampler lets n of every d events through; d == 0 lets everything through.
type sampler struct {
	rate atomic.Uint64 // n<<32 | d
	seq  atomic.Uint64
}

func (s *sampler) set(n, d int) {
	if n <= 0 || d <= 0 {
		s.rate.Store(0)
		return
	}
	n = min(n, d)
	s.rate.Store(uint64(n)<<32 | uint64(d))
	s.seq.Store(0)
}

func (s *sampler) allow() bool {
	rate := s.rate.Load()
	n, d := rate>>32, rate&0xffffffff
	if d == 0 {
		return true
	}
	return (s.seq.Add(1)-1)%d < n
}

// parseRate reads "n/d" or "d" (meaning 1/d). Anything unreadable yields 0, 0.
func parseRate(rate string) (int, int) {
	rate = strings.TrimSpace(rate)
	num, den, ok := strings.Cut(rate, "/")
	if !ok {
		num, den = "1", rate
	}
	n, err1 := strconv.Atoi(strings.TrimSpace(num))
	d, err2 := strconv.Atoi(strings.TrimSpace(den))
	if err1 != nil || err2 != nil || n <= 0 || d <= 0 {
		return 0, 0
	}
	return n, d
}
