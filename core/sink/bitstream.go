package sink

// bitStream packs code units into bytes, least-significant bit first. Bit k
// of the stream lives in data[k/8] at bit position k%8.
type bitStream struct {
	data     []byte
	readPos  uint64 // bits
	writePos uint64 // bits
}

func (s *bitStream) grow(bits uint64) {
	need := int((bits + 7) / 8)
	for len(s.data) < need {
		s.data = append(s.data, 0)
	}
}

// write appends the low count bits of v.
func (s *bitStream) write(v uint64, count uint64) {
	s.grow(s.writePos + count)
	for count > 0 {
		at := s.writePos % 8
		n := min(8-at, count)
		keep := s.data[s.writePos/8] & byte(1<<at-1)
		s.data[s.writePos/8] = keep | byte(v&(1<<n-1))<<at
		v >>= n
		count -= n
		s.writePos += n
	}
}

// canRead reports whether count more bits have been written past readPos.
func (s *bitStream) canRead(count uint64) bool {
	return s.readPos+count <= s.writePos
}

// read consumes count bits from readPos.
func (s *bitStream) read(count uint64) uint64 {
	var v uint64
	for got := uint64(0); got < count; {
		at := s.readPos % 8
		n := min(8-at, count-got)
		chunk := uint64(s.data[s.readPos/8]>>at) & (1<<n - 1)
		v |= chunk << got
		got += n
		s.readPos += n
	}
	return v
}

// bytes returns the written bytes; a trailing partial byte is zero padded.
func (s *bitStream) bytes() []byte {
	return s.data[:(s.writePos+7)/8]
}

// truncate drops everything written at or after bit pos.
func (s *bitStream) truncate(pos uint64) {
	if pos >= s.writePos {
		return
	}
	s.writePos = pos
	s.data = s.data[:(pos+7)/8]
	if r := pos % 8; r != 0 {
		s.data[len(s.data)-1] &= byte(1<<r - 1)
	}
	s.readPos = min(s.readPos, pos)
}

// discard drops the first n whole bytes, keeping any partial tail.
func (s *bitStream) discard(n int) {
	if n <= 0 {
		return
	}
	rest := copy(s.data, s.data[n:])
	s.data = s.data[:rest]
	shift := uint64(n) * 8
	s.writePos -= shift
	if s.readPos >= shift {
		s.readPos -= shift
	} else {
		s.readPos = 0
	}
}
