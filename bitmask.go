package sekai

// bitset is a growable set of bits, one per table row. Tables keep one per
// toggle id to record which entities have the component enabled.
type bitset struct {
	words []uint64
	count int
}

// set enables the bit at row.
func (b *bitset) set(row int) {
	b.words[row>>6] |= uint64(1) << uint(row&63)
}

// unset disables the bit at row.
func (b *bitset) unset(row int) {
	b.words[row>>6] &= ^(uint64(1) << uint(row&63))
}

// assign sets or clears the bit at row.
func (b *bitset) assign(row int, v bool) {
	if v {
		b.set(row)
	} else {
		b.unset(row)
	}
}

// containsBit checks if the bit at row is set.
func (b *bitset) containsBit(row int) bool {
	return b.words[row>>6]&(uint64(1)<<uint(row&63)) != 0
}

// appendBit grows the set by one row.
func (b *bitset) appendBit(v bool) {
	row := b.count
	b.count++
	if need := (b.count + 63) >> 6; need > len(b.words) {
		b.words = append(b.words, 0)
	}
	b.assign(row, v)
}

// removeBit swaps the last bit into row and shrinks the set, mirroring the
// swap-remove done on table rows.
func (b *bitset) removeBit(row int) {
	last := b.count - 1
	if row != last {
		b.assign(row, b.containsBit(last))
	}
	b.unset(last)
	b.count--
}

// clear drops all bits.
func (b *bitset) clear() {
	for i := range b.words {
		b.words[i] = 0
	}
	b.count = 0
}

// nextSet returns the first set row in [from, end), or end.
func (b *bitset) nextSet(from, end int) int {
	for from < end {
		w := b.words[from>>6] >> uint(from&63)
		if w == 0 {
			from = (from | 63) + 1
			continue
		}
		if w&1 != 0 {
			return from
		}
		from++
	}
	return end
}

// nextUnset returns the first cleared row in [from, end), or end.
func (b *bitset) nextUnset(from, end int) int {
	for from < end {
		w := ^b.words[from>>6] >> uint(from&63)
		if w == 0 {
			from = (from | 63) + 1
			continue
		}
		if w&1 != 0 {
			return from
		}
		from++
	}
	return end
}
