package micro

import "math/bits"

// Bitset плотный набор битов
type Bitset []uint64

// NewBitset создаёт набор на n битов
func NewBitset(n int) Bitset {
	return make(Bitset, (n+63)/64)
}

// Get значение бита
func (b Bitset) Get(i int) bool {
	return b[i>>6]&(1<<(uint(i)&63)) != 0
}

// Set устанавливает бит
func (b Bitset) Set(i int) {
	b[i>>6] |= 1 << (uint(i) & 63)
}

// Clear сбрасывает бит
func (b Bitset) Clear(i int) {
	b[i>>6] &^= 1 << (uint(i) & 63)
}

// Put устанавливает бит в значение v
func (b Bitset) Put(i int, v bool) {
	if v {
		b.Set(i)
	} else {
		b.Clear(i)
	}
}

// Toggle инвертирует бит и возвращает новое значение
func (b Bitset) Toggle(i int) bool {
	w := i >> 6
	m := uint64(1) << (uint(i) & 63)
	b[w] ^= m
	return b[w]&m != 0
}

// Count число установленных битов
func (b Bitset) Count() int {
	n := 0
	for _, w := range b {
		n += bits.OnesCount64(w)
	}
	return n
}

// Reset обнуляет набор
func (b Bitset) Reset() {
	for i := range b {
		b[i] = 0
	}
}

// Equal побитовое сравнение
func (b Bitset) Equal(o Bitset) bool {
	if len(b) != len(o) {
		return false
	}
	for i := range b {
		if b[i] != o[i] {
			return false
		}
	}
	return true
}

// Resize возвращает набор на n битов, переиспользуя память когда возможно
func (b Bitset) Resize(n int) Bitset {
	words := (n + 63) / 64
	if cap(b) >= words {
		b = b[:words]
		b.Reset()
		return b
	}
	return NewBitset(n)
}
