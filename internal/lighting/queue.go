package lighting

// bucketQueue очередь Диала: по корзине на каждый уровень яркости.
// Извлечение идёт от старшего уровня к младшему; устаревшие записи
// отбрасывает вызывающий, сверяя уровень с текущим значением ячейки.
type bucketQueue struct {
	buckets [256][]int32
	top     int
	size    int
}

func (q *bucketQueue) push(cell int, level uint8) {
	q.buckets[level] = append(q.buckets[level], int32(cell))
	if int(level) > q.top {
		q.top = int(level)
	}
	q.size++
}

// pop возвращает ячейку с максимальным уровнем
func (q *bucketQueue) pop() (int, uint8, bool) {
	for q.size > 0 {
		b := q.buckets[q.top]
		if n := len(b); n > 0 {
			cell := b[n-1]
			q.buckets[q.top] = b[:n-1]
			q.size--
			return int(cell), uint8(q.top), true
		}
		q.top--
	}
	return 0, 0, false
}

func (q *bucketQueue) reset() {
	for i := range q.buckets {
		q.buckets[i] = q.buckets[i][:0]
	}
	q.top = 0
	q.size = 0
}

func (q *bucketQueue) len() int { return q.size }

// fifo простая очередь для фазы затемнения
type fifo struct {
	cells  []int32
	levels []uint8
	head   int
}

func (q *fifo) push(cell int, level uint8) {
	q.cells = append(q.cells, int32(cell))
	q.levels = append(q.levels, level)
}

func (q *fifo) pop() (int, uint8, bool) {
	if q.head >= len(q.cells) {
		return 0, 0, false
	}
	c, l := q.cells[q.head], q.levels[q.head]
	q.head++
	return int(c), l, true
}
