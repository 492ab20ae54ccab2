package storage

// expiryItem schedules the removal of one version of a key
type expiryItem struct {
	key      string
	expireAt int64 // unix nanoseconds
	version  uint64
}

// expiryQueue is a min-heap ordered by expireAt, used through container/heap
type expiryQueue []expiryItem

func (q expiryQueue) Len() int { return len(q) }

func (q expiryQueue) Less(i, j int) bool { return q[i].expireAt < q[j].expireAt }

func (q expiryQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *expiryQueue) Push(x any) { *q = append(*q, x.(expiryItem)) }

func (q *expiryQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = expiryItem{}
	*q = old[:n-1]
	return item
}
