package router

// expansionItem is one frontier entry during a single-net maze expansion:
// candidate RR node rr, reached via edge from prevRR at total cost.
//
// Grounded on dijkstra.nodeItem/nodePQ (package dijkstra): the same
// lazy-decrease-key pattern is used here — a cheaper path to rr is pushed
// as a new entry rather than mutating an existing one, and stale entries
// are filtered on pop by comparing against the best known cost.
type expansionItem struct {
	rr     int
	prevRR int
	cost   float64
}

// expansionPQ is a min-heap of *expansionItem ordered by ascending cost.
type expansionPQ []*expansionItem

func (pq expansionPQ) Len() int            { return len(pq) }
func (pq expansionPQ) Less(i, j int) bool  { return pq[i].cost < pq[j].cost }
func (pq expansionPQ) Swap(i, j int)       { pq[i], pq[j] = pq[j], pq[i] }
func (pq *expansionPQ) Push(x interface{}) { *pq = append(*pq, x.(*expansionItem)) }
func (pq *expansionPQ) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[:n-1]

	return item
}
