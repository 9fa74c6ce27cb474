package network

import "container/heap"

// Reach is a node reached by a bounded search and its network distance.
type Reach struct {
	Node int
	Dist float64
}

// Within returns every node whose shortest-path distance from src is at most
// cutoff, in the order they are settled (ascending distance, ties by index).
func (g *Graph) Within(src int, cutoff float64) []Reach {
	if src < 0 || src >= len(g.Nodes) || cutoff < 0 {
		return nil
	}
	dist := map[int]float64{src: 0}
	settled := make(map[int]bool)
	pq := &queue{{Node: src}}
	var out []Reach
	for pq.Len() > 0 {
		cur := heap.Pop(pq).(Reach)
		if settled[cur.Node] {
			continue
		}
		settled[cur.Node] = true
		out = append(out, cur)
		for _, e := range g.adj[cur.Node] {
			nd := cur.Dist + e.Length
			if nd > cutoff || settled[e.To] {
				continue
			}
			if d, ok := dist[e.To]; ok && d <= nd {
				continue
			}
			dist[e.To] = nd
			heap.Push(pq, Reach{Node: e.To, Dist: nd})
		}
	}
	return out
}

type queue []Reach

func (q queue) Len() int { return len(q) }
func (q queue) Less(i, j int) bool {
	if q[i].Dist != q[j].Dist {
		return q[i].Dist < q[j].Dist
	}
	return q[i].Node < q[j].Node
}
func (q queue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *queue) Push(x any)   { *q = append(*q, x.(Reach)) }
func (q *queue) Pop() any {
	old := *q
	n := len(old)
	x := old[n-1]
	*q = old[:n-1]
	return x
}
