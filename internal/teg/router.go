package teg

import "container/heap"

// Path is a route from a start node to the destination airport.
type Path struct {
	Edges   []*Edge
	Arrival int
}

// Flights returns only the flight legs of the path.
func (p Path) Flights() []*Edge {
	var out []*Edge
	for _, e := range p.Edges {
		if e.Kind == FlightLeg {
			out = append(out, e)
		}
	}
	return out
}

// nodeHeap orders nodes by hour, then by node index.
type nodeHeap []*Node

func (h nodeHeap) Len() int { return len(h) }
func (h nodeHeap) Less(i, j int) bool {
	if h[i].Hour != h[j].Hour {
		return h[i].Hour < h[j].Hour
	}
	return h[i].index < h[j].index
}
func (h nodeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *nodeHeap) Push(x any)   { *h = append(*h, x.(*Node)) }
func (h *nodeHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return x
}

// Router runs earliest-arrival searches over one graph. It keeps scratch
// buffers between calls and is not safe for concurrent use.
type Router struct {
	g     *Graph
	pred  []*Edge
	seen  []uint32
	stamp uint32
	queue nodeHeap
}

func NewRouter(g *Graph) *Router {
	return &Router{
		g:    g,
		pred: make([]*Edge, len(g.nodes)),
		seen: make([]uint32, len(g.nodes)),
	}
}

// FindPath searches for the earliest arrival at airport dest no later than
// deadline, starting from start and only using flight edges with at least
// units of remaining capacity. Capacity is checked, never reserved.
//
// Node labels equal node hours, so the first time a node is reached fixes
// its predecessor. Edges are scanned wait-first then by instance id, which
// makes the chosen departure deterministic among equally early options.
func (r *Router) FindPath(start *Node, dest string, deadline, units int) (Path, bool) {
	if start == nil || deadline < start.Hour {
		return Path{}, false
	}
	r.stamp++
	if r.stamp == 0 {
		// wrapped: clear stale marks
		for i := range r.seen {
			r.seen[i] = 0
		}
		r.stamp = 1
	}
	r.queue = r.queue[:0]
	r.mark(start, nil)
	heap.Push(&r.queue, start)

	for r.queue.Len() > 0 {
		n := heap.Pop(&r.queue).(*Node)
		if n.Hour > deadline {
			break
		}
		if n.Airport == dest {
			return r.reconstruct(start, n), true
		}
		for _, e := range n.edges {
			if e.Kind == FlightLeg && e.Instance.remaining < units {
				continue
			}
			if r.seen[e.To.index] == r.stamp {
				continue
			}
			r.mark(e.To, e)
			heap.Push(&r.queue, e.To)
		}
	}
	return Path{}, false
}

func (r *Router) mark(n *Node, via *Edge) {
	r.seen[n.index] = r.stamp
	r.pred[n.index] = via
}

func (r *Router) reconstruct(start, end *Node) Path {
	var edges []*Edge
	for n := end; n != start; {
		e := r.pred[n.index]
		edges = append(edges, e)
		n = e.From
	}
	for i, j := 0, len(edges)-1; i < j; i, j = i+1, j-1 {
		edges[i], edges[j] = edges[j], edges[i]
	}
	return Path{Edges: edges, Arrival: end.Hour}
}
