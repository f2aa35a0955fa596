package ir

// tarjan computes strongly connected components of the module's call graph
// using Tarjan's algorithm, and returns them ordered so that every SCC
// appears after every SCC it calls into — i.e. callees before callers,
// which is exactly the traversal order ReachabilityAnalysis needs (spec.md
// §4.4 "traversing strongly connected components in reverse-topological
// order (callees before callers)").
type tarjan struct {
	cg      *CallGraph
	index   map[*Function]int
	low     map[*Function]int
	onStack map[*Function]bool
	stack   []*Function
	next    int
	sccs    [][]*Function
	succs   map[*Function][]*Function
}

// CallGraphSCCs returns the module's functions grouped into strongly
// connected components, callees-first.
func CallGraphSCCs(m *Module, cg *CallGraph) [][]*Function {
	succs := make(map[*Function][]*Function)
	for callee, sites := range cg.CallersOf {
		for _, cs := range sites {
			succs[cs.Caller] = append(succs[cs.Caller], callee)
		}
	}
	t := &tarjan{
		cg:      cg,
		index:   make(map[*Function]int),
		low:     make(map[*Function]int),
		onStack: make(map[*Function]bool),
		succs:   succs,
	}
	for _, f := range m.Functions {
		if _, ok := t.index[f]; !ok {
			t.strongConnect(f)
		}
	}
	return t.sccs
}

func (t *tarjan) strongConnect(v *Function) {
	t.index[v] = t.next
	t.low[v] = t.next
	t.next++
	t.stack = append(t.stack, v)
	t.onStack[v] = true

	for _, w := range t.succs[v] {
		if _, ok := t.index[w]; !ok {
			t.strongConnect(w)
			if t.low[w] < t.low[v] {
				t.low[v] = t.low[w]
			}
		} else if t.onStack[w] {
			if t.index[w] < t.low[v] {
				t.low[v] = t.index[w]
			}
		}
	}

	if t.low[v] == t.index[v] {
		var scc []*Function
		for {
			n := len(t.stack) - 1
			w := t.stack[n]
			t.stack = t.stack[:n]
			t.onStack[w] = false
			scc = append(scc, w)
			if w == v {
				break
			}
		}
		t.sccs = append(t.sccs, scc)
	}
}
