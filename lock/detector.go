package lock

import (
	"sort"

	"github.com/robfig/cron/v3"
	"github.com/relcore/coredb/txn"
)

// DeadlockDetector periodically builds a wait-for graph from a Manager's
// queues and aborts transactions on any cycle it finds, a backstop behind
// the wound-wait scheduling in Manager (whose waits only ever go from a
// younger transaction to an older one).
type DeadlockDetector struct {
	manager *Manager
	txns    *txn.Manager
	cron    *cron.Cron
}

// NewDeadlockDetector wires a detector against manager's lock queues and
// txns' transaction registry, scheduled on a cron expression (e.g.
// "@every 500ms") rather than a hand-rolled ticker loop.
func NewDeadlockDetector(manager *Manager, txns *txn.Manager, cronSpec string) (*DeadlockDetector, error) {
	d := &DeadlockDetector{manager: manager, txns: txns, cron: cron.New()}
	_, err := d.cron.AddFunc(cronSpec, d.sweep)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (d *DeadlockDetector) Start() { d.cron.Start() }
func (d *DeadlockDetector) Stop()  { d.cron.Stop() }

// sweep runs one full build-graph/detect-cycle/abort-youngest pass,
// repeating until no cycle remains (aborting one node can still leave
// another cycle elsewhere in the graph).
func (d *DeadlockDetector) sweep() {
	for {
		graph := d.buildWaitForGraph()
		cycleNode, found := detectCycle(graph)
		if !found {
			return
		}
		if t, ok := d.txns.Lookup(cycleNode); ok {
			t.SetState(txn.Aborted)
			d.manager.UnlockAll(t)
		}
	}
}

// buildWaitForGraph turns each resource's (holders, waiters) pair into
// waiter -> holder edges: a waiter is waiting-for every granted holder of
// the same resource.
func (d *DeadlockDetector) buildWaitForGraph() map[txn.ID][]txn.ID {
	graph := make(map[txn.ID][]txn.ID)
	for _, pair := range d.manager.WaitForGraph() {
		holders, waiters := pair[0], pair[1]
		for _, w := range waiters {
			graph[w] = append(graph[w], holders...)
		}
	}
	return graph
}

// detectCycle runs DFS from the lowest-id node first (tie-breaking which
// cycle is found first when several exist) and returns the
// highest-numbered (youngest) node on any cycle it discovers, since
// aborting the youngest transaction is the standard deadlock-victim
// choice.
func detectCycle(graph map[txn.ID][]txn.ID) (txn.ID, bool) {
	nodes := make([]txn.ID, 0, len(graph))
	for n := range graph {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[txn.ID]int, len(nodes))
	var path []txn.ID

	var visit func(n txn.ID) (txn.ID, bool)
	visit = func(n txn.ID) (txn.ID, bool) {
		color[n] = gray
		path = append(path, n)

		neighbors := append([]txn.ID(nil), graph[n]...)
		sort.Slice(neighbors, func(i, j int) bool { return neighbors[i] < neighbors[j] })
		for _, next := range neighbors {
			switch color[next] {
			case white:
				if victim, found := visit(next); found {
					return victim, true
				}
			case gray:
				// next is already on the current DFS path: the cycle is
				// the suffix of path from next's first occurrence onward,
				// not the whole path (which may include a non-cyclic
				// approach chain into it).
				start := 0
				for i, p := range path {
					if p == next {
						start = i
						break
					}
				}
				youngest := next
				for _, p := range path[start:] {
					if p > youngest {
						youngest = p
					}
				}
				return youngest, true
			}
		}

		color[n] = black
		path = path[:len(path)-1]
		return 0, false
	}

	for _, n := range nodes {
		if color[n] == white {
			if victim, found := visit(n); found {
				return victim, true
			}
		}
	}
	return 0, false
}
