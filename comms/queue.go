package comms

import "github.com/GoCodeAlone/switchboard/protocol"

// queued is one pending entry: the message plus its ordering keys,
// frozen at enqueue time so later mutation cannot break heap order.
type queued struct {
	msg    *protocol.Message
	weight int
	seq    uint64
}

// messageQueue is a heap of pending messages ordered by priority weight
// (higher first), then by enqueue sequence, so equal-priority messages
// leave in arrival order.
type messageQueue []*queued

func (q messageQueue) Len() int { return len(q) }

func (q messageQueue) Less(i, j int) bool {
	if q[i].weight != q[j].weight {
		return q[i].weight > q[j].weight
	}
	return q[i].seq < q[j].seq
}

func (q messageQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *messageQueue) Push(x any) { *q = append(*q, x.(*queued)) }

func (q *messageQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}
