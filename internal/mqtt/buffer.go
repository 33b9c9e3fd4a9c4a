package mqtt

// bufferedMsg stores a serialized MQTT message for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// lifecycle reports whether m is a system event (STARTUP, SHUTDOWN). Those
// are published at QoS 1 and outrank worker transitions when space runs out.
func (m bufferedMsg) lifecycle() bool {
	return m.qos > 0 || m.retained
}

// replayQueue is a bounded FIFO of messages published while disconnected.
// When full, the oldest worker transition is evicted first; a lifecycle
// event is only evicted when nothing else is left.
// Not safe for concurrent use; the caller must synchronize.
type replayQueue struct {
	msgs     []bufferedMsg
	capacity int
	dropped  int // messages evicted since the last drain
}

func newReplayQueue(capacity int) *replayQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &replayQueue{
		msgs:     make([]bufferedMsg, 0, capacity),
		capacity: capacity,
	}
}

// push appends msg, evicting one message when full. It returns true the
// first time a message is dropped after a drain, so the caller logs the
// overflow once.
func (q *replayQueue) push(msg bufferedMsg) (firstDrop bool) {
	if len(q.msgs) < q.capacity {
		q.msgs = append(q.msgs, msg)
		return false
	}

	victim := 0
	for i, m := range q.msgs {
		if !m.lifecycle() {
			victim = i
			break
		}
	}
	if !msg.lifecycle() && q.msgs[victim].lifecycle() {
		// Everything queued outranks the newcomer.
		q.dropped++
		return q.dropped == 1
	}

	copy(q.msgs[victim:], q.msgs[victim+1:])
	q.msgs[len(q.msgs)-1] = msg
	q.dropped++
	return q.dropped == 1
}

// drainAll returns the queued messages oldest first and how many were
// dropped since the last drain, then empties the queue.
func (q *replayQueue) drainAll() ([]bufferedMsg, int) {
	dropped := q.dropped
	q.dropped = 0
	if len(q.msgs) == 0 {
		return nil, dropped
	}
	out := q.msgs
	q.msgs = make([]bufferedMsg, 0, q.capacity)
	return out, dropped
}

func (q *replayQueue) len() int {
	return len(q.msgs)
}
