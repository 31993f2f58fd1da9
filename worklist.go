package reactor

import (
	"github.com/eapache/queue"
)

// workItem is a callback selected by the poll phase, waiting to fire.
type workItem struct {
	handle Handle
	cb     Callback
	mode   Mode
}

// workList is the per-tick FIFO of selected callbacks. The ring buffer
// retains its capacity across ticks.
type workList struct {
	q *queue.Queue
}

func newWorkList() *workList {
	return &workList{q: queue.New()}
}

func (w *workList) push(mode Mode, h Handle, cb Callback) {
	w.q.Add(workItem{handle: h, cb: cb, mode: mode})
}

func (w *workList) pop() (workItem, bool) {
	if w.q.Length() == 0 {
		return workItem{}, false
	}
	return w.q.Remove().(workItem), true
}

func (w *workList) len() int {
	return w.q.Length()
}

// reset discards whatever an aborted tick left behind.
func (w *workList) reset() {
	for w.q.Length() != 0 {
		w.q.Remove()
	}
}
