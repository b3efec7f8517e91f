package record

import (
	"sync"

	"github.com/sastrawinata/wicara/internal/audio"
)

// chunkBuffer is the bounded queue between the frame-processing goroutine and
// the chunk consumer. A pump goroutine feeds the outbound channel so Push
// never blocks the audio path regardless of policy.
type chunkBuffer struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []audio.Chunk
	limit  int
	policy audio.OverflowPolicy
	out    chan audio.Chunk
	closed bool
}

func newChunkBuffer(limit int, policy audio.OverflowPolicy) *chunkBuffer {
	b := &chunkBuffer{
		limit:  limit,
		policy: policy,
		out:    make(chan audio.Chunk, 1),
	}
	b.cond = sync.NewCond(&b.mu)
	go b.pump()
	return b
}

// Push enqueues a chunk. It reports whether a chunk was dropped to make room
// and whether the StopOnOverflow policy demands the recording be stopped.
func (b *chunkBuffer) Push(chunk audio.Chunk) (dropped, stop bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false, false
	}

	if len(b.queue) >= b.limit && b.policy != audio.Expand {
		switch b.policy {
		case audio.DropNewest:
			return true, false
		case audio.StopOnOverflow:
			return false, true
		default: // DropOldest
			b.queue = b.queue[1:]
			dropped = true
		}
	}

	b.queue = append(b.queue, chunk)
	b.cond.Signal()
	return dropped, false
}

// Len returns the number of queued chunks not yet handed to the consumer.
func (b *chunkBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Close drains remaining chunks to the consumer and then closes the outbound
// channel.
func (b *chunkBuffer) Close() {
	b.mu.Lock()
	b.closed = true
	b.cond.Signal()
	b.mu.Unlock()
}

func (b *chunkBuffer) Out() <-chan audio.Chunk { return b.out }

func (b *chunkBuffer) pump() {
	for {
		b.mu.Lock()
		for len(b.queue) == 0 && !b.closed {
			b.cond.Wait()
		}
		if len(b.queue) == 0 && b.closed {
			b.mu.Unlock()
			close(b.out)
			return
		}
		chunk := b.queue[0]
		b.queue = b.queue[1:]
		b.mu.Unlock()

		b.out <- chunk
	}
}
