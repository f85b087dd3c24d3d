package mtpipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/sourcegraph/conc/panics"

	"github.com/sacdfs/sacdfs/discreader"
	"github.com/sacdfs/sacdfs/dstdecoder"
	"github.com/sacdfs/sacdfs/sacderr"
)

// Result is one decoded (or EOF, or errored) frame delivered to the
// consumer. When Decoded is non-nil the caller must call Decoded.Unref
// after copying the bytes it needs.
type Result struct {
	IsEOF      bool
	Decoded    *Buffer
	DecodedLen int
}

// Pipeline is one open file's MT DST pipeline: a dedicated reader
// goroutine pulling frames from a discreader.Reader, dispatching DST
// decode jobs to the shared Pool, and an ordered queue delivering results
// in dispatch order to the consumer.
type Pipeline struct {
	reader         discreader.Reader
	decoderFactory dstdecoder.Factory
	pool           *Pool
	format         discreader.FrameFormat

	compressedPool   *BufferPool
	decompressedPool *BufferPool
	queue            *orderedQueue
	cmd              *commandChannel

	currentFrame uint32
	endFrame     uint32

	wg sync.WaitGroup
}

// New constructs a pipeline over [startFrame, endFrame). compressedCap
// bounds the per-frame compressed buffer size (the caller should size it
// to the raw frame size, C·F, since DST never exceeds that in practice).
// decodedSize is the fixed decoded frame size, C·F.
func New(reader discreader.Reader, decoderFactory dstdecoder.Factory, pool *Pool, format discreader.FrameFormat, compressedCap, decodedSize int, startFrame, endFrame uint32) *Pipeline {
	queueDepth := 2 * pool.Size()
	if queueDepth < 16 {
		queueDepth = 16
	}
	return &Pipeline{
		reader:           reader,
		decoderFactory:   decoderFactory,
		pool:             pool,
		format:           format,
		compressedPool:   NewBufferPool(compressedCap),
		decompressedPool: NewBufferPool(decodedSize),
		queue:            newOrderedQueue(queueDepth),
		cmd:              newCommandChannel(),
		currentFrame:     startFrame,
		endFrame:         endFrame,
	}
}

// Start launches the reader goroutine.
func (p *Pipeline) Start() {
	p.wg.Add(1)
	go p.readerLoop()
}

func (p *Pipeline) readerLoop() {
	defer p.wg.Done()
	for {
		kind, seekFrame := p.cmd.peek()
		switch kind {
		case cmdClose:
			p.queue.shutdown()
			return
		case cmdSeek:
			p.queue.reset(p.releaseJob)
			p.currentFrame = seekFrame
			p.cmd.ackSeek()
			continue
		}

		if p.currentFrame >= p.endFrame {
			p.dispatchEOF()
			if p.cmd.waitForCommand() == cmdClose {
				p.queue.shutdown()
				return
			}
			continue
		}

		p.dispatchFrame()
	}
}

func (p *Pipeline) releaseJob(j *job) {
	if j != nil && j.decompressed != nil {
		j.decompressed.Unref()
	}
}

func (p *Pipeline) dispatchEOF() {
	seq, generation, closed := p.queue.reserve()
	if closed {
		return
	}
	p.queue.complete(generation, &job{seq: seq, isEOF: true})
}

func (p *Pipeline) dispatchFrame() {
	seq, generation, closed := p.queue.reserve()
	if closed {
		return
	}
	frameNum := p.currentFrame
	p.currentFrame++

	compressed := p.compressedPool.Get()
	n, err := p.reader.GetSoundData(compressed.Bytes(), frameNum)
	if err != nil {
		compressed.Unref()
		p.queue.complete(generation, &job{
			seq: seq, frame: frameNum,
			err: sacderr.Wrap(sacderr.Read, fmt.Errorf("mtpipeline: read frame %d: %w", frameNum, err)),
		})
		return
	}

	if err := p.pool.acquire(context.Background()); err != nil {
		compressed.Unref()
		p.queue.complete(generation, &job{seq: seq, frame: frameNum, err: err})
		return
	}
	go func() {
		defer p.pool.release()
		p.runWorker(generation, seq, frameNum, compressed, n)
	}()
}

// runWorker is the worker function (spec.md §4.5 "Worker function"): a
// fresh decoder instance per job, since DST decoders are not thread-safe
// and DST frames are independently decodable (spec.md §9 design note).
func (p *Pipeline) runWorker(generation, seq uint64, frameNum uint32, compressed *Buffer, n int) {
	var catcher panics.Catcher
	var result *job

	catcher.Try(func() {
		decoded := p.decompressedPool.Get()
		var decodedLen int
		var err error
		if p.format == discreader.DST {
			dec := p.decoderFactory()
			decodedLen, err = dec.Decode(decoded.Bytes(), compressed.Bytes()[:n])
		} else {
			decodedLen = copy(decoded.Bytes(), compressed.Bytes()[:n])
		}
		if err != nil {
			decoded.Unref()
			result = &job{seq: seq, frame: frameNum, err: sacderr.Wrap(sacderr.DstDecode, err)}
			return
		}
		result = &job{seq: seq, frame: frameNum, decompressed: decoded, decodedLen: decodedLen}
	})
	compressed.Unref()

	if rp := catcher.Recovered(); rp != nil {
		result = &job{seq: seq, frame: frameNum, err: sacderr.Wrap(sacderr.DstDecode, fmt.Errorf("mtpipeline: worker panic: %v", rp.Value))}
	}

	if !p.queue.complete(generation, result) {
		// A reset() raced this job's decode and bumped the generation
		// before completion; the queue has already forgotten it, so the
		// decoded buffer must be released here or it leaks.
		p.releaseJob(result)
	}
}

// NextResult blocks for the next in-order result.
func (p *Pipeline) NextResult() (*Result, error) {
	j, ok := p.queue.next()
	if !ok {
		return nil, fmt.Errorf("mtpipeline: pipeline closed")
	}
	if j.err != nil {
		return nil, j.err
	}
	if j.isEOF {
		return &Result{IsEOF: true}, nil
	}
	return &Result{Decoded: j.decompressed, DecodedLen: j.decodedLen}, nil
}

// Seek sends SEEK(frame) and waits for SEEK_DONE, per spec.md §4.4 step 6.
func (p *Pipeline) Seek(frame uint32) {
	done := p.cmd.sendSeek(frame)
	// A reader blocked in reserve() on a full queue waits on the queue's
	// condition, not the command channel's. Resetting the queue frees its
	// slots and wakes it so it observes the SEEK. The command lock keeps
	// this reset from landing after the reader has already acknowledged.
	p.cmd.mu.Lock()
	if p.cmd.kind == cmdSeek {
		p.queue.reset(p.releaseJob)
	}
	p.cmd.mu.Unlock()
	<-done
}

// Close is a synchronous barrier: send CLOSE, wake blocked dispatch via
// queue shutdown, join the reader thread. The buffer pools become
// unreachable once the caller drops its reference to p, only after join —
// satisfying spec.md's "destroying pools before the reader joins is a
// use-after-free" ordering without an explicit destructor.
func (p *Pipeline) Close() {
	p.cmd.sendClose()
	p.queue.shutdown()
	p.wg.Wait()
}
