// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

// Package shmbackend stands in for an iceoryx-style shared-memory
// transport: no IPC library in the corpus speaks POSIX shared memory, so
// this backend mmaps a file under a configurable directory (/dev/shm on
// Linux gives true shared memory across processes) and treats it as a
// fixed-slot ring buffer, the closest primitive golang.org/x/sys offers.
// Each slot holds one frame: a monotonic sequence published with
// release-style ordering so a concurrent reader can tell a slot is fully
// written before it trusts the payload inside it.
package shmbackend

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/agibot-rt/agibotrt/internal/backend"
	"github.com/agibot-rt/agibotrt/internal/channel"
	"github.com/agibot-rt/agibotrt/internal/logging"
	"github.com/agibot-rt/agibotrt/internal/rpc"
)

// Options configures the shm backend.
type Options struct {
	Path       string        `koanf:"path"`
	SlotSize   int           `koanf:"slot_size"`
	NumSlots   int           `koanf:"num_slots"`
	PollPeriod time.Duration `koanf:"poll_period"`
}

func defaultOptions() Options {
	return Options{
		Path:       "/dev/shm/agibotrt.ring",
		SlotSize:   4096,
		NumSlots:   256,
		PollPeriod: time.Millisecond,
	}
}

const slotHeaderSize = 8 // uint64 sequence, atomically published last.

// frame is JSON-encoded into the body of a slot, following slotHeaderSize
// bytes of raw sequence number.
type frame struct {
	Topic    string `json:"topic,omitempty"`
	TypeName string `json:"type_name,omitempty"`
	Method   string `json:"method,omitempty"`
	Payload  []byte `json:"payload,omitempty"`
}

// Backend is the shared-memory ring-buffer transport.
type Backend struct {
	sm   *backend.StateMachine
	opts Options

	file     *os.File
	region   []byte
	writeSeq uint64
	readSeq  uint64

	stop chan struct{}
	wg   sync.WaitGroup

	mu       sync.Mutex
	deliver  map[string][]backend.DeliverFunc
	handlers map[rpc.MethodName]func(ctx *rpc.Context, payload []byte) (rpc.Result, []byte)

	channels *channel.Registry
	rpcs     *rpc.Registry
	log      *logging.EventLogger
}

// New returns an uninitialized shm backend.
func New() *Backend {
	return &Backend{
		sm:       backend.NewStateMachine("shm"),
		deliver:  make(map[string][]backend.DeliverFunc),
		handlers: make(map[rpc.MethodName]func(ctx *rpc.Context, payload []byte) (rpc.Result, []byte)),
		log:      logging.NewEventLogger(),
	}
}

func (b *Backend) Name() string { return "shm" }

func (b *Backend) SetChannelRegistry(r *channel.Registry) { b.channels = r }
func (b *Backend) SetRpcRegistry(r *rpc.Registry)         { b.rpcs = r }

func decodeOptions(raw map[string]interface{}) Options {
	o := defaultOptions()
	if raw == nil {
		return o
	}
	if v, ok := raw["path"].(string); ok && v != "" {
		o.Path = v
	}
	if v, ok := raw["slot_size"].(int); ok && v > slotHeaderSize {
		o.SlotSize = v
	}
	if v, ok := raw["num_slots"].(int); ok && v > 0 {
		o.NumSlots = v
	}
	return o
}

// Initialize opens (creating if necessary) the backing file, sizes it to
// NumSlots*SlotSize, and mmaps it MAP_SHARED so every process pointing at
// the same Path observes the same ring.
func (b *Backend) Initialize(opts map[string]interface{}) error {
	b.opts = decodeOptions(opts)
	size := b.opts.NumSlots * b.opts.SlotSize

	f, err := os.OpenFile(b.opts.Path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return fmt.Errorf("shmbackend: open %s: %w", b.opts.Path, err)
	}
	if err := f.Truncate(int64(size)); err != nil {
		_ = f.Close()
		return fmt.Errorf("shmbackend: truncate %s: %w", b.opts.Path, err)
	}
	region, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("shmbackend: mmap %s: %w", b.opts.Path, err)
	}
	b.file = f
	b.region = region
	b.stop = make(chan struct{})

	return b.sm.Transition(backend.PhaseInit)
}

// Start begins polling the ring for frames written since the last poll.
func (b *Backend) Start(ctx context.Context) error {
	b.wg.Add(1)
	go b.pollLoop()
	return b.sm.Transition(backend.PhaseStarted)
}

func (b *Backend) slot(index uint64) []byte {
	n := uint64(b.opts.NumSlots)
	off := (index % n) * uint64(b.opts.SlotSize)
	return b.region[off : off+uint64(b.opts.SlotSize)]
}

func (b *Backend) pollLoop() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.opts.PollPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			b.drain()
		}
	}
}

// drain reads every slot whose published sequence has advanced past what
// this backend has already consumed. It never blocks on the writer: a
// slot not yet fully published (sequence not yet stored) is simply
// skipped until the next poll.
func (b *Backend) drain() {
	for {
		seq := atomic.LoadUint64(&b.writeSeq)
		if b.readSeq >= seq {
			return
		}
		s := b.slot(b.readSeq)
		published := atomic.LoadUint64(seqPtr(s))
		if published != b.readSeq+1 {
			return
		}
		fr, err := decodeSlot(s)
		b.readSeq++
		if err != nil {
			continue
		}
		b.deliverFrame(fr)
	}
}

func (b *Backend) deliverFrame(fr frame) {
	if fr.Method != "" {
		method, err := rpc.ParseMethodName(fr.Method)
		if err != nil {
			return
		}
		b.mu.Lock()
		handler, ok := b.handlers[method]
		b.mu.Unlock()
		if !ok {
			return
		}
		rctx := rpc.NewContext(context.Background(), method.Serialization, 0)
		_, _ = handler(rctx, fr.Payload)
		rctx.Release()
		return
	}
	b.mu.Lock()
	fns := append([]backend.DeliverFunc(nil), b.deliver[fr.Topic]...)
	b.mu.Unlock()
	for _, fn := range fns {
		fn(context.Background(), backend.Message{Topic: fr.Topic, TypeName: fr.TypeName, Payload: fr.Payload})
	}
}

func (b *Backend) RegisterPublishType(topic, typeName string) error {
	return b.sm.Require(backend.PhaseInit)
}

func (b *Backend) RegisterServiceFunc(method rpc.MethodName) error {
	return b.sm.Require(backend.PhaseInit)
}

func (b *Backend) RegisterClientFunc(method rpc.MethodName) error {
	return b.sm.Require(backend.PhaseInit)
}

// Subscribe registers fn for topic; delivery is polled from the ring, not
// pushed, so there is no subscribe-time wire action to take.
func (b *Backend) Subscribe(topic string, fn backend.DeliverFunc) error {
	if err := b.sm.Require(backend.PhaseInit); err != nil {
		return err
	}
	b.mu.Lock()
	b.deliver[topic] = append(b.deliver[topic], fn)
	b.mu.Unlock()
	return nil
}

// Publish writes msg into the next ring slot.
func (b *Backend) Publish(ctx context.Context, msg backend.Message) error {
	if err := b.sm.RequireAtLeast(backend.PhaseStarted); err != nil {
		return err
	}
	if err := b.writeFrame(frame{Topic: msg.Topic, TypeName: msg.TypeName, Payload: msg.Payload}); err != nil {
		return fmt.Errorf("shmbackend: publish %s: %w", msg.Topic, err)
	}
	b.log.LogPublish(ctx, msg.Topic, b.Name())
	return nil
}

// Invoke writes a request frame into the ring and calls cb immediately
// with OK and no payload, before any handler has run. The poll loop later
// runs the handler bound to the method and discards its reply: there is
// no response slot, since the ring has a single writer-sequence per
// backend instance, so invoke-over-shm is a fire-and-forget request
// rather than a full round trip.
func (b *Backend) Invoke(rctx *rpc.Context, method rpc.MethodName, payload []byte, cb backend.InvokeCallback) error {
	if err := b.sm.RequireAtLeast(backend.PhaseStarted); err != nil {
		return err
	}
	if err := b.writeFrame(frame{Method: method.String(), Payload: payload}); err != nil {
		return fmt.Errorf("shmbackend: invoke %s: %w", method, err)
	}
	cb(rpc.Result{Status: rpc.OK}, nil)
	return nil
}

// BindHandler wires a modulectx-registered handler for method, served
// from the poll loop.
func (b *Backend) BindHandler(method rpc.MethodName, fn func(ctx *rpc.Context, payload []byte) (rpc.Result, []byte)) {
	b.mu.Lock()
	b.handlers[method] = fn
	b.mu.Unlock()
}

func (b *Backend) writeFrame(fr frame) error {
	body, err := json.Marshal(fr)
	if err != nil {
		return err
	}
	if len(body) > b.opts.SlotSize-slotHeaderSize {
		return fmt.Errorf("frame of %d bytes exceeds slot capacity %d", len(body), b.opts.SlotSize-slotHeaderSize)
	}
	seq := atomic.AddUint64(&b.writeSeq, 1)
	s := b.slot(seq - 1)
	copy(s[slotHeaderSize:], body)
	for i := slotHeaderSize + len(body); i < len(s); i++ {
		s[i] = 0
	}
	atomic.StoreUint64(seqPtr(s), seq)
	return nil
}

// seqPtr reinterprets a slot's first slotHeaderSize bytes as the atomic
// sequence word; the slot byte slice is always mmap-backed and at least
// slotHeaderSize long, so the alignment and bounds this depends on hold
// for every caller in this file.
func seqPtr(s []byte) *uint64 {
	return (*uint64)(unsafe.Pointer(&s[0]))
}

func decodeSlot(s []byte) (frame, error) {
	var fr frame
	// Body runs to the first NUL byte or the slot's end.
	end := len(s)
	for i := slotHeaderSize; i < len(s); i++ {
		if s[i] == 0 {
			end = i
			break
		}
	}
	if end <= slotHeaderSize {
		return fr, nil
	}
	err := json.Unmarshal(s[slotHeaderSize:end], &fr)
	return fr, err
}

// Shutdown stops the poll loop and unmaps the region.
func (b *Backend) Shutdown(ctx context.Context) error {
	if b.stop != nil {
		select {
		case <-b.stop:
		default:
			close(b.stop)
		}
	}
	b.wg.Wait()
	if b.region != nil {
		_ = unix.Munmap(b.region)
	}
	if b.file != nil {
		_ = b.file.Close()
	}
	return b.sm.Transition(backend.PhaseShutdown)
}
