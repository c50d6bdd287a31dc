//go:build linux

package probe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/asm"
	"github.com/cilium/ebpf/link"
	"github.com/cilium/ebpf/rlimit"

	"github.com/sr-toolkit/sr/internal/pkg/sysl"
)

const (
	pollInterval         = 200 * time.Millisecond
	blacklistSize        = 64 // "up to N kernel return-addresses" (spec.md §4.6)
	blacklistStackFrames = 4  // "first N stack frames" (spec.md §4.6)

	// blacklistMarkerBit is an out-of-band bit in the capMap's per-pid
	// mask: the kprobe program sets it instead of the requested
	// capability's bit when the call site matched the blacklist, so a
	// single map encodes both kinds of sample without a second map.
	// Bit 63 is never a real capability number (CAP_LAST_CAP is well
	// under 64 on every kernel this targets).
	blacklistMarkerBit = uint64(1) << 63
)

// ebpfCollector attaches a kprobe at cap_capable, the LSM capability
// check's kernel entry point, and polls the kernel-resident hash map it
// maintains (keyed by pid, OR-accumulating `1<<cap` per spec.md §4.6).
type ebpfCollector struct {
	prog      *ebpf.Program
	link      link.Link
	capMap    *ebpf.Map // pid -> bitmask, updated in-kernel
	blacklist *ebpf.Map // return-address -> 1, consulted by the program

	mu     sync.Mutex
	seen   AggregateMap
	cancel context.CancelFunc
}

// NewCollector builds the Linux eBPF-backed Collector.
func NewCollector() (Collector, error) {
	if err := rlimit.RemoveMemlock(); err != nil {
		sysl.Warningf("removing memlock rlimit for eBPF: %v", err)
	}

	capMap, err := ebpf.NewMap(&ebpf.MapSpec{
		Name:       "sr_capable_caps",
		Type:       ebpf.Hash,
		KeySize:    4,
		ValueSize:  8,
		MaxEntries: 4096,
	})
	if err != nil {
		return nil, fmt.Errorf("creating capability aggregate map: %w", err)
	}

	blacklist, err := ebpf.NewMap(&ebpf.MapSpec{
		Name:       "sr_capable_blacklist",
		Type:       ebpf.Hash,
		KeySize:    8,
		ValueSize:  4,
		MaxEntries: blacklistSize,
	})
	if err != nil {
		capMap.Close()
		return nil, fmt.Errorf("creating blacklist map: %w", err)
	}

	prog, err := loadCapableProgram(capMap, blacklist)
	if err != nil {
		capMap.Close()
		blacklist.Close()
		return nil, fmt.Errorf("loading capable kprobe program: %w", err)
	}

	return &ebpfCollector{prog: prog, capMap: capMap, blacklist: blacklist, seen: AggregateMap{}}, nil
}

// loadCapableProgram assembles the kprobe program. Capability argument
// extraction follows the x86_64 kprobe pt_regs calling convention
// (cap_capable's third parameter arrives in the rdx-derived slot); on
// other architectures the offset constant below would need adjusting.
// The file builds on every linux architecture, but the offset is only
// correct on linux/amd64.
//
// Before accumulating the requested capability into capMap, it walks
// the first blacklistStackFrames kernel return addresses (via
// bpf_get_stack) and looks each one up in blacklist; a hit means the
// call site matched spec.md §4.6's filter, so the sample is recorded
// with the blacklistMarkerBit set instead of the capability's own bit.
func loadCapableProgram(capMap, blacklist *ebpf.Map) (*ebpf.Program, error) {
	const (
		ctxCapOffset = 96 // offsetof(struct pt_regs, dx) on x86_64

		// Stack layout (all offsets relative to RFP, growing down):
		pidKey     = -4   // u32 pid, the capMap key
		bitScratch = -16  // u64 bit value to OR/init into capMap
		frameBase  = -48  // blacklistStackFrames * 8 bytes of return addrs
		frameSize  = 8 * blacklistStackFrames
	)

	insns := asm.Instructions{
		// R6 = ctx (struct pt_regs*)
		asm.Mov.Reg(asm.R6, asm.R1),

		// R0 = bpf_get_current_pid_tgid(); R7 = pid (high 32 bits)
		asm.FnGetCurrentPidTgid.Call(),
		asm.RSh.Imm(asm.R0, 32),
		asm.Mov.Reg(asm.R7, asm.R0),

		// R8 = requested capability, read from pt_regs
		asm.LoadMem(asm.R8, asm.R6, ctxCapOffset, asm.Word),

		// zero the stack-trace buffer: bpf_get_stack may write fewer
		// bytes than requested, and the verifier rejects reads of
		// never-written stack slots.
		asm.Mov.Imm(asm.R0, 0),
		asm.StoreMem(asm.RFP, frameBase, asm.R0, asm.DWord),
		asm.StoreMem(asm.RFP, frameBase+8, asm.R0, asm.DWord),
		asm.StoreMem(asm.RFP, frameBase+16, asm.R0, asm.DWord),
		asm.StoreMem(asm.RFP, frameBase+24, asm.R0, asm.DWord),

		// bpf_get_stack(ctx, buf, size, flags=0): kernel frames only
		asm.Mov.Reg(asm.R1, asm.R6),
		asm.Mov.Reg(asm.R2, asm.RFP),
		asm.Add.Imm(asm.R2, frameBase),
		asm.Mov.Imm(asm.R3, frameSize),
		asm.Mov.Imm(asm.R4, 0),
		asm.FnGetStack.Call(),

		// default: bit value to record is the requested capability's own bit
		asm.Mov.Imm(asm.R1, 1),
		asm.LSh.Reg(asm.R1, asm.R8),
		asm.StoreMem(asm.RFP, bitScratch, asm.R1, asm.DWord),

		// blacklist.Lookup(frame[i]) for each captured return address;
		// any hit overrides bitScratch with blacklistMarkerBit.
		asm.LoadMapPtr(asm.R1, blacklist.FD()),
		asm.Mov.Reg(asm.R2, asm.RFP),
		asm.Add.Imm(asm.R2, frameBase),
		asm.FnMapLookupElem.Call(),
		asm.JNE.Imm(asm.R0, 0, "blacklisted"),

		asm.LoadMapPtr(asm.R1, blacklist.FD()),
		asm.Mov.Reg(asm.R2, asm.RFP),
		asm.Add.Imm(asm.R2, frameBase+8),
		asm.FnMapLookupElem.Call(),
		asm.JNE.Imm(asm.R0, 0, "blacklisted"),

		asm.LoadMapPtr(asm.R1, blacklist.FD()),
		asm.Mov.Reg(asm.R2, asm.RFP),
		asm.Add.Imm(asm.R2, frameBase+16),
		asm.FnMapLookupElem.Call(),
		asm.JNE.Imm(asm.R0, 0, "blacklisted"),

		asm.LoadMapPtr(asm.R1, blacklist.FD()),
		asm.Mov.Reg(asm.R2, asm.RFP),
		asm.Add.Imm(asm.R2, frameBase+24),
		asm.FnMapLookupElem.Call(),
		asm.JNE.Imm(asm.R0, 0, "blacklisted"),
		asm.Ja.Label("scan"),

		asm.Mov.Imm(asm.R1, 1).WithSymbol("blacklisted"),
		asm.LSh.Imm(asm.R1, 63),
		asm.StoreMem(asm.RFP, bitScratch, asm.R1, asm.DWord),

		// stack[-4:] = pid (map key)
		asm.StoreMem(asm.RFP, pidKey, asm.R7, asm.Word).WithSymbol("scan"),
		asm.Mov.Reg(asm.R2, asm.RFP),
		asm.Add.Imm(asm.R2, pidKey),
		asm.LoadMapPtr(asm.R1, capMap.FD()),
		asm.FnMapLookupElem.Call(),

		asm.JEq.Imm(asm.R0, 0, "init"),
		// existing = *R0; existing |= bitScratch; *R0 = existing
		asm.LoadMem(asm.R9, asm.R0, 0, asm.DWord),
		asm.LoadMem(asm.R1, asm.RFP, bitScratch, asm.DWord),
		asm.Or.Reg(asm.R9, asm.R1),
		asm.StoreMem(asm.R0, 0, asm.R9, asm.DWord),
		asm.Ja.Label("done"),

		asm.Mov.Reg(asm.R2, asm.RFP).WithSymbol("init"),
		asm.Add.Imm(asm.R2, pidKey),
		asm.Mov.Reg(asm.R3, asm.RFP),
		asm.Add.Imm(asm.R3, bitScratch),
		asm.LoadMapPtr(asm.R1, capMap.FD()),
		asm.Mov.Imm(asm.R4, 0), // BPF_ANY
		asm.FnMapUpdateElem.Call(),

		asm.Mov.Imm(asm.R0, 0).WithSymbol("done"),
		asm.Return(),
	}

	spec := &ebpf.ProgramSpec{
		Name:         "sr_cap_capable",
		Type:         ebpf.Kprobe,
		Instructions: insns,
		License:      "GPL",
	}
	return ebpf.NewProgram(spec)
}

func (c *ebpfCollector) Attach(ctx context.Context) (<-chan Event, error) {
	kp, err := link.Kprobe("cap_capable", c.prog, nil)
	if err != nil {
		return nil, fmt.Errorf("attaching kprobe on cap_capable: %w", err)
	}
	c.link = kp

	events := make(chan Event, 64)
	pollCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	go c.pollLoop(pollCtx, events)
	return events, nil
}

func (c *ebpfCollector) pollLoop(ctx context.Context, events chan<- Event) {
	defer close(events)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.drainInto(events)
		}
	}
}

// drainInto iterates the kernel map and emits an Event for any (pid,
// bitmask) pair not previously observed, then records it as seen.
func (c *ebpfCollector) drainInto(events chan<- Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var pid uint32
	var mask uint64
	it := c.capMap.Iterate()
	for it.Next(&pid, &mask) {
		prior := c.seen[int(pid)]
		if mask == prior {
			continue
		}
		c.seen[int(pid)] = mask

		if mask&blacklistMarkerBit != 0 && prior&blacklistMarkerBit == 0 {
			select {
			case events <- Event{PID: int(pid), Blacklisted: true}:
			default:
			}
		}
		for cap := 0; cap < 63; cap++ { // bit 63 is blacklistMarkerBit, not a capability
			if mask&(1<<uint(cap)) != 0 && prior&(1<<uint(cap)) == 0 {
				select {
				case events <- Event{PID: int(pid), Capability: cap}:
				default:
				}
			}
		}
	}
	if err := it.Err(); err != nil {
		sysl.Warningf("iterating capability map: %v", err)
	}
}

func (c *ebpfCollector) Detach() (AggregateMap, error) {
	if c.cancel != nil {
		c.cancel()
	}
	if c.link != nil {
		if err := c.link.Close(); err != nil {
			sysl.Warningf("detaching capable kprobe: %v", err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var pid uint32
	var mask uint64
	it := c.capMap.Iterate()
	for it.Next(&pid, &mask) {
		c.seen[int(pid)] = mask
	}
	c.prog.Close()
	c.capMap.Close()
	c.blacklist.Close()
	return c.seen, it.Err()
}
