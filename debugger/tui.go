package debugger

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/onramp-run/onramp-vm/vm"
)

const memDumpBytesPerLine = 16
const memDumpLines = 8

// tui renders a Debugger as a full-screen terminal application: a
// register panel, a hex dump around RIP (from two lines before RIP's line
// to five lines after it), and an event log.
type tui struct {
	dbg  *Debugger
	app  *tview.Application
	regs *tview.TextView
	mem  *tview.TextView
	log  *tview.TextView
}

// Run starts the interactive terminal debugger and blocks until the
// guest halts, faults, or the user quits. It returns the process exit
// code: the guest's halt status on a clean exit, or FaultExitCode if
// the user quits before the guest produced one.
func Run(machine *vm.VM) int {
	d := New(machine)
	t := &tui{
		dbg:  d,
		app:  tview.NewApplication(),
		regs: tview.NewTextView().SetDynamicColors(true),
		mem:  tview.NewTextView().SetDynamicColors(true),
		log:  tview.NewTextView().SetDynamicColors(true),
	}
	t.regs.SetBorder(true).SetTitle(" registers ")
	t.mem.SetBorder(true).SetTitle(" memory @ RIP ")
	t.log.SetBorder(true).SetTitle(" log (s=step c=continue b=breakpoint q=quit) ")

	layout := tview.NewFlex().
		AddItem(tview.NewFlex().SetDirection(tview.FlexRow).
			AddItem(t.regs, 0, 1, false).
			AddItem(t.log, 0, 1, false), 0, 1, false).
		AddItem(t.mem, 0, 2, false)

	t.refresh()

	layout.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Rune() {
		case 's':
			d.StepOne()
			t.refresh()
		case 'c':
			d.Continue()
			t.refresh()
		case 'b':
			d.ToggleBreakpoint(machine.Registers.IP())
			t.refresh()
		case 'q':
			t.app.Stop()
		}
		return event
	})

	if err := t.app.SetRoot(layout, true).Run(); err != nil {
		fmt.Fprintf(t.log, "tui error: %v\n", err)
		return vm.FaultExitCode
	}

	if d.state == stateHalted || d.state == stateFaulted {
		return d.ExitCode()
	}
	return vm.FaultExitCode
}

func (t *tui) refresh() {
	t.regs.SetText(formatRegisters(&t.dbg.VM.Registers))
	t.mem.SetText(formatMemory(t.dbg.VM.Memory, t.dbg.VM.Registers.IP()))
	t.log.SetText(strings.Join(t.dbg.History(), "\n"))
}

func formatRegisters(regs *vm.Registers) string {
	names := map[int]string{vm.RSP: "RSP", vm.RFP: "RFP", vm.RPP: "RPP", vm.RIP: "RIP"}
	var b strings.Builder
	snap := regs.Snapshot()
	for i := 0; i < vm.NumRegisters; i++ {
		label := fmt.Sprintf("R%X", i)
		if n, ok := names[i]; ok {
			label = n
		}
		fmt.Fprintf(&b, "[yellow]%-4s[white] 0x%08X\n", label, snap[i])
	}
	return b.String()
}

func formatMemory(mem *vm.Memory, around uint32) string {
	start := around
	if start > memDumpBytesPerLine*2 {
		start -= memDumpBytesPerLine * 2
	}
	start &^= (memDumpBytesPerLine - 1)

	var b strings.Builder
	for line := 0; line < memDumpLines; line++ {
		addr := start + uint32(line*memDumpBytesPerLine)
		fmt.Fprintf(&b, "0x%08X  ", addr)
		for i := 0; i < memDumpBytesPerLine; i++ {
			v, err := mem.LoadByte(addr + uint32(i))
			if err != nil {
				b.WriteString("?? ")
				continue
			}
			if addr+uint32(i) == around {
				fmt.Fprintf(&b, "[red]%02X[white] ", v)
			} else {
				fmt.Fprintf(&b, "%02X ", v)
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}
