package cnp

import "github.com/jobshop-sim/jobshop-sim/sim"

// Registry holds one responder per machine and routes engine events to the
// responder that mirrors the affected machine. It plugs into the engine as
// an event sink.
type Registry struct {
	responders map[int]*Responder
	byType     map[int][]*Responder
}

// NewRegistry starts a responder for every machine.
func NewRegistry(machines []*sim.Machine) *Registry {
	reg := &Registry{
		responders: make(map[int]*Responder, len(machines)),
		byType:     make(map[int][]*Responder),
	}
	for _, m := range machines {
		r := NewResponder(m.ID, m.Type)
		reg.responders[m.ID] = r
		reg.byType[m.Type] = append(reg.byType[m.Type], r)
	}
	return reg
}

// Get returns the responder for a machine ID, or nil.
func (reg *Registry) Get(id int) *Responder {
	return reg.responders[id]
}

// ByType returns the responders serving a machine type, in machine-ID order.
func (reg *Registry) ByType(machineType int) []*Responder {
	return reg.byType[machineType]
}

// Publish routes a machine event to the responder mirroring that machine.
// Job-level events carry no machine and are ignored.
func (reg *Registry) Publish(ev sim.MirrorEvent) {
	if ev.MachineID < 0 {
		return
	}
	if r := reg.responders[ev.MachineID]; r != nil {
		r.Mirror(ev)
	}
}

// Close stops every responder goroutine.
func (reg *Registry) Close() {
	for _, r := range reg.responders {
		r.Close()
	}
}
