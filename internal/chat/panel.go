package chat

import (
	"strings"
	"sync"
)

// PanelLinker coordinates citation activation with the sources side panel.
// Activating a citation while the panel is shown jumps straight to the
// matching fragment; while it is hidden, the panel is opened and the jump
// deferred until the panel reports ready. The deferred slot holds exactly
// one target: a second activation before the panel is ready replaces the
// first instead of queuing behind it.
type PanelLinker struct {
	jump func(tagKey string)

	mu      sync.Mutex
	open    bool
	ready   bool
	pending string
}

// NewPanelLinker builds a linker. jump receives the normalized citation tag
// key and performs the scroll/highlight; it is never called with an empty key.
func NewPanelLinker(jump func(tagKey string)) *PanelLinker {
	if jump == nil {
		jump = func(string) {}
	}
	return &PanelLinker{jump: jump}
}

// TagKey normalizes a citation tag into the key fragments are matched by.
func TagKey(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

// Activate handles a citation click.
func (p *PanelLinker) Activate(tag string) {
	key := TagKey(tag)
	if key == "" {
		return
	}
	p.mu.Lock()
	if p.open && p.ready {
		p.mu.Unlock()
		p.jump(key)
		return
	}
	p.open = true
	p.pending = key
	p.mu.Unlock()
}

// Ready marks the panel as rendered and flushes the deferred target, if any.
func (p *PanelLinker) Ready() {
	p.mu.Lock()
	p.ready = true
	key := p.pending
	p.pending = ""
	p.mu.Unlock()
	if key != "" {
		p.jump(key)
	}
}

// Show opens the panel without a jump target, e.g. when fresh sources arrive.
func (p *PanelLinker) Show() {
	p.mu.Lock()
	p.open = true
	p.mu.Unlock()
}

// Close hides the panel and drops any deferred target.
func (p *PanelLinker) Close() {
	p.mu.Lock()
	p.open = false
	p.ready = false
	p.pending = ""
	p.mu.Unlock()
}

// Toggle flips visibility and reports the new state.
func (p *PanelLinker) Toggle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.open {
		p.open = false
		p.ready = false
		p.pending = ""
		return false
	}
	p.open = true
	return true
}

// Open reports whether the panel should be visible.
func (p *PanelLinker) Open() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}
