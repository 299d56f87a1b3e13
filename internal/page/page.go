// Package page holds the rendered state of one job-progress page: a handle
// per task and the informational message area. The state lives until the
// page is discarded; nothing in it is ever rolled back.
package page

import "sync"

// Indicator is the result class shown next to a task. The values are
// mutually exclusive; applying one replaces any other.
type Indicator string

const (
	IndicatorNone    Indicator = ""
	IndicatorSuccess Indicator = "success"
	IndicatorWarning Indicator = "warning"
	IndicatorFailure Indicator = "failure"
)

// Page is the state of one rendered job page. It has a single writer (the
// reconcile loop) and any number of readers.
type Page struct {
	mu       sync.RWMutex
	jobID    string
	tasks    map[string]*TaskHandle
	order    []string
	messages map[string]struct{}
	notices  []Notice
	revision uint64
}

// TaskHandle is the rendered state bound to one task key.
type TaskHandle struct {
	page      *Page
	key       string
	settled   bool
	progress  bool
	indicator Indicator
	popover   string
}

// Notice is one dismissible informational message.
type Notice struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

// TaskState is a read-only copy of a TaskHandle.
type TaskState struct {
	Key       string    `json:"uniprot_id"`
	Settled   bool      `json:"settled"`
	Progress  bool      `json:"progress"`
	Indicator Indicator `json:"indicator"`
	Popover   string    `json:"popover"`
}

// View is a consistent copy of the whole page.
type View struct {
	JobID    string      `json:"job_id"`
	Revision uint64      `json:"revision"`
	Tasks    []TaskState `json:"tasks"`
	Notices  []Notice    `json:"notices"`
}

// New builds a page for the given task keys, in display order. Every task
// starts running with its progress affordance shown. Duplicate and empty
// keys are ignored.
func New(jobID string, keys []string) *Page {
	p := &Page{
		jobID:    jobID,
		tasks:    make(map[string]*TaskHandle, len(keys)),
		order:    make([]string, 0, len(keys)),
		messages: make(map[string]struct{}),
	}
	p.bindLocked(keys)
	return p
}

// JobID returns the job the page renders.
func (p *Page) JobID() string { return p.jobID }

// Bind appends running tasks for keys the page does not show yet and
// returns how many were added. Existing handles, settled or not, are kept.
func (p *Page) Bind(keys []string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	added := p.bindLocked(keys)
	if added > 0 {
		p.revision++
	}
	return added
}

func (p *Page) bindLocked(keys []string) int {
	added := 0
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, dup := p.tasks[k]; dup {
			continue
		}
		p.tasks[k] = &TaskHandle{page: p, key: k, progress: true}
		p.order = append(p.order, k)
		added++
	}
	return added
}

// Task returns the handle bound to key.
func (p *Page) Task(key string) (*TaskHandle, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	h, ok := p.tasks[key]
	return h, ok
}

// Len returns the number of tasks on the page.
func (p *Page) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.order)
}

// Revision increases by one for every mutation actually applied to the page.
func (p *Page) Revision() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.revision
}

// HasMessage reports whether a notice for key was already rendered.
func (p *Page) HasMessage(key string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.messages[key]
	return ok
}

// AppendMessage renders a notice for key unless one already exists.
// It returns false when the key was already rendered.
func (p *Page) AppendMessage(key, text string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.messages[key]; ok {
		return false
	}
	p.messages[key] = struct{}{}
	p.notices = append(p.notices, Notice{Key: key, Text: text})
	p.revision++
	return true
}

// View returns a copy of the page state.
func (p *Page) View() View {
	p.mu.RLock()
	defer p.mu.RUnlock()

	v := View{
		JobID:    p.jobID,
		Revision: p.revision,
		Tasks:    make([]TaskState, 0, len(p.order)),
		Notices:  make([]Notice, len(p.notices)),
	}
	for _, k := range p.order {
		v.Tasks = append(v.Tasks, p.tasks[k].stateLocked())
	}
	copy(v.Notices, p.notices)
	return v
}

// --- TaskHandle ---

// Key returns the task key the handle is bound to.
func (h *TaskHandle) Key() string { return h.key }

// Settled reports whether the task has left the running state.
func (h *TaskHandle) Settled() bool {
	h.page.mu.RLock()
	defer h.page.mu.RUnlock()
	return h.settled
}

// Settle freezes the task and removes its progress affordance. It returns
// true only on the call that performs the transition.
func (h *TaskHandle) Settle() bool {
	h.page.mu.Lock()
	defer h.page.mu.Unlock()
	if h.settled {
		return false
	}
	h.settled = true
	h.progress = false
	h.page.revision++
	return true
}

// Apply sets the indicator and popover content. Writes that would not change
// the handle are skipped; the return value reports whether anything changed.
func (h *TaskHandle) Apply(indicator Indicator, popover string) bool {
	h.page.mu.Lock()
	defer h.page.mu.Unlock()
	if h.indicator == indicator && h.popover == popover {
		return false
	}
	h.indicator = indicator
	h.popover = popover
	h.page.revision++
	return true
}

// State returns a copy of the handle.
func (h *TaskHandle) State() TaskState {
	h.page.mu.RLock()
	defer h.page.mu.RUnlock()
	return h.stateLocked()
}

func (h *TaskHandle) stateLocked() TaskState {
	return TaskState{
		Key:       h.key,
		Settled:   h.settled,
		Progress:  h.progress,
		Indicator: h.indicator,
		Popover:   h.popover,
	}
}
