// Package workflow implements the per-tab clone -> scan -> summarize ->
// approve -> edit -> run state machine, grounded on the original
// supervisor's handlers/git_handlers.py and handlers/user_handlers.py.
package workflow

import (
	"sync"

	"github.com/agentctl/controller/internal/pending"
)

// State is the per-tab working memory the original Supervisor kept as
// flat instance attributes (last_git_url, last_dir_name, py_files,
// execute_file); here it is scoped to one tab instead of shared globally,
// per SPEC_FULL.md's Controller-side tabId allocation.
type State struct {
	TabID int

	// mu guards the fields below: handleClone/handleReadFiles write them
	// from the Transport listener goroutine while /debug/tabs reads them
	// from the admin HTTP server's goroutine, per SPEC_FULL.md §9's
	// cross-thread state contract.
	mu          sync.Mutex
	lastGitURL  string
	lastDirName string
	executeFile string

	// pyFiles holds the most recent read_py_files reply's metadata, used
	// by SummarizeExperiment and GenerateEditTask exactly as the original
	// kept supervisor.py_files.
	pyFiles map[string]any

	Pending *pending.Manager
}

// newState returns a fresh State for tabID with its own Pending Manager.
func newState(tabID int, pendingManager *pending.Manager) *State {
	return &State{TabID: tabID, Pending: pendingManager}
}

// SetGitResult records the cloned repo's URL and local directory name.
func (s *State) SetGitResult(gitURL, dirName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastGitURL = gitURL
	s.lastDirName = dirName
}

// LastDirName returns the most recently cloned repo's local directory name.
func (s *State) LastDirName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastDirName
}

// LastGitURL returns the most recently cloned repo's git URL.
func (s *State) LastGitURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastGitURL
}

// SetReadResult records the entry point SummarizeExperiment picked and the
// read_py_files reply metadata it was derived from.
func (s *State) SetReadResult(executeFile string, pyFiles map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executeFile = executeFile
	s.pyFiles = pyFiles
}

// ExecuteFile returns the entry point file chosen for run_in_venv.
func (s *State) ExecuteFile() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.executeFile
}

// PyFiles returns the most recent read_py_files reply metadata.
func (s *State) PyFiles() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pyFiles
}

// Snapshot returns a consistent copy of the tab's mutable fields, for
// read-only introspection (e.g. the admin server's /debug/tabs endpoint)
// that must not race the workflow handlers' writes.
type Snapshot struct {
	TabID       int
	LastGitURL  string
	LastDirName string
	ExecuteFile string
	PendingLen  int
}

func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		TabID:       s.TabID,
		LastGitURL:  s.lastGitURL,
		LastDirName: s.lastDirName,
		ExecuteFile: s.executeFile,
		PendingLen:  s.Pending.Len(),
	}
}

// Tabs owns tab allocation and lookup. The Controller is the sole
// allocator of tab IDs (SPEC_FULL.md Design Notes, Open Question
// resolution carried from spec.md §9): IDs are assigned here, monotonically,
// never supplied by the Bridge or the Executor.
type Tabs struct {
	mu        sync.Mutex
	byID      map[int]*State
	nextID    int
	activeTab int
}

// NewTabs returns an empty tab registry.
func NewTabs() *Tabs {
	return &Tabs{byID: make(map[int]*State)}
}

// PendingFactory builds a new *pending.Manager for a freshly allocated tab.
type PendingFactory func() *pending.Manager

// New allocates the next tab ID, registers a State for it, makes it the
// active tab, and returns it.
func (t *Tabs) New(makePending PendingFactory) *State {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	id := t.nextID
	st := newState(id, makePending())
	t.byID[id] = st
	t.activeTab = id
	return st
}

// Get returns the State for tabID, or nil if no such tab exists.
func (t *Tabs) Get(tabID int) *State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.byID[tabID]
}

// Active returns the currently active tab's State, or nil if no tab has
// ever been created yet.
func (t *Tabs) Active() *State {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.activeTab == 0 {
		return nil
	}
	return t.byID[t.activeTab]
}

// SetActive marks tabID as the active tab. It is a no-op if tabID is
// unknown.
func (t *Tabs) SetActive(tabID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.byID[tabID]; ok {
		t.activeTab = tabID
	}
}

// All returns every registered tab's State, for /debug/tabs introspection.
func (t *Tabs) All() []*State {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*State, 0, len(t.byID))
	for _, st := range t.byID {
		out = append(out, st)
	}
	return out
}
