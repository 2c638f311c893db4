package engine

import (
	"sync"

	"teaminova/internal/viewmodel"
)

// LocalState is an in-memory mirror of the task list held by a long-lived
// client. The engine mutates it only after the store has accepted a change.
type LocalState struct {
	mu    sync.RWMutex
	tasks []viewmodel.Task
}

func NewLocalState(tasks []viewmodel.Task) *LocalState {
	s := &LocalState{}
	s.Set(tasks)
	return s
}

func (s *LocalState) Set(tasks []viewmodel.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append([]viewmodel.Task(nil), tasks...)
}

// Prepend puts a newly created task at the head of the list.
func (s *LocalState) Prepend(t viewmodel.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append([]viewmodel.Task{t}, s.tasks...)
}

// Replace swaps the task with the same id in place. Unknown ids are ignored.
func (s *LocalState) Replace(t viewmodel.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.tasks {
		if s.tasks[i].ID == t.ID {
			s.tasks[i] = t
			return
		}
	}
}

func (s *LocalState) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			return
		}
	}
}

func (s *LocalState) Tasks() []viewmodel.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]viewmodel.Task(nil), s.tasks...)
}

func (s *LocalState) Get(id string) (viewmodel.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tasks {
		if t.ID == id {
			return t, true
		}
	}
	return viewmodel.Task{}, false
}

func (e Engine) statePrepend(t viewmodel.Task) {
	if e.State != nil {
		e.State.Prepend(t)
	}
}

func (e Engine) stateReplace(t viewmodel.Task) {
	if e.State != nil {
		e.State.Replace(t)
	}
}

func (e Engine) stateRemove(id string) {
	if e.State != nil {
		e.State.Remove(id)
	}
}
