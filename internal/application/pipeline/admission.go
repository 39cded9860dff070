package pipeline

import "sync"

// Admission is the process-wide slot limiting concurrently RUNNING
// pipelines. It is an explicit object injected into the Runner, not a
// package singleton, so independent runners can be tested in isolation.
// The serverless deployment fixes the budget at 1.
type Admission struct {
	mu     sync.Mutex
	budget int
	active int
}

func NewAdmission(budget int) *Admission {
	if budget < 1 {
		budget = 1
	}
	return &Admission{budget: budget}
}

// TryAcquire claims a slot without blocking. Callers that receive false
// must surface BUSY.
func (a *Admission) TryAcquire() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active >= a.budget {
		return false
	}
	a.active++
	return true
}

func (a *Admission) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active > 0 {
		a.active--
	}
}

// Active returns the number of running pipelines.
func (a *Admission) Active() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}
