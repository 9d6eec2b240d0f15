package runner

import "sync"

// Reporter receives lifecycle events. Calls are serialized by the engine,
// even when suites run in parallel.
type Reporter interface {
	SuiteStarted(info *SuiteInfo)
	CaseFinished(info *SuiteInfo, result *CaseResult)
	SuiteFinished(result *SuiteResult)
}

// RunReporter is implemented by reporters that want the final aggregate.
type RunReporter interface {
	RunFinished(result *RunResult)
}

type reporters struct {
	mu   sync.Mutex
	list []Reporter
}

func (r *reporters) suiteStarted(info *SuiteInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rep := range r.list {
		rep.SuiteStarted(info)
	}
}

func (r *reporters) caseFinished(info *SuiteInfo, result *CaseResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rep := range r.list {
		rep.CaseFinished(info, result)
	}
}

func (r *reporters) suiteFinished(result *SuiteResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rep := range r.list {
		rep.SuiteFinished(result)
	}
}

func (r *reporters) runFinished(result *RunResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rep := range r.list {
		if rr, ok := rep.(RunReporter); ok {
			rr.RunFinished(result)
		}
	}
}

// Recorder is a Reporter that keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	Events []string
	Cases  []*CaseResult
	Suites []*SuiteResult
}

func (r *Recorder) SuiteStarted(info *SuiteInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, "suite started "+info.File)
}

func (r *Recorder) CaseFinished(_ *SuiteInfo, result *CaseResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, "case "+string(result.Status)+" "+result.Name)
	r.Cases = append(r.Cases, result)
}

func (r *Recorder) SuiteFinished(result *SuiteResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, "suite finished "+result.File)
	r.Suites = append(r.Suites, result)
}
