package enrich

import (
	"sync"

	"github.com/seckatie/linkshelf/internal/core/db"
)

// State is the phase an enrichment run is in.
type State string

const (
	StatePending             State = "pending"
	StateCapturingScreenshot State = "capturing_screenshot"
	StateDetectingLinkedIn   State = "detecting_linkedin"
	StateScrapingLinkedIn    State = "scraping_linkedin"
	StateFinalizing          State = "finalizing"
	StateDone                State = "done"
)

// BranchStatus is the outcome of one enrichment branch.
type BranchStatus string

const (
	StatusOK      BranchStatus = "ok"
	StatusSkipped BranchStatus = "skipped"
	StatusFailed  BranchStatus = "failed"
)

// BranchResult records what happened to a branch and why.
type BranchResult struct {
	Status BranchStatus
	Reason string
}

func ok() BranchResult { return BranchResult{Status: StatusOK} }

func skipped(reason string) BranchResult {
	return BranchResult{Status: StatusSkipped, Reason: reason}
}

func failed(reason string) BranchResult {
	return BranchResult{Status: StatusFailed, Reason: reason}
}

// Outcome is the result of one enrichment run.
type Outcome struct {
	RunID      string
	BookmarkID int64
	Screenshot BranchResult
	LinkedIn   BranchResult
	// Post is the scraped post when the LinkedIn branch succeeded.
	Post *db.LinkedInPost
	// Persisted is false when the bookmark was gone by the time results were
	// written, or the write failed.
	Persisted bool
	// Err is set when the run could not start or its results could not be written.
	Err error
}

// progress tracks a single run. The two branches advance independently and
// State derives one phase from both.
type progress struct {
	mu         sync.Mutex
	phase      State
	screenshot State
	linkedin   State
}

func newProgress() *progress {
	return &progress{phase: StatePending}
}

func (p *progress) start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.phase = StateCapturingScreenshot
	p.screenshot = StateCapturingScreenshot
	p.linkedin = StateDetectingLinkedIn
}

func (p *progress) setScreenshot(s State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.screenshot = s
}

func (p *progress) setLinkedIn(s State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.linkedin = s
}

func (p *progress) setPhase(s State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.phase = s
}

func (p *progress) state() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.phase != StateCapturingScreenshot {
		return p.phase
	}
	if p.screenshot == StateCapturingScreenshot {
		return StateCapturingScreenshot
	}
	if p.linkedin == StateDetectingLinkedIn || p.linkedin == StateScrapingLinkedIn {
		return p.linkedin
	}
	// Both branches finished; finalizing is about to start.
	return StateFinalizing
}
