package domain

import "time"

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobPaused    JobStatus = "paused"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// AllJobStatuses lists every status in lifecycle order.
var AllJobStatuses = []JobStatus{
	JobPending, JobQueued, JobRunning, JobPaused, JobCompleted, JobFailed, JobCancelled,
}

// Terminal reports whether no further transitions happen without an operator.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// Resumable reports whether a job in this status can be requeued from its offset.
func (s JobStatus) Resumable() bool {
	return s == JobPaused || s == JobFailed || s == JobCancelled
}

type JobType string

const (
	JobNewCreators JobType = "new_creators"
	JobRescrape    JobType = "rescrape"
)

// JobRecord is the durable state of a batch job.
type JobRecord struct {
	ID             string     `json:"id"`
	Type           JobType    `json:"job_type"`
	Status         JobStatus  `json:"status"`
	PrimaryNiche   string     `json:"primary_niche"`
	Platform       *Platform  `json:"platform,omitempty"`
	Description    string     `json:"description"`
	Targets        []Target   `json:"targets,omitempty"`
	TotalItems     int        `json:"total_items"`
	ProcessedItems int        `json:"processed_items"`
	FailedItems    int        `json:"failed_items"`
	Results        JobResults `json:"results"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

type Outcome string

const (
	OutcomeAdded    Outcome = "added"
	OutcomeUpdated  Outcome = "updated"
	OutcomeFiltered Outcome = "filtered"
	OutcomeFailed   Outcome = "failed"
	OutcomeSkipped  Outcome = "skipped"
)

// ItemResult is the reconciler's verdict for one target.
type ItemResult struct {
	Target  Target
	Outcome Outcome
	Reason  string
	Record  *CreatorRecord
	// Err is the underlying failure, kept for classification (rate limits, timeouts).
	Err error
}

// NicheStats counts niches across added and updated creators.
type NicheStats struct {
	Primary   map[string]int `json:"primary_niches"`
	Secondary map[string]int `json:"secondary_niches"`
}

// JobResults is the per-outcome summary persisted on the job row.
type JobResults struct {
	Added      []string   `json:"added"`
	Updated    []string   `json:"updated"`
	Filtered   []string   `json:"filtered"`
	Failed     []string   `json:"failed"`
	Skipped    []string   `json:"skipped"`
	NicheStats NicheStats `json:"niche_stats"`
}

func NewJobResults() JobResults {
	return JobResults{
		Added:    []string{},
		Updated:  []string{},
		Filtered: []string{},
		Failed:   []string{},
		Skipped:  []string{},
		NicheStats: NicheStats{
			Primary:   map[string]int{},
			Secondary: map[string]int{},
		},
	}
}

// Record files an item result into the matching bucket.
func (r *JobResults) Record(res ItemResult) {
	entry := "@" + res.Target.Handle
	if res.Reason != "" {
		entry += " - " + res.Reason
	}

	switch res.Outcome {
	case OutcomeAdded:
		r.Added = append(r.Added, entry)
	case OutcomeUpdated:
		r.Updated = append(r.Updated, entry)
	case OutcomeFiltered:
		r.Filtered = append(r.Filtered, entry)
	case OutcomeSkipped:
		r.Skipped = append(r.Skipped, entry)
	default:
		r.Failed = append(r.Failed, entry)
	}

	if res.Record != nil && (res.Outcome == OutcomeAdded || res.Outcome == OutcomeUpdated) {
		if r.NicheStats.Primary == nil {
			r.NicheStats.Primary = map[string]int{}
		}
		if r.NicheStats.Secondary == nil {
			r.NicheStats.Secondary = map[string]int{}
		}
		if n := res.Record.PrimaryNiche; n != "" {
			r.NicheStats.Primary[n]++
		}
		if n := res.Record.SecondaryNiche; n != "" {
			r.NicheStats.Secondary[n]++
		}
	}
}

// Clone returns a deep copy safe to persist while the original keeps growing.
func (r JobResults) Clone() JobResults {
	out := JobResults{
		Added:    append([]string{}, r.Added...),
		Updated:  append([]string{}, r.Updated...),
		Filtered: append([]string{}, r.Filtered...),
		Failed:   append([]string{}, r.Failed...),
		Skipped:  append([]string{}, r.Skipped...),
		NicheStats: NicheStats{
			Primary:   make(map[string]int, len(r.NicheStats.Primary)),
			Secondary: make(map[string]int, len(r.NicheStats.Secondary)),
		},
	}
	for k, v := range r.NicheStats.Primary {
		out.NicheStats.Primary[k] = v
	}
	for k, v := range r.NicheStats.Secondary {
		out.NicheStats.Secondary[k] = v
	}
	return out
}

// JobSummary is what RunBatch hands back to its caller.
type JobSummary struct {
	JobID     string
	Status    JobStatus
	Processed int
	Failed    int
	Results   JobResults
	Reason    string
	Duration  time.Duration
}

// Counts returns the number of entries per outcome bucket.
func (s *JobSummary) Counts() map[Outcome]int {
	return map[Outcome]int{
		OutcomeAdded:    len(s.Results.Added),
		OutcomeUpdated:  len(s.Results.Updated),
		OutcomeFiltered: len(s.Results.Filtered),
		OutcomeFailed:   len(s.Results.Failed),
		OutcomeSkipped:  len(s.Results.Skipped),
	}
}

// ControlSignal is an operator request observed by a running driver between items.
type ControlSignal string

const (
	SignalNone   ControlSignal = ""
	SignalCancel ControlSignal = "cancel"
	SignalPause  ControlSignal = "pause"
)
