package recompress

import (
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Agronaut41/admin-cc/internal/refindex"
)

// Outcome is the final state of one blob in a run.
type Outcome string

const (
	OutcomeMigrated        Outcome = "migrated"
	OutcomeDryRun          Outcome = "dry_run"
	OutcomeSkippedNoGain   Outcome = "skipped_no_gain"
	OutcomeFailedDownload  Outcome = "failed_download"
	OutcomeFailedTranscode Outcome = "failed_transcode"
	OutcomeFailedUpload    Outcome = "failed_upload"
	OutcomeFailedRewrite   Outcome = "failed_rewrite"
)

// Processed reports whether the outcome counts against the run limit.
func (o Outcome) Processed() bool {
	return o == OutcomeMigrated || o == OutcomeDryRun
}

// Failed reports whether the outcome is a per-blob failure.
func (o Outcome) Failed() bool {
	switch o {
	case OutcomeFailedDownload, OutcomeFailedTranscode, OutcomeFailedUpload, OutcomeFailedRewrite:
		return true
	default:
		return false
	}
}

// Record is what happened to one source blob. Records live only as long as
// the run that produced them.
type Record struct {
	OldID       string          `json:"old_id" yaml:"old_id"`
	OldLocator  string          `json:"old_locator" yaml:"old_locator"`
	Name        string          `json:"name" yaml:"name"`
	MediaType   string          `json:"media_type" yaml:"media_type"`
	Outcome     Outcome         `json:"outcome" yaml:"outcome"`
	BeforeBytes int64           `json:"before_bytes" yaml:"before_bytes"`
	AfterBytes  int64           `json:"after_bytes,omitempty" yaml:"after_bytes,omitempty"`
	NewID       string          `json:"new_id,omitempty" yaml:"new_id,omitempty"`
	NewLocator  string          `json:"new_locator,omitempty" yaml:"new_locator,omitempty"`
	NewName     string          `json:"new_name,omitempty" yaml:"new_name,omitempty"`
	References  refindex.Counts `json:"references" yaml:"references"`
	OldDeleted  bool            `json:"old_deleted" yaml:"old_deleted"`
	DeleteError string          `json:"delete_error,omitempty" yaml:"delete_error,omitempty"`
	Error       string          `json:"error,omitempty" yaml:"error,omitempty"`
	Duration    time.Duration   `json:"duration_ns" yaml:"duration_ns"`
}

// Saved is the number of bytes the new encoding saves. Zero unless the
// output was smaller.
func (r Record) Saved() int64 {
	if r.AfterBytes <= 0 || r.AfterBytes >= r.BeforeBytes {
		return 0
	}
	return r.BeforeBytes - r.AfterBytes
}

// ShrinkPercent is the size reduction as a percentage of the original.
func (r Record) ShrinkPercent() float64 {
	if r.BeforeBytes <= 0 || r.AfterBytes <= 0 {
		return 0
	}
	return 100 * float64(r.BeforeBytes-r.AfterBytes) / float64(r.BeforeBytes)
}

// Summary is the one-line human form of the record.
func (r Record) Summary() string {
	before := humanize.IBytes(uint64(r.BeforeBytes))
	switch r.Outcome {
	case OutcomeMigrated, OutcomeDryRun, OutcomeSkippedNoGain, OutcomeFailedUpload, OutcomeFailedRewrite:
		return before + " -> " + humanize.IBytes(uint64(r.AfterBytes)) + " (" + strconv.FormatFloat(r.ShrinkPercent(), 'f', 1, 64) + "%)"
	default:
		return before
	}
}

// Report is the tally of one run.
type Report struct {
	RunID       string    `json:"run_id" yaml:"run_id"`
	DryRun      bool      `json:"dry_run" yaml:"dry_run"`
	StartedAt   time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt  time.Time `json:"finished_at" yaml:"finished_at"`
	Scanned     int       `json:"scanned" yaml:"scanned"`
	Processed   int       `json:"processed" yaml:"processed"`
	Skipped     int       `json:"skipped" yaml:"skipped"`
	Failed      int       `json:"failed" yaml:"failed"`
	BytesBefore int64     `json:"bytes_before" yaml:"bytes_before"`
	BytesAfter  int64     `json:"bytes_after" yaml:"bytes_after"`
	BytesSaved  int64     `json:"bytes_saved" yaml:"bytes_saved"`
	Records     []Record  `json:"records" yaml:"records"`
}

func (r *Report) add(rec Record) {
	r.Scanned++
	r.Records = append(r.Records, rec)
	switch {
	case rec.Outcome.Processed():
		r.Processed++
		r.BytesBefore += rec.BeforeBytes
		r.BytesAfter += rec.AfterBytes
		r.BytesSaved += rec.Saved()
	case rec.Outcome.Failed():
		r.Failed++
	default:
		r.Skipped++
	}
}

// Count returns how many records ended in outcome.
func (r *Report) Count(outcome Outcome) int {
	n := 0
	for _, rec := range r.Records {
		if rec.Outcome == outcome {
			n++
		}
	}
	return n
}
