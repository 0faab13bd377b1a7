package repopool

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/utilitywarehouse/git-replicate/repository"
)

// Outcome is the result of processing a single target
type Outcome struct {
	// Input is the raw target as given or listed
	Input  string
	Target repository.Target
	// Action is empty if reconcile was not attempted or failed before
	// picking a path
	Action         repository.Action
	MirrorErr      error
	ReplicationErr error
	// Skipped is the reason replication was not attempted
	Skipped string
	// Replicated is set once the mirror is pushed to the destination
	Replicated bool
}

// Failed returns true if any step of the target failed
func (o Outcome) Failed() bool {
	return o.MirrorErr != nil || o.ReplicationErr != nil
}

// Err returns errors of the outcome as single error
func (o Outcome) Err() error {
	switch {
	case o.MirrorErr != nil && o.ReplicationErr != nil:
		return fmt.Errorf("%w; %w", o.MirrorErr, o.ReplicationErr)
	case o.MirrorErr != nil:
		return o.MirrorErr
	default:
		return o.ReplicationErr
	}
}

// Result is the ordered list of outcomes of a run
type Result struct {
	Outcomes []Outcome
	Duration time.Duration
	// Cancelled is set if the run stopped before processing all targets
	Cancelled bool

	log *slog.Logger
}

func newResult(invalid []InvalidTarget, log *slog.Logger) *Result {
	res := &Result{log: log}
	for _, in := range invalid {
		res.add(Outcome{Input: in.Input, MirrorErr: in.Err, Skipped: "malformed target"})
	}
	return res
}

func (r *Result) add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)

	if r.log == nil {
		return
	}
	if o.Failed() {
		r.log.Warn("target failed", "input", o.Input, "err", o.Err())
		return
	}
	r.log.Info("target done", "repo", o.Input, "action", o.Action)
}

// Failures returns failed outcomes in order
func (r *Result) Failures() []Outcome {
	var failed []Outcome
	for _, o := range r.Outcomes {
		if o.Failed() {
			failed = append(failed, o)
		}
	}
	return failed
}

// PrintSummary writes a table of all outcomes followed by an enumerated
// list of failures
func (r *Result) PrintSummary(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "Repository", "Mirror", "Replication", "Status"})
	table.SetAutoWrapText(false)

	for i, o := range r.Outcomes {
		status := "ok"
		if o.Failed() {
			status = "failed"
		}
		table.Append([]string{strconv.Itoa(i + 1), o.Input, mirrorColumn(o), replicationColumn(o), status})
	}
	table.Render()

	failures := r.Failures()
	if len(failures) == 0 {
		fmt.Fprintf(w, "All %d repositories processed successfully in %s\n", len(r.Outcomes), r.Duration.Round(time.Millisecond))
		return
	}

	fmt.Fprintf(w, "Encountered %d error(s) in %s:\n", len(failures), r.Duration.Round(time.Millisecond))
	for i, o := range failures {
		fmt.Fprintf(w, "%d. %s: %s\n", i+1, o.Input, o.Err())
	}
}

func mirrorColumn(o Outcome) string {
	switch {
	case o.Skipped == "malformed target":
		return "-"
	case o.MirrorErr != nil && o.Action != "":
		return string(o.Action) + " failed"
	case o.MirrorErr != nil:
		return "failed"
	case o.Action == "":
		return "-"
	default:
		return string(o.Action)
	}
}

func replicationColumn(o Outcome) string {
	switch {
	case o.Skipped != "":
		return "skipped (" + o.Skipped + ")"
	case o.ReplicationErr != nil:
		return "failed"
	case o.Replicated:
		return "pushed"
	default:
		return "-"
	}
}
