package migration

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"path/filepath"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/usagipass/migration-tools/internal/errors"
)

// ErrUnitsFailed is returned by Report.Err when at least one unit failed
var ErrUnitsFailed = errors.NewStd("one or more units failed to migrate")

// maxMessageLen bounds failure messages kept in the report
const maxMessageLen = 300

// Failure identifies a unit that was not migrated
type Failure struct {
	Unit     string `yaml:"unit" json:"unit"`
	Category string `yaml:"category" json:"category"`
	Message  string `yaml:"message" json:"message"`
}

// SectionResult counts the outcomes of one kind of unit
type SectionResult struct {
	Name      string    `yaml:"name" json:"name"`
	Processed int       `yaml:"processed" json:"processed"`
	Inserted  int       `yaml:"inserted" json:"inserted"`
	Updated   int       `yaml:"updated" json:"updated"`
	Existing  int       `yaml:"existing" json:"existing"`
	Skipped   int       `yaml:"skipped" json:"skipped"`
	Failed    int       `yaml:"failed" json:"failed"`
	Failures  []Failure `yaml:"failures,omitempty" json:"failures,omitempty"`
}

// Record counts a processed unit with the given outcome
func (s *SectionResult) Record(outcome Outcome) {
	s.Processed++
	switch outcome {
	case OutcomeInserted:
		s.Inserted++
	case OutcomeUpdated:
		s.Updated++
	case OutcomeExisting:
		s.Existing++
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeFailed:
		s.Failed++
	}
}

// Fail counts a processed unit as failed and keeps its identifier
func (s *SectionResult) Fail(unit string, err error) {
	s.Processed++
	s.Failed++

	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	if len(msg) > maxMessageLen {
		msg = msg[:maxMessageLen] + "..."
	}
	s.Failures = append(s.Failures, Failure{
		Unit:     unit,
		Category: string(errors.CategoryOf(err)),
		Message:  msg,
	})
}

// Counts returns the counters keyed by outcome name
func (s *SectionResult) Counts() map[string]int {
	return map[string]int{
		OutcomeInserted.String(): s.Inserted,
		OutcomeUpdated.String():  s.Updated,
		OutcomeExisting.String(): s.Existing,
		OutcomeSkipped.String():  s.Skipped,
		OutcomeFailed.String():   s.Failed,
	}
}

// Report summarizes one command run
type Report struct {
	Command    string           `yaml:"command" json:"command"`
	RunID      string           `yaml:"run_id,omitempty" json:"run_id,omitempty"`
	DryRun     bool             `yaml:"dry_run" json:"dry_run"`
	StartedAt  time.Time        `yaml:"started_at" json:"started_at"`
	FinishedAt time.Time        `yaml:"finished_at" json:"finished_at"`
	Duration   string           `yaml:"duration" json:"duration"`
	Fatal      string           `yaml:"fatal,omitempty" json:"fatal,omitempty"`
	Sections   []*SectionResult `yaml:"sections" json:"sections"`
	// Extra carries command-specific statistics such as copy-img counters
	Extra map[string]int `yaml:"extra,omitempty" json:"extra,omitempty"`
}

// NewReport starts a report for command
func NewReport(command string, dryRun bool, now time.Time) *Report {
	return &Report{Command: command, DryRun: dryRun, StartedAt: now}
}

// Section returns the named section, creating it in first-use order
func (r *Report) Section(name string) *SectionResult {
	for _, s := range r.Sections {
		if s.Name == name {
			return s
		}
	}
	s := &SectionResult{Name: name}
	r.Sections = append(r.Sections, s)
	return s
}

// Finish stamps the end of the run and records a fatal error, if any
func (r *Report) Finish(now time.Time, fatal error) {
	r.FinishedAt = now
	r.Duration = now.Sub(r.StartedAt).Round(time.Millisecond).String()
	if fatal != nil {
		r.Fatal = fatal.Error()
	}
}

// Failed is the number of failed units across all sections
func (r *Report) Failed() int {
	total := 0
	for _, s := range r.Sections {
		total += s.Failed
	}
	return total
}

// Err returns ErrUnitsFailed when any unit failed
func (r *Report) Err() error {
	if r.Failed() > 0 {
		return fmt.Errorf("%w: %d failed", ErrUnitsFailed, r.Failed())
	}
	return nil
}

// Print writes a summary table followed by the failing units
func (r *Report) Print(w io.Writer) {
	bold := color.New(color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	title := r.Command
	if r.DryRun {
		title += " (dry run, nothing committed)"
	}
	_, _ = fmt.Fprintf(w, "%s\n", bold(title))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "SECTION\tPROCESSED\tINSERTED\tUPDATED\tEXISTING\tSKIPPED\tFAILED")
	for _, s := range r.Sections {
		failed := fmt.Sprint(s.Failed)
		if s.Failed > 0 {
			failed = red(failed)
		}
		skipped := fmt.Sprint(s.Skipped)
		if s.Skipped > 0 {
			skipped = yellow(skipped)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\t%d\t%d\t%s\t%s\n",
			s.Name, s.Processed, green(s.Inserted), s.Updated, s.Existing, skipped, failed)
	}
	_ = tw.Flush()

	for _, key := range slices.Sorted(maps.Keys(r.Extra)) {
		_, _ = fmt.Fprintf(w, "%s: %d\n", key, r.Extra[key])
	}

	for _, s := range r.Sections {
		for _, f := range s.Failures {
			_, _ = fmt.Fprintf(w, "%s %s/%s [%s] %s\n", red("FAILED"), s.Name, f.Unit, f.Category, f.Message)
		}
	}

	if r.Fatal != "" {
		_, _ = fmt.Fprintf(w, "%s %s\n", red(bold("ABORTED")), r.Fatal)
	}
	if r.Duration != "" {
		_, _ = fmt.Fprintf(w, "finished in %s\n", r.Duration)
	}
}

// WriteFile stores the report as YAML, or JSON when path ends in .json
func (r *Report) WriteFile(fs afero.Fs, path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err = json.MarshalIndent(r, "", "  ")
	default:
		data, err = yaml.Marshal(r)
	}
	if err != nil {
		return errors.New(err).Category(errors.CategoryFileIO).Context("path", path).Build()
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return errors.FileError(err, path, 0)
		}
	}
	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		return errors.FileError(err, path, int64(len(data)))
	}
	return nil
}
