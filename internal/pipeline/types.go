package pipeline

import "fmt"

// Output is one file written by a task.
type Output struct {
	Source string // relative to the project root
	Path   string // written path relative to the project root
	Size   int64
}

// Result holds the outcome of a task run.
type Result struct {
	Task    string
	Written []Output
	Skipped []string
	Failed  []FileError

	BytesIn  int64 // size of processed sources
	BytesOut int64 // size of written outputs, source maps included
}

// Merge folds other into r. Used when one named task runs several
// transform tasks.
func (r *Result) Merge(other *Result) {
	if other == nil {
		return
	}
	r.Written = append(r.Written, other.Written...)
	r.Skipped = append(r.Skipped, other.Skipped...)
	r.Failed = append(r.Failed, other.Failed...)
	r.BytesIn += other.BytesIn
	r.BytesOut += other.BytesOut
}

// FileError is a per-file transform failure. It never aborts a task.
type FileError struct {
	Task string
	File string
	Err  error
}

func (e FileError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Task, e.File, e.Err)
}

func (e FileError) Unwrap() error {
	return e.Err
}

// DestinationError reports a failure to write or remove a destination path.
type DestinationError struct {
	Task string
	Path string
	Err  error
}

func (e *DestinationError) Error() string {
	return fmt.Sprintf("%s: destination %s: %v", e.Task, e.Path, e.Err)
}

func (e *DestinationError) Unwrap() error {
	return e.Err
}
