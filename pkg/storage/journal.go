package storage

import (
	"fmt"
	"os"
	"sync"

	"github.com/backlab/ticksim/pkg/engine"
)

// Journal receives every fill as it happens, so a crashed or aborted
// run still leaves an inspectable trade trail.
type Journal interface {
	Append(f engine.Fill)
}

type NopJournal struct{}

func NewNopJournal() *NopJournal        { return &NopJournal{} }
func (j *NopJournal) Append(engine.Fill) {}

// FileJournal appends one CSV line per fill.
type FileJournal struct {
	mu sync.Mutex
	f  *os.File
}

func NewFileJournal(path string) (*FileJournal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileJournal{f: f}, nil
}

func (j *FileJournal) Append(f engine.Fill) {
	j.mu.Lock()
	defer j.mu.Unlock()
	fmt.Fprintf(j.f, "%d,%d,%s,%d,%g,%g,%t\n",
		f.TsMs, f.OrderID, f.Side, f.QtyScaled, f.Price, f.Fee, f.Maker)
}

func (j *FileJournal) Close() error { return j.f.Close() }

var _ Journal = (*NopJournal)(nil)
var _ Journal = (*FileJournal)(nil)
