package app

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Recorder appends every record to a file as one JSON object per line.
type Recorder struct {
	mu  sync.Mutex
	f   *os.File
	w   *bufio.Writer
	enc *json.Encoder
	n   int
}

// OpenRecorder creates or appends to path.
func OpenRecorder(path string) (*Recorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("recorder: %w", err)
	}
	w := bufio.NewWriter(f)
	log.Printf("recorder: writing records to %s", path)
	return &Recorder{f: f, w: w, enc: json.NewEncoder(w)}, nil
}

func (r *Recorder) HandleRecord(rec AngleRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enc == nil {
		return
	}
	if err := r.enc.Encode(rec); err != nil {
		log.Printf("recorder: %v", err)
		return
	}
	r.n++
}

// Close flushes buffered records and closes the file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enc == nil {
		return nil
	}
	r.enc = nil
	flushErr := r.w.Flush()
	closeErr := r.f.Close()
	log.Printf("recorder: %d records written", r.n)
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
