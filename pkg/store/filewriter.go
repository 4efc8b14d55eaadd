package store

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/bobboyms/docengine/pkg/document"
)

// writeJob is one pending file mutation: either write doc's JSON
// encoding to its path, or remove the path entirely when doc is nil.
type writeJob struct {
	collection string
	docID      string
	doc        *document.Document
	sentinel   bool          // true for a flush barrier: carries no mutation
	done       chan struct{} // closed once this job (and everything before it) has been applied; no fsync is done
}

// fileWriter serializes document persistence through a single
// background goroutine consuming a buffered job channel, the same
// queue-plus-consumer shape a WAL writer uses for background fsync
// batching, generalized here from "batch small writes before an fsync"
// to "apply one file write per document change without blocking the
// caller's latch hold."
type fileWriter struct {
	root string

	mu     sync.Mutex
	jobs   chan writeJob
	wg     sync.WaitGroup
	closed bool
}

func newFileWriter(root string, queueSize int) (*fileWriter, error) {
	if queueSize <= 0 {
		queueSize = 256
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	fw := &fileWriter{root: root, jobs: make(chan writeJob, queueSize)}
	fw.wg.Add(1)
	go fw.run()
	return fw, nil
}

func (fw *fileWriter) run() {
	defer fw.wg.Done()
	for job := range fw.jobs {
		if !job.sentinel {
			fw.apply(job)
		}
		if job.done != nil {
			close(job.done)
		}
	}
}

func (fw *fileWriter) apply(job writeJob) {
	path := fw.pathFor(job.collection, job.docID)
	if job.doc == nil {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return
		}
		return
	}
	data, err := job.doc.AsValue().ToJSON()
	if err != nil {
		return
	}
	_ = os.WriteFile(path, data, 0o644)
}

func (fw *fileWriter) pathFor(collectionName, docID string) string {
	return filepath.Join(fw.root, collectionName, docID+".json")
}

func (fw *fileWriter) ensureDir(collectionName string) error {
	return os.MkdirAll(filepath.Join(fw.root, collectionName), 0o755)
}

func (fw *fileWriter) removeDir(collectionName string) error {
	return os.RemoveAll(filepath.Join(fw.root, collectionName))
}

func (fw *fileWriter) enqueue(collectionName, docID string, doc *document.Document) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.closed {
		return
	}
	fw.jobs <- writeJob{collection: collectionName, docID: docID, doc: doc}
}

func (fw *fileWriter) enqueueDelete(collectionName, docID string) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.closed {
		return
	}
	fw.jobs <- writeJob{collection: collectionName, docID: docID, doc: nil}
}

// flush blocks until every job enqueued before this call has been
// applied, by enqueuing a sentinel job and waiting for it to drain.
func (fw *fileWriter) flush() error {
	done := make(chan struct{})
	fw.mu.Lock()
	if fw.closed {
		fw.mu.Unlock()
		return nil
	}
	fw.jobs <- writeJob{sentinel: true, done: done}
	fw.mu.Unlock()
	<-done
	return nil
}

func (fw *fileWriter) close() error {
	fw.mu.Lock()
	if fw.closed {
		fw.mu.Unlock()
		return nil
	}
	fw.closed = true
	close(fw.jobs)
	fw.mu.Unlock()
	fw.wg.Wait()
	return nil
}
