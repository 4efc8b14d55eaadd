package engine

import (
	"time"

	"github.com/bobboyms/docengine/pkg/query"
)

// Query parses and runs a raw JSON query object against the store and
// index registry, returning the matching documents already filtered,
// sorted, and paginated.
func (e *Engine) Query(raw []byte) (*query.Result, error) {
	q, err := query.Parse(raw)
	if err != nil {
		return nil, err
	}
	return e.runQuery(q)
}

func (e *Engine) runQuery(q *query.Query) (*query.Result, error) {
	started := time.Now()
	executor := query.NewExecutor(e.store, e.indexes)
	result, err := executor.Execute(q)
	if err == nil && e.metrics != nil {
		e.metrics.ObserveQuery(q.Collection, string(result.Plan.Strategy), time.Since(started))
	}
	return result, err
}

// Count parses and runs a raw JSON query object, returning only the
// number of matching documents.
func (e *Engine) Count(raw []byte) (int, error) {
	q, err := query.Parse(raw)
	if err != nil {
		return 0, err
	}
	executor := query.NewExecutor(e.store, e.indexes)
	return executor.Count(q)
}

// Exists parses and runs a raw JSON query object, reporting whether any
// document matches.
func (e *Engine) Exists(raw []byte) (bool, error) {
	q, err := query.Parse(raw)
	if err != nil {
		return false, err
	}
	executor := query.NewExecutor(e.store, e.indexes)
	return executor.Exists(q)
}
