package query

import (
	"errors"
	"sort"

	"github.com/bobboyms/docengine/internal/engineerr"
	"github.com/bobboyms/docengine/pkg/btree"
	"github.com/bobboyms/docengine/pkg/document"
	"github.com/bobboyms/docengine/pkg/types"
)

// DocumentSource is the subset of pkg/store.Store the executor needs:
// fetch every live document of a collection, or one by id.
type DocumentSource interface {
	GetAll(collection string) ([]*document.Document, error)
	Get(collection, docID string) (*document.Document, error)
}

// IndexSource resolves a registered index for a collection/field pair,
// letting the executor pick an index lookup over a full scan when the
// leading filter condition matches one.
type IndexSource interface {
	IndexFor(collection, field string) (btree.Index, bool)
}

// Executor runs parsed Query objects against a document store and an
// index registry, choosing between an index lookup and a collection
// scan the way a ScanOperator index probe chooses over iterating every
// row.
type Executor struct {
	store   DocumentSource
	indexes IndexSource
}

func NewExecutor(store DocumentSource, indexes IndexSource) *Executor {
	return &Executor{store: store, indexes: indexes}
}

// Result is the outcome of running a Query.
type Result struct {
	Documents  []*document.Document
	TotalCount int // only populated when Options.TotalCount is set
	Plan       Plan
}

// Execute runs q and returns the matching documents, already sorted,
// skipped, and limited per q.Options.
func (e *Executor) Execute(q *Query) (*Result, error) {
	candidates, plan, err := e.candidateSet(q)
	if err != nil {
		return nil, err
	}

	matched := make([]*document.Document, 0, len(candidates))
	for _, doc := range candidates {
		if q.Filter.Evaluate(doc) {
			matched = append(matched, doc)
		}
	}

	res := &Result{Plan: plan}
	if q.Options.TotalCount {
		res.TotalCount = len(matched)
	}

	if len(q.Sort) > 0 {
		sortDocuments(matched, q.Sort)
		plan.SortStrategy = SortStrategyInMemory
	}

	matched = applyPage(matched, q.Options.Skip, q.Options.Limit)
	res.Documents = matched
	res.Plan = plan
	return res, nil
}

// Count returns the number of documents matching q.Filter, without
// materializing, sorting, or paginating the result set.
func (e *Executor) Count(q *Query) (int, error) {
	candidates, _, err := e.candidateSet(q)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, doc := range candidates {
		if q.Filter.Evaluate(doc) {
			n++
		}
	}
	return n, nil
}

// Exists reports whether at least one document matches q.Filter,
// short-circuiting the scan on the first hit.
func (e *Executor) Exists(q *Query) (bool, error) {
	candidates, _, err := e.candidateSet(q)
	if err != nil {
		return false, err
	}
	for _, doc := range candidates {
		if q.Filter.Evaluate(doc) {
			return true, nil
		}
	}
	return false, nil
}

// Explain returns the plan Execute would choose without running it.
func (e *Executor) Explain(q *Query) (Plan, error) {
	_, plan, err := e.candidateSet(q)
	return plan, err
}

// candidateSet returns the pre-filter working set: either every
// document reachable through a matching index's key range, or every
// live document in the collection.
func (e *Executor) candidateSet(q *Query) ([]*document.Document, Plan, error) {
	if cond, idx := e.leadingIndexCondition(q); idx != nil {
		ids, strategy := idsFromIndex(idx, cond)
		docs := make([]*document.Document, 0, len(ids))
		for _, id := range ids {
			doc, err := e.store.Get(q.Collection, id)
			if err != nil {
				var notFound *engineerr.NotFoundError
				if errors.As(err, &notFound) {
					continue // raced with a concurrent delete
				}
				return nil, Plan{}, err
			}
			docs = append(docs, doc)
		}
		return docs, Plan{Strategy: strategy, IndexUsed: idx.Name(), EstimatedSteps: len(ids), SortStrategy: SortStrategyNone}, nil
	}

	all, err := e.store.GetAll(q.Collection)
	if err != nil {
		return nil, Plan{}, err
	}
	return all, Plan{Strategy: StrategyCollectionScan, EstimatedSteps: len(all), SortStrategy: SortStrategyNone}, nil
}

// leadingIndexCondition looks for a top-level (or top-level-AND'd) field
// condition whose operator and field both admit an index lookup.
func (e *Executor) leadingIndexCondition(q *Query) (*Filter, btree.Index) {
	if q.Filter == nil || e.indexes == nil {
		return nil, nil
	}
	candidates := []*Filter{q.Filter}
	if q.Filter.Kind == KindAnd {
		candidates = q.Filter.Children
	}
	for _, c := range candidates {
		if c.Kind != KindField {
			continue
		}
		switch c.FOp {
		case OpEq, OpGt, OpGte, OpLt, OpLte:
		default:
			continue
		}
		if idx, ok := e.indexes.IndexFor(q.Collection, c.Field); ok {
			return c, idx
		}
	}
	return nil, nil
}

// idsFromIndex resolves the document ids an index condition covers. The
// executor always re-evaluates the full filter against the fetched
// documents afterward, so an inclusive-leaning range here only affects
// how many candidates are fetched, never correctness.
func idsFromIndex(idx btree.Index, cond *Filter) ([]string, Strategy) {
	key := types.FromValue(cond.Value)
	switch cond.FOp {
	case OpEq:
		posting, ok := idx.Get(key)
		if !ok {
			return nil, StrategyIndexEq
		}
		return posting.IDs(), StrategyIndexEq
	case OpGt, OpGte:
		return idx.Range(key, nil), StrategyIndexRange
	case OpLt, OpLte:
		return idx.Range(nil, key), StrategyIndexRange
	default:
		return nil, StrategyCollectionScan
	}
}

func sortDocuments(docs []*document.Document, fields []SortField) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, sf := range fields {
			av, _ := document.GetPath(docs[i].Data, sf.Path)
			bv, _ := document.GetPath(docs[j].Data, sf.Path)
			cmp, ok := compareValues(av, bv)
			if !ok || cmp == 0 {
				continue
			}
			if sf.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

func applyPage(docs []*document.Document, skip, limit int) []*document.Document {
	if skip > 0 {
		if skip >= len(docs) {
			return nil
		}
		docs = docs[skip:]
	}
	if limit > 0 && limit < len(docs) {
		docs = docs[:limit]
	}
	return docs
}
