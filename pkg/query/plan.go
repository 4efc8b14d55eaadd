package query

// Strategy names how the executor chose to satisfy a query.
type Strategy string

const (
	// StrategyIndexEq means a single equality-bound index lookup served
	// the leading filter condition.
	StrategyIndexEq Strategy = "index_eq"
	// StrategyIndexRange means an index range scan served the leading
	// filter condition.
	StrategyIndexRange Strategy = "index_range"
	// StrategyCollectionScan means every document in the collection was
	// visited and filtered in memory.
	StrategyCollectionScan Strategy = "collection_scan"
)

// SortStrategy names how the result set was ordered.
type SortStrategy string

const (
	SortStrategyNone       SortStrategy = "none"
	SortStrategyInMemory   SortStrategy = "in_memory"
	SortStrategyIndexOrder SortStrategy = "index_order" // reserved: the chosen index already yields sort order
)

// Plan explains how a query was (or would be) executed: the strategy
// chosen, which index served it, and how the result was ordered.
type Plan struct {
	Strategy       Strategy
	IndexUsed      string // empty when Strategy is StrategyCollectionScan
	EstimatedSteps int    // documents or index entries visited before filtering
	SortStrategy   SortStrategy
}
