package query

import (
	"sort"
	"time"

	"github.com/libraz/mygramdb-go/internal/core/domain"
	"github.com/libraz/mygramdb-go/internal/docstore"
	"github.com/libraz/mygramdb-go/internal/index"
	"github.com/libraz/mygramdb-go/internal/ngram"
)

// Searcher is the subset of index.Index the planner needs, so unit tests
// can substitute a smaller fake without building a whole table context.
type Searcher interface {
	SearchAnd(terms []string) []domain.DocID
	SearchOr(terms []string) []domain.DocID
	SearchNot(universe []domain.DocID, terms []string) []domain.DocID
	SearchAndTop(terms []string, limit int, reverse bool) []domain.DocID
}

var _ Searcher = (*index.Index)(nil)

// Plan holds everything the executor needs beyond the parsed AST: filter
// predicates, sort, pagination, and whether to emit debug instrumentation.
type Plan struct {
	AST       *Expr
	Filters   []domain.FilterPredicate
	Sort      domain.SortSpec
	Limit     int
	Offset    int
	Debug     bool
	NgramSize int
	KanjiSize int
}

// execContext carries the per-call dependencies evalNode needs without
// growing every recursive call's parameter list.
type execContext struct {
	idx       Searcher
	store     *docstore.Store
	ngramSize int
	kanjiSize int
}

// termTokens normalizes and tokenizes one AST term's text into the hybrid
// n-gram set the index was built with. A term
// longer than one n-gram window therefore becomes an implicit AND of every
// n-gram it produces, which is the documented default "may over-match but
// never under-match" behavior.
func (c execContext) termTokens(text string) []string {
	normalized := ngram.Normalize(text, ngram.NormalizeOptions{NFKC: true, Width: ngram.WidthNarrow, Lower: true})
	return ngram.TokenizeAll(normalized, c.ngramSize, c.kanjiSize)
}

// Execute runs the plan against idx and store, returning matching doc ids
// (post filter/sort/paginate) and, when Debug is set, a stage timing trail.
func Execute(idx Searcher, store *docstore.Store, plan Plan) ([]domain.DocID, []domain.StageTiming, error) {
	var stages []domain.StageTiming
	record := func(stage string, start time.Time, n int) {
		if plan.Debug {
			stages = append(stages, domain.StageTiming{
				Stage:       stage,
				Duration:    time.Since(start),
				Cardinality: n,
			})
		}
	}

	ctx := execContext{idx: idx, store: store, ngramSize: plan.NgramSize, kanjiSize: plan.KanjiSize}

	if tokens, ok := SearchAndTopTerms(plan); ok {
		fastStart := time.Now()
		candidates := idx.SearchAndTop(tokens, plan.Limit, true)
		record("search_and_top", fastStart, len(candidates))
		return candidates, stages, nil
	}

	evalStart := time.Now()
	candidates := evalNode(ctx, plan.AST)
	record("evaluate", evalStart, len(candidates))

	filterStart := time.Now()
	candidates = applyFilters(store, candidates, plan.Filters)
	record("filter", filterStart, len(candidates))

	sortStart := time.Now()
	candidates = applySort(store, candidates, plan.Sort)
	record("sort", sortStart, len(candidates))

	paginateStart := time.Now()
	candidates = paginate(candidates, plan.Offset, plan.Limit)
	record("paginate", paginateStart, len(candidates))

	return candidates, stages, nil
}

// evalNode evaluates the AST bottom-up: AND via intersection, OR via union,
// NOT via set difference against all_doc_ids() at the top level or against
// the enclosing AND group's running candidate set otherwise.
func evalNode(ctx execContext, e *Expr) []domain.DocID {
	switch e.Kind {
	case NodeTerm:
		return ctx.idx.SearchAnd(ctx.termTokens(e.Text))
	case NodeNot:
		universe := ctx.store.AllDocIDs()
		inner := evalNode(ctx, e.Children[0])
		return setDifference(universe, inner)
	case NodeAnd:
		return evalAnd(ctx, e.Children)
	case NodeOr:
		return evalOr(ctx, e.Children)
	}
	return nil
}

func evalAnd(ctx execContext, children []*Expr) []domain.DocID {
	var positiveTokens []string
	var negatedTerms [][]string
	var sub []domain.DocID
	haveSub := false

	for _, child := range children {
		switch child.Kind {
		case NodeTerm:
			positiveTokens = append(positiveTokens, ctx.termTokens(child.Text)...)
		case NodeNot:
			if child.Children[0].Kind == NodeTerm {
				negatedTerms = append(negatedTerms, ctx.termTokens(child.Children[0].Text))
				continue
			}
			result := evalNode(ctx, child)
			sub = intersectOrInit(sub, result, haveSub)
			haveSub = true
		default:
			result := evalNode(ctx, child)
			sub = intersectOrInit(sub, result, haveSub)
			haveSub = true
		}
	}

	var result []domain.DocID
	switch {
	case len(positiveTokens) > 0:
		result = ctx.idx.SearchAnd(positiveTokens)
	case haveSub:
		result = sub
		haveSub = false
	default:
		result = ctx.store.AllDocIDs()
	}
	if haveSub {
		result = intersectSortedDocIDs(result, sub)
	}
	for _, toks := range negatedTerms {
		result = setDifference(result, ctx.idx.SearchAnd(toks))
	}
	return result
}

func intersectOrInit(acc, next []domain.DocID, have bool) []domain.DocID {
	if !have {
		return next
	}
	return intersectSortedDocIDs(acc, next)
}

func evalOr(ctx execContext, children []*Expr) []domain.DocID {
	seen := make(map[domain.DocID]struct{})
	var out []domain.DocID
	for _, child := range children {
		for _, d := range evalNode(ctx, child) {
			if _, dup := seen[d]; !dup {
				seen[d] = struct{}{}
				out = append(out, d)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func intersectSortedDocIDs(a, b []domain.DocID) []domain.DocID {
	out := make([]domain.DocID, 0, minInt(len(a), len(b)))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			out = append(out, a[i])
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return out
}

func setDifference(universe, exclude []domain.DocID) []domain.DocID {
	excludeSet := make(map[domain.DocID]struct{}, len(exclude))
	for _, d := range exclude {
		excludeSet[d] = struct{}{}
	}
	out := make([]domain.DocID, 0, len(universe))
	for _, d := range universe {
		if _, found := excludeSet[d]; !found {
			out = append(out, d)
		}
	}
	return out
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func applyFilters(store *docstore.Store, candidates []domain.DocID, filters []domain.FilterPredicate) []domain.DocID {
	if len(filters) == 0 {
		return candidates
	}
	out := candidates[:0]
	for _, id := range candidates {
		doc, ok := store.GetDocument(id)
		if !ok {
			continue
		}
		match := true
		for _, p := range filters {
			v, present := doc.Filters[p.Column]
			if !p.Matches(v, present) {
				match = false
				break
			}
		}
		if match {
			out = append(out, id)
		}
	}
	return out
}

func applySort(store *docstore.Store, candidates []domain.DocID, spec domain.SortSpec) []domain.DocID {
	if spec.Column == "" || spec.Column == "doc_id" {
		sort.Slice(candidates, func(i, j int) bool {
			if spec.Direction == domain.SortDescending {
				return candidates[i] > candidates[j]
			}
			return candidates[i] < candidates[j]
		})
		return candidates
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, _ := store.GetDocument(candidates[i])
		b, _ := store.GetDocument(candidates[j])
		var av, bv domain.FilterValue
		if a != nil {
			av = a.Filters[spec.Column]
		}
		if b != nil {
			bv = b.Filters[spec.Column]
		}
		cmp := av.Compare(bv)
		if spec.Direction == domain.SortDescending {
			return cmp > 0
		}
		return cmp < 0
	})
	return candidates
}

func paginate(candidates []domain.DocID, offset, limit int) []domain.DocID {
	if offset >= len(candidates) {
		return nil
	}
	candidates = candidates[offset:]
	if limit > 0 && limit < len(candidates) {
		candidates = candidates[:limit]
	}
	return candidates
}

// SearchAndTopTerms reports whether plan qualifies for the search_and_top
// fast path (a single top-level term, SORT doc_id DESC, a positive limit,
// a zero offset, and no filters) and, if so, returns the term's n-gram
// tokens.
func SearchAndTopTerms(plan Plan) (tokens []string, ok bool) {
	if plan.AST.Kind != NodeTerm {
		return nil, false
	}
	if len(plan.Filters) != 0 {
		return nil, false
	}
	if plan.Sort.Column != "doc_id" && plan.Sort.Column != "" {
		return nil, false
	}
	if plan.Sort.Direction != domain.SortDescending {
		return nil, false
	}
	if plan.Limit <= 0 {
		return nil, false
	}
	if plan.Offset != 0 {
		return nil, false
	}
	ctx := execContext{ngramSize: plan.NgramSize, kanjiSize: plan.KanjiSize}
	return ctx.termTokens(plan.AST.Text), true
}
