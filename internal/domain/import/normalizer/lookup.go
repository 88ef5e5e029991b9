package normalizer

import (
	"sort"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/FACorreiaa/bookkeeper/internal/domain/transaction"
)

// Lookup resolves category and account names for one tenant. Matching is
// exact and case-insensitive; fuzzy ranking only feeds the error hint.
type Lookup struct {
	categories    map[string]transaction.Category
	accounts      map[string]transaction.Account
	categoryNames []string
	accountNames  []string
}

// NewLookup indexes the tenant's categories and accounts by folded name.
func NewLookup(categories []transaction.Category, accounts []transaction.Account) *Lookup {
	l := &Lookup{
		categories: make(map[string]transaction.Category, len(categories)),
		accounts:   make(map[string]transaction.Account, len(accounts)),
	}
	for _, c := range categories {
		key := transaction.NormalizeName(c.Name)
		if _, exists := l.categories[key]; !exists {
			l.categories[key] = c
			l.categoryNames = append(l.categoryNames, c.Name)
		}
	}
	for _, a := range accounts {
		key := transaction.NormalizeName(a.Name)
		if _, exists := l.accounts[key]; !exists {
			l.accounts[key] = a
			l.accountNames = append(l.accountNames, a.Name)
		}
	}
	return l
}

// Category finds a category by name.
func (l *Lookup) Category(name string) (transaction.Category, bool) {
	c, ok := l.categories[transaction.NormalizeName(name)]
	return c, ok
}

// Account finds an account by name.
func (l *Lookup) Account(name string) (transaction.Account, bool) {
	a, ok := l.accounts[transaction.NormalizeName(name)]
	return a, ok
}

// SuggestCategory returns the closest existing category name, or "".
func (l *Lookup) SuggestCategory(name string) string {
	return closest(name, l.categoryNames)
}

// SuggestAccount returns the closest existing account name, or "".
func (l *Lookup) SuggestAccount(name string) string {
	return closest(name, l.accountNames)
}

func closest(name string, candidates []string) string {
	if name == "" || len(candidates) == 0 {
		return ""
	}

	ranks := fuzzy.RankFindNormalizedFold(name, candidates)
	if len(ranks) == 0 {
		// the typed value may be the longer string ("Office Supplies Q1")
		for _, c := range candidates {
			if fuzzy.MatchNormalizedFold(c, name) {
				return c
			}
		}
		return ""
	}
	sort.Sort(ranks)
	return ranks[0].Target
}
