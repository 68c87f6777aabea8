package tools

import (
	"context"
	"fmt"
	"strings"

	"ai-todo-agent-be/internal/entity"

	"github.com/google/uuid"
)

// MatchPolicy decides how a free-text task reference selects tasks.
type MatchPolicy string

const (
	// MatchExact requires the whole title to equal the reference, ignoring case.
	MatchExact MatchPolicy = "exact"
	// MatchContains accepts any title containing the reference, ignoring case.
	MatchContains MatchPolicy = "contains"
)

func ParseMatchPolicy(s string) (MatchPolicy, error) {
	switch MatchPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case MatchExact:
		return MatchExact, nil
	case MatchContains, "":
		return MatchContains, nil
	default:
		return "", fmt.Errorf("unknown match policy %q", s)
	}
}

// Resolver turns a task id or a natural-language reference into candidates.
type Resolver struct {
	store  TaskStore
	policy MatchPolicy
}

func NewResolver(store TaskStore, policy MatchPolicy) *Resolver {
	if policy == "" {
		policy = MatchContains
	}
	return &Resolver{store: store, policy: policy}
}

func (r *Resolver) Policy() MatchPolicy {
	return r.policy
}

// Resolve returns every task owned by ownerId that ref designates. A ref that
// parses as a UUID is looked up by id only.
func (r *Resolver) Resolve(ctx context.Context, ownerId, ref string) ([]*entity.Task, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, nil
	}

	if id, err := uuid.Parse(ref); err == nil {
		task, err := r.store.Find(ctx, ownerId, id)
		if err != nil || task == nil {
			return nil, err
		}
		return []*entity.Task{task}, nil
	}

	exact := r.policy == MatchExact
	var matches []*entity.Task
	if searcher, ok := r.store.(TitleSearcher); ok {
		found, err := searcher.SearchByTitle(ctx, ownerId, ref, exact)
		if err != nil {
			return nil, err
		}
		matches = found
	} else {
		all, err := r.store.List(ctx, ownerId, entity.TaskStatusAll)
		if err != nil {
			return nil, err
		}
		matches = filterByTitle(all, ref, exact)
	}

	// a single whole-title hit wins over partial hits
	if !exact && len(matches) > 1 {
		if same := filterByTitle(matches, ref, true); len(same) == 1 {
			return same, nil
		}
	}
	return matches, nil
}

func filterByTitle(tasks []*entity.Task, ref string, exact bool) []*entity.Task {
	needle := strings.ToLower(ref)
	var matches []*entity.Task
	for _, t := range tasks {
		title := strings.ToLower(t.Title)
		if (exact && title == needle) || (!exact && strings.Contains(title, needle)) {
			matches = append(matches, t)
		}
	}
	return matches
}
