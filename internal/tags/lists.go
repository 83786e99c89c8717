package tags

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/deusflow/newspulse/internal/storage"
)

// Kind selects one of the two user tag lists.
type Kind string

const (
	Include Kind = "include"
	Exclude Kind = "exclude"
)

// ErrUnknownKind is returned for a list name other than include or exclude.
var ErrUnknownKind = errors.New("tags: unknown list")

// ParseKind accepts "include" or "exclude" in any case.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case Include:
		return Include, nil
	case Exclude:
		return Exclude, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Lists persists the include and exclude lists as newline separated text.
type Lists struct {
	store storage.Store
	now   func() time.Time
}

// NewLists stores the lists in store.
func NewLists(store storage.Store) *Lists {
	return &Lists{store: store, now: time.Now}
}

func key(k Kind) string { return "tags/" + string(k) }

// Get returns a list in insertion order.
func (l *Lists) Get(ctx context.Context, k Kind) ([]string, error) {
	if _, err := ParseKind(string(k)); err != nil {
		return nil, err
	}
	data, err := l.store.Get(ctx, key(k))
	if errors.Is(err, storage.ErrNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s tags: %w", k, err)
	}
	return normalizeList(strings.Split(string(data), "\n")), nil
}

// Add appends tag unless an equal tag ignoring case is present.
func (l *Lists) Add(ctx context.Context, k Kind, tag string) ([]string, error) {
	return l.edit(ctx, k, []string{tag}, nil)
}

// Remove drops every entry equal to tag ignoring case.
func (l *Lists) Remove(ctx context.Context, k Kind, tag string) ([]string, error) {
	return l.edit(ctx, k, nil, []string{tag})
}

// SmartEdit applies a comma separated edit: "+tag" adds, "-tag" removes and
// a bare tag adds. Removals run before additions.
func (l *Lists) SmartEdit(ctx context.Context, k Kind, input string) ([]string, error) {
	add, remove := ParseEdit(input)
	return l.edit(ctx, k, add, remove)
}

// Replace overwrites a list.
func (l *Lists) Replace(ctx context.Context, k Kind, list []string) ([]string, error) {
	if _, err := ParseKind(string(k)); err != nil {
		return nil, err
	}
	list = normalizeList(list)
	if err := l.save(ctx, k, list); err != nil {
		return nil, err
	}
	return list, nil
}

// ParseEdit splits a smart edit into additions and removals.
func ParseEdit(input string) (add, remove []string) {
	for _, item := range strings.Split(input, ",") {
		item = strings.TrimSpace(item)
		switch {
		case strings.HasPrefix(item, "+"):
			add = append(add, strings.TrimSpace(item[1:]))
		case strings.HasPrefix(item, "-"):
			remove = append(remove, strings.TrimSpace(item[1:]))
		case item != "":
			add = append(add, item)
		}
	}
	return add, remove
}

func (l *Lists) edit(ctx context.Context, k Kind, add, remove []string) ([]string, error) {
	list, err := l.Get(ctx, k)
	if err != nil {
		return nil, err
	}

	drop := make(map[string]struct{}, len(remove))
	for _, r := range remove {
		drop[strings.ToLower(r)] = struct{}{}
	}
	kept := make([]string, 0, len(list)+len(add))
	for _, t := range list {
		if _, ok := drop[strings.ToLower(t)]; !ok {
			kept = append(kept, t)
		}
	}
	updated := normalizeList(append(kept, add...))

	if slices.Equal(updated, list) {
		return updated, nil
	}
	if err := l.save(ctx, k, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

func (l *Lists) save(ctx context.Context, k Kind, list []string) error {
	if err := l.store.Put(ctx, key(k), []byte(strings.Join(list, "\n")), l.now()); err != nil {
		return fmt.Errorf("write %s tags: %w", k, err)
	}
	return nil
}

// normalizeList trims entries, drops blanks and keeps the first of any
// case-insensitive duplicates.
func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, t := range in {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		lower := strings.ToLower(t)
		if _, dup := seen[lower]; dup {
			continue
		}
		seen[lower] = struct{}{}
		out = append(out, t)
	}
	return out
}
