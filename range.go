package epubslice

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
)

type boundKind uint8

const (
	boundUnset boundKind = iota
	boundIndex
	boundName
)

// Bound is one end of a chapter range: unset, a 1-based index (negative
// counts from the end, -1 being the last item), or a chapter title.
type Bound struct {
	kind  boundKind
	index int
	name  string
}

// At returns an index bound. Zero is treated as unset.
func At(i int) Bound {
	if i == 0 {
		return Bound{}
	}
	return Bound{kind: boundIndex, index: i}
}

// Named returns a bound matching the first title equal to name, ignoring
// case and surrounding whitespace.
func Named(name string) Bound {
	return Bound{kind: boundName, name: name}
}

// BoundOf combines the two ways a user may give one end of a range. A
// non-empty name takes precedence over the index.
func BoundOf(index *int, name string) Bound {
	if strings.TrimSpace(name) != "" {
		return Named(name)
	}
	if index != nil {
		return At(*index)
	}
	return Bound{}
}

// IsSet reports whether b constrains the range.
func (b Bound) IsSet() bool { return b.kind != boundUnset }

func (b Bound) String() string {
	switch b.kind {
	case boundIndex:
		return fmt.Sprint(b.index)
	case boundName:
		return fmt.Sprintf("%q", b.name)
	}
	return "unset"
}

// Range selects an inclusive run of items.
type Range struct {
	Start Bound
	End   Bound
}

// Resolve turns the range into canonical 1-based inclusive indices over
// count items. nameAt returns the name of the i-th item (0-based). The
// result is not clamped; SelectRange does that.
func (r Range) Resolve(count int, nameAt func(i int) string) (start, end int, err error) {
	start, err = r.Start.resolve(count, nameAt, 1)
	if err != nil {
		return 0, 0, err
	}
	end, err = r.End.resolve(count, nameAt, count)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

func (b Bound) resolve(count int, nameAt func(int) string, unset int) (int, error) {
	switch b.kind {
	case boundName:
		return indexOfName(count, nameAt, b.name)
	case boundIndex:
		if b.index < 0 {
			return count + b.index + 1, nil
		}
		return b.index, nil
	}
	return unset, nil
}

// indexOfName returns the 1-based index of the first item whose trimmed
// name case-folds to the trimmed target.
func indexOfName(count int, nameAt func(int) string, target string) (int, error) {
	fold := cases.Fold()
	want := fold.String(strings.TrimSpace(target))
	for i := 0; i < count; i++ {
		if fold.String(strings.TrimSpace(nameAt(i))) == want {
			return i + 1, nil
		}
	}
	return 0, &BoundaryNotFoundError{Name: target}
}

// SelectRange returns the items selected by r. Resolved indices are clamped
// to the collection; a start past the end yields an empty slice.
func SelectRange[T any](items []T, name func(T) string, r Range) ([]T, error) {
	if !r.Start.IsSet() && !r.End.IsSet() {
		return items, nil
	}
	start, end, err := r.Resolve(len(items), func(i int) string { return name(items[i]) })
	if err != nil {
		return nil, err
	}
	start = max(start, 1)
	end = min(end, len(items))
	if start > end {
		return []T{}, nil
	}
	return items[start-1 : end], nil
}
