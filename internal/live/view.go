package live

import (
	"slices"
	"strings"
	"time"

	"github.com/saeid-a/CalibrateBack/internal/models"
)

type Document interface {
	DocID() string
}

// View keeps the current result set of a subscription and re-sorts the
// whole list on every snapshot. Documents that compare equal are ordered
// by id, so the same set of documents always yields the same order.
type View[T Document] struct {
	docs    map[string]T
	compare func(a, b T) int
	keep    func(T) bool
}

func NewView[T Document](compare func(a, b T) int) *View[T] {
	return &View[T]{
		docs:    make(map[string]T),
		compare: compare,
	}
}

// Filter restricts the view to documents for which keep returns true.
// Modified documents that stop matching are dropped.
func (v *View[T]) Filter(keep func(T) bool) *View[T] {
	v.keep = keep
	return v
}

func (v *View[T]) Reset(docs []T) {
	v.docs = make(map[string]T, len(docs))
	for _, doc := range docs {
		if v.keep != nil && !v.keep(doc) {
			continue
		}
		v.docs[doc.DocID()] = doc
	}
}

// Apply folds one event into the view and reports whether it changed.
func (v *View[T]) Apply(event Event) bool {
	switch event.Op {
	case OpAdded, OpModified:
		doc, ok := event.Doc.(T)
		if !ok {
			return false
		}
		if v.keep != nil && !v.keep(doc) {
			if _, exists := v.docs[doc.DocID()]; !exists {
				return false
			}
			delete(v.docs, doc.DocID())
			return true
		}
		v.docs[doc.DocID()] = doc
		return true
	case OpRemoved:
		if _, ok := v.docs[event.DocID]; !ok {
			return false
		}
		delete(v.docs, event.DocID)
		return true
	default:
		return false
	}
}

func (v *View[T]) Len() int {
	return len(v.docs)
}

func (v *View[T]) Snapshot() []T {
	out := make([]T, 0, len(v.docs))
	for _, doc := range v.docs {
		out = append(out, doc)
	}
	slices.SortStableFunc(out, func(a, b T) int {
		if c := v.compare(a, b); c != 0 {
			return c
		}
		return strings.Compare(a.DocID(), b.DocID())
	})
	return out
}

// MessagesOldestFirst orders a transcript for display.
func MessagesOldestFirst(a, b models.Message) int {
	return compareTime(a.CreatedAt, b.CreatedAt)
}

// FoodLogsNewestFirst orders a client's log history for the coach view.
func FoodLogsNewestFirst(a, b models.FoodLog) int {
	return compareTime(b.CreatedAt, a.CreatedAt)
}

// FoodLogsByMeal orders a single day's log by meal, then entry time.
func FoodLogsByMeal(a, b models.FoodLog) int {
	ai, bi := models.MealIndex(a.Meal), models.MealIndex(b.Meal)
	if ai != bi {
		return ai - bi
	}
	return compareTime(a.CreatedAt, b.CreatedAt)
}

func compareTime(a, b time.Time) int {
	return a.Compare(b)
}
