// Package export renders a client's food log as the plain-text and .doc
// downloads coaches use, and reads the text format back.
package export

import (
	"cmp"
	"slices"

	"github.com/saeid-a/CalibrateBack/internal/models"
)

// Entry is one exported food log line.
type Entry struct {
	Date     string `json:"date"`
	Meal     string `json:"meal"`
	Item     string `json:"item"`
	Quantity string `json:"quantity"`
}

type MealGroup struct {
	Meal    string
	Entries []Entry
}

type DayGroup struct {
	Date  string
	Meals []MealGroup
}

// FromLogs keeps the order of logs.
func FromLogs(logs []models.FoodLog) []Entry {
	entries := make([]Entry, 0, len(logs))
	for _, log := range logs {
		entries = append(entries, Entry{
			Date:     log.Date,
			Meal:     log.Meal,
			Item:     log.Item,
			Quantity: log.Quantity,
		})
	}
	return entries
}

// Group orders entries by date ascending, then by the fixed meal order.
// Entries of the same date and meal keep their input order. Meals outside
// the known list sort after it by name.
func Group(entries []Entry) []DayGroup {
	sorted := slices.Clone(entries)
	slices.SortStableFunc(sorted, func(a, b Entry) int {
		if c := cmp.Compare(a.Date, b.Date); c != 0 {
			return c
		}
		return compareMeals(a.Meal, b.Meal)
	})

	var days []DayGroup
	for _, entry := range sorted {
		if len(days) == 0 || days[len(days)-1].Date != entry.Date {
			days = append(days, DayGroup{Date: entry.Date})
		}
		day := &days[len(days)-1]
		if len(day.Meals) == 0 || day.Meals[len(day.Meals)-1].Meal != entry.Meal {
			day.Meals = append(day.Meals, MealGroup{Meal: entry.Meal})
		}
		meal := &day.Meals[len(day.Meals)-1]
		meal.Entries = append(meal.Entries, entry)
	}
	return days
}

// Flatten lists grouped entries in display order.
func Flatten(days []DayGroup) []Entry {
	var entries []Entry
	for _, day := range days {
		for _, meal := range day.Meals {
			entries = append(entries, meal.Entries...)
		}
	}
	return entries
}

func compareMeals(a, b string) int {
	ai, bi := models.MealIndex(a), models.MealIndex(b)
	switch {
	case ai >= 0 && bi >= 0:
		return cmp.Compare(ai, bi)
	case ai >= 0:
		return -1
	case bi >= 0:
		return 1
	default:
		return cmp.Compare(a, b)
	}
}
