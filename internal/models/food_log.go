package models

import "time"

const (
	MealBreakfast    = "Breakfast"
	MealMorningSnack = "Morning Snack"
	MealLunch        = "Lunch"
	MealEveningSnack = "Evening Snack"
	MealDinner       = "Dinner"
)

// Meals lists meal names in the order they are shown and exported.
var Meals = []string{MealBreakfast, MealMorningSnack, MealLunch, MealEveningSnack, MealDinner}

// DateLayout is the layout of FoodLog.Date.
const DateLayout = "2006-01-02"

type FoodLog struct {
	ID          string    `json:"id" bson:"_id"`
	ClientEmail string    `json:"client_email" bson:"client_email"`
	Meal        string    `json:"meal" bson:"meal"`
	Item        string    `json:"item" bson:"item"`
	Quantity    string    `json:"quantity" bson:"quantity"`
	Date        string    `json:"date" bson:"date"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" bson:"updated_at"`
}

func (l FoodLog) DocID() string {
	return l.ID
}

// MealIndex returns the position of meal in Meals, or -1.
func MealIndex(meal string) int {
	for i, m := range Meals {
		if m == meal {
			return i
		}
	}
	return -1
}
