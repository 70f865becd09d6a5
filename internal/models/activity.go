package models

// ActivitySummary is the payload of the activity-today endpoint: the user's
// health activity aggregated for the current day.
type ActivitySummary struct {
	Date          string  `json:"date"`
	Steps         int     `json:"steps"`
	ActiveMinutes int     `json:"activeMinutes"`
	Calories      float64 `json:"calories"`
	SleepHours    float64 `json:"sleepHours,omitempty"`
}
