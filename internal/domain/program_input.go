package domain

// ProgramInput is the client-supplied request a generation job is built
// from. It is persisted verbatim on the job record at creation time.
type ProgramInput struct {
	Goal        string   `json:"goal"`
	Weeks       int      `json:"weeks"`
	DaysPerWeek int      `json:"days_per_week"`
	Experience  string   `json:"experience"`
	Equipment   []string `json:"equipment,omitempty"`
	Notes       string   `json:"notes,omitempty"`
}

const (
	ExperienceBeginner     = "beginner"
	ExperienceIntermediate = "intermediate"
	ExperienceAdvanced     = "advanced"
)

func IsValidExperience(level string) bool {
	switch level {
	case ExperienceBeginner, ExperienceIntermediate, ExperienceAdvanced:
		return true
	}
	return false
}
