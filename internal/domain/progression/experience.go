package progression

// ExpPerMinute is the conversion ratio of studied minutes to experience.
const ExpPerMinute Exp = 1

// ExperienceFor converts a validated duration into an experience award:
// one point per whole minute studied. Partial minutes are dropped.
func ExperienceFor(durationSeconds int64) Exp {
	if durationSeconds <= 0 {
		return 0
	}
	return Exp(durationSeconds/60) * ExpPerMinute
}
