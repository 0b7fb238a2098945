package intent

import "time"

// Rand is the subset of a random source deflection selection needs
type Rand interface {
	Intn(n int) int
}

// Deflections are the fixed replies to sensitive topics
var Deflections = []string{
	"What do you think?",
	"You should know the answer to that.",
	"Do you even have to ask?",
	"That's for you to figure out, fren.",
	"Use your brain, it's not just for decoration.",
	"I'm not here to spoonfeed you obvious answers.",
}

// Deflection picks one of the fixed deflections
func Deflection(rng Rand) string {
	return Deflections[rng.Intn(len(Deflections))]
}

// TimeLayout renders the current instant for time and date questions
const TimeLayout = "Monday, January 2, 2006 at 3:04 PM MST"

// RenderTime formats now in loc
func RenderTime(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return now.In(loc).Format(TimeLayout)
}
