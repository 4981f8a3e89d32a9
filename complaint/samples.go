package complaint

// Samples are the complaints processed by the batch command when no input
// file is given.
var Samples = []string{
	"The Downside Up portal opens at different times each day. How do I predict when?",
	"Demogorgons sometimes work together and sometimes fight. What's their deal?",
	"El can move things with her mind but can't lift heavy rocks. Why?",
	"Why do creatures and power lines react so strangely together?",
	"This is not a valid complaint about something random",
}
