package controller

// Prompt is a canned message a front-end can offer with one action.
type Prompt struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

// Starters are offered on an empty transcript.
var Starters = []Prompt{
	{Label: "Science", Text: "Explain Quantum Mechanics simply"},
	{Label: "Tech news", Text: "What's the latest news in Tech?"},
	{Label: "Writing", Text: "Tips for writing a thesis statement"},
	{Label: "World events", Text: "Summarize this week's major global events"},
}

// Features are always available.
var Features = []Prompt{
	{Label: "Study Helper", Text: "I need help organizing a study plan. Can you ask me about my subjects and exams?"},
	{Label: "News & Updates", Text: "What are the most important news headlines right now globally? Please summarize them with sources."},
}
