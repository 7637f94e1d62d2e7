// Package briefing compiles Pip's daily summary of the top scheduled stories.
//
// A briefing is written once per day. The LLM narrates it when configured;
// any failure falls back to a fixed template so the pipeline never stalls on
// the summarizer. History helpers back the API's browse and navigation
// views.
package briefing
