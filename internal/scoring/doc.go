// Package scoring computes the 0..1 relevance score that orders drip
// candidates. Score is a pure function of the article, its source category,
// the preferences, and the current time; Scorer applies it to the lookback
// window and persists the results.
package scoring
