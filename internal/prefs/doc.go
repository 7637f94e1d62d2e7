// Package prefs holds the user's feed preferences and their merge rules.
//
// WeightMap is the structured form of interests and source weights; JSON is
// only produced at the storage edge via EncodeWeightMap and DecodeWeightMap.
// Apply implements conversational tuning semantics (per-key upsert, zero
// deletes) while Replace implements an explicit preferences edit.
package prefs
