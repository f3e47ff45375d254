// Package model defines the shared data types of the melodex similarity
// engine: embeddings, song and segment records, and the result types
// produced by queries.
//
// The types here are deliberately free of behavior beyond validation and
// cloning so that every other package (feature extraction, indexing,
// segment aggregation, chain search) can depend on them without cycles.
package model
