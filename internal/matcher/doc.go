// Package matcher recommends catalog patterns for a natural-language query.
//
// Two legs run concurrently. The semantic leg embeds the query and asks the
// vector index for similar patterns; the keyword leg scores every pattern in
// scope by weighted term hits (name over category over description and
// tags). Scores are fused as a weighted mean with a missing leg counting
// as zero:
//
//	final = (ws*semantic + wk*keyword) / (ws + wk)
//
// Results are ranked by final score and cached per request. A semantic
// failure, including a query vector from a different model than the index,
// yields keyword-only results that are not cached.
package matcher
