// Package embedding trains subword-aware word embeddings with skip-gram and
// negative sampling.
//
// Every vocabulary word owns an input row; in addition every character
// n-gram of "<word>" with length in [MinN, MaxN] is hashed into one of
// Buckets shared rows. A token's vector is the mean of its rows, so tokens
// never seen during training still resolve through their n-grams.
package embedding
