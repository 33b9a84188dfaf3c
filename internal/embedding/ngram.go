package embedding

import "hash/fnv"

const (
	bow = "<"
	eow = ">"
)

// ngrams returns the character n-grams of "<word>" with rune length in [minN, maxN].
// Single boundary markers are never emitted.
func ngrams(word string, minN, maxN int) []string {
	runes := []rune(bow + word + eow)
	var out []string
	for i := range runes {
		for n := minN; n <= maxN && i+n <= len(runes); n++ {
			if n == 1 && (i == 0 || i+n == len(runes)) {
				continue
			}
			out = append(out, string(runes[i:i+n]))
		}
	}
	return out
}

// bucket hashes an n-gram into [0, buckets).
func bucket(gram string, buckets int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(gram))
	return int(h.Sum32() % uint32(buckets))
}
