/*
Package imagecache gives the node agent a persistent, local answer to
"have I already pulled this image": a single bbolt bucket keyed by
image reference, storing digest, size, and pull count as JSON values —
the same bucket-per-entity pattern the rest of the pack's storage
layers use, scoped down to the one entity a node agent needs to track.

Cache hits and misses feed metrics.ImageCacheHitsTotal so operators can
see how much a node's warm cache is saving on repeated scheduling of
the same image.
*/
package imagecache
