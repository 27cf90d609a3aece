// Package vector holds the similarity metric and the binary embedding
// encoding shared by the chunk store implementations.
package vector
