// Package puzzle defines puzzle definitions and board states.
//
// A Definition is the immutable description of a puzzle (tiles, solution,
// display options). A State is the arrangement of pieces on one board. The
// package normalizes authored definitions, validates states received from
// the network against a definition, and implements the board moves a local
// player can make.
package puzzle
