// Package missionmap tracks which cells of a 2D occupancy grid a moving
// agent has visited.
//
// Responsibilities: converting world-frame poses into grid cells (Mapper),
// accumulating a bounded coverage mask and an ordered path (Accumulator),
// and driving the recording lifecycle and coverage statistics (Session).
// Key types: MapMetadata, BaseMap, Cell, Stats, Snapshot.
//
// Raster decoding and export live in the mapio and export packages; this
// package performs no I/O.
package missionmap
