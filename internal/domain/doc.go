// Package domain models the inputs and outputs of a flood inundation run.
//
// # Data Source
//
// Hydraulic results come from D-Flow FM map files: UGRID netCDF with a 1D
// channel network (nodes and branches) and a 2D floodplain mesh (faces).
// Each result variable is a time series per location, where a location is a
// 1D node or a 2D face identified by its index in the file.
//
// # Quantities
//
//	level  water level in metres above datum; depth is level minus terrain.
//	depth  simulated 2D water depth, used as is. Only the 2D mesh has it.
//
// Variable names differ between solver versions only in capitalisation:
//
//	1D level  mesh1d_s1 | Mesh1d_s1
//	2D level  mesh2d_s1 | Mesh2d_s1
//	2D depth  mesh2d_waterdepth | Mesh2d_waterdepth
//
// # Time Window
//
// Each location is reduced to its maximum over the samples inside an
// inclusive window. Open bounds are allowed. Bounds are parsed as
// "2006/01/02" (optionally with a time of day) or RFC 3339, always in UTC.
// A window that does not overlap the results at all is an error; a window
// that overlaps but contains no sample leaves the domain empty.
//
// # Missing Values
//
// Fill values and non-finite samples are skipped. A location with no finite
// sample has no maximum and burns NaN. A 2D face whose maximum depth is
// missing or not positive is treated as dry so its bed level never shows up
// as water.
//
// # Run Identity
//
// Run IDs are a SHA-256 prefix of the request (paths, quantity, domain,
// window and options). Identical requests share an ID, so sinks can upsert
// and replays are idempotent. See [RunRequest.ID].
package domain
