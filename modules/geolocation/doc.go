// Package geolocation implements the position capability module.
//
// One-shot reads go through getCurrentPosition; continuous fixes go through
// watchPosition, which starts a feed from the bound Source and emits one
// positionDidChange event per accepted fix, tagged with the watch id.
// clearWatch tears a feed down with the same guarantee the bridge gives
// subscription cancellation: once clearWatch returns, no fix for that id is
// delivered afterward. Position fixes travel as {lat, lon, accuracy,
// timestamp} maps with millisecond epoch timestamps.
//
// The Source interface is the hardware boundary; hosts bind platform
// location services, tests and headless hosts use the simulated source.
package geolocation
