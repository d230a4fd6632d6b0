// Package scan implements range-image to point-cloud conversion.
//
// A RangeScan is a spherical range image captured by one sensor for one
// frame. Conversion projects each valid pixel into Cartesian sensor-frame
// coordinates using the sensor's beam-inclination table, then applies the
// sensor's extrinsic transform to land in the shared vehicle frame.
//
// Two backends implement the same contract: a sequential converter and a
// data-parallel kernel. They produce identical point counts for the same
// input; point ordering is only defined for the sequential backend.
package scan
