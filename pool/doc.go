// Package pool
// Author: momentics <momentics@gmail.com>
//
// Buffer layer for loofah.
// ByteRing is the elastic ring behind raw stream channels; Package is the
// reference-counted, prependable buffer holding one framed message.
// Packages are recycled through power-of-two size classes.
package pool
