// Package queue provides the bounded worker queue behind audit dispatch and
// code delivery.
package queue
