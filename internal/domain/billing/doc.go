// Package billing holds the pure parts of recurring billing: period arithmetic,
// charge assembly and the record of each billing pass.
package billing
