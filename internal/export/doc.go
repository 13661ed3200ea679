// Package export writes tabular views and snapshots to files.
//
// Target names follow a fixed delimiter/suffix mapping: comma gives .csv,
// tab or no delimiter gives .tsv, anything else gives .txt. A path that
// already ends in .csv, .tsv or .txt is used as is, and when no delimiter
// was requested its suffix picks one. Existing targets are renamed around
// (name_1.ext, name_2.ext, ...), overwritten, or reported as fs.ErrExist,
// per CollisionPolicy.
package export
