// Package model defines stable boundary types for API layers.
//
// Identifiers and payload bytes are unaffected by any projection. These
// structs are the only types intended for direct JSON/YAML serialization by
// consumers such as the xdao-ufs CLI.
package model
