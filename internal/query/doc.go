// Package query adapts the antchfx XPath engine to the needs of Schematron
// evaluation. The underlying engine has no registration API for variables,
// functions or key indexes, so those are bound at compile time: variable
// references expand to their defining expressions, declared functions expand
// as macros, and key() calls either compile to an indexed lookup or rewrite
// to an equivalent predicate. Evaluation returns the XPath value types
// (boolean, number, string, node-set) with standard coercions.
package query
