// Package compiler provides the C-minus lexer and the recursive-descent
// parser that drives the semantic tree builder, plus the Compile pipeline
// that ties them to the TM code generator.
//
// Pipeline: C-minus source → Lex → Parse (checked tree) → Generate → TM listing
package compiler
