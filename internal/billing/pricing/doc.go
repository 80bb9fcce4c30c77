// Package pricing resolves unit prices and computes line and document
// amounts in integer cents.
//
// Every percentage (line discounts and the deposit split) is rounded half-up
// to the nearest cent. Amounts are never negative, so half-up and
// half-away-from-zero coincide.
package pricing
