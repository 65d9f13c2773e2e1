// Package testutil contains helper builders and utilities used across tests
// to reduce boilerplate when constructing transcripts, run events and
// scripted routing responses. They are not intended for production usage.
package testutil
