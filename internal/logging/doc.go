// Package logging provides leveled logging over the standard library
// logger. The level is taken from the DEBUG and LOG_LEVEL environment
// variables at startup and can be changed at runtime with SetLevel.
package logging
