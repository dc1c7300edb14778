// Package httputil holds the JSON response helpers shared by the ops API
// handlers.
package httputil
