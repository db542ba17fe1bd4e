/*
Package observability exposes run metrics for Prometheus and composes
domain.RunHooks so several observers can watch the same run.
*/
package observability
