// Package notify delivers alerts to people. A Notifier reports Delivered or
// Failed for one alert and never retries; the Dispatcher fans a batch out
// concurrently and waits for every result.
package notify
