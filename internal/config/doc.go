// Package config defines runtime settings for the timer server and provides
// helpers to load, validate and save them in YAML format.
//
// The Config type holds the listen address, the state file path and the
// action dispatch endpoint. Environment variables prefixed with TIMERS_
// override values from the file.
package config
