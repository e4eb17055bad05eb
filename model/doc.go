// Package model abstracts the generative backend that plays the scene
// partner. The Model interface normalizes provider SDKs into a single
// channel-based Generate call; concrete adapters live in the anthropic and
// openai subpackages, and MockModel serves tests with canned generations.
package model
