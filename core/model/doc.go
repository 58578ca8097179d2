// Package model holds the immutable entities of a fleet simulation:
// vehicles, requests, stations and bases, plus the small value types they
// share. Every "With"/"Set" method returns a modified copy.
package model
