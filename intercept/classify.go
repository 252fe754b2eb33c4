// Package intercept classifies in-flight network traffic, decodes response
// bodies into JSON trees and accumulates them for one URL's lifetime.
package intercept

import "strings"

// Class is the payload classification tag.
type Class int

const (
	ClassNone Class = iota
	ClassAPI
	ClassGraphQL
	ClassOther
)

func (c Class) String() string {
	switch c {
	case ClassAPI:
		return "api"
	case ClassGraphQL:
		return "graphql"
	case ClassOther:
		return "other"
	default:
		return "none"
	}
}

// Markers are URL substrings identifying each payload class.
type Markers struct {
	GraphQL []string `yaml:"graphql"`
	API     []string `yaml:"api"`
	Other   []string `yaml:"other"`
}

// DefaultMarkers returns the built-in endpoint markers.
func DefaultMarkers() Markers {
	return Markers{
		GraphQL: []string{"/graphql/query", "/api/graphql"},
		API:     []string{"/api/v1/"},
		Other:   []string{"/ajax/bz", "/web/search/", "/qp/batch_fetch_web"},
	}
}

// Classifier tags URLs by marker. GraphQL markers are checked first because
// GraphQL endpoints commonly live below an API prefix.
type Classifier struct {
	order []classMarkers
}

type classMarkers struct {
	class   Class
	markers []string
}

// NewClassifier lowercases and orders the markers.
func NewClassifier(m Markers) *Classifier {
	lower := func(in []string) []string {
		out := make([]string, 0, len(in))
		for _, s := range in {
			if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return &Classifier{order: []classMarkers{
		{ClassGraphQL, lower(m.GraphQL)},
		{ClassAPI, lower(m.API)},
		{ClassOther, lower(m.Other)},
	}}
}

// Classify returns the first matching class, or ClassNone.
func (c *Classifier) Classify(rawURL string) Class {
	u := strings.ToLower(rawURL)
	for _, cm := range c.order {
		for _, m := range cm.markers {
			if strings.Contains(u, m) {
				return cm.class
			}
		}
	}
	return ClassNone
}
