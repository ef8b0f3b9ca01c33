// Package file provides a route source backed by a YAML file.
//
// Example routes file:
//
//	routes:
//	  - id: api
//	    name: Public API
//	    url: https://${API_HOST:-api.example.com}/health
//	    method: GET
//	    requestHeaders:
//	      Authorization: Bearer ${API_TOKEN}
//	    expectedStatusCode: 200
//	    responseTimeThreshold: 800
//	    monitoringInterval: 30
//	    retries: 2
//
// The file is read again on every fetch, so edits are picked up by the next
// watcher cycle.
package file

import (
	"context"
	"fmt"
	"os"
	"regexp"

	"github.com/guregu/null/v5"
	"gopkg.in/yaml.v3"

	"github.com/jpalmerr/routepulse/internal/route"
)

// Source reads the active routes from a YAML file.
type Source struct {
	path string
}

// New returns a Source for the file at path. The file is not read until the
// first fetch.
func New(path string) *Source {
	return &Source{path: path}
}

// document is the top level of a routes file.
type document struct {
	Routes []routeConfig `yaml:"routes"`
}

// routeConfig mirrors route.Route with pointer fields for optional values.
type routeConfig struct {
	ID                    string         `yaml:"id"`
	Name                  string         `yaml:"name"`
	URL                   string         `yaml:"url"`
	Method                string         `yaml:"method"`
	RequestHeaders        map[string]any `yaml:"requestHeaders"`
	RequestBody           *string        `yaml:"requestBody"`
	ExpectedStatusCode    *int64         `yaml:"expectedStatusCode"`
	ResponseTimeThreshold *int64         `yaml:"responseTimeThreshold"`
	MonitoringInterval    int            `yaml:"monitoringInterval"`
	Retries               *int64         `yaml:"retries"`
	AlertEmail            *string        `yaml:"alertEmail"`
	IsActive              *bool          `yaml:"isActive"`
}

// ActiveRoutes reads the file and returns the routes whose isActive is true
// or unset.
func (s *Source) ActiveRoutes(_ context.Context) ([]route.Route, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read routes file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a routes document and returns its active routes.
//
// Environment variables are expanded in url, requestBody and string header
// values.
func Parse(data []byte) ([]route.Route, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	routes := make([]route.Route, 0, len(doc.Routes))
	for i, rc := range doc.Routes {
		if rc.IsActive != nil && !*rc.IsActive {
			continue
		}
		r, err := rc.toRoute()
		if err != nil {
			return nil, fmt.Errorf("routes[%d] (%s): %w", i, rc.ID, err)
		}
		routes = append(routes, r)
	}
	return routes, nil
}

func (rc routeConfig) toRoute() (route.Route, error) {
	url, err := expandEnvVars(rc.URL)
	if err != nil {
		return route.Route{}, fmt.Errorf("url: %w", err)
	}

	var headers map[string]any
	if len(rc.RequestHeaders) > 0 {
		headers = make(map[string]any, len(rc.RequestHeaders))
		for k, v := range rc.RequestHeaders {
			if str, ok := v.(string); ok {
				expanded, err := expandEnvVars(str)
				if err != nil {
					return route.Route{}, fmt.Errorf("requestHeaders[%s]: %w", k, err)
				}
				v = expanded
			}
			headers[k] = v
		}
	}

	body := null.StringFromPtr(rc.RequestBody)
	if body.Valid {
		expanded, err := expandEnvVars(body.String)
		if err != nil {
			return route.Route{}, fmt.Errorf("requestBody: %w", err)
		}
		body.String = expanded
	}

	return route.Route{
		ID:                    rc.ID,
		Name:                  rc.Name,
		URL:                   url,
		Method:                rc.Method,
		RequestHeaders:        headers,
		RequestBody:           body,
		ExpectedStatusCode:    null.IntFromPtr(rc.ExpectedStatusCode),
		ResponseTimeThreshold: null.IntFromPtr(rc.ResponseTimeThreshold),
		MonitoringInterval:    rc.MonitoringInterval,
		Retries:               null.IntFromPtr(rc.Retries),
		AlertEmail:            null.StringFromPtr(rc.AlertEmail),
		IsActive:              true,
	}, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		varName := submatches[1]
		hasDefault := submatches[2] != ""

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return submatches[3]
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}
