// Package cache provides the query-result cache used by the console's read
// path. Keys are typed and every mutation declares exactly which query keys
// it invalidates; nothing is invalidated implicitly.
package cache

import "sync"

// Query names for cached reads.
const (
	QueryServiceDetail      = "serviceDetail"
	QueryServiceVariables   = "serviceVariables"
	QueryServiceVersions    = "serviceVersions"
	QueryServiceDeployments = "serviceDeployments"
	QueryWorkflowSteps      = "workflowSteps"
	QueryPublishDiff        = "validateNewServiceVersion"
)

// Mutation names, used to look up invalidation contracts.
const (
	MutationUpsertConfigEntry = "upsertServiceConfig"
	MutationWriteVariable     = "writeVariable"
	MutationPublishVersion    = "publishServiceVersion"
	MutationCreateDeployment  = "createDeployment"
	MutationDeploymentStatus  = "deploymentStatusChanged"
)

// invalidations maps each mutation to the query keys it must drop. The
// parameter for every listed query is the service ID the mutation touched.
var invalidations = map[string][]string{
	MutationUpsertConfigEntry: {QueryServiceDetail, QueryPublishDiff},
	MutationWriteVariable:     {QueryServiceDetail, QueryServiceVariables, QueryPublishDiff},
	MutationPublishVersion:    {QueryServiceDetail, QueryServiceVersions, QueryPublishDiff},
	MutationCreateDeployment:  {QueryServiceDeployments},
	MutationDeploymentStatus:  {QueryServiceDeployments, QueryServiceDetail},
}

// Key identifies one cached query result.
type Key struct {
	Query string
	Param string
}

// Service is an in-memory query cache safe for concurrent use.
type Service struct {
	mu      sync.RWMutex
	entries map[Key]any
}

// New returns an empty cache.
func New() *Service {
	return &Service{entries: make(map[Key]any)}
}

// Get returns a cached value if present.
func (c *Service) Get(key Key) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	value, ok := c.entries[key]
	return value, ok
}

// Set stores a query result.
func (c *Service) Set(key Key, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
}

// Drop removes specific keys.
func (c *Service) Drop(keys ...Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.entries, key)
	}
}

// OnMutation drops every query key the named mutation's contract lists,
// parameterized by the service the mutation touched.
func (c *Service) OnMutation(mutation, serviceID string) {
	queries, ok := invalidations[mutation]
	if !ok {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, query := range queries {
		delete(c.entries, Key{Query: query, Param: serviceID})
	}
}

// Len reports the number of cached entries.
func (c *Service) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
