// Package service contains the application-specific use cases. It sits
// between the API layer and the conversation engine: the orchestrator
// decides which conversation an interaction lands on and whether the work
// runs inline or through the task queue.
package service
