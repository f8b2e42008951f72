// Package pipeline runs an ordered middleware chain over one inbound input.
//
// Each call to Engine.Process builds a Request/Response pair and executes the
// registered middleware strictly in order. A stage continues the chain by
// calling next; returning without calling next ends the run silently.
// Errors and panics from a stage stop the chain and are funnelled into
// Response.Error, which notifies the channel responder and then every
// registered error handler in registration order.
package pipeline
