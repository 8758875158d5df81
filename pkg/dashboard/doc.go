// Package dashboard is the session shell over capability modules.
//
// Initialize checks that the user exists, is active and belongs to the
// requested department before asking the modules.Factory for a module.
// LoadSectionData serves one of the sections named in modules.Sections;
// the dashboard section runs every loader the module holds concurrently
// and returns row counts. ExecuteAction invokes a module operation inside
// an "ExecuteAction" trace span.
//
// Handlers expose the shell under /session for the actor found in the
// request context.
package dashboard
