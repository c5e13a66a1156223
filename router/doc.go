// Copyright (c) 2025 Markus Bergmann.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package router defines the HTTP route table using Go 1.22+ method
routing. Voter routes pass through the voting-window gate, admin routes
through the X-Admin-Key gate; everything is wrapped in request logging.
*/
package router
