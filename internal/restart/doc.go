// ABOUTME: Package restart describes how agents and the server come back up.
// ABOUTME: Components emit plans; a Supervisor decides between spawn and exec.
package restart
