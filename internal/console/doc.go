// ABOUTME: Package console handles the operator's terminal.
// ABOUTME: A context-aware line reader and a writer for coloured "< ... >" notices.
package console
