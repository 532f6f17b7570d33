// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the grokchat command line.
//
// Commands:
//
//	grokchat                       Start the interactive chat (same as chat)
//	grokchat chat                  Start the interactive chat
//	grokchat ask <prompt>          Send one prompt into the active thread
//	grokchat threads [--pick]      List threads, or pick the active one
//	grokchat models                List the gateway's models
//	grokchat reset                 Clear all local threads
//	grokchat export <ref>          Export a thread as Markdown or JSON
//	grokchat config show|path|init|get|set
//
// The REPL understands slash commands; type /help inside it for the list.
package cli
