// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package retry retries gateway calls through "no available tokens" spells.
//
// The gateway pools upstream accounts and answers with a rate-limit error
// when every account is momentarily exhausted. That condition clears within
// seconds, so Do retries it on a fixed interval instead of backing off.
// Every other error is returned at once.
//
// # Usage
//
//	answer, err := retry.Do(ctx, func(ctx context.Context) (string, error) {
//	    return client.Chat(ctx, payload)
//	}, retry.WithNotifier(toaster))
package retry
