// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package extchat defines the capability surface that links CasualChat (a
// Mattermost deployment) with external chat networks.
//
// # Core Types
//
// [Adapter] is the set of operations the internal platform may invoke on an
// external network: authentication, contact sync and outbound messages.
// [Registry] maps a platform name such as [PlatformTelegram] to its adapter.
// [Stub] satisfies [Adapter] without doing anything and is used where no
// external network is configured.
//
// # Collaborators
//
// Adapters depend on the host only through [IdentityResolver],
// [PostCreator] and [StatusSink]. The casualchat package implements the
// first two over the Mattermost REST API; the linkstore package implements
// the last.
//
// # Sub-packages
//
//   - telegram implements [Adapter] over a TDLib JSON transport.
package extchat
