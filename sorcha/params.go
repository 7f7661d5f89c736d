// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package sorcha

// Protocol level constants.
const (
	// MaxRegisterNameLen limits register display names.
	MaxRegisterNameLen = 38

	// MaxAddressLen limits wallet address presentation length.
	MaxAddressLen = 256

	// MaxAttestationsPerRegister is the hard cap on control record rosters.
	MaxAttestationsPerRegister = 25

	// GenesisBlueprintID is the sentinel blueprint id carried by control
	// transactions. It skips blueprint-bound validation stages.
	GenesisBlueprintID = "genesis"

	// GenesisDocketVersion is the version of the empty docket every register
	// starts with.
	GenesisDocketVersion = 0
)
