// Package drm holds the DRM readiness state machine shared by every audiobook variant.
//
// A Cell starts Pending (or Succeeded for open-access content). Each verification attempt is
// opened with Begin and closed exactly once with Complete; completions from an older attempt,
// or a second completion of the same attempt, are ignored. Readers never observe a partial
// transition because the status and the attempt counter live in one atomic word.
//
// Decryption backends are external; this package only names the narrow interfaces they satisfy.
package drm
