// Package fingerprint maps a configured fingerprint profile to the TLS
// ClientHello shape used when opening the disguised transport.
//
// We use uTLS to parrot the ClientHello of a real-world client so that the
// outer handshake blends with ordinary browser traffic. The "randomized"
// profile picks one concrete shape per process and keeps reusing it, so
// that repeated handshakes from one run look self-consistent.
package fingerprint

import (
	"math/rand"
	"sync"

	tls "github.com/refraction-networking/utls"
)

// Profile identifies one of the supported ClientHello shapes.
type Profile int

const (
	// ProfileOkHTTP parrots an Android okhttp client. It is the default.
	ProfileOkHTTP = Profile(iota)

	// ProfileChrome parrots a recent Chrome.
	ProfileChrome

	// ProfileFirefox parrots a recent Firefox.
	ProfileFirefox

	// ProfileSafari parrots a recent Safari.
	ProfileSafari

	// ProfileEdge parrots a recent Edge.
	ProfileEdge

	// ProfileIOS parrots an iOS client.
	ProfileIOS

	// ProfileRandomized picks one of the concrete shapes at random on
	// first use and caches it process-wide until [ResetRandomized].
	ProfileRandomized
)

// ParseProfile maps a profile name to a [Profile]. Unknown or empty names
// fall back to [ProfileOkHTTP].
func ParseProfile(name string) Profile {
	switch name {
	case "chrome":
		return ProfileChrome
	case "firefox":
		return ProfileFirefox
	case "safari":
		return ProfileSafari
	case "edge":
		return ProfileEdge
	case "ios":
		return ProfileIOS
	case "randomized":
		return ProfileRandomized
	case "okhttp":
		return ProfileOkHTTP
	default:
		return ProfileOkHTTP
	}
}

// String implements fmt.Stringer.
func (p Profile) String() string {
	switch p {
	case ProfileChrome:
		return "chrome"
	case ProfileFirefox:
		return "firefox"
	case ProfileSafari:
		return "safari"
	case ProfileEdge:
		return "edge"
	case ProfileIOS:
		return "ios"
	case ProfileRandomized:
		return "randomized"
	default:
		return "okhttp"
	}
}

// concretePool is the pool the randomized profile draws from.
var concretePool = []tls.ClientHelloID{
	tls.HelloAndroid_11_OkHttp,
	tls.HelloChrome_Auto,
	tls.HelloFirefox_Auto,
	tls.HelloSafari_Auto,
	tls.HelloEdge_Auto,
	tls.HelloIOS_Auto,
}

// randomized caches the concrete shape chosen for [ProfileRandomized]. The
// cache is deliberately process-wide, not per pipe instance.
var (
	randomizedMu sync.Mutex
	randomizedID *tls.ClientHelloID
)

// ClientHelloID returns the uTLS ClientHelloID for the profile.
func (p Profile) ClientHelloID() tls.ClientHelloID {
	switch p {
	case ProfileChrome:
		return tls.HelloChrome_Auto
	case ProfileFirefox:
		return tls.HelloFirefox_Auto
	case ProfileSafari:
		return tls.HelloSafari_Auto
	case ProfileEdge:
		return tls.HelloEdge_Auto
	case ProfileIOS:
		return tls.HelloIOS_Auto
	case ProfileRandomized:
		return randomizedHelloID()
	default:
		return tls.HelloAndroid_11_OkHttp
	}
}

// randomizedHelloID returns the cached randomized shape, choosing one
// uniformly from the pool on first use.
func randomizedHelloID() tls.ClientHelloID {
	randomizedMu.Lock()
	defer randomizedMu.Unlock()
	if randomizedID == nil {
		id := concretePool[rand.Intn(len(concretePool))]
		randomizedID = &id
	}
	return *randomizedID
}

// ResetRandomized clears the cached randomized shape so that the next dial
// picks a fresh one. It affects all future sessions across all handles.
func ResetRandomized() {
	randomizedMu.Lock()
	defer randomizedMu.Unlock()
	randomizedID = nil
}
