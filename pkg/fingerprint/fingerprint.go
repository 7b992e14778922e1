package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pedidoflow/guestkit/pkg/clientip"
)

// Sentinel values reported by clients whose devices could not produce a
// canvas or WebGL hash. They participate in the fingerprint like any other
// signal but lower the confidence score.
const (
	CanvasNotSupported = "canvas-not-supported"
	CanvasError        = "canvas-error"
	WebGLNotSupported  = "webgl-not-supported"
	WebGLError         = "webgl-error"
)

// Hash length bounds accepted by Validate. Our own hashes are 32 hex chars;
// the bounds leave room for clients hashing with other digest sizes.
const (
	MinHashLength = 16
	MaxHashLength = 64
)

// DeviceSignals carries the raw browser/device signals collected by the
// storefront client. Zero values mean the signal was unavailable.
type DeviceSignals struct {
	UserAgent           string  `json:"userAgent"`
	ScreenResolution    string  `json:"screenResolution"` // "WxH"
	TimeZone            string  `json:"timeZone"`
	Language            string  `json:"language"`
	ColorDepth          int     `json:"colorDepth"`
	PixelRatio          float64 `json:"pixelRatio"`
	HardwareConcurrency int     `json:"hardwareConcurrency"`
	DeviceMemory        float64 `json:"deviceMemory"`
	CanvasHash          string  `json:"canvasHash"`
	WebGLHash           string  `json:"webglHash"`
}

// Fingerprint is the derived device identity.
type Fingerprint struct {
	Hash       string        `json:"hash"`
	Device     DeviceSignals `json:"deviceInfo"`
	Confidence float64       `json:"confidence"`
}

// degradedConfidence is the floor applied when every signal is missing or a
// fallback sentinel.
const degradedConfidence = 0.3

var hexLikeRegex = regexp.MustCompile(`^[a-fA-F0-9]+$`)

// Generate derives a stable fingerprint from the collected signals. The same
// signals always produce the same hash. It never fails: missing or degraded
// signals lower the confidence instead, down to a floor of 0.3.
func Generate(signals DeviceSignals) Fingerprint {
	components := []string{
		signals.UserAgent,
		signals.ScreenResolution,
		signals.TimeZone,
		signals.Language,
		strconv.Itoa(signals.ColorDepth),
		strconv.FormatFloat(signals.PixelRatio, 'g', -1, 64),
		strconv.Itoa(signals.HardwareConcurrency),
		strconv.FormatFloat(signals.DeviceMemory, 'g', -1, 64),
		signals.CanvasHash,
		signals.WebGLHash,
	}

	sum := sha256.Sum256([]byte(strings.Join(components, "|")))

	return Fingerprint{
		Hash:       hex.EncodeToString(sum[:16]),
		Device:     signals,
		Confidence: confidence(signals),
	}
}

// confidence scores how trustworthy the signal set is. Each missing or
// fallback signal costs a share of the score.
func confidence(signals DeviceSignals) float64 {
	const signalCount = 10

	present := 0
	if signals.UserAgent != "" {
		present++
	}
	if signals.ScreenResolution != "" {
		present++
	}
	if signals.TimeZone != "" {
		present++
	}
	if signals.Language != "" {
		present++
	}
	if signals.ColorDepth > 0 {
		present++
	}
	if signals.PixelRatio > 0 {
		present++
	}
	if signals.HardwareConcurrency > 0 {
		present++
	}
	if signals.DeviceMemory > 0 {
		present++
	}
	if signals.CanvasHash != "" && !isFallback(signals.CanvasHash) {
		present++
	}
	if signals.WebGLHash != "" && !isFallback(signals.WebGLHash) {
		present++
	}

	score := float64(present) / signalCount
	if score < degradedConfidence {
		return degradedConfidence
	}
	return score
}

func isFallback(hash string) bool {
	switch hash {
	case CanvasNotSupported, CanvasError, WebGLNotSupported, WebGLError:
		return true
	}
	return false
}

// FromRequest derives signals from the HTTP request itself, for callers that
// have no client-collected signals (bots, first byte of traffic, curl).
// Combines User-Agent, Accept headers, client IP, and header order.
func FromRequest(r *http.Request) Fingerprint {
	components := []string{
		r.UserAgent(),
		r.Header.Get("Accept-Language"),
		r.Header.Get("Accept-Encoding"),
		r.Header.Get("Accept"),
		clientip.GetIP(r),
		headerOrder(r),
	}

	var filtered []string
	for _, comp := range components {
		if comp != "" {
			filtered = append(filtered, comp)
		}
	}

	sum := sha256.Sum256([]byte(strings.Join(filtered, "|")))

	return Fingerprint{
		Hash: hex.EncodeToString(sum[:16]),
		Device: DeviceSignals{
			UserAgent: r.UserAgent(),
			Language:  r.Header.Get("Accept-Language"),
		},
		// Request-derived fingerprints carry far fewer signals than
		// client-collected ones.
		Confidence: degradedConfidence,
	}
}

// headerOrder fingerprints the set of stable headers the client sent.
// Different browsers send different header sets, which distinguishes
// clients sharing a user agent string.
func headerOrder(r *http.Request) string {
	var names []string
	for name := range r.Header {
		switch strings.ToLower(name) {
		case "user-agent", "accept", "accept-language", "accept-encoding",
			"connection", "upgrade-insecure-requests", "sec-fetch-dest",
			"sec-fetch-mode", "sec-fetch-site", "cache-control":
			names = append(names, strings.ToLower(name))
		}
	}

	sort.Strings(names)
	return strings.Join(names, ",")
}

// Validate reports whether the value looks like one of our fingerprint
// hashes: non-empty hex within the accepted length bounds.
func Validate(hash string) bool {
	if len(hash) < MinHashLength || len(hash) > MaxHashLength {
		return false
	}
	return hexLikeRegex.MatchString(hash)
}
