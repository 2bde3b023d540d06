package mscfb

import "golang.org/x/text/encoding/charmap"

// DateMode selects how VT_DATE property values are converted. See
// DESIGN.md for the history of this knob: the simplest transcription of
// the reference decoder's VT_DATE arithmetic collapses to the moment the
// value is parsed rather than the date actually stored, which is almost
// certainly not what any caller wants.
type DateMode int

const (
	// DateModeCorrected converts VT_DATE as (val-25569)*86400 seconds
	// since the Unix epoch, i.e. the value the field is documented to
	// hold. This is the default.
	DateModeCorrected DateMode = iota
	// DateModeBugCompatible reproduces the time-of-parse collapse for
	// callers that need byte-for-byte parity with that behavior.
	DateModeBugCompatible
)

// Option configures a Reader at construction time.
type Option func(*Reader)

// WithDateMode selects VT_DATE conversion behavior. Default:
// DateModeCorrected.
func WithDateMode(m DateMode) Option {
	return func(r *Reader) { r.dateMode = m }
}

// WithCodepage sets the charmap used to decode VT_LPSTR values when the
// property set's CodePage item (PID 1) is absent or not recognized.
// Default: charmap.Windows1252.
func WithCodepage(cm *charmap.Charmap) Option {
	return func(r *Reader) {
		if cm != nil {
			r.codepage = cm
		}
	}
}

// WithMaxTraverseDepth caps the number of entries the depth-first walk
// may visit while lifting one storage's left/right/child sibling tree into
// a children slice; a walk that runs past the cap fails with
// KindTruncated. A cyclic tree is stopped separately, by skipping entries
// already visited. Default: 1<<20.
func WithMaxTraverseDepth(n int) Option {
	return func(r *Reader) {
		if n > 0 {
			r.maxDepth = n
		}
	}
}

// WithAllSections makes the property-set decoder walk a second section
// when a stream's PROPERTYSETHEADER declares one, instead of the default
// first-section-only behavior.
func WithAllSections() Option {
	return func(r *Reader) { r.allSections = true }
}
