// Package seqdetect implements the sequence detector (spec.md C3): it
// splits a directory's file listing into singleton assets and frame
// sequences, then summarizes each sequence's frame range, padding, and
// holes. Grounded on the teacher's internal/disc/fingerprint package (its
// sorted, manifest-style directory reduction) and generalized to the
// separator/padding-aware grouping key spec.md §4.3 mandates, which is a
// deliberate departure from the simpler regex in original_source's
// sequences.py (no separator capture, no padding-in-key).
package seqdetect

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"qc-crawl/internal/qchash"
)

// DefaultExtensions is the built-in accepted frame-extension set (spec.md
// §4.3), lowercased and dot-stripped.
var DefaultExtensions = map[string]struct{}{
	"exr":  {},
	"dpx":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"tif":  {},
	"tiff": {},
}

var lowerCaser = cases.Lower(language.Und)

// File is one directory entry's identity, as gathered by the crawl engine
// from a single os.ReadDir + os.Lstat pass.
type File struct {
	Name  string
	Size  int64
	Mtime int64 // unix seconds
}

// Frame is one sequence member, in frame order.
type Frame struct {
	Name   string
	Number int64
	Size   int64
	Mtime  int64
}

// Sequence is the grouped, summarized entity from spec.md §3.
type Sequence struct {
	Directory  string
	Base       string
	Separator  byte
	Ext        string
	Pad        int
	First      string
	Last       string
	FrameMin   int64
	FrameMax   int64
	FrameCount int
	RangeCount int
	Holes      int
	CheapFP    qchash.Fingerprint
	Frames     []Frame // ascending frame order; ties broken by filename
}

// Result is the outcome of grouping one directory's listing.
type Result struct {
	Sequences []Sequence
	Singles   []File
	// Invalid holds filenames that looked like sequence candidates but whose
	// numeric component failed to parse (spec.md §4.3 "invalid frames").
	Invalid []string
}

var trailingDigits = regexp.MustCompile(`\d+$`)

type candidateKey struct {
	base string
	sep  byte
	ext  string
	pad  int
}

// Group splits dir's listing into sequences and singletons. minSeq is the
// minimum frame count for a candidate group to become a Sequence (spec.md
// default 2); extensions is the accepted, lowercased, dot-stripped set (nil
// selects DefaultExtensions).
func Group(dir string, files []File, minSeq int, extensions map[string]struct{}) Result {
	if extensions == nil {
		extensions = DefaultExtensions
	}
	if minSeq < 1 {
		minSeq = 2
	}

	groups := make(map[candidateKey][]File)
	var singles []File
	var invalid []string

	for _, f := range files {
		base, sep, ext, frame, pad, ok := parseCandidate(f.Name, extensions)
		if !ok {
			singles = append(singles, f)
			continue
		}
		if frame < 0 {
			invalid = append(invalid, f.Name)
			continue
		}
		key := candidateKey{base: base, sep: sep, ext: ext, pad: pad}
		groups[key] = append(groups[key], f)
	}

	var sequences []Sequence
	for key, members := range groups {
		if len(members) < minSeq {
			singles = append(singles, members...)
			continue
		}
		seq := summarize(dir, key, members)
		sequences = append(sequences, seq)
	}

	sort.Slice(sequences, func(i, j int) bool {
		if sequences[i].Base != sequences[j].Base {
			return sequences[i].Base < sequences[j].Base
		}
		return sequences[i].Ext < sequences[j].Ext
	})
	sort.Slice(singles, func(i, j int) bool { return singles[i].Name < singles[j].Name })
	sort.Strings(invalid)

	return Result{Sequences: sequences, Singles: singles, Invalid: invalid}
}

// parseCandidate matches "<base><sep><digits><ext_dot>" per spec.md §4.3:
// sep is the separator immediately preceding the trailing digit run, one of
// '.', '_', '-'; ext must be in the accepted set.
func parseCandidate(name string, extensions map[string]struct{}) (base string, sep byte, ext string, frame int64, pad int, ok bool) {
	dot := strings.LastIndexByte(name, '.')
	if dot < 0 || dot == len(name)-1 {
		return "", 0, "", 0, 0, false
	}
	rawExt := lowerCaser.String(name[dot+1:])
	if _, accepted := extensions[rawExt]; !accepted {
		return "", 0, "", 0, 0, false
	}

	stem := name[:dot]
	loc := trailingDigits.FindStringIndex(stem)
	if loc == nil || loc[1] != len(stem) {
		return "", 0, "", 0, 0, false
	}
	digits := stem[loc[0]:loc[1]]
	if loc[0] == 0 {
		return "", 0, "", 0, 0, false // no separator before the digit run
	}
	sepChar := stem[loc[0]-1]
	switch sepChar {
	case '.', '_', '-':
	default:
		return "", 0, "", 0, 0, false
	}

	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || n < 0 {
		return stem[:loc[0]-1], sepChar, rawExt, -1, len(digits), true
	}

	return stem[:loc[0]-1], sepChar, rawExt, n, len(digits), true
}

func summarize(dir string, key candidateKey, members []File) Sequence {
	frames := make([]Frame, 0, len(members))
	stats := make([]qchash.FileStat, 0, len(members))
	for _, m := range members {
		// Re-derive the frame number; parseCandidate already validated it.
		_, _, _, n, _, _ := parseCandidate(m.Name, map[string]struct{}{key.ext: {}})
		frames = append(frames, Frame{Name: m.Name, Number: n, Size: m.Size, Mtime: m.Mtime})
		stats = append(stats, qchash.FileStat{Size: m.Size, Mtime: m.Mtime})
	}

	sort.Slice(frames, func(i, j int) bool {
		if frames[i].Number != frames[j].Number {
			return frames[i].Number < frames[j].Number
		}
		return frames[i].Name < frames[j].Name
	})

	rangeCount := 1
	for i := 1; i < len(frames); i++ {
		if frames[i].Number != frames[i-1].Number+1 {
			rangeCount++
		}
	}

	frameMin := frames[0].Number
	frameMax := frames[len(frames)-1].Number
	holes := int(frameMax-frameMin+1) - len(frames)
	if holes < 0 {
		holes = 0
	}

	return Sequence{
		Directory:  dir,
		Base:       key.base,
		Separator:  key.sep,
		Ext:        key.ext,
		Pad:        key.pad,
		First:      frames[0].Name,
		Last:       frames[len(frames)-1].Name,
		FrameMin:   frameMin,
		FrameMax:   frameMax,
		FrameCount: len(frames),
		RangeCount: rangeCount,
		Holes:      holes,
		CheapFP:    qchash.CheapFingerprint(stats),
		Frames:     frames,
	}
}
