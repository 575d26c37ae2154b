package pipeline

import "github.com/mattjoyce/jarscout/internal/archive"

// Route says where a discovered file goes.
type Route int

const (
	// RouteDrop files match neither predicate and are ignored.
	RouteDrop Route = iota
	// RouteArchive files are submitted to the dispatcher for listing.
	RouteArchive
	// RouteStandalone files are reported through OnStandalone.
	RouteStandalone
)

func (r Route) String() string {
	switch r {
	case RouteArchive:
		return "archive"
	case RouteStandalone:
		return "standalone"
	default:
		return "drop"
	}
}

// Classifier routes files by case-insensitive suffix. Archive suffixes are
// checked first. An empty suffix list matches nothing.
type Classifier struct {
	ArchiveSuffixes    []string
	StandaloneSuffixes []string
}

// DefaultClassifier lists .jar files and reports loose .class files.
func DefaultClassifier() Classifier {
	return Classifier{
		ArchiveSuffixes:    []string{".jar"},
		StandaloneSuffixes: []string{".class"},
	}
}

func (c Classifier) Route(path string) Route {
	switch {
	case len(c.ArchiveSuffixes) > 0 && archive.MatchesSuffix(path, c.ArchiveSuffixes):
		return RouteArchive
	case len(c.StandaloneSuffixes) > 0 && archive.MatchesSuffix(path, c.StandaloneSuffixes):
		return RouteStandalone
	default:
		return RouteDrop
	}
}
