package domain

import "strings"

// Pipeline subjects. Every publish/subscribe call in the codebase
// names one of these instead of a literal string.
const (
	SubjectJobJDSubmitted          = "job.jd.submitted"
	SubjectJobResumeSubmitted      = "job.resume.submitted"
	SubjectAnalysisJDExtracted     = "analysis.jd.extracted"
	SubjectAnalysisResumeParsed    = "analysis.resume.parsed"
	SubjectAnalysisMatchScored     = "analysis.match.scored"
	SubjectAnalysisReportGenerated = "analysis.report.generated"
)

// Consumer group names, one per worker pool.
const (
	GroupJDExtractors       = "jd-extractors"
	GroupResumeParsers      = "resume-parsers"
	GroupScoringEngines     = "scoring-engines"
	GroupReportGenerators   = "report-generators"
	GroupSessionCoordinator = "session-coordinator"
)

// SchemaVersion (semver) is stamped on every envelope this codebase
// produces.
const SchemaVersion = "1.0.0"

// SchemaCompatible reports whether an envelope's schema version can be
// consumed by this codebase: minor and patch increments are accepted, a
// different major version is not. An empty version is tolerated for
// envelopes produced before versioning.
func SchemaCompatible(v string) bool {
	if v == "" {
		return true
	}
	return major(v) == major(SchemaVersion)
}

func major(v string) string {
	if i := strings.IndexByte(v, '.'); i >= 0 {
		return v[:i]
	}
	return v
}
