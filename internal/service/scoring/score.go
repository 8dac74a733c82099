// Package scoring implements the Scoring Engine (C5): the pairing cache
// that joins a JdDto with its resumes by jobId, and the pure scoring
// algorithm that turns a (JdDto, ResumeDto) pair into a ScoreDto.
package scoring

import (
	"math"
	"sort"
	"strings"

	"github.com/fairyhunter13/recruiter-pipeline/internal/domain"
)

// Weights are the fixed sub-score weights applied to every match.
var Weights = domain.ScoreWeights{Skills: 0.5, Experience: 0.25, Education: 0.15, SoftSkills: 0.10}

// Score is a pure function: equal (Jd, Resume) inputs always produce an
// equal ScoreDto.
func Score(jd domain.JdDto, resume domain.ResumeDto) domain.ScoreDto {
	skillsScore, matched, missingMandatory := skillsSubScore(jd, resume)
	experienceScore := experienceSubScore(jd.ExperienceYears, resume.TotalYearsExperience)
	educationScore := educationSubScore(jd.EducationLevel, resume.Education)
	softSkillsScore := softSkillsSubScore(jd.SoftSkills, resume.SoftSkills)

	overall := Weights.Skills*skillsScore + Weights.Experience*experienceScore +
		Weights.Education*educationScore + Weights.SoftSkills*softSkillsScore
	overall = clamp(roundHalfUp2(overall), 0, 100)

	rec := recommendationFor(overall)
	if len(missingMandatory) > 0 {
		rec = domain.RecommendationNoMatch
	}

	return domain.ScoreDto{
		JobID:    jd.JobID,
		ResumeID: resume.ResumeID,
		Overall:  overall,
		Breakdown: domain.ScoreBreakdown{
			Skills:     roundHalfUp2(skillsScore),
			Experience: roundHalfUp2(experienceScore),
			Education:  roundHalfUp2(educationScore),
			SoftSkills: roundHalfUp2(softSkillsScore),
		},
		WeightsUsed:            Weights,
		MatchedSkills:          matched,
		MissingMandatorySkills: missingMandatory,
		Recommendation:         rec,
	}
}

// skillsSubScore gates on mandatory skills, then weights the matched set.
func skillsSubScore(jd domain.JdDto, resume domain.ResumeDto) (score float64, matched, missingMandatory []string) {
	have := make(map[string]struct{}, len(resume.Skills))
	for _, s := range resume.Skills {
		have[normalizeSkill(s)] = struct{}{}
	}

	var totalWeight, matchedWeight float64
	for _, req := range jd.RequiredSkills {
		totalWeight += req.Weight
		_, present := have[normalizeSkill(req.Name)]
		if present {
			matched = append(matched, req.Name)
			matchedWeight += req.Weight
		} else if req.Mandatory {
			missingMandatory = append(missingMandatory, req.Name)
		}
	}

	if len(missingMandatory) > 0 {
		return 0, matched, missingMandatory
	}
	if totalWeight <= 0 {
		return 100, matched, nil
	}
	return 100 * matchedWeight / totalWeight, matched, nil
}

// experienceSubScore scores within-band as 100, pro-rates a shortfall, and
// penalizes over-qualification with a floor of 60. A nil Max represents an open
// upper bound ("5+ years"), which can never trigger the over-qualification
// penalty.
func experienceSubScore(years domain.YearsRange, y float64) float64 {
	a := float64(years.Min)
	if y < a {
		if a <= 0 {
			return 100
		}
		return math.Max(0, 100*y/a)
	}
	if years.Max == nil {
		return 100
	}
	b := float64(*years.Max)
	if y <= b {
		return 100
	}
	return math.Max(60, 100-5*(y-b))
}

// educationSubScore compares the attained level against the required one,
// deducting 25 points per missing level.
func educationSubScore(required domain.EducationLevel, attained []domain.Degree) float64 {
	r := domain.LevelRank(required)
	if r == 0 {
		return 100
	}
	c := 0
	for _, d := range attained {
		if rank := domain.LevelRank(d.Level); rank > c {
			c = rank
		}
	}
	if c >= r {
		return 100
	}
	return math.Max(0, 100-25*float64(r-c))
}

// softSkillsSubScore is the overlap ratio of required and inferred soft
// skills. inferredSoftSkills is the
// ResumeDto.SoftSkills field populated by C4.
func softSkillsSubScore(required, inferred []string) float64 {
	if len(required) == 0 {
		return 0 // empty intersection over max(1, 0) denominator
	}
	have := make(map[string]struct{}, len(inferred))
	for _, s := range inferred {
		have[normalizeSkill(s)] = struct{}{}
	}
	var hits int
	for _, s := range required {
		if _, ok := have[normalizeSkill(s)]; ok {
			hits++
		}
	}
	return 100 * float64(hits) / float64(maxInt(1, len(required)))
}

func recommendationFor(overall float64) domain.Recommendation {
	switch {
	case overall >= 80:
		return domain.RecommendationStrongMatch
	case overall >= 65:
		return domain.RecommendationMatch
	case overall >= 45:
		return domain.RecommendationWeakMatch
	default:
		return domain.RecommendationNoMatch
	}
}

func normalizeSkill(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// roundHalfUp2 rounds to 2 decimals, half away from zero.
func roundHalfUp2(v float64) float64 { return math.Round(v*100) / 100 }

// RankedRequiredSkills returns jd.RequiredSkills sorted by weight descending,
// used by the Report Generator to rank strengths/concerns.
func RankedRequiredSkills(jd domain.JdDto) []domain.SkillRequirement {
	out := make([]domain.SkillRequirement, len(jd.RequiredSkills))
	copy(out, jd.RequiredSkills)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Weight > out[j].Weight })
	return out
}
