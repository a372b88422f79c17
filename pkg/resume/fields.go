package resume

import (
	"regexp"
	"strings"
	"unicode"

	"mockinterview/pkg/domain"
)

const maxFieldRunes = 600

type section int

const (
	sectionNone section = iota
	sectionSkills
	sectionExperience
	sectionEducation
	sectionOther
)

var headings = map[string]section{
	"skills":                  sectionSkills,
	"technical skills":        sectionSkills,
	"key skills":              sectionSkills,
	"core competencies":       sectionSkills,
	"technologies":            sectionSkills,
	"experience":              sectionExperience,
	"work experience":         sectionExperience,
	"professional experience": sectionExperience,
	"employment history":      sectionExperience,
	"work history":            sectionExperience,
	"education":               sectionEducation,
	"academic background":     sectionEducation,
	"qualifications":          sectionEducation,
	"projects":                sectionOther,
	"certifications":          sectionOther,
	"summary":                 sectionOther,
	"profile":                 sectionOther,
	"objective":               sectionOther,
	"achievements":            sectionOther,
	"interests":               sectionOther,
	"contact":                 sectionOther,
	"languages":               sectionOther,
}

var labelled = regexp.MustCompile(`(?i)^(name|designation|title|role|current role|skills|technical skills|experience|education)\s*[:\-–]\s*(.+)$`)

var roleWords = []string{
	"engineer", "developer", "programmer", "manager", "analyst", "designer",
	"tester", "architect", "consultant", "administrator", "specialist",
	"scientist", "intern", "lead", "recruiter", "devops", "qa",
}

var contactLike = regexp.MustCompile(`@|https?://|www\.|\+?\d[\d\s().-]{6,}`)

// ExtractFields derives structured fields from résumé text. Fields that
// cannot be found stay empty.
func ExtractFields(text string) domain.ResumeFields {
	var fields domain.ResumeFields
	var skills, experience, education []string
	current := sectionNone
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if m := labelled.FindStringSubmatch(line); m != nil {
			value := strings.TrimSpace(m[2])
			switch strings.ToLower(m[1]) {
			case "name":
				if fields.Name == "" {
					fields.Name = value
				}
			case "designation", "title", "role", "current role":
				if fields.Role == "" {
					fields.Role = value
				}
			case "skills", "technical skills":
				skills = append(skills, value)
				current = sectionSkills
			case "experience":
				experience = append(experience, value)
				current = sectionExperience
			case "education":
				education = append(education, value)
				current = sectionEducation
			}
			continue
		}
		if sec, ok := headingSection(line); ok {
			current = sec
			continue
		}
		switch current {
		case sectionSkills:
			skills = append(skills, trimBullet(line))
		case sectionExperience:
			experience = append(experience, trimBullet(line))
		case sectionEducation:
			education = append(education, trimBullet(line))
		case sectionNone:
			if fields.Name == "" && i < 3 && looksLikeName(line) {
				fields.Name = line
				continue
			}
			if fields.Role == "" && looksLikeRole(line) {
				fields.Role = line
			}
		}
	}
	if fields.Role == "" {
		for _, line := range experience {
			if looksLikeRole(line) {
				fields.Role = line
				break
			}
		}
	}
	fields.Skills = joinField(skills)
	fields.Experience = joinField(experience)
	fields.Education = joinField(education)
	fields.Name = clip(fields.Name)
	fields.Role = clip(fields.Role)
	return fields
}

func headingSection(line string) (section, bool) {
	key := strings.ToLower(strings.TrimRight(strings.TrimSpace(line), ":"))
	sec, ok := headings[key]
	return sec, ok
}

func looksLikeName(line string) bool {
	if contactLike.MatchString(line) {
		return false
	}
	words := strings.Fields(line)
	if len(words) < 2 || len(words) > 4 {
		return false
	}
	for _, w := range words {
		for _, r := range w {
			if !unicode.IsLetter(r) && r != '.' && r != '-' && r != '\'' {
				return false
			}
		}
		if !unicode.IsUpper([]rune(w)[0]) {
			return false
		}
	}
	return !looksLikeRole(line)
}

func looksLikeRole(line string) bool {
	if len([]rune(line)) > 80 || contactLike.MatchString(line) {
		return false
	}
	lower := strings.ToLower(line)
	for _, w := range strings.FieldsFunc(lower, func(r rune) bool { return !unicode.IsLetter(r) }) {
		for _, role := range roleWords {
			if w == role {
				return true
			}
		}
	}
	return false
}

func trimBullet(line string) string {
	return strings.TrimSpace(strings.TrimLeft(line, "-*•·▪ "))
}

func joinField(parts []string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return clip(strings.Join(out, ", "))
}

func clip(s string) string {
	runes := []rune(s)
	if len(runes) <= maxFieldRunes {
		return s
	}
	return strings.TrimSpace(string(runes[:maxFieldRunes]))
}
