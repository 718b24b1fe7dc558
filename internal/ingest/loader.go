package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"handbook/internal/coursecode"
	"handbook/internal/domain"
)

// Placeholder names some scraped records carry instead of the course title.
const bogusCourseName = "TEQSA Category: Australian University"

var (
	urlCodeRe  = regexp.MustCompile(`(?i)/courses/(c\d{5})`)
	fileCodeRe = regexp.MustCompile(`(?i)(?:^|[^a-z0-9])(c\d{5})(?:[^0-9]|$)`)
)

// sectionLabels lists the narrative sections of a course file and their labels.
var sectionLabels = map[string]string{
	domain.ChunkOverview:       "Overview",
	domain.ChunkAdmission:      "Admission Requirements",
	domain.ChunkCareer:         "Career Options",
	"course_structure":         "Course Structure",
	"professional_recognition": "Professional Recognition",
	"inherent_requirements":    "Inherent Requirements",
	"structure_notes":          "Structure Notes",
	"notes":                    "Notes",
	domain.ChunkOutcome:        "Learning Outcomes",
}

// textValue accepts a string, a number, or a list of strings.
type textValue struct {
	Text  string
	Items []string
}

func (v *textValue) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch x := raw.(type) {
	case nil:
	case string:
		if strings.TrimSpace(x) != "None" {
			v.Text = x
		}
	case float64:
		v.Text = strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		v.Text = strconv.FormatBool(x)
	case []any:
		for _, it := range x {
			s, ok := it.(string)
			if !ok {
				return fmt.Errorf("unsupported list element %T", it)
			}
			v.Items = append(v.Items, s)
		}
	default:
		return fmt.Errorf("unsupported value type %T", raw)
	}
	return nil
}

// joined renders the value on one line.
func (v textValue) joined() string {
	if len(v.Items) == 0 {
		return strings.TrimSpace(v.Text)
	}
	var parts []string
	for _, it := range v.Items {
		if s := strings.TrimSpace(it); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

type outcome struct {
	Number textValue `json:"number"`
	Text   string    `json:"text"`
}

type courseFile struct {
	CourseCode string `json:"course_code"`
	CourseName string `json:"course_name"`
	Metadata   struct {
		SourceURL string `json:"source_url"`
	} `json:"metadata"`

	CreditPoints     textValue `json:"credit_points"`
	CricosCode       textValue `json:"cricos_code"`
	Faculty          textValue `json:"faculty"`
	StudyLevel       textValue `json:"study_level"`
	DurationFullTime textValue `json:"duration_fulltime"`
	DurationPartTime textValue `json:"duration_parttime"`
	Location         textValue `json:"location"`
	Awards           textValue `json:"awards"`

	LearningOutcomes []outcome `json:"learning_outcomes"`

	sections map[string]textValue
}

func (f *courseFile) UnmarshalJSON(data []byte) error {
	type plain courseFile
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	p.sections = make(map[string]textValue)
	for key := range sectionLabels {
		raw, ok := all[key]
		if !ok || key == domain.ChunkOutcome {
			continue
		}
		var v textValue
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("field %s: %w", key, err)
		}
		p.sections[key] = v
	}
	*f = courseFile(p)
	return nil
}

// ParseCourse decodes one course JSON document. name is the source file name,
// used as the last resort for the course code and title.
func ParseCourse(data []byte, name string) (domain.CourseRecord, error) {
	var f courseFile
	if err := json.Unmarshal(data, &f); err != nil {
		return domain.CourseRecord{}, domain.Errorf(domain.KindIngestionIntegrity, "ingest.parse", err, "decode %s", name)
	}
	code := resolveCode(f.CourseCode, f.Metadata.SourceURL, name)
	if !coursecode.Valid(code) {
		return domain.CourseRecord{}, domain.Integrity("ingest.parse", "%s: no valid course code (got %q)", name, f.CourseCode)
	}

	rec := domain.CourseRecord{
		Code:     code,
		Name:     resolveName(f.CourseName, name),
		Sections: make(map[string]domain.Section),
	}
	facts := []struct {
		label string
		value textValue
	}{
		{"Credit Points", f.CreditPoints},
		{"CRICOS Code", f.CricosCode},
		{"Faculty", f.Faculty},
		{"Study Level", f.StudyLevel},
		{"Duration (Full-time)", f.DurationFullTime},
		{"Duration (Part-time)", f.DurationPartTime},
		{"Location", f.Location},
		{"Awards", f.Awards},
	}
	for _, fact := range facts {
		if v := fact.value.joined(); v != "" {
			rec.Facts = append(rec.Facts, domain.Fact{Label: fact.label, Value: v})
		}
	}
	for key, v := range f.sections {
		sec := domain.Section{Label: sectionLabels[key], Text: v.Text, Items: v.Items}
		if !sec.Empty() {
			rec.Sections[key] = sec
		}
	}
	var items []string
	for _, o := range f.LearningOutcomes {
		text := strings.TrimSpace(o.Text)
		if text == "" {
			continue
		}
		if n := o.Number.joined(); n != "" {
			text = n + ". " + text
		}
		items = append(items, text)
	}
	if len(items) > 0 {
		rec.Sections[domain.ChunkOutcome] = domain.Section{Label: sectionLabels[domain.ChunkOutcome], Items: items}
	}
	return rec, nil
}

func resolveCode(declared, sourceURL, filename string) string {
	if c := coursecode.Normalize(declared); coursecode.Valid(c) {
		return c
	}
	if m := urlCodeRe.FindStringSubmatch(sourceURL); m != nil {
		return coursecode.Normalize(m[1])
	}
	if m := fileCodeRe.FindStringSubmatch(filepath.Base(filename)); m != nil {
		return coursecode.Normalize(m[1])
	}
	return coursecode.Normalize(declared)
}

func resolveName(declared, filename string) string {
	name := strings.TrimSpace(declared)
	if name != "" && name != bogusCourseName {
		return name
	}
	stem := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	var parts []string
	for _, p := range strings.Split(stem, "_") {
		if p == "" || p == "None" || coursecode.Valid(coursecode.Normalize(p)) {
			continue
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, " ")
}

// LoadDir reads every *.json course file in dir, sorted by name. Files that
// fail to parse are returned in skipped with their error.
func LoadDir(dir string) (records []domain.CourseRecord, skipped map[string]error, err error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, nil, err
	}
	if len(paths) == 0 {
		return nil, nil, fmt.Errorf("no course JSON files found in %s", dir)
	}
	sort.Strings(paths)
	skipped = make(map[string]error)
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, nil, err
		}
		rec, err := ParseCourse(data, filepath.Base(p))
		if err != nil {
			skipped[filepath.Base(p)] = err
			continue
		}
		records = append(records, rec)
	}
	return records, skipped, nil
}
